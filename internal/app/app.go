package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"docqa/internal/util"
	"docqa/pkg/chunker"
	"docqa/pkg/domain"
	"docqa/pkg/extract"
	"docqa/pkg/index"
	"docqa/pkg/store"
)

const (
	contextSeparator          = "\n\n---\n\n"
	defaultMaxUploadFiles     = 5
	defaultMaxFileBytes       = 10 << 20
	defaultExtractConcurrency = 4
)

// Generator answers a question, grounded in docContext when it is non-empty.
type Generator interface {
	GenerateAnswer(ctx context.Context, question, docContext string) (string, error)
}

// Extractor turns a spooled file into plain text.
type Extractor interface {
	Extract(path, ext string) (string, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	Generator     Generator
	Extractor     Extractor
	Chunker       *chunker.Chunker
	Library       store.DocumentStore
	Conversations store.ConversationStore

	UploadDir          string
	SearchLimit        int
	MaxUploadFiles     int
	MaxFileBytes       int64
	ExtractConcurrency int
	// GenerationTimeout bounds each generator call; zero means no bound
	// beyond the request context.
	GenerationTimeout time.Duration
	Now               func() time.Time
}

// App wires the document library, the conversation store and the answer generator.
type App struct {
	generator     Generator
	extractor     Extractor
	chunker       *chunker.Chunker
	library       store.DocumentStore
	conversations store.ConversationStore
	spool         *spool

	searchLimit        int
	maxUploadFiles     int
	extractConcurrency int
	generationTimeout  time.Duration
	now                func() time.Time
}

// ChatResult is the outcome of one chat turn.
type ChatResult struct {
	Answer       string   `json:"answer"`
	Sources      []string `json:"sources"`
	SessionID    string   `json:"sessionId"`
	HasDocuments bool     `json:"hasDocuments"`
}

// DeleteResult describes a removed document.
type DeleteResult struct {
	DeletedDocument    string `json:"deletedDocument"`
	RemainingDocuments int    `json:"remainingDocuments"`
}

// Health reports library counters.
type Health struct {
	Status      string    `json:"status"`
	Documents   int       `json:"documents"`
	VectorStore int       `json:"vectorStore"`
	Timestamp   time.Time `json:"timestamp"`
}

// New constructs the application. Only Generator is required; other
// collaborators default to in-memory implementations.
func New(cfg Config) (*App, error) {
	if cfg.Generator == nil {
		return nil, errors.New("answer generator required")
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.New()
	}
	if cfg.Chunker == nil {
		cfg.Chunker = chunker.New()
	}
	if cfg.Library == nil {
		cfg.Library = store.NewLibrary()
	}
	if cfg.Conversations == nil {
		cfg.Conversations = store.NewConversations()
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = index.DefaultLimit
	}
	if cfg.MaxUploadFiles <= 0 {
		cfg.MaxUploadFiles = defaultMaxUploadFiles
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = defaultMaxFileBytes
	}
	if cfg.ExtractConcurrency <= 0 {
		cfg.ExtractConcurrency = defaultExtractConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	sp, err := newSpool(cfg.UploadDir, cfg.MaxFileBytes)
	if err != nil {
		return nil, err
	}
	return &App{
		generator:          cfg.Generator,
		extractor:          cfg.Extractor,
		chunker:            cfg.Chunker,
		library:            cfg.Library,
		conversations:      cfg.Conversations,
		spool:              sp,
		searchLimit:        cfg.SearchLimit,
		maxUploadFiles:     cfg.MaxUploadFiles,
		extractConcurrency: cfg.ExtractConcurrency,
		generationTimeout:  cfg.GenerationTimeout,
		now:                cfg.Now,
	}, nil
}

// MaxUploadFiles is the number of files accepted per upload request.
func (a *App) MaxUploadFiles() int {
	return a.maxUploadFiles
}

// MaxFileBytes is the per-file upload limit.
func (a *App) MaxFileBytes() int64 {
	return a.spool.maxBytes
}

// Chat answers message within a session. A blank or unknown sessionID starts a
// new session. When documents are indexed, the best matching chunks become the
// generator's context and their filenames the answer's sources.
func (a *App) Chat(ctx context.Context, message, sessionID string) (ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return ChatResult{}, ErrMessageRequired
	}
	logger := util.LoggerFromContext(ctx)
	sessionID, _ = a.conversations.GetOrCreate(strings.TrimSpace(sessionID))

	docContext, sources := "", []string{}
	if _, indexed := a.library.Stats(); indexed > 0 {
		hits := a.library.Search(message, a.searchLimit)
		docContext, sources = buildContext(hits)
		logger.Debug("chat search", "session_id", sessionID, "hits", len(hits), "sources", sources)
	}

	answer, err := a.generate(ctx, message, docContext)
	if err != nil {
		logger.Error("answer generation failed", "session_id", sessionID, "err", err)
		return ChatResult{}, &generationError{err: err}
	}

	a.conversations.Append(sessionID, domain.Turn{
		ID:        util.NewID(),
		Message:   message,
		Answer:    answer,
		Sources:   sources,
		Timestamp: a.now().UTC(),
	})
	_, indexed := a.library.Stats()
	logger.Info("chat answered", "session_id", sessionID, "answer_chars", len(answer), "sources", len(sources))
	return ChatResult{
		Answer:       answer,
		Sources:      sources,
		SessionID:    sessionID,
		HasDocuments: indexed > 0,
	}, nil
}

func (a *App) generate(ctx context.Context, message, docContext string) (string, error) {
	if a.generationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.generationTimeout)
		defer cancel()
	}
	return a.generator.GenerateAnswer(ctx, message, docContext)
}

// buildContext joins hit contents with a separator and collects their
// filenames, deduplicated in first-seen order.
func buildContext(hits []index.Result) (string, []string) {
	sources := []string{}
	if len(hits) == 0 {
		return "", sources
	}
	parts := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Chunk.Content)
		if _, ok := seen[h.Chunk.Filename]; ok {
			continue
		}
		seen[h.Chunk.Filename] = struct{}{}
		sources = append(sources, h.Chunk.Filename)
	}
	return strings.Join(parts, contextSeparator), sources
}

// History returns the turns of a session; unknown sessions have none.
func (a *App) History(sessionID string) []domain.Turn {
	return a.conversations.History(sessionID)
}

// ListDocuments returns document summaries in upload order.
func (a *App) ListDocuments() []domain.DocumentSummary {
	return a.library.ListDocuments()
}

// DeleteDocument removes a document and its indexed chunks.
func (a *App) DeleteDocument(ctx context.Context, id string) (DeleteResult, error) {
	doc, err := a.library.RemoveDocument(strings.TrimSpace(id))
	if err != nil {
		return DeleteResult{}, err
	}
	remaining, _ := a.library.Stats()
	util.LoggerFromContext(ctx).Info("document deleted", "document_id", doc.ID, "filename", doc.Filename)
	return DeleteResult{DeletedDocument: doc.Filename, RemainingDocuments: remaining}, nil
}

// Health reports the number of documents and indexed chunks.
func (a *App) Health() Health {
	docs, chunks := a.library.Stats()
	return Health{
		Status:      "ok",
		Documents:   docs,
		VectorStore: chunks,
		Timestamp:   a.now().UTC(),
	}
}
