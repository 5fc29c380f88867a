package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"docqa/internal/util"
	"docqa/pkg/chunker"
	"docqa/pkg/domain"
	"docqa/pkg/extract"
)

// UploadFile is one file of an upload batch. Open may be called once, from
// any goroutine.
type UploadFile struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// UploadedDocument is a successfully indexed file.
type UploadedDocument struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
	Filename   string `json:"filename"`
	Chunks     int    `json:"chunks"`
}

// UploadError is a file that could not be indexed.
type UploadError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadResult reports per-file outcomes and library totals after the batch.
type UploadResult struct {
	Success        bool               `json:"success"`
	Results        []UploadedDocument `json:"results"`
	Errors         []UploadError      `json:"errors"`
	TotalDocuments int                `json:"totalDocuments"`
	TotalChunks    int                `json:"totalChunks"`
}

type processed struct {
	doc domain.Document
	err error
}

// Upload extracts and chunks every file concurrently, then records the
// successful ones in request order. A failing file never affects the others.
func (a *App) Upload(ctx context.Context, files []UploadFile) (UploadResult, error) {
	if len(files) == 0 {
		return UploadResult{}, ErrNoFiles
	}
	if len(files) > a.maxUploadFiles {
		return UploadResult{}, fmt.Errorf("%w: at most %d files per upload", ErrTooManyFiles, a.maxUploadFiles)
	}
	logger := util.LoggerFromContext(ctx)

	outcomes := make([]processed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.extractConcurrency)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = processed{err: err}
				return nil
			}
			doc, err := a.processFile(f)
			outcomes[i] = processed{doc: doc, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return UploadResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return UploadResult{}, err
	}

	result := UploadResult{
		Results: []UploadedDocument{},
		Errors:  []UploadError{},
	}
	for i, out := range outcomes {
		name := files[i].Filename
		if out.err != nil {
			logger.Warn("upload file failed", "filename", name, "err", out.err)
			result.Errors = append(result.Errors, UploadError{Filename: name, Error: uploadErrorMessage(name, out.err)})
			continue
		}
		a.library.AddDocument(out.doc)
		logger.Info("document indexed", "document_id", out.doc.ID, "filename", name, "chunks", len(out.doc.Chunks))
		result.Results = append(result.Results, UploadedDocument{
			Success:    true,
			DocumentID: out.doc.ID,
			Filename:   name,
			Chunks:     len(out.doc.Chunks),
		})
	}
	result.Success = len(result.Results) > 0
	result.TotalDocuments, result.TotalChunks = a.library.Stats()
	return result, nil
}

// processFile spools, extracts and chunks one file. The spooled copy is
// removed before returning.
func (a *App) processFile(f UploadFile) (domain.Document, error) {
	ext := strings.ToLower(filepath.Ext(f.Filename))
	if !extract.IsSupported(ext) {
		return domain.Document{}, fmt.Errorf("%w: %s", extract.ErrUnsupportedType, ext)
	}
	if f.Size > a.spool.maxBytes {
		return domain.Document{}, ErrFileTooLarge
	}
	if f.Open == nil {
		return domain.Document{}, errors.New("file content unavailable")
	}

	rc, err := f.Open()
	if err != nil {
		return domain.Document{}, fmt.Errorf("open upload: %w", err)
	}
	path, err := a.spool.write(rc, ext)
	rc.Close()
	if err != nil {
		return domain.Document{}, err
	}
	defer os.Remove(path)

	size := f.Size
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	text, err := a.extractor.Extract(path, ext)
	if err != nil {
		return domain.Document{}, err
	}
	chunks, err := a.chunker.Chunk(text, f.Filename)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{
		ID:         util.NewID(),
		Filename:   f.Filename,
		Chunks:     chunks,
		UploadedAt: a.now().UTC(),
		SizeBytes:  size,
	}, nil
}

func uploadErrorMessage(filename string, err error) string {
	switch {
	case errors.Is(err, extract.ErrUnsupportedType):
		return "Unsupported file type: " + strings.ToLower(filepath.Ext(filename))
	case errors.Is(err, ErrFileTooLarge):
		return "File too large"
	case errors.Is(err, chunker.ErrNoReadableContent):
		return "No readable content found in document"
	default:
		return err.Error()
	}
}
