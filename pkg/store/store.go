package store

import (
	"errors"

	"docqa/pkg/domain"
	"docqa/pkg/index"
)

// ErrDocumentNotFound is returned when a document id is not live.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore defines operations over uploaded documents and their index.
type DocumentStore interface {
	AddDocument(domain.Document)
	ListDocuments() []domain.DocumentSummary
	RemoveDocument(id string) (domain.Document, error)
	Search(query string, limit int) []index.Result
	Stats() (documents, indexedChunks int)
}

// ConversationStore keeps per-session chat turns.
type ConversationStore interface {
	GetOrCreate(sessionID string) (string, []domain.Turn)
	Append(sessionID string, turn domain.Turn)
	History(sessionID string) []domain.Turn
}

var (
	_ DocumentStore     = (*Library)(nil)
	_ ConversationStore = (*Conversations)(nil)
)
