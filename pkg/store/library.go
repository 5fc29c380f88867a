package store

import (
	"sync"

	"docqa/pkg/domain"
	"docqa/pkg/index"
)

// Library keeps uploaded documents and their search index in-process.
// Documents and index entries change together under one lock, so readers
// never see a document without its chunks or chunks without their document.
type Library struct {
	mu     sync.RWMutex
	docs   map[string]domain.Document
	orders []string
	index  *index.Index
}

// NewLibrary initializes an empty library.
func NewLibrary() *Library {
	return &Library{
		docs:  make(map[string]domain.Document),
		index: index.New(),
	}
}

// AddDocument records doc and indexes its chunks.
func (l *Library) AddDocument(doc domain.Document) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.docs[doc.ID]; exists {
		l.index.RemoveDocument(doc.ID)
	} else {
		l.orders = append(l.orders, doc.ID)
	}
	l.docs[doc.ID] = doc
	l.index.Add(doc.ID, doc.Chunks)
}

// ListDocuments returns document summaries in upload order.
func (l *Library) ListDocuments() []domain.DocumentSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res := make([]domain.DocumentSummary, 0, len(l.orders))
	for _, id := range l.orders {
		if d, ok := l.docs[id]; ok {
			res = append(res, d.Summary())
		}
	}
	return res
}

// RemoveDocument deletes a document and all of its index entries.
func (l *Library) RemoveDocument(id string) (domain.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, ok := l.docs[id]
	if !ok {
		return domain.Document{}, ErrDocumentNotFound
	}
	delete(l.docs, id)
	for i, oid := range l.orders {
		if oid == id {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			break
		}
	}
	l.index.RemoveDocument(id)
	return doc, nil
}

// Search ranks indexed chunks against query.
func (l *Library) Search(query string, limit int) []index.Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index.Search(query, limit)
}

// Stats reports the number of live documents and indexed chunks.
func (l *Library) Stats() (documents, indexedChunks int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.docs), l.index.Len()
}
