package domain

import "time"

// Document is an uploaded file after extraction and chunking.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Chunks     []Chunk   `json:"chunks"`
	UploadedAt time.Time `json:"uploadedAt"`
	SizeBytes  int64     `json:"size"`
}

// Summary returns the listing view of the document without chunk contents.
func (d Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:         d.ID,
		Filename:   d.Filename,
		Chunks:     len(d.Chunks),
		UploadedAt: d.UploadedAt,
		Size:       d.SizeBytes,
	}
}

type DocumentSummary struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Chunks     int       `json:"chunks"`
	UploadedAt time.Time `json:"uploadedAt"`
	Size       int64     `json:"size"`
}

// Chunk is a contiguous word window of a document's cleaned text.
type Chunk struct {
	Content    string `json:"content"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunkIndex"`
	WordCount  int    `json:"wordCount"`
}

// IndexedChunk is the searchable copy of a Chunk held by the index.
type IndexedChunk struct {
	ID         string   `json:"id"`
	DocumentID string   `json:"documentId"`
	Content    string   `json:"content"`
	Filename   string   `json:"filename"`
	Keywords   []string `json:"-"`
}

// Turn is one question/answer exchange within a session.
type Turn struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}
