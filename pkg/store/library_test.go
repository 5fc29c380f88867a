package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docqa/pkg/domain"
)

func testDocument(id, filename string, contents ...string) domain.Document {
	chunks := make([]domain.Chunk, 0, len(contents))
	for i, c := range contents {
		chunks = append(chunks, domain.Chunk{Content: c, Filename: filename, ChunkIndex: i})
	}
	return domain.Document{
		ID:         id,
		Filename:   filename,
		Chunks:     chunks,
		UploadedAt: time.Now().UTC(),
		SizeBytes:  int64(len(filename)),
	}
}

func TestLibraryAddListRemove(t *testing.T) {
	l := NewLibrary()
	l.AddDocument(testDocument("d1", "a.txt", "quantum entanglement basics", "more quantum text"))
	l.AddDocument(testDocument("d2", "b.txt", "classical mechanics overview"))

	list := l.ListDocuments()
	if len(list) != 2 || list[0].ID != "d1" || list[1].ID != "d2" {
		t.Fatalf("unexpected listing: %#v", list)
	}
	if list[0].Chunks != 2 || list[0].Filename != "a.txt" {
		t.Fatalf("unexpected summary: %#v", list[0])
	}
	if docs, chunks := l.Stats(); docs != 2 || chunks != 3 {
		t.Fatalf("Stats() = %d, %d", docs, chunks)
	}

	removed, err := l.RemoveDocument("d1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Filename != "a.txt" {
		t.Fatalf("removed filename = %q", removed.Filename)
	}
	if got := l.Search("quantum", 10); len(got) != 0 {
		t.Fatalf("expected no hits after delete, got %d", len(got))
	}
	if docs, chunks := l.Stats(); docs != 1 || chunks != 1 {
		t.Fatalf("Stats() after delete = %d, %d", docs, chunks)
	}
	if list := l.ListDocuments(); len(list) != 1 || list[0].ID != "d2" {
		t.Fatalf("unexpected listing after delete: %#v", list)
	}
}

func TestLibraryRemoveUnknown(t *testing.T) {
	l := NewLibrary()
	if _, err := l.RemoveDocument("missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestLibraryListEmptyIsNonNil(t *testing.T) {
	if got := NewLibrary().ListDocuments(); got == nil {
		t.Fatalf("expected non-nil empty listing")
	}
}

func TestLibrarySearchNeverSeesOrphanChunks(t *testing.T) {
	l := NewLibrary()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("d%d", i)
			l.AddDocument(testDocument(id, id+".txt", "shared searchable content"))
			if i%2 == 0 {
				if _, err := l.RemoveDocument(id); err != nil {
					t.Errorf("remove %s: %v", id, err)
				}
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, r := range l.Search("searchable", 50) {
				if r.Chunk.DocumentID == "" {
					t.Errorf("search hit without document id")
				}
			}
		}()
	}
	wg.Wait()

	docs, chunks := l.Stats()
	if docs != 10 || chunks != 10 {
		t.Fatalf("Stats() = %d, %d, want 10, 10", docs, chunks)
	}
	live := make(map[string]bool)
	for _, d := range l.ListDocuments() {
		live[d.ID] = true
	}
	for _, r := range l.Search("searchable", 50) {
		if !live[r.Chunk.DocumentID] {
			t.Fatalf("orphan index entry for %s", r.Chunk.DocumentID)
		}
	}
}
