package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/storage"
)

func newTestStores(t *testing.T) *Stores {
	t.Helper()
	stores, err := NewMemoryStores()
	if err != nil {
		t.Fatalf("Failed to create stores: %v", err)
	}
	t.Cleanup(func() { stores.Close() })
	return stores
}

func TestDocumentBasics(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	doc := &core.Document{
		Owner:      "alice",
		Filename:   "notes.txt",
		FileType:   ".txt",
		UploadedAt: time.Now().UTC(),
		Status:     core.StatusPending,
	}

	added, err := stores.Documents.AddDocument(ctx, doc)
	if err != nil {
		t.Fatalf("Failed to add document: %v", err)
	}
	if added.Id == 0 {
		t.Fatal("Expected non-zero ID")
	}

	retrieved, err := stores.Documents.GetDocument(ctx, added.Id)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if retrieved.Filename != "notes.txt" {
		t.Fatalf("Expected 'notes.txt', got '%s'", retrieved.Filename)
	}
	if retrieved.Status != core.StatusPending {
		t.Fatalf("Expected pending status, got %s", retrieved.Status)
	}
}

func TestDocumentUpdate(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	doc, err := stores.Documents.AddDocument(ctx, &core.Document{
		Owner:    "alice",
		Filename: "report.pdf",
		FileType: ".pdf",
		Status:   core.StatusPending,
	})
	if err != nil {
		t.Fatalf("Failed to add document: %v", err)
	}

	doc.Status = core.StatusIndexed
	doc.ChunkCount = 7
	if err := stores.Documents.UpdateDocument(ctx, doc); err != nil {
		t.Fatalf("Failed to update document: %v", err)
	}

	retrieved, err := stores.Documents.GetDocument(ctx, doc.Id)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if retrieved.Status != core.StatusIndexed || retrieved.ChunkCount != 7 {
		t.Fatalf("Update not persisted: status=%s chunks=%d", retrieved.Status, retrieved.ChunkCount)
	}
}

func TestDocumentUpdateMissing(t *testing.T) {
	stores := newTestStores(t)

	err := stores.Documents.UpdateDocument(context.Background(), &core.Document{
		Id:       9999,
		Owner:    "alice",
		Filename: "ghost.txt",
		FileType: ".txt",
		Status:   core.StatusPending,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestListDocumentsOwnerIsolation(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	for _, spec := range []struct {
		owner    core.OwnerID
		filename string
	}{
		{"alice", "a1.txt"},
		{"alice", "a2.txt"},
		{"bob", "b1.txt"},
	} {
		_, err := stores.Documents.AddDocument(ctx, &core.Document{
			Owner:    spec.owner,
			Filename: spec.filename,
			FileType: ".txt",
			Status:   core.StatusPending,
		})
		if err != nil {
			t.Fatalf("Failed to add document: %v", err)
		}
	}

	aliceDocs, err := stores.Documents.ListDocuments(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to list documents: %v", err)
	}
	if len(aliceDocs) != 2 {
		t.Fatalf("Expected 2 documents for alice, got %d", len(aliceDocs))
	}
	for _, doc := range aliceDocs {
		if doc.Owner != "alice" {
			t.Fatalf("Owner leak: got document owned by %s", doc.Owner)
		}
	}

	// Ascending ID order
	if aliceDocs[0].Id >= aliceDocs[1].Id {
		t.Fatalf("Expected ascending IDs, got %d then %d", aliceDocs[0].Id, aliceDocs[1].Id)
	}

	emptyDocs, err := stores.Documents.ListDocuments(ctx, "carol")
	if err != nil {
		t.Fatalf("Failed to list documents: %v", err)
	}
	if len(emptyDocs) != 0 {
		t.Fatalf("Expected no documents for carol, got %d", len(emptyDocs))
	}
}

func TestDeleteDocument(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	doc, err := stores.Documents.AddDocument(ctx, &core.Document{
		Owner:    "alice",
		Filename: "doomed.txt",
		FileType: ".txt",
		Status:   core.StatusPending,
	})
	if err != nil {
		t.Fatalf("Failed to add document: %v", err)
	}

	if err := stores.Documents.DeleteDocument(ctx, doc.Id); err != nil {
		t.Fatalf("Failed to delete document: %v", err)
	}

	_, err = stores.Documents.GetDocument(ctx, doc.Id)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after delete, got %v", err)
	}

	docs, err := stores.Documents.ListDocuments(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to list documents: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("Expected empty listing after delete, got %d", len(docs))
	}
}
