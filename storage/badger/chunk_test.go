package badger

import (
	"context"
	"testing"

	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/storage"
)

func indexedChunk(owner core.OwnerID, docID core.ID, seq int, text string, vector []float32) *storage.IndexedChunk {
	return &storage.IndexedChunk{
		Chunk: &core.Chunk{
			DocumentId: docID,
			Owner:      owner,
			Seq:        seq,
			Text:       text,
			Metadata:   map[string]string{"source_file": "test.txt"},
		},
		Vector: vector,
	}
}

func TestAddIndexedChunksVisibility(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	committed, err := stores.Chunks.AddIndexedChunks(ctx,
		indexedChunk("alice", 1, 0, "solar panels convert sunlight", []float32{1, 0, 0}),
	)
	if err != nil {
		t.Fatalf("Failed to add indexed chunk: %v", err)
	}
	if len(committed) != 1 || committed[0].Id == 0 {
		t.Fatalf("Expected 1 committed chunk with non-zero ID, got %+v", committed)
	}
	id := committed[0].Id
	// A committed chunk is visible in the record store and both indexes.
	chunk, err := stores.Chunks.GetChunk(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get chunk: %v", err)
	}
	if chunk.Text != "solar panels convert sunlight" {
		t.Fatalf("Unexpected chunk text: %q", chunk.Text)
	}

	hasEmb, err := stores.Embeddings.Has(ctx, id, "alice")
	if err != nil || !hasEmb {
		t.Fatalf("Expected embedding record, has=%v err=%v", hasEmb, err)
	}
	hasLex, err := stores.Lexical.Has(ctx, id, "alice")
	if err != nil || !hasLex {
		t.Fatalf("Expected lexical postings, has=%v err=%v", hasLex, err)
	}

	count, err := stores.Chunks.CountChunks(ctx, "alice")
	if err != nil || count != 1 {
		t.Fatalf("Expected 1 chunk for alice, got %d (err=%v)", count, err)
	}

	keys, err := stores.Chunks.MetadataKeys(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to read metadata keys: %v", err)
	}
	if !keys["source_file"] {
		t.Fatalf("Expected source_file in metadata-key registry, got %v", keys)
	}
}

func TestAddIndexedChunksSequentialIDs(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	committed, err := stores.Chunks.AddIndexedChunks(ctx,
		indexedChunk("alice", 1, 0, "first piece", []float32{1, 0}),
		indexedChunk("alice", 1, 1, "second piece", []float32{0, 1}),
		indexedChunk("alice", 1, 2, "third piece", []float32{1, 1}),
	)
	if err != nil {
		t.Fatalf("Failed to add chunks: %v", err)
	}
	if len(committed) != 3 {
		t.Fatalf("Expected 3 committed chunks, got %d", len(committed))
	}
	// Input order maps to ascending IDs, so doc-index scans return
	// chunks in sequence order.
	for i := 1; i < len(committed); i++ {
		if committed[i].Id <= committed[i-1].Id {
			t.Fatalf("IDs not ascending: %d then %d", committed[i-1].Id, committed[i].Id)
		}
	}

	ids, err := stores.Chunks.ChunkIDsByDocument(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list chunk IDs: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("Expected 3 chunk IDs, got %d", len(ids))
	}
	for i, id := range ids {
		if id != committed[i].Id {
			t.Fatalf("Doc index order mismatch at %d: %d != %d", i, id, committed[i].Id)
		}
	}
}

func TestAddIndexedChunksPartialFailure(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	committed, err := stores.Chunks.AddIndexedChunks(ctx,
		indexedChunk("alice", 1, 0, "good chunk", []float32{1, 0}),
		indexedChunk("alice", 1, 1, "bad chunk", nil), // no vector
		indexedChunk("alice", 1, 2, "another good chunk", []float32{0, 1}),
	)
	if err == nil {
		t.Fatal("Expected error for chunk without vector")
	}
	if len(committed) != 2 {
		t.Fatalf("Expected 2 committed chunks, got %d", len(committed))
	}

	// The failed chunk left nothing behind in any index.
	count, err := stores.Chunks.CountChunks(ctx, "alice")
	if err != nil || count != 2 {
		t.Fatalf("Expected 2 chunks after partial failure, got %d (err=%v)", count, err)
	}
}

func TestDeleteChunksCascade(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	committed, err := stores.Chunks.AddIndexedChunks(ctx,
		indexedChunk("alice", 1, 0, "wind turbines generate power", []float32{1, 0}),
		indexedChunk("alice", 1, 1, "turbines need maintenance", []float32{0, 1}),
	)
	if err != nil {
		t.Fatalf("Failed to add chunks: %v", err)
	}

	victim := committed[0].Id
	if err := stores.Chunks.DeleteChunks(ctx, victim); err != nil {
		t.Fatalf("Failed to delete chunk: %v", err)
	}

	if _, err := stores.Chunks.GetChunk(ctx, victim); err != storage.ErrNotFound {
		t.Fatalf("Expected ErrNotFound for deleted chunk, got %v", err)
	}
	if has, _ := stores.Embeddings.Has(ctx, victim, "alice"); has {
		t.Fatal("Embedding record survived chunk deletion")
	}
	if has, _ := stores.Lexical.Has(ctx, victim, "alice"); has {
		t.Fatal("Lexical postings survived chunk deletion")
	}

	// Shared term "turbines" still finds the surviving chunk.
	matches, err := stores.Lexical.Search(ctx, "alice", "turbines", 10)
	if err != nil {
		t.Fatalf("Lexical search failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ChunkId != committed[1].Id {
		t.Fatalf("Expected surviving chunk in postings, got %+v", matches)
	}

	// Deleting a missing ID is not an error.
	if err := stores.Chunks.DeleteChunks(ctx, 9999); err != nil {
		t.Fatalf("Delete of missing chunk failed: %v", err)
	}
}

func TestMetadataKeyRegistryRefcounting(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	pageChunk := indexedChunk("alice", 1, 0, "first page text", []float32{1, 0})
	pageChunk.Chunk.Metadata["page"] = "1"
	plainA := indexedChunk("alice", 1, 1, "plain text one", []float32{0, 1})
	plainB := indexedChunk("alice", 1, 2, "plain text two", []float32{1, 1})

	committed, err := stores.Chunks.AddIndexedChunks(ctx, pageChunk, plainA, plainB)
	if err != nil || len(committed) != 3 {
		t.Fatalf("Failed to add chunks: %v (%d committed)", err, len(committed))
	}

	keys, err := stores.Chunks.MetadataKeys(ctx, "alice")
	if err != nil || !keys["page"] || !keys["source_file"] {
		t.Fatalf("Expected page and source_file registered, got %v (err=%v)", keys, err)
	}

	// Deleting the only chunk carrying "page" retires that key; source_file
	// survives on the two remaining chunks.
	if err := stores.Chunks.DeleteChunks(ctx, committed[0].Id); err != nil {
		t.Fatalf("Failed to delete chunk: %v", err)
	}
	keys, err = stores.Chunks.MetadataKeys(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to read metadata keys: %v", err)
	}
	if keys["page"] {
		t.Fatalf("Expected page retired after its last chunk, got %v", keys)
	}
	if !keys["source_file"] {
		t.Fatalf("Expected source_file to survive, got %v", keys)
	}

	// source_file goes only when its last carrier goes.
	if err := stores.Chunks.DeleteChunks(ctx, committed[1].Id, committed[2].Id); err != nil {
		t.Fatalf("Failed to delete chunks: %v", err)
	}
	keys, err = stores.Chunks.MetadataKeys(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to read metadata keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("Expected empty registry, got %v", keys)
	}
}

func TestListChunkIDsPagination(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	var all []*storage.IndexedChunk
	for i := 0; i < 5; i++ {
		all = append(all, indexedChunk("alice", 1, i, "chunk body text", []float32{float32(i + 1)}))
	}
	committed, err := stores.Chunks.AddIndexedChunks(ctx, all...)
	if err != nil {
		t.Fatalf("Failed to add chunks: %v", err)
	}

	var seen []core.ID
	var after core.ID
	for {
		page, err := stores.Chunks.ListChunkIDs(ctx, after, 2)
		if err != nil {
			t.Fatalf("Failed to list chunk IDs: %v", err)
		}
		if len(page) == 0 {
			break
		}
		seen = append(seen, page...)
		after = page[len(page)-1]
	}

	if len(seen) != len(committed) {
		t.Fatalf("Expected %d IDs across pages, got %d", len(committed), len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("Page IDs not ascending: %v", seen)
		}
	}
}

func TestCountChunksOwnerIsolation(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	_, err := stores.Chunks.AddIndexedChunks(ctx,
		indexedChunk("alice", 1, 0, "alpha text", []float32{1, 0}),
		indexedChunk("bob", 2, 0, "beta text", []float32{0, 1}),
		indexedChunk("bob", 2, 1, "gamma text", []float32{1, 1}),
	)
	if err != nil {
		t.Fatalf("Failed to add chunks: %v", err)
	}

	aliceCount, _ := stores.Chunks.CountChunks(ctx, "alice")
	bobCount, _ := stores.Chunks.CountChunks(ctx, "bob")
	if aliceCount != 1 || bobCount != 2 {
		t.Fatalf("Owner counts wrong: alice=%d bob=%d", aliceCount, bobCount)
	}

	bobKeys, _ := stores.Chunks.MetadataKeys(ctx, "bob")
	carolKeys, _ := stores.Chunks.MetadataKeys(ctx, "carol")
	if !bobKeys["source_file"] {
		t.Fatalf("Expected source_file for bob, got %v", bobKeys)
	}
	if len(carolKeys) != 0 {
		t.Fatalf("Expected no metadata keys for carol, got %v", carolKeys)
	}
}
