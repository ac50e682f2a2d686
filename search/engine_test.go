package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyard/fuselage/ai"
	"github.com/halcyard/fuselage/ai/mock"
	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/storage"
	"github.com/halcyard/fuselage/storage/badger"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *badger.Stores, *mock.MockEmbedder) {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	provider := mock.NewMockProvider().(*mock.MockProvider)
	engine, err := NewEngine(stores.Chunks, stores.Embeddings, stores.Lexical, provider, opts...)
	require.NoError(t, err)

	return engine, stores, provider.GetMockEmbedder()
}

func seedChunk(t *testing.T, stores *badger.Stores, owner core.OwnerID, docID core.ID, seq int, text string, vector []float32, metadata map[string]string) core.ID {
	t.Helper()
	if metadata == nil {
		metadata = map[string]string{"source_file": "seed.txt"}
	}
	committed, err := stores.Chunks.AddIndexedChunks(context.Background(), &storage.IndexedChunk{
		Chunk: &core.Chunk{
			DocumentId: docID,
			Owner:      owner,
			Seq:        seq,
			Text:       text,
			Metadata:   metadata,
		},
		Vector: vector,
	})
	require.NoError(t, err)
	require.Len(t, committed, 1)
	return committed[0].Id
}

// fixedQueryVector makes the engine embed every query to the same point.
func fixedQueryVector(embedder *mock.MockEmbedder, vector []float32) {
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return vector, nil
	}
}

func TestQueryValidation(t *testing.T) {
	engine, stores, _ := newTestEngine(t)
	ctx := context.Background()

	seedChunk(t, stores, "alice", 1, 0, "some indexed text", []float32{1, 0, 0}, nil)

	t.Run("nil request", func(t *testing.T) {
		_, err := engine.Query(ctx, nil)
		assert.ErrorIs(t, err, core.ErrEmptyQuery)
	})

	t.Run("empty owner", func(t *testing.T) {
		_, err := engine.Query(ctx, &core.QueryRequest{Owner: "", Text: "hello"})
		assert.ErrorIs(t, err, core.ErrEmptyOwner)
	})

	t.Run("blank query text", func(t *testing.T) {
		_, err := engine.Query(ctx, &core.QueryRequest{Owner: "alice", Text: "   \t"})
		assert.ErrorIs(t, err, core.ErrEmptyQuery)
	})

	t.Run("unknown filter key fails closed", func(t *testing.T) {
		_, err := engine.Query(ctx, &core.QueryRequest{
			Owner:  "alice",
			Text:   "anything",
			Filter: map[string]string{"page": "1"}, // never ingested for alice
		})
		assert.ErrorIs(t, err, core.ErrInvalidFilter)
	})

	t.Run("negative weight rejected", func(t *testing.T) {
		bad := -0.5
		_, err := engine.Query(ctx, &core.QueryRequest{
			Owner:          "alice",
			Text:           "anything",
			SemanticWeight: &bad,
		})
		assert.ErrorIs(t, err, ErrInvalidWeights)
	})
}

func TestQueryHybridRanking(t *testing.T) {
	engine, stores, embedder := newTestEngine(t)
	ctx := context.Background()

	// Chunk 1: semantically close, lexically unrelated.
	// Chunk 2: both close. Chunk 3: lexical only.
	id1 := seedChunk(t, stores, "alice", 1, 0, "unrelated words entirely", []float32{1, 0, 0}, nil)
	id2 := seedChunk(t, stores, "alice", 1, 1, "solar panels and more solar panels on solar panel rooftops", []float32{0.9, 0.1, 0}, nil)
	id3 := seedChunk(t, stores, "alice", 1, 2, "solar subsidy paperwork", []float32{0, 0, 1}, nil)

	fixedQueryVector(embedder, []float32{1, 0, 0})

	result, err := engine.Query(ctx, &core.QueryRequest{Owner: "alice", Text: "solar panels"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)

	// Chunk 2 scores on both signals, so it fuses highest.
	assert.Equal(t, id2, result.Chunks[0].Chunk.Id)
	assert.Greater(t, result.Chunks[0].SemanticScore, 0.0)
	assert.Greater(t, result.Chunks[0].LexicalScore, 0.0)

	// All seeded chunks are candidates; ordering is descending. A chunk
	// found by both signals appears once, its fused score the weighted sum
	// of its normalized signal scores.
	ids := make(map[core.ID]bool)
	for i, scored := range result.Chunks {
		ids[scored.Chunk.Id] = true
		if i > 0 {
			assert.GreaterOrEqual(t, result.Chunks[i-1].FusedScore, scored.FusedScore)
		}
		assert.InDelta(t, 0.5*scored.SemanticScore+0.5*scored.LexicalScore, scored.FusedScore, 1e-9)
	}
	assert.Len(t, ids, len(result.Chunks))
	assert.True(t, ids[id1])
	assert.True(t, ids[id3])
}

func TestQueryTopKLimit(t *testing.T) {
	engine, stores, embedder := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		seedChunk(t, stores, "alice", 1, i, "common topic words", []float32{1, float32(i) / 10, 0}, nil)
	}
	fixedQueryVector(embedder, []float32{1, 0, 0})

	result, err := engine.Query(ctx, &core.QueryRequest{Owner: "alice", Text: "common topic", TopK: 3})
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 3)

	// Default top-k applies when the request doesn't set one.
	result, err = engine.Query(ctx, &core.QueryRequest{Owner: "alice", Text: "common topic"})
	require.NoError(t, err)
	assert.Len(t, result.Chunks, DefaultTopK)
}

func TestQueryTieBreakOrdering(t *testing.T) {
	engine, stores, embedder := newTestEngine(t)
	ctx := context.Background()

	// Identical text and vector in every chunk forces equal fused scores,
	// so ordering falls through to ascending Seq, then ascending chunk id.
	text := "identical content in every chunk"
	vector := []float32{1, 0, 0}
	laterSeq := seedChunk(t, stores, "alice", 1, 1, text, vector, nil)
	firstSeq0 := seedChunk(t, stores, "alice", 2, 0, text, vector, nil)
	secondSeq0 := seedChunk(t, stores, "alice", 3, 0, text, vector, nil)
	require.Less(t, firstSeq0, secondSeq0)

	fixedQueryVector(embedder, vector)

	result, err := engine.Query(ctx, &core.QueryRequest{Owner: "alice", Text: "identical content"})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)

	for _, scored := range result.Chunks {
		assert.InDelta(t, result.Chunks[0].FusedScore, scored.FusedScore, 1e-9,
			"fixture must produce equal fused scores")
	}
	assert.Equal(t, firstSeq0, result.Chunks[0].Chunk.Id)
	assert.Equal(t, secondSeq0, result.Chunks[1].Chunk.Id)
	assert.Equal(t, laterSeq, result.Chunks[2].Chunk.Id)
}

func TestQueryOwnerIsolation(t *testing.T) {
	engine, stores, embedder := newTestEngine(t)
	ctx := context.Background()

	seedChunk(t, stores, "alice", 1, 0, "alice secret ledger", []float32{1, 0, 0}, nil)
	seedChunk(t, stores, "bob", 2, 0, "bob secret ledger", []float32{1, 0, 0}, nil)

	fixedQueryVector(embedder, []float32{1, 0, 0})

	result, err := engine.Query(ctx, &core.QueryRequest{Owner: "alice", Text: "secret ledger"})
	require.NoError(t, err)
	for _, scored := range result.Chunks {
		assert.Equal(t, core.OwnerID("alice"), scored.Chunk.Owner)
	}

	// An owner with no content gets an empty result, not an error.
	result, err = engine.Query(ctx, &core.QueryRequest{Owner: "carol", Text: "secret ledger"})
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}

func TestQueryMetadataFilterHardGate(t *testing.T) {
	engine, stores, embedder := newTestEngine(t)
	ctx := context.Background()

	seedChunk(t, stores, "alice", 1, 0, "quarterly figures", []float32{1, 0, 0},
		map[string]string{"source_file": "q1.txt", "page": "1"})
	seedChunk(t, stores, "alice", 1, 1, "quarterly figures again", []float32{1, 0, 0},
		map[string]string{"source_file": "q2.txt", "page": "2"})

	fixedQueryVector(embedder, []float32{1, 0, 0})

	t.Run("matching filter narrows results", func(t *testing.T) {
		result, err := engine.Query(ctx, &core.QueryRequest{
			Owner:  "alice",
			Text:   "quarterly figures",
			Filter: map[string]string{"page": "2"},
		})
		require.NoError(t, err)
		require.Len(t, result.Chunks, 1)
		assert.Equal(t, "2", result.Chunks[0].Chunk.Metadata["page"])
	})

	t.Run("known key with zero matches is empty, not error", func(t *testing.T) {
		result, err := engine.Query(ctx, &core.QueryRequest{
			Owner:  "alice",
			Text:   "quarterly figures",
			Filter: map[string]string{"page": "99"},
		})
		require.NoError(t, err)
		assert.Empty(t, result.Chunks)
	})
}

func TestQueryWeightExtremes(t *testing.T) {
	engine, stores, embedder := newTestEngine(t)
	ctx := context.Background()

	// semantic favorite vs lexical favorite
	semID := seedChunk(t, stores, "alice", 1, 0, "nothing in common", []float32{1, 0, 0}, nil)
	lexID := seedChunk(t, stores, "alice", 1, 1, "gravity waves gravity waves gravity", []float32{0, 1, 0}, nil)

	fixedQueryVector(embedder, []float32{1, 0, 0})

	one, zero := 1.0, 0.0

	t.Run("all semantic weight", func(t *testing.T) {
		result, err := engine.Query(ctx, &core.QueryRequest{
			Owner: "alice", Text: "gravity waves",
			SemanticWeight: &one, LexicalWeight: &zero,
		})
		require.NoError(t, err)
		require.NotEmpty(t, result.Chunks)
		assert.Equal(t, semID, result.Chunks[0].Chunk.Id)
	})

	t.Run("all lexical weight", func(t *testing.T) {
		result, err := engine.Query(ctx, &core.QueryRequest{
			Owner: "alice", Text: "gravity waves",
			SemanticWeight: &zero, LexicalWeight: &one,
		})
		require.NoError(t, err)
		require.NotEmpty(t, result.Chunks)
		assert.Equal(t, lexID, result.Chunks[0].Chunk.Id)
	})
}

func TestQueryDegradesWhenEmbedderFails(t *testing.T) {
	engine, stores, embedder := newTestEngine(t)
	ctx := context.Background()

	id := seedChunk(t, stores, "alice", 1, 0, "keyword match still works", []float32{1, 0, 0}, nil)

	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, ai.Transient(errors.New("provider down"))
	}

	result, err := engine.Query(ctx, &core.QueryRequest{Owner: "alice", Text: "keyword match"})
	require.NoError(t, err, "lexical signal should carry the query")
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, id, result.Chunks[0].Chunk.Id)
	assert.Zero(t, result.Chunks[0].SemanticScore)
	assert.Greater(t, result.Chunks[0].LexicalScore, 0.0)
}

func TestQuerySlowSignalMissesJoin(t *testing.T) {
	engine, stores, embedder := newTestEngine(t, WithJoinTimeout(30*time.Millisecond))
	ctx := context.Background()

	id := seedChunk(t, stores, "alice", 1, 0, "patience is rewarded", []float32{1, 0, 0}, nil)

	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		time.Sleep(500 * time.Millisecond)
		return []float32{1, 0, 0}, nil
	}

	start := time.Now()
	result, err := engine.Query(ctx, &core.QueryRequest{Owner: "alice", Text: "patience rewarded"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "join must not wait out the slow signal")
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, id, result.Chunks[0].Chunk.Id)
	assert.Zero(t, result.Chunks[0].SemanticScore)
}

func TestQueryCancellation(t *testing.T) {
	engine, stores, embedder := newTestEngine(t)

	seedChunk(t, stores, "alice", 1, 0, "some text", []float32{1, 0, 0}, nil)
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Query(ctx, &core.QueryRequest{Owner: "alice", Text: "some text"})
	assert.Error(t, err)
}

func TestNewEngineValidation(t *testing.T) {
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer stores.Close()
	provider := mock.NewMockProvider()

	_, err = NewEngine(nil, stores.Embeddings, stores.Lexical, provider)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewEngine(stores.Chunks, nil, stores.Lexical, provider)
	assert.ErrorIs(t, err, ErrEmbeddingIndexRequired)

	_, err = NewEngine(stores.Chunks, stores.Embeddings, nil, provider)
	assert.ErrorIs(t, err, ErrLexicalIndexRequired)

	_, err = NewEngine(stores.Chunks, stores.Embeddings, stores.Lexical, nil)
	assert.ErrorIs(t, err, ErrProviderRequired)

	_, err = NewEngine(stores.Chunks, stores.Embeddings, stores.Lexical, provider,
		WithWeights(-1, 0.5))
	assert.ErrorIs(t, err, ErrInvalidWeights)
}
