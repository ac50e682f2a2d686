package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyard/fuselage/ai"
	"github.com/halcyard/fuselage/ai/mock"
	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/storage/badger"
)

func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *badger.Stores, *mock.MockEmbedder) {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	provider := mock.NewMockProvider().(*mock.MockProvider)
	pipeline, err := NewPipeline(stores.Documents, stores.Chunks, provider, opts...)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	return pipeline, stores, provider.GetMockEmbedder()
}

func TestIngestTextDocument(t *testing.T) {
	pipeline, stores, _ := newTestPipeline(t)
	ctx := context.Background()

	doc, err := pipeline.Ingest(ctx, "alice", "notes.txt",
		[]byte("solar panels convert sunlight into electricity"))
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, core.StatusIndexed, doc.Status)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.Empty(t, doc.FailureReason)

	ids, err := stores.Chunks.ChunkIDsByDocument(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	chunk, err := stores.Chunks.GetChunk(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, core.OwnerID("alice"), chunk.Owner)
	assert.Equal(t, "notes.txt", chunk.Metadata["source_file"])

	// Committed chunks are visible in both indexes.
	hasEmb, err := stores.Embeddings.Has(ctx, ids[0], "alice")
	require.NoError(t, err)
	assert.True(t, hasEmb)
	hasLex, err := stores.Lexical.Has(ctx, ids[0], "alice")
	require.NoError(t, err)
	assert.True(t, hasLex)
}

func TestIngestUnsupportedFormat(t *testing.T) {
	pipeline, stores, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := pipeline.Ingest(ctx, "alice", "malware.exe", []byte("whatever"))
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	// Rejected before any write: no document record exists.
	docs, err := stores.Documents.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngestParseFailureLeavesFailedDocument(t *testing.T) {
	pipeline, stores, _ := newTestPipeline(t)
	ctx := context.Background()

	doc, err := pipeline.Ingest(ctx, "alice", "empty.txt", []byte("   "))
	assert.ErrorIs(t, err, core.ErrParseFailure)
	require.NotNil(t, doc)

	// The failed document stays listed with its reason.
	docs, err := stores.Documents.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, core.StatusFailed, docs[0].Status)
	assert.NotEmpty(t, docs[0].FailureReason)
}

func TestIngestEmptyOwnerRejected(t *testing.T) {
	pipeline, _, _ := newTestPipeline(t)

	_, err := pipeline.Ingest(context.Background(), "", "notes.txt", []byte("text"))
	assert.ErrorIs(t, err, core.ErrEmptyOwner)

	_, err = pipeline.Ingest(context.Background(), core.OwnerAll, "notes.txt", []byte("text"))
	assert.ErrorIs(t, err, core.ErrEmptyOwner)
}

func TestIngestEmptyFileRejected(t *testing.T) {
	pipeline, stores, _ := newTestPipeline(t)

	_, err := pipeline.Ingest(context.Background(), "alice", "empty.txt", []byte("  \n\t"))
	assert.ErrorIs(t, err, core.ErrEmptyDocument)

	docs, err := stores.Documents.ListDocuments(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, docs, "empty files are rejected before any write")
}

func TestIngestTransientEmbeddingErrorRetried(t *testing.T) {
	pipeline, _, embedder := newTestPipeline(t, WithRetry(3, time.Millisecond))
	ctx := context.Background()

	attempts := 0
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		attempts++
		if attempts == 1 {
			return nil, ai.Transient(errors.New("provider hiccup"))
		}
		return mock.DeterministicVector(text, 64), nil
	}

	doc, err := pipeline.Ingest(ctx, "alice", "notes.txt", []byte("retry me please"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, doc.Status)
	assert.Equal(t, 2, attempts)
}

func TestIngestPermanentEmbeddingFailure(t *testing.T) {
	pipeline, stores, embedder := newTestPipeline(t, WithRetry(3, time.Millisecond))
	ctx := context.Background()

	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("model gone")
	}

	doc, err := pipeline.Ingest(ctx, "alice", "notes.txt", []byte("doomed text"))
	assert.Error(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, core.StatusFailed, doc.Status)
	assert.Contains(t, doc.FailureReason, "model gone")
	assert.Equal(t, 0, doc.ChunkCount)

	count, err := stores.Chunks.CountChunks(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestPartialChunkFailure(t *testing.T) {
	pipeline, stores, embedder := newTestPipeline(t,
		WithChunking(40, 5), WithRetry(1, time.Millisecond))
	ctx := context.Background()

	// Fail embedding only for chunks containing a marker word.
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if strings.Contains(text, "poison") {
			return nil, errors.New("bad content")
		}
		return mock.DeterministicVector(text, 64), nil
	}

	text := "healthy words here. " + strings.Repeat("filler sentence words. ", 4) +
		"poison poison poison poison poison. " + strings.Repeat("more filler words. ", 4)
	doc, err := pipeline.Ingest(ctx, "alice", "mixed.txt", []byte(text))
	require.NoError(t, err, "sibling chunks must continue")

	assert.Equal(t, core.StatusIndexed, doc.Status)
	assert.NotEmpty(t, doc.FailureReason)

	count, err := stores.Chunks.CountChunks(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, doc.ChunkCount, count)
	assert.Greater(t, count, 0)
}

func TestIngestSequentialChunkIDsMatchSeq(t *testing.T) {
	pipeline, stores, _ := newTestPipeline(t, WithChunking(50, 10))
	ctx := context.Background()

	text := strings.Repeat("several words that repeat across windows ", 10)
	doc, err := pipeline.Ingest(ctx, "alice", "long.txt", []byte(text))
	require.NoError(t, err)
	require.Greater(t, doc.ChunkCount, 1)

	ids, err := stores.Chunks.ChunkIDsByDocument(ctx, doc.Id)
	require.NoError(t, err)
	chunks, err := stores.Chunks.GetChunks(ctx, ids...)
	require.NoError(t, err)

	// Ascending IDs correspond to ascending sequence indexes.
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Seq, chunks[i-1].Seq)
	}
}

func TestNewPipelineValidation(t *testing.T) {
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer stores.Close()
	provider := mock.NewMockProvider()

	_, err = NewPipeline(nil, stores.Chunks, provider)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)

	_, err = NewPipeline(stores.Documents, nil, provider)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewPipeline(stores.Documents, stores.Chunks, nil)
	assert.ErrorIs(t, err, ErrProviderRequired)
}
