package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/halcyard/fuselage/ai"
	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/parser"
	"github.com/halcyard/fuselage/storage"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// Pipeline orchestrates document ingestion: parse, chunk, embed, commit.
// Embedding runs on a worker pool; each chunk commits to storage and both
// indexes in a single transaction, so search never sees a half-written
// chunk.
type Pipeline struct {
	documents    storage.DocumentRepository
	chunks       storage.ChunkRepository
	embedder     ai.Embedder
	pool         *ants.Pool
	chunker      *Chunker
	chunkSize    int
	chunkOverlap int
	maxRetries   int
	retryDelay   time.Duration
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithChunking sets the chunk window size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		p.chunkSize = size
		p.chunkOverlap = overlap
		return nil
	}
}

// WithRetry sets the per-chunk embedding retry policy.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxRetries = maxAttempts
		p.retryDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	provider ai.Provider,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		documents:    documents,
		chunks:       chunks,
		embedder:     provider.Embedder(),
		pool:         pool,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		maxRetries:   defaultMaxRetries,
		retryDelay:   defaultRetryDelay,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	p.chunker = NewChunker(p.chunkSize, p.chunkOverlap)
	return p, nil
}

// Ingest processes one document for an owner and returns its record.
// The document goes Pending → Chunked → Indexed; a document whose chunks
// all fail ends up Failed with the reasons recorded, and stays listed.
// Concurrent Ingest calls for different documents are independent.
func (p *Pipeline) Ingest(ctx context.Context, owner core.OwnerID, filename string, data []byte) (*core.Document, error) {
	if err := core.ValidateOwner(owner); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	fileParser, err := parser.ForExtension(ext)
	if err != nil {
		// Unsupported formats are rejected before any write.
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, core.ErrEmptyDocument
	}

	doc, err := p.documents.AddDocument(ctx, &core.Document{
		Owner:      owner,
		Filename:   filepath.Base(filename),
		FileType:   ext,
		UploadedAt: time.Now().UTC(),
		Status:     core.StatusPending,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("ingesting document",
		"document", doc.Id, "owner", owner, "filename", doc.Filename)

	units, err := fileParser.Parse(ctx, data)
	if err != nil {
		p.markFailed(ctx, doc, err)
		return doc, err
	}

	chunks := p.chunker.ChunkUnits(owner, doc.Id, doc.Filename, units)
	if len(chunks) == 0 {
		err := fmt.Errorf("no chunks produced from %d units: %w", len(units), core.ErrChunkingFailure)
		p.markFailed(ctx, doc, err)
		return doc, err
	}

	doc.Status = core.StatusChunked
	if err := p.documents.UpdateDocument(ctx, doc); err != nil {
		p.logger.Error("failed to record chunked status", "document", doc.Id, "err", err)
	}

	vectors, failures := p.embedChunks(ctx, chunks)

	var indexed []*storage.IndexedChunk
	for i, chunk := range chunks {
		if vectors[i] == nil {
			continue
		}
		indexed = append(indexed, &storage.IndexedChunk{Chunk: chunk, Vector: vectors[i]})
	}

	committed, commitErr := p.chunks.AddIndexedChunks(ctx, indexed...)
	if commitErr != nil {
		failures = append(failures, commitErr.Error())
	}

	doc.ChunkCount = len(committed)
	doc.FailureReason = strings.Join(failures, "; ")
	if len(committed) > 0 {
		doc.Status = core.StatusIndexed
	} else {
		doc.Status = core.StatusFailed
	}
	if err := p.documents.UpdateDocument(ctx, doc); err != nil {
		p.logger.Error("failed to record final status", "document", doc.Id, "err", err)
	}

	if len(committed) == 0 {
		return doc, fmt.Errorf("document %d: no chunks indexed: %s", doc.Id, doc.FailureReason)
	}

	p.logger.Info("document indexed",
		"document", doc.Id, "chunks", len(committed), "failed", len(chunks)-len(committed))
	return doc, nil
}

// embedChunks generates vectors on the worker pool, retrying transient
// provider errors with backoff. vectors[i] is nil when chunk i failed.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []*core.Chunk) ([][]float32, []string) {
	vectors := make([][]float32, len(chunks))
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		i, chunk := i, chunk
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			errs[i] = RetryWithBackoff(ctx, func() error {
				vec, err := p.embedder.EmbedText(ctx, chunk.Text)
				if err != nil {
					return err
				}
				vectors[i] = vec
				return nil
			}, p.maxRetries, p.retryDelay)
		})
		if submitErr != nil {
			errs[i] = submitErr
			wg.Done()
		}
	}
	wg.Wait()

	var failures []string
	for i, err := range errs {
		if err != nil {
			vectors[i] = nil
			failures = append(failures, fmt.Sprintf("chunk %d: %v", chunks[i].Seq, err))
		}
	}
	return vectors, failures
}

// markFailed records a terminal failure on the document.
func (p *Pipeline) markFailed(ctx context.Context, doc *core.Document, cause error) {
	doc.Status = core.StatusFailed
	doc.FailureReason = cause.Error()
	if err := p.documents.UpdateDocument(ctx, doc); err != nil {
		p.logger.Error("failed to record failure", "document", doc.Id, "err", err)
	}
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
