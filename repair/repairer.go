// Copyright 2025 Halcyard Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package repair

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/halcyard/fuselage/ai"
	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/ingestion"
	"github.com/halcyard/fuselage/storage"
)

// Config holds configuration for the index repair pass.
type Config struct {
	// BatchSize is the number of chunks to scan in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for embedding calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Report summarizes a repair run.
type Report struct {
	// Scanned is the total number of chunks examined.
	Scanned int

	// Repaired is the number of chunks whose missing index entries were
	// rewritten.
	Repaired int

	// Failed is the number of inconsistent chunks that could not be
	// repaired, typically because re-embedding failed permanently.
	Failed int
}

// Repairer scans all chunks and restores missing index entries.
//
// A chunk is inconsistent when its record exists but the embedding record
// or lexical postings are missing. Repair rewrites the missing pieces
// idempotently: text is re-embedded through the provider when the vector
// is gone, and postings are rebuilt from the stored chunk text.
type Repairer struct {
	chunks     storage.ChunkRepository
	embeddings storage.EmbeddingIndex
	lexical    storage.LexicalIndex
	embedder   ai.Embedder
	config     *Config
	progress   io.Writer
	logger     *slog.Logger
}

// NewRepairer creates a repairer over the given stores.
// progress: where to write progress output (typically os.Stderr)
func NewRepairer(chunks storage.ChunkRepository, embeddings storage.EmbeddingIndex, lexical storage.LexicalIndex, embedder ai.Embedder, config *Config, progress io.Writer) (*Repairer, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingIndexRequired
	}
	if lexical == nil {
		return nil, ErrLexicalIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Repairer{
		chunks:     chunks,
		embeddings: embeddings,
		lexical:    lexical,
		embedder:   embedder,
		config:     config,
		progress:   progress,
		logger:     slog.Default(),
	}, nil
}

// Run executes the repair pass over every chunk in the store.
// Progress is reported to the configured writer. The returned report is
// valid even when some chunks could not be repaired.
func (r *Repairer) Run(ctx context.Context) (*Report, error) {
	fmt.Fprintf(r.progress, "Starting index repair (batch size: %d)\n", r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, r.config.ReportInterval)
	tracker.Start()

	report := &Report{}
	afterID := core.ID(0)

	for {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		ids, err := r.chunks.ListChunkIDs(ctx, afterID, r.config.BatchSize)
		if err != nil {
			return report, fmt.Errorf("failed to list chunks after %d: %w", afterID, err)
		}
		if len(ids) == 0 {
			break
		}
		afterID = ids[len(ids)-1]

		batch, err := r.chunks.GetChunks(ctx, ids...)
		if err != nil {
			return report, fmt.Errorf("failed to load chunk batch: %w", err)
		}

		for _, chunk := range batch {
			repaired, err := r.repairChunk(ctx, chunk)
			report.Scanned++
			switch {
			case err != nil:
				report.Failed++
				r.logger.Warn("chunk repair failed",
					"chunk", chunk.Id, "owner", chunk.Owner, "error", err)
			case repaired:
				report.Repaired++
			}
		}

		tracker.Update(report.Scanned)
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Repair complete. Scanned %d chunks, repaired %d, failed %d in %v\n",
		report.Scanned, report.Repaired, report.Failed, elapsed.Round(time.Second))

	return report, nil
}

// repairChunk restores whatever index entries the chunk is missing.
// Returns true when something was rewritten.
func (r *Repairer) repairChunk(ctx context.Context, chunk *core.Chunk) (bool, error) {
	hasVector, err := r.embeddings.Has(ctx, chunk.Id, chunk.Owner)
	if err != nil {
		return false, fmt.Errorf("embedding check: %w", err)
	}
	hasPostings, err := r.lexical.Has(ctx, chunk.Id, chunk.Owner)
	if err != nil {
		return false, fmt.Errorf("postings check: %w", err)
	}
	if hasVector && hasPostings {
		return false, nil
	}

	if !hasVector {
		var vector []float32
		err := ingestion.RetryWithBackoff(ctx, func() error {
			var embedErr error
			vector, embedErr = r.embedder.EmbedText(ctx, chunk.Text)
			return embedErr
		}, r.config.MaxRetries, r.config.RetryDelay)
		if err != nil {
			return false, fmt.Errorf("%w: re-embed: %w", core.ErrIndexInconsistency, err)
		}
		if err := r.embeddings.Upsert(ctx, chunk.Id, chunk.Owner, vector); err != nil {
			return false, fmt.Errorf("%w: rewrite embedding: %w", core.ErrIndexInconsistency, err)
		}
	}

	if !hasPostings {
		if err := r.lexical.Upsert(ctx, chunk.Id, chunk.Owner, chunk.Text); err != nil {
			return false, fmt.Errorf("%w: rewrite postings: %w", core.ErrIndexInconsistency, err)
		}
	}

	return true, nil
}
