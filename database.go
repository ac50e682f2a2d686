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


package fuselage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/halcyard/fuselage/ai"
	"github.com/halcyard/fuselage/ai/openai"
	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/ingestion"
	"github.com/halcyard/fuselage/repair"
	"github.com/halcyard/fuselage/search"
	"github.com/halcyard/fuselage/storage"
	"github.com/halcyard/fuselage/storage/badger"
)

// Database is the facade over the storage backend, the AI provider and the
// ingestion/search machinery. It is safe for concurrent use.
type Database struct {
	stores   *badger.Stores
	provider ai.Provider
	pipeline *ingestion.Pipeline
	engine   *search.Engine
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig        *ai.Config
	provider        ai.Provider
	inMemory        bool
	pipelineOptions []ingestion.Option
	engineOptions   []search.Option
}

// WithAIConfig sets the embedding provider configuration.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithProvider injects a pre-built AI provider, bypassing the OpenAI
// provider construction. Used for tests with the mock provider.
func WithProvider(provider ai.Provider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithInMemory opens the backend in memory; the path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithPipelineOptions forwards options to the ingestion pipeline.
func WithPipelineOptions(opts ...ingestion.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.pipelineOptions = append(o.pipelineOptions, opts...)
	}
}

// WithEngineOptions forwards options to the search engine.
func WithEngineOptions(opts ...search.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.engineOptions = append(o.engineOptions, opts...)
	}
}

// Open wires the backend, repositories, indexes, provider, pipeline and
// engine into one Database.
func Open(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	stores, err := badger.NewStores(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			stores.Close()
			return nil, err
		}
	}

	pipeline, err := ingestion.NewPipeline(stores.Documents, stores.Chunks, provider, options.pipelineOptions...)
	if err != nil {
		provider.Close()
		stores.Close()
		return nil, err
	}

	engine, err := search.NewEngine(stores.Chunks, stores.Embeddings, stores.Lexical, provider, options.engineOptions...)
	if err != nil {
		pipeline.Release()
		provider.Close()
		stores.Close()
		return nil, err
	}

	return &Database{
		stores:   stores,
		provider: provider,
		pipeline: pipeline,
		engine:   engine,
		logger:   slog.Default(),
	}, nil
}

// Close releases the pipeline, the AI provider and all stores.
func (db *Database) Close() error {
	db.pipeline.Release()

	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	if err := db.stores.Close(); err != nil {
		db.logger.Error("error closing stores", "err", err)
		return err
	}
	return nil
}

// Ingest parses, chunks, embeds and indexes one file for an owner.
func (db *Database) Ingest(ctx context.Context, owner core.OwnerID, filename string, data []byte) (*core.Document, error) {
	return db.pipeline.Ingest(ctx, owner, filename, data)
}

// Query runs a hybrid retrieval over the owner's indexed chunks.
func (db *Database) Query(ctx context.Context, req *core.QueryRequest) (*core.RetrievalResult, error) {
	return db.engine.Query(ctx, req)
}

// ListDocuments returns all of an owner's documents, failed ones included.
func (db *Database) ListDocuments(ctx context.Context, owner core.OwnerID) ([]*core.Document, error) {
	return db.stores.Documents.ListDocuments(ctx, owner)
}

// RemoveDocument deletes a document and cascades to its chunks, embedding
// records and postings. A document belonging to a different owner is
// reported as not found.
func (db *Database) RemoveDocument(ctx context.Context, owner core.OwnerID, docID core.ID) error {
	if err := core.ValidateOwner(owner); err != nil {
		return err
	}

	doc, err := db.stores.Documents.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if doc.Owner != owner {
		return storage.ErrNotFound
	}

	chunkIDs, err := db.stores.Chunks.ChunkIDsByDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to list chunks of document %d: %w", docID, err)
	}
	if err := db.stores.Chunks.DeleteChunks(ctx, chunkIDs...); err != nil {
		return fmt.Errorf("failed to delete chunks of document %d: %w", docID, err)
	}
	return db.stores.Documents.DeleteDocument(ctx, docID)
}

// ClearAll removes every document of one owner and returns how many were
// removed. The core.OwnerAll wildcard wipes the whole store.
func (db *Database) ClearAll(ctx context.Context, owner core.OwnerID) (int, error) {
	if owner == core.OwnerAll {
		count, err := db.stores.Documents.CountDocuments(ctx)
		if err != nil {
			return 0, err
		}
		if err := db.stores.Backend.DropAll(); err != nil {
			return 0, err
		}
		return count, nil
	}

	if err := core.ValidateOwner(owner); err != nil {
		return 0, err
	}

	docs, err := db.stores.Documents.ListDocuments(ctx, owner)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, doc := range docs {
		if err := db.RemoveDocument(ctx, owner, doc.Id); err != nil {
			return removed, fmt.Errorf("failed to remove document %d: %w", doc.Id, err)
		}
		removed++
	}
	return removed, nil
}

// Repair scans all chunks and restores missing index entries.
// progress: where to write progress output (typically os.Stderr)
func (db *Database) Repair(ctx context.Context, config *repair.Config, progress io.Writer) (*repair.Report, error) {
	repairer, err := repair.NewRepairer(db.stores.Chunks, db.stores.Embeddings, db.stores.Lexical, db.provider.Embedder(), config, progress)
	if err != nil {
		return nil, err
	}
	return repairer.Run(ctx)
}

// DocumentRepository exposes the underlying document store.
func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.stores.Documents
}

// ChunkRepository exposes the underlying chunk store.
func (db *Database) ChunkRepository() storage.ChunkRepository {
	return db.stores.Chunks
}

// NewIngestionPipeline builds an independent pipeline over the database's
// stores, for callers that need their own pool or chunking settings.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(db.stores.Documents, db.stores.Chunks, db.provider, opts...)
}

// NewSearchEngine builds an independent engine over the database's stores.
func (db *Database) NewSearchEngine(opts ...search.Option) (*search.Engine, error) {
	return search.NewEngine(db.stores.Chunks, db.stores.Embeddings, db.stores.Lexical, db.provider, opts...)
}
