package storage

import (
	"context"

	"github.com/halcyard/fuselage/core"
)

// IndexedChunk pairs a chunk with its embedding vector for the atomic
// tri-write: chunk record, embedding record and lexical postings are
// committed together or not at all.
type IndexedChunk struct {
	Chunk  *core.Chunk
	Vector []float32
}

// DocumentRepository manages document lifecycle records.
// Implementations must be thread-safe and support concurrent access.
type DocumentRepository interface {
	// AddDocument stores a new document. For documents with ID=0, generates
	// a new ID from sequence. Returns the document with the ID populated.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments retrieves all documents belonging to an owner,
	// ordered by ascending ID. Failed documents are included.
	ListDocuments(ctx context.Context, owner core.OwnerID) ([]*core.Document, error)

	// CountDocuments returns the number of document records across all
	// owners. Used by the admin wipe to report what it removed.
	CountDocuments(ctx context.Context) (int, error)

	// UpdateDocument overwrites an existing document record.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) error

	// DeleteDocument removes the document record only; chunk cascade is the
	// chunk repository's job.
	DeleteDocument(ctx context.Context, id core.ID) error

	// Close releases repository resources.
	Close() error
}

// ChunkRepository manages chunk records and owns the atomic write that
// makes a chunk visible to search.
type ChunkRepository interface {
	// AddIndexedChunks commits chunks one transaction each: chunk record,
	// embedding record, lexical postings and metadata-key registry entries.
	// IDs are assigned from a sequence in input order, so sequence indexes
	// within a document map to ascending chunk IDs.
	// A failed chunk is rolled back whole; remaining chunks proceed.
	AddIndexedChunks(ctx context.Context, chunks ...*IndexedChunk) ([]*core.Chunk, error)

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// GetChunks retrieves multiple chunks by their IDs.
	// Returns only the chunks that exist (no error for missing chunks).
	GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error)

	// ChunkIDsByDocument returns the IDs of all chunks of a document,
	// ascending.
	ChunkIDsByDocument(ctx context.Context, docID core.ID) ([]core.ID, error)

	// DeleteChunks removes chunks and synchronously cascades to the
	// embedding and lexical indexes. Missing IDs are ignored.
	DeleteChunks(ctx context.Context, ids ...core.ID) error

	// ListChunkIDs returns up to limit chunk IDs greater than afterID,
	// ascending. Used for batched maintenance scans.
	ListChunkIDs(ctx context.Context, afterID core.ID, limit int) ([]core.ID, error)

	// CountChunks returns the number of chunks stored for an owner.
	CountChunks(ctx context.Context, owner core.OwnerID) (int, error)

	// MetadataKeys returns the set of metadata keys carried by an owner's
	// live chunks. Registry entries are refcounted and disappear with
	// their last chunk. Filter validation fails closed against this set.
	MetadataKeys(ctx context.Context, owner core.OwnerID) (map[string]bool, error)

	// Close releases repository resources.
	Close() error
}

// EmbeddingIndex is the owner-scoped vector index over chunk embeddings.
// Mutation happens through the ingestion pipeline and the delete path;
// Upsert/Remove also serve the repair pass.
type EmbeddingIndex interface {
	// Upsert stores the vector for a chunk. The first vector fixes the
	// index dimensionality; later mismatches return ErrDimensionMismatch.
	Upsert(ctx context.Context, chunkID core.ID, owner core.OwnerID, vector []float32) error

	// Search returns up to k (chunk id, cosine similarity) matches for the
	// owner, best first. Candidate enumeration never leaves the owner's
	// keyspace. An owner with no vectors yields an empty result.
	Search(ctx context.Context, owner core.OwnerID, queryVector []float32, k int) ([]core.IndexMatch, error)

	// Remove deletes a chunk's embedding record. Missing entries are not
	// an error.
	Remove(ctx context.Context, chunkID core.ID, owner core.OwnerID) error

	// Has reports whether an embedding record exists for the chunk.
	Has(ctx context.Context, chunkID core.ID, owner core.OwnerID) (bool, error)

	// Close releases index resources.
	Close() error
}

// LexicalIndex is the owner-scoped inverted index over chunk text.
// IDF statistics are computed within one owner's corpus only.
type LexicalIndex interface {
	// Upsert tokenizes text and rebuilds the chunk's postings.
	Upsert(ctx context.Context, chunkID core.ID, owner core.OwnerID, text string) error

	// Search returns up to k (chunk id, tf-idf score) matches for the
	// owner, best first. Tokenization matches ingestion exactly.
	Search(ctx context.Context, owner core.OwnerID, queryText string, k int) ([]core.IndexMatch, error)

	// Remove deletes all postings of a chunk. Missing entries are not an
	// error.
	Remove(ctx context.Context, chunkID core.ID, owner core.OwnerID) error

	// Has reports whether postings exist for the chunk.
	Has(ctx context.Context, chunkID core.ID, owner core.OwnerID) (bool, error)

	// Close releases index resources.
	Close() error
}
