package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// OwnerID identifies the user a document or chunk belongs to.
// It is supplied by the caller's session layer and treated as opaque.
type OwnerID string

// OwnerAll is the admin wildcard accepted by ClearAll.
const OwnerAll OwnerID = "*"

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// DocumentStatus tracks a document's progress through ingestion.
type DocumentStatus int

const (
	// StatusPending means the document record exists but nothing has been parsed.
	StatusPending DocumentStatus = iota + 1
	// StatusChunked means the document has been parsed and split into chunks.
	StatusChunked
	// StatusIndexed means at least one chunk is committed to all indexes.
	StatusIndexed
	// StatusFailed means no chunk of the document could be indexed.
	StatusFailed
)

// String returns the lowercase name used in listings and logs.
func (s DocumentStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusChunked:
		return "chunked"
	case StatusIndexed:
		return "indexed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Document represents one uploaded file owned by a single user.
type Document struct {
	Id            ID
	Owner         OwnerID
	Filename      string
	FileType      string // lowercase extension including the dot, e.g. ".pdf"
	UploadedAt    time.Time
	Status        DocumentStatus
	FailureReason string // non-empty when chunks failed; the document stays listed
	ChunkCount    int    // chunks committed to all indexes
}

// Chunk is the atomic retrievable unit of normalized document text.
// Chunks are immutable once written; they are destroyed only when their
// parent document is deleted.
type Chunk struct {
	Id         ID
	DocumentId ID
	Owner      OwnerID
	Seq        int // monotonically increasing within the document
	Text       string
	SpanStart  int // character span within the source unit
	SpanEnd    int
	Metadata   map[string]string // unit-level tags, e.g. "page", "sheet", "source_file"
}

// TermVector is the lexical representation of one chunk: hashed term →
// term frequency. It is persisted per chunk so postings can be removed
// without re-tokenizing.
type TermVector map[ID]int

// EmbeddingRecord holds the dense vector for one indexed chunk.
// Owner is denormalized so the index can scope candidate enumeration.
type EmbeddingRecord struct {
	ChunkId ID
	Owner   OwnerID
	Vector  []float32
}

// QueryRequest describes one retrieval call.
type QueryRequest struct {
	Owner OwnerID
	Text  string
	// Filter is a hard gate: every key/value pair must match chunk metadata
	// exactly. Keys unknown for the owner are rejected with ErrInvalidFilter.
	Filter map[string]string
	// TopK limits the result; <= 0 uses the engine default.
	TopK int
	// SemanticWeight and LexicalWeight override the engine's fusion weights
	// when non-nil.
	SemanticWeight *float64
	LexicalWeight  *float64
}

// IndexMatch is a raw (chunk id, score) hit from a single index.
type IndexMatch struct {
	ChunkId ID
	Score   float64
}

// ScoredChunk is one fused retrieval result with provenance.
type ScoredChunk struct {
	Chunk         *Chunk
	DocumentId    ID
	FusedScore    float64
	SemanticScore float64 // normalized per-signal score, 0 when absent
	LexicalScore  float64
}

// RetrievalResult is the ordered outcome of one query: descending fused
// score, ties broken by ascending chunk sequence index then ascending
// chunk id.
type RetrievalResult struct {
	Chunks []*ScoredChunk
}
