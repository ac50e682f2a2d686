package badger

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/storage"
)

// EmbeddingIndex implements storage.EmbeddingIndex for BadgerDB.
//
// Vectors are stored one record per chunk under owner-scoped keys, so
// candidate enumeration is a prefix scan that cannot leave the owner's
// keyspace. Similarity is brute-force cosine over the owner's records.
type EmbeddingIndex struct {
	backend *Backend
}

var _ storage.EmbeddingIndex = (*EmbeddingIndex)(nil)

// NewEmbeddingIndex creates a new EmbeddingIndex.
func NewEmbeddingIndex(backend *Backend) (storage.EmbeddingIndex, error) {
	return &EmbeddingIndex{backend: backend}, nil
}

// Close releases resources. EmbeddingIndex has no resources to release.
func (idx *EmbeddingIndex) Close() error {
	return nil
}

// Upsert stores the vector for a chunk.
func (idx *EmbeddingIndex) Upsert(ctx context.Context, chunkID core.ID, owner core.OwnerID, vector []float32) error {
	return idx.backend.WithTx(func(tx *badger.Txn) error {
		if err := putEmbedding(tx, chunkID, owner, vector); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Search returns up to k (chunk id, cosine similarity) matches for the
// owner, best first. Negative similarities are dropped.
func (idx *EmbeddingIndex) Search(ctx context.Context, owner core.OwnerID, queryVector []float32, k int) ([]core.IndexMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	var matches []core.IndexMatch
	err := idx.backend.WithTx(func(tx *badger.Txn) error {
		dim, err := readIndexDimension(tx)
		if err != nil {
			return err
		}
		if dim == 0 {
			// Nothing indexed yet.
			return nil
		}
		if len(queryVector) != dim {
			return fmt.Errorf("query vector has %d dimensions, index has %d: %w",
				len(queryVector), dim, core.ErrDimensionMismatch)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialEmbeddingKey(owner)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var rec *core.EmbeddingRecord
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				rec, err = storage.UnmarshalEmbeddingRecord(val)
				return err
			}); err != nil {
				return err
			}
			if rec == nil || len(rec.Vector) == 0 {
				continue
			}
			// The denormalized owner backs up the key-prefix scoping, so a
			// hash collision between two owners still cannot leak records.
			if rec.Owner != owner {
				continue
			}

			similarity := cosineSimilarity(queryVector, rec.Vector)
			if similarity < 0 {
				continue
			}
			matches = append(matches, core.IndexMatch{
				ChunkId: rec.ChunkId,
				Score:   similarity,
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Remove deletes a chunk's embedding record. Missing entries are not an error.
func (idx *EmbeddingIndex) Remove(ctx context.Context, chunkID core.ID, owner core.OwnerID) error {
	return idx.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeEmbeddingKey(owner, chunkID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Has reports whether an embedding record exists for the chunk.
func (idx *EmbeddingIndex) Has(ctx context.Context, chunkID core.ID, owner core.OwnerID) (bool, error) {
	var found bool
	err := idx.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeEmbeddingKey(owner, chunkID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	}, false)
	return found, err
}

// putEmbedding writes a chunk's embedding record within tx. The first vector
// written fixes the index dimensionality.
func putEmbedding(tx *badger.Txn, chunkID core.ID, owner core.OwnerID, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for chunk %d: %w", chunkID, core.ErrDimensionMismatch)
	}

	dim, err := readIndexDimension(tx)
	if err != nil {
		return err
	}
	if dim == 0 {
		if err := tx.Set([]byte(embeddingDimKey), storage.MarshalCount(len(vector))); err != nil {
			return err
		}
	} else if len(vector) != dim {
		return fmt.Errorf("vector has %d dimensions, index has %d: %w",
			len(vector), dim, core.ErrDimensionMismatch)
	}

	rec := &core.EmbeddingRecord{
		ChunkId: chunkID,
		Owner:   owner,
		Vector:  vector,
	}
	return tx.Set(makeEmbeddingKey(owner, chunkID), storage.MarshalEmbeddingRecord(rec))
}

// readIndexDimension returns the fixed index dimensionality, or 0 when no
// vector has been written yet.
func readIndexDimension(tx *badger.Txn) (int, error) {
	item, err := tx.Get([]byte(embeddingDimKey))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var dim int
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		dim, unmarshalErr = storage.UnmarshalCount(val)
		return unmarshalErr
	})
	return dim, err
}

// cosineSimilarity computes cosine similarity between two vectors.
// Returns 0 when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortMatches orders matches by descending score, ties broken by ascending
// chunk ID so equal-scored results are deterministic.
func sortMatches(matches []core.IndexMatch) {
	slices.SortFunc(matches, func(a, b core.IndexMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		if a.ChunkId < b.ChunkId {
			return -1
		}
		if a.ChunkId > b.ChunkId {
			return 1
		}
		return 0
	})
}
