package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
//
// AddIndexedChunks is the write path that makes a chunk searchable: the
// chunk record, its embedding record, its lexical postings and its
// metadata-key registry entries commit in one transaction, so no index can
// observe a half-indexed chunk.
type ChunkRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (storage.ChunkRepository, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

// AddIndexedChunks commits chunks one transaction each. IDs are assigned
// from a sequence in input order, so sequence indexes within a document map
// to ascending chunk IDs. A failed chunk is rolled back whole; remaining
// chunks proceed. Returns the committed chunks and the joined errors of the
// failed ones.
func (r *ChunkRepository) AddIndexedChunks(ctx context.Context, chunks ...*storage.IndexedChunk) ([]*core.Chunk, error) {
	var (
		committed []*core.Chunk
		errs      []error
	)

	for _, indexed := range chunks {
		if err := r.addIndexedChunk(indexed); err != nil {
			errs = append(errs, err)
			continue
		}
		committed = append(committed, indexed.Chunk)
	}

	return committed, errors.Join(errs...)
}

func (r *ChunkRepository) addIndexedChunk(indexed *storage.IndexedChunk) error {
	chunk := indexed.Chunk
	if err := core.ValidateChunk(chunk); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		if chunk.Id == 0 {
			nextID, err := nextSequenceID(r.idSeq)
			if err != nil {
				return err
			}
			chunk.Id = nextID
		}

		if err := tx.Set(makeChunkKey(chunk.Id), storage.MarshalChunk(chunk)); err != nil {
			return err
		}
		if err := tx.Set(makeChunkDocKey(chunk.DocumentId, chunk.Id), storage.MarshalID(chunk.Id)); err != nil {
			return err
		}
		if err := tx.Set(makeChunkOwnerKey(chunk.Owner, chunk.Id), storage.MarshalID(chunk.Id)); err != nil {
			return err
		}

		if err := putEmbedding(tx, chunk.Id, chunk.Owner, indexed.Vector); err != nil {
			return fmt.Errorf("chunk %d seq %d: %w", chunk.Id, chunk.Seq, err)
		}
		if err := putPostings(tx, chunk.Id, chunk.Owner, chunk.Text); err != nil {
			return err
		}

		for key := range chunk.Metadata {
			if err := bumpMetadataKey(tx, chunk.Owner, key, 1); err != nil {
				return err
			}
		}

		return tx.Commit()
	}, true)
}

// bumpMetadataKey adjusts the refcount of one metadata-key registry entry.
// The entry is removed when its last chunk goes, so filter validation only
// accepts keys with live chunks.
func bumpMetadataKey(tx *badger.Txn, owner core.OwnerID, key string, delta int) error {
	entryKey := makeMetadataKeyKey(owner, key)

	refs := 0
	item, err := tx.Get(entryKey)
	switch {
	case err == nil:
		if err := item.Value(func(val []byte) error {
			_, r, valErr := storage.UnmarshalMetadataKeyEntry(val)
			refs = r
			return valErr
		}); err != nil {
			return err
		}
	case err != badger.ErrKeyNotFound:
		return err
	}

	refs += delta
	if refs <= 0 {
		return tx.Delete(entryKey)
	}
	return tx.Set(entryKey, storage.MarshalMetadataKeyEntry(key, refs))
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readChunk(tx, makeChunkKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetChunks retrieves multiple chunks by their IDs. Missing chunks are
// skipped without error.
func (r *ChunkRepository) GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error) {
	var result []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			chunk, err := readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk != nil {
				result = append(result, chunk)
			}
		}
		return nil
	}, false)
	return result, err
}

// ChunkIDsByDocument returns the IDs of all chunks of a document, ascending.
func (r *ChunkRepository) ChunkIDsByDocument(ctx context.Context, docID core.ID) ([]core.ID, error) {
	var ids []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkDocKey(docID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			ids = append(ids, idFromKeySuffix(iter.Item().Key()))
		}
		return nil
	}, false)
	return ids, err
}

// DeleteChunks removes chunks and synchronously cascades to the embedding
// and lexical indexes. Each chunk's cascade is one transaction; missing IDs
// are ignored.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, ids ...core.ID) error {
	for _, id := range ids {
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			key := makeChunkKey(id)
			chunk, err := readChunk(tx, key)
			if err != nil {
				return err
			}
			if chunk == nil {
				return nil
			}

			if err := deletePostings(tx, chunk.Id, chunk.Owner); err != nil {
				return err
			}
			for metaKey := range chunk.Metadata {
				if err := bumpMetadataKey(tx, chunk.Owner, metaKey, -1); err != nil {
					return err
				}
			}
			if err := tx.Delete(makeEmbeddingKey(chunk.Owner, chunk.Id)); err != nil {
				return err
			}
			if err := tx.Delete(makeChunkDocKey(chunk.DocumentId, chunk.Id)); err != nil {
				return err
			}
			if err := tx.Delete(makeChunkOwnerKey(chunk.Owner, chunk.Id)); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListChunkIDs returns up to limit chunk IDs greater than afterID,
// ascending. Used for batched maintenance scans.
func (r *ChunkRepository) ListChunkIDs(ctx context.Context, afterID core.ID, limit int) ([]core.ID, error) {
	if limit <= 0 {
		return nil, nil
	}

	var ids []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkRecordPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		startKey := makeChunkKey(afterID + 1)
		for iter.Seek(startKey); iter.Valid() && len(ids) < limit; iter.Next() {
			ids = append(ids, idFromKeySuffix(iter.Item().Key()))
		}
		return nil
	}, false)
	return ids, err
}

// CountChunks returns the number of chunks stored for an owner.
func (r *ChunkRepository) CountChunks(ctx context.Context, owner core.OwnerID) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkOwnerKey(owner)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// MetadataKeys returns the set of metadata keys carried by an owner's live
// chunks. Entries are refcounted, so a key whose last chunk was deleted is
// no longer reported.
func (r *ChunkRepository) MetadataKeys(ctx context.Context, owner core.OwnerID) (map[string]bool, error) {
	keys := make(map[string]bool)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialMetadataKeyKey(owner)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := iter.Item().Value(func(val []byte) error {
				key, _, err := storage.UnmarshalMetadataKeyEntry(val)
				if err != nil {
					return err
				}
				keys[key] = true
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}, false)
	return keys, err
}

// readChunk reads a chunk record from the transaction.
// Returns nil without error when the key is absent.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalChunk(val)
		return unmarshalErr
	})
	return chunk, err
}
