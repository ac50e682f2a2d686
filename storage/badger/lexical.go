package badger

import (
	"context"
	"math"

	"github.com/dgraph-io/badger/v4"

	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/storage"
)

// LexicalIndex implements storage.LexicalIndex for BadgerDB.
//
// Each chunk contributes one posting per distinct term, keyed under the
// owner and the hashed term, plus a persisted term vector so postings can
// be removed without re-tokenizing the original text. IDF statistics are
// computed within one owner's corpus only.
type LexicalIndex struct {
	backend *Backend
}

var _ storage.LexicalIndex = (*LexicalIndex)(nil)

// NewLexicalIndex creates a new LexicalIndex.
func NewLexicalIndex(backend *Backend) (storage.LexicalIndex, error) {
	return &LexicalIndex{backend: backend}, nil
}

// Close releases resources. LexicalIndex has no resources to release.
func (idx *LexicalIndex) Close() error {
	return nil
}

// Upsert tokenizes text and rebuilds the chunk's postings.
func (idx *LexicalIndex) Upsert(ctx context.Context, chunkID core.ID, owner core.OwnerID, text string) error {
	return idx.backend.WithTx(func(tx *badger.Txn) error {
		if err := putPostings(tx, chunkID, owner, text); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Search returns up to k (chunk id, tf-idf score) matches for the owner,
// best first. Scores sum tf·idf over the query's distinct terms with
// idf = ln(1 + N/df), N and df taken from the owner's corpus alone.
func (idx *LexicalIndex) Search(ctx context.Context, owner core.OwnerID, queryText string, k int) ([]core.IndexMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	tokens := tokenizeAndFilter(queryText)
	if len(tokens) == 0 {
		return nil, nil
	}
	terms := make(map[core.ID]bool, len(tokens))
	for _, token := range tokens {
		terms[core.IDFromContent(token)] = true
	}

	scores := make(map[core.ID]float64)
	err := idx.backend.WithTx(func(tx *badger.Txn) error {
		corpusSize, err := countTermVectors(tx, owner)
		if err != nil {
			return err
		}
		if corpusSize == 0 {
			return nil
		}

		for term := range terms {
			postings, err := readPostings(tx, owner, term)
			if err != nil {
				return err
			}
			if len(postings) == 0 {
				continue
			}

			idf := math.Log(1 + float64(corpusSize)/float64(len(postings)))
			for chunkID, tf := range postings {
				scores[chunkID] += float64(tf) * idf
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	matches := make([]core.IndexMatch, 0, len(scores))
	for chunkID, score := range scores {
		matches = append(matches, core.IndexMatch{ChunkId: chunkID, Score: score})
	}
	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Remove deletes all postings of a chunk. Missing entries are not an error.
func (idx *LexicalIndex) Remove(ctx context.Context, chunkID core.ID, owner core.OwnerID) error {
	return idx.backend.WithTx(func(tx *badger.Txn) error {
		if err := deletePostings(tx, chunkID, owner); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Has reports whether postings exist for the chunk.
func (idx *LexicalIndex) Has(ctx context.Context, chunkID core.ID, owner core.OwnerID) (bool, error) {
	var found bool
	err := idx.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeTermVectorKey(owner, chunkID))
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

// putPostings replaces a chunk's postings and term vector within tx.
func putPostings(tx *badger.Txn, chunkID core.ID, owner core.OwnerID, text string) error {
	// Drop stale postings from a previous write of the same chunk.
	if err := deletePostings(tx, chunkID, owner); err != nil {
		return err
	}

	tv := termVectorOf(text)
	if len(tv) == 0 {
		return nil
	}

	for term, tf := range tv {
		key := makePostingKey(owner, term, chunkID)
		if err := tx.Set(key, storage.MarshalCount(tf)); err != nil {
			return err
		}
	}
	return tx.Set(makeTermVectorKey(owner, chunkID), storage.MarshalTermVector(tv))
}

// deletePostings removes a chunk's postings and term vector within tx.
// The persisted term vector names the postings to delete.
func deletePostings(tx *badger.Txn, chunkID core.ID, owner core.OwnerID) error {
	tvKey := makeTermVectorKey(owner, chunkID)
	item, err := tx.Get(tvKey)
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	var tv core.TermVector
	if err := item.Value(func(val []byte) error {
		var unmarshalErr error
		tv, unmarshalErr = storage.UnmarshalTermVector(val)
		return unmarshalErr
	}); err != nil {
		return err
	}

	for term := range tv {
		if err := tx.Delete(makePostingKey(owner, term, chunkID)); err != nil {
			return err
		}
	}
	return tx.Delete(tvKey)
}

// readPostings collects the (chunk id, term frequency) postings of one term.
func readPostings(tx *badger.Txn, owner core.OwnerID, term core.ID) (map[core.ID]int, error) {
	postings := make(map[core.ID]int)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePartialPostingKey(owner, term)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		chunkID := idFromKeySuffix(iter.Item().Key())
		var tf int
		if err := iter.Item().Value(func(val []byte) error {
			var err error
			tf, err = storage.UnmarshalCount(val)
			return err
		}); err != nil {
			return nil, err
		}
		postings[chunkID] = tf
	}
	return postings, nil
}

// countTermVectors counts the owner's lexically indexed chunks.
func countTermVectors(tx *badger.Txn, owner core.OwnerID) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeTermVectorScanPrefix(owner)
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	count := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		count++
	}
	return count, nil
}

// makeTermVectorScanPrefix generates the scan prefix for one owner's term
// vectors.
func makeTermVectorScanPrefix(owner core.OwnerID) []byte {
	return composeKey(termVectorPrefix, ownerHash(owner))
}
