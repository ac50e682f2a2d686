package badger

import (
	"encoding/binary"

	"github.com/halcyard/fuselage/core"
)

// Key prefixes for different data types
const (
	docRecordPrefix   = "docrec"
	docOwnerPrefix    = "docown"
	docIDSeq          = "docrecseq"
	chunkRecordPrefix = "chkrec"
	chunkDocPrefix    = "chkdoc"
	chunkOwnerPrefix  = "chkown"
	chunkIDSeq        = "chkrecseq"
	embeddingPrefix   = "embrec"
	embeddingDimKey   = "embdim"
	postingPrefix     = "lexpos"
	termVectorPrefix  = "lexvec"
	metaKeyPrefix     = "metkey"
)

// ownerHash reduces an owner ID to a fixed-width key segment. Hashing keeps
// owner strings with delimiter bytes from escaping their key range.
func ownerHash(owner core.OwnerID) core.ID {
	return core.IDFromContent(string(owner))
}

// appendID writes an ID in BigEndian order so lexicographic key order
// matches numeric ID order.
func appendID(buf []byte, offset int, id core.ID) int {
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return offset + 8
}

// composeKey builds prefix:seg1:seg2... with fixed-width BigEndian segments.
func composeKey(prefix string, segments ...core.ID) []byte {
	prefixBytes := []byte(prefix + ":")
	buf := make([]byte, len(prefixBytes)+8*len(segments))
	offset := copy(buf, prefixBytes)
	for _, seg := range segments {
		offset = appendID(buf, offset, seg)
	}
	return buf
}

// idFromKeySuffix reads the trailing ID segment of a composite key.
func idFromKeySuffix(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// makeDocumentKey generates the primary key for a document record.
func makeDocumentKey(id core.ID) []byte {
	return composeKey(docRecordPrefix, id)
}

// makePartialDocumentKey generates the scan prefix covering every document
// record regardless of owner.
func makePartialDocumentKey() []byte {
	return composeKey(docRecordPrefix)
}

// makeDocumentOwnerKey generates a composite key for the per-owner document
// index. Format: prefix:ownerHash:docID
func makeDocumentOwnerKey(owner core.OwnerID, id core.ID) []byte {
	return composeKey(docOwnerPrefix, ownerHash(owner), id)
}

// makePartialDocumentOwnerKey generates the scan prefix for one owner's
// documents.
func makePartialDocumentOwnerKey(owner core.OwnerID) []byte {
	return composeKey(docOwnerPrefix, ownerHash(owner))
}

// makeChunkKey generates the primary key for a chunk record.
func makeChunkKey(id core.ID) []byte {
	return composeKey(chunkRecordPrefix, id)
}

// makeChunkDocKey generates a composite key for the document→chunk index.
// Format: prefix:docID:chunkID
func makeChunkDocKey(docID, chunkID core.ID) []byte {
	return composeKey(chunkDocPrefix, docID, chunkID)
}

// makePartialChunkDocKey generates the scan prefix for one document's chunks.
func makePartialChunkDocKey(docID core.ID) []byte {
	return composeKey(chunkDocPrefix, docID)
}

// makeChunkOwnerKey generates a composite key for the per-owner chunk index.
// Format: prefix:ownerHash:chunkID
func makeChunkOwnerKey(owner core.OwnerID, chunkID core.ID) []byte {
	return composeKey(chunkOwnerPrefix, ownerHash(owner), chunkID)
}

// makePartialChunkOwnerKey generates the scan prefix for one owner's chunks.
func makePartialChunkOwnerKey(owner core.OwnerID) []byte {
	return composeKey(chunkOwnerPrefix, ownerHash(owner))
}

// makeEmbeddingKey generates the key for a chunk's embedding record.
// Format: prefix:ownerHash:chunkID
func makeEmbeddingKey(owner core.OwnerID, chunkID core.ID) []byte {
	return composeKey(embeddingPrefix, ownerHash(owner), chunkID)
}

// makePartialEmbeddingKey generates the scan prefix for one owner's vectors.
func makePartialEmbeddingKey(owner core.OwnerID) []byte {
	return composeKey(embeddingPrefix, ownerHash(owner))
}

// makePostingKey generates a composite key for one posting list entry.
// Format: prefix:ownerHash:termHash:chunkID
func makePostingKey(owner core.OwnerID, term core.ID, chunkID core.ID) []byte {
	return composeKey(postingPrefix, ownerHash(owner), term, chunkID)
}

// makePartialPostingKey generates the scan prefix for one term's postings
// within an owner's corpus.
func makePartialPostingKey(owner core.OwnerID, term core.ID) []byte {
	return composeKey(postingPrefix, ownerHash(owner), term)
}

// makeTermVectorKey generates the key for a chunk's persisted term vector.
// Format: prefix:ownerHash:chunkID
func makeTermVectorKey(owner core.OwnerID, chunkID core.ID) []byte {
	return composeKey(termVectorPrefix, ownerHash(owner), chunkID)
}

// makeMetadataKeyKey generates the key for one metadata-key registry entry.
// Format: prefix:ownerHash:keyHash
func makeMetadataKeyKey(owner core.OwnerID, key string) []byte {
	return composeKey(metaKeyPrefix, ownerHash(owner), core.IDFromContent(key))
}

// makePartialMetadataKeyKey generates the scan prefix for one owner's
// metadata-key registry.
func makePartialMetadataKeyKey(owner core.OwnerID) []byte {
	return composeKey(metaKeyPrefix, ownerHash(owner))
}
