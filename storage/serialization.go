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


package storage

import (
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"

	"github.com/halcyard/fuselage/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	return id, err
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, core.DocumentMUS.Size(*doc))
	core.DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, _, err := core.DocumentMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := core.ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// MarshalEmbeddingRecord serializes an EmbeddingRecord to bytes.
func MarshalEmbeddingRecord(rec *core.EmbeddingRecord) []byte {
	buf := make([]byte, core.EmbeddingRecordMUS.Size(*rec))
	core.EmbeddingRecordMUS.Marshal(*rec, buf)
	return buf
}

// UnmarshalEmbeddingRecord deserializes an EmbeddingRecord from bytes.
func UnmarshalEmbeddingRecord(data []byte) (*core.EmbeddingRecord, error) {
	rec, _, err := core.EmbeddingRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarshalTermVector serializes a TermVector to bytes.
func MarshalTermVector(tv core.TermVector) []byte {
	buf := make([]byte, core.TermVectorMUS.Size(tv))
	core.TermVectorMUS.Marshal(tv, buf)
	return buf
}

// UnmarshalTermVector deserializes a TermVector from bytes.
func UnmarshalTermVector(data []byte) (core.TermVector, error) {
	tv, _, err := core.TermVectorMUS.Unmarshal(data)
	return tv, err
}

// MarshalCount serializes a small non-negative count (term frequencies,
// refcounts) to bytes.
func MarshalCount(count int) []byte {
	buf := make([]byte, varint.Int.Size(count))
	varint.Int.Marshal(count, buf)
	return buf
}

// UnmarshalCount deserializes a count from bytes.
func UnmarshalCount(data []byte) (int, error) {
	count, _, err := varint.Int.Unmarshal(data)
	return count, err
}

// MarshalString serializes a string value.
func MarshalString(s string) []byte {
	buf := make([]byte, ord.String.Size(s))
	ord.String.Marshal(s, buf)
	return buf
}

// UnmarshalString deserializes a string value from bytes.
func UnmarshalString(data []byte) (string, error) {
	s, _, err := ord.String.Unmarshal(data)
	return s, err
}

// MarshalMetadataKeyEntry serializes a metadata-key registry entry: the
// key name followed by the number of live chunks carrying it.
func MarshalMetadataKeyEntry(key string, refs int) []byte {
	buf := make([]byte, ord.String.Size(key)+varint.Int.Size(refs))
	n := ord.String.Marshal(key, buf)
	varint.Int.Marshal(refs, buf[n:])
	return buf
}

// UnmarshalMetadataKeyEntry deserializes a metadata-key registry entry.
func UnmarshalMetadataKeyEntry(data []byte) (string, int, error) {
	key, n, err := ord.String.Unmarshal(data)
	if err != nil {
		return "", 0, err
	}
	refs, _, err := varint.Int.Unmarshal(data[n:])
	return key, refs, err
}
