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


package core

import "errors"

// Domain errors shared across ingestion, storage and query paths.
var (
	// ErrUnsupportedFormat indicates a file type outside the allow-list.
	// It is rejected before any write happens.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrParseFailure indicates a parser could not decode file content.
	ErrParseFailure = errors.New("parse failure")

	// ErrChunkingFailure indicates normalized text could not be split.
	ErrChunkingFailure = errors.New("chunking failure")

	// ErrEmptyDocument indicates the uploaded file was empty after decoding.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrEmptyQuery indicates query text was empty after trimming.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrInvalidFilter indicates a metadata filter referenced a key unknown
	// for the owner. Unknown keys fail closed instead of matching nothing.
	ErrInvalidFilter = errors.New("invalid metadata filter")

	// ErrIndexInconsistency indicates a chunk exists in the store without
	// matching entries in both indexes.
	ErrIndexInconsistency = errors.New("index inconsistency")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyOwner indicates a missing owner id.
	ErrEmptyOwner = errors.New("owner id cannot be empty")

	// ErrEmptyChunkText indicates the chunk Text field is empty.
	ErrEmptyChunkText = errors.New("chunk text cannot be empty")

	// ErrDimensionMismatch indicates a vector whose dimensionality differs
	// from the one the index was initialized with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
