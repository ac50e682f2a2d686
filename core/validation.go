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

import (
	"fmt"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Owner must not be empty (and not the admin wildcard)
//   - Filename must not be empty
//   - Status must be a known value
//
// NOT validated (populated during ingestion):
//   - ChunkCount and FailureReason
//   - ID (0 is valid from database sequences)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if err := ValidateOwner(doc.Owner); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if doc.Filename == "" {
		return fmt.Errorf("%w: filename cannot be empty", ErrInvalidDocument)
	}

	if err := ValidateStatus(doc.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Owner must not be empty
//   - Text must not be empty after trimming
//   - Seq must not be negative
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if err := ValidateOwner(chunk.Owner); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkText)
	}

	if chunk.Seq < 0 {
		return fmt.Errorf("%w: negative sequence index %d", ErrInvalidChunk, chunk.Seq)
	}

	return nil
}

// ValidateOwner checks that an owner id is usable for scoped operations.
// The admin wildcard is rejected here; only ClearAll accepts it.
func ValidateOwner(owner OwnerID) error {
	if owner == "" || owner == OwnerAll {
		return ErrEmptyOwner
	}
	return nil
}

// ValidateStatus checks that a DocumentStatus has a valid value.
func ValidateStatus(status DocumentStatus) error {
	switch status {
	case StatusPending, StatusChunked, StatusIndexed, StatusFailed:
		return nil
	default:
		return fmt.Errorf("%w: unknown status %d", ErrInvalidDocument, status)
	}
}
