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


// Package storage defines the storage abstraction layer for fuselage.
//
// This package declares repository and index interfaces that decouple the
// storage implementation from ingestion and retrieval logic. The badger
// sub-package provides the production implementation; tests can substitute
// in-memory instances created through badger.NewMemoryStores.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return these interfaces
// to enforce abstraction:
//
//	docs, err := badger.NewDocumentRepository(backend)  // storage.DocumentRepository
//
// # Interfaces
//
//   - DocumentRepository: document lifecycle records
//   - ChunkRepository: chunk records plus the atomic indexed write
//   - EmbeddingIndex: owner-scoped vector similarity search
//   - LexicalIndex: owner-scoped inverted index with tf-idf scoring
//
// # Thread Safety
//
// All implementations must be safe for concurrent use from multiple
// goroutines.
//
// # Context Support
//
// All methods accept context.Context for cancellation and timeout support.
package storage
