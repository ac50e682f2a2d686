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


package badger

import "github.com/halcyard/fuselage/storage"

// Stores bundles the repositories and indexes backed by one Backend.
type Stores struct {
	Documents  storage.DocumentRepository
	Chunks     storage.ChunkRepository
	Embeddings storage.EmbeddingIndex
	Lexical    storage.LexicalIndex
	Backend    *Backend
}

// Close releases all stores and the backend.
func (s *Stores) Close() error {
	s.Documents.Close()
	s.Chunks.Close()
	s.Embeddings.Close()
	s.Lexical.Close()
	return s.Backend.Close()
}

// NewStores creates all repositories and indexes over a shared backend.
func NewStores(backend *Backend) (*Stores, error) {
	docs, err := NewDocumentRepository(backend)
	if err != nil {
		return nil, err
	}
	chunks, err := NewChunkRepository(backend)
	if err != nil {
		docs.Close()
		return nil, err
	}
	embeddings, err := NewEmbeddingIndex(backend)
	if err != nil {
		chunks.Close()
		docs.Close()
		return nil, err
	}
	lexical, err := NewLexicalIndex(backend)
	if err != nil {
		embeddings.Close()
		chunks.Close()
		docs.Close()
		return nil, err
	}

	return &Stores{
		Documents:  docs,
		Chunks:     chunks,
		Embeddings: embeddings,
		Lexical:    lexical,
		Backend:    backend,
	}, nil
}

// NewMemoryStores creates in-memory stores for testing.
// Caller must close the returned Stores when done.
func NewMemoryStores() (*Stores, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	stores, err := NewStores(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return stores, nil
}
