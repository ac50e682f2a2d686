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


// Package search provides the hybrid retrieval engine.
//
// The Engine type runs two sub-searches per query:
//   - Semantic search over the owner's embedding index
//   - Lexical tf-idf search over the owner's inverted index
//
// The sub-searches run concurrently under a bounded join; when one signal
// times out or fails, the query degrades to the other. Candidates pass a
// hard metadata filter, then each signal's scores are min-max normalized
// within its pool and fused under configurable weights. Results come back
// in descending fused order with deterministic tie-breaking.
package search
