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


// Package repair restores index consistency after interrupted writes.
//
// The Repairer scans every stored chunk in batches and verifies that its
// embedding record and lexical postings both exist. Missing entries are
// rewritten idempotently from the chunk's stored text. The pass is safe
// to run at startup or on a schedule; a clean store is scanned without
// any writes.
package repair
