// Copyright 2025 Poiesic Systems
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


// Package storage defines the external store contracts of the pipeline.
//
// Retrieval reads from four stores and the orchestrator writes to a fifth:
//
//   - DocumentStore: documents and their chunks
//   - VectorStore: chunk embeddings with similarity search
//   - KeywordStore: lexical index over chunk text
//   - GraphStore: entities, relationships and bounded-hop traversal
//   - RunStore: per-run event logs and stage artifacts
//
// storage/badger implements the first four on a single BadgerDB instance;
// storage/runfs implements RunStore on the filesystem.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use from multiple
// goroutines.
//
// # Context Support
//
// All methods accept context.Context for cancellation. Pass
// context.Background() for operations without a deadline.
package storage
