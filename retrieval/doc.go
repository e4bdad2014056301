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


// Package retrieval queries the three evidence modalities for a question.
//
// Each modality has its own retriever:
//   - VectorRetriever embeds the query and searches the vector store
//   - KeywordRetriever scores chunks lexically and applies match boosts
//   - GraphRetriever links the query to graph entities and ranks the chunks
//     cited by the surrounding subgraph
//
// Retriever runs them concurrently and returns once all have finished. A
// Monitor observes each modality as it completes.
package retrieval
