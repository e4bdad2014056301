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


// Package ai defines the model-service boundary used by RAG-Mesh.
//
// Every call the pipeline makes to a language or embedding model goes
// through one of four interfaces:
//
//   - LLM: chat completions, optionally in JSON mode
//   - Embedder: dense vector embeddings
//   - EntityExtractor: knowledge-graph entities and relationships
//   - Tokenizer: token counting for context budgeting
//
// Provider bundles the four so a single configuration drives them all.
//
// # Implementation Packages
//
//   - ai/openai: langchaingo client for OpenAI-compatible servers
//   - ai/tokenizer: tiktoken-go token counter
//   - ai/mock: test doubles for unit testing without external services
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inject behaviour and count calls:
//
//	llm := mock.NewMockLLM()
//	llm.WithGenerateFunc(func(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
//	    return &ai.GenerateResponse{Content: `{"score": 1.0}`}, nil
//	})
//	_ = llm.CallCount()
//
// # Retries
//
// Retry is a property of this boundary only. RetryWithBackoff implements
// capped exponential backoff; pipeline stages never retry on their own.
package ai
