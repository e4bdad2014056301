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


// Package openai provides AI service implementations using OpenAI-compatible APIs.
//
// This package implements ai.Provider using the langchaingo library to talk
// to OpenAI or OpenAI-compatible services (Ollama, LocalAI, vLLM). Chat and
// embedding calls retry with exponential backoff; entity extraction
// regenerates on malformed JSON.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"), // /v1 added automatically
//	    ai.WithChatModel("qwen2.5:7b"),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	resp, err := provider.LLM().Generate(ctx, ai.GenerateRequest{Prompt: "Define peril.", JSONMode: false})
//	found, err := provider.EntityExtractor().ExtractEntities(ctx, text, ai.EntityTypes)
package openai
