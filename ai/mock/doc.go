// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.LLM, ai.Embedder,
// ai.EntityExtractor, ai.Tokenizer and ai.Provider for use in unit tests.
// The mocks allow tests to run without external AI service dependencies and
// enable controlled, deterministic behavior. All mocks are safe for
// concurrent use.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	provider := mock.NewMockProvider()
//	vec, err := provider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	llm := mock.NewMockLLM().
//	    WithGenerateFunc(func(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
//	        return &ai.GenerateResponse{Content: `{"answer": "42"}`}, nil
//	    })
//
//	// Check call counts
//	count := llm.CallCount()
//
// # Default Behavior
//
//   - MockLLM: Returns "{}" with zero tokens
//   - MockEmbedder: Returns hashed bag-of-words unit vectors, so texts sharing
//     words are similar
//   - MockEntityExtractor: Treats capitalized words as entities and links
//     neighbours with RELATES_TO
//   - MockTokenizer: Counts whitespace-separated words
package mock
