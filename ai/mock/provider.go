package mock

import "github.com/svjt78/ragmesh/ai"

// MockProvider is a test double for ai.Provider.
type MockProvider struct {
	llm       *MockLLM
	embedder  *MockEmbedder
	extractor *MockEntityExtractor
	tokenizer *MockTokenizer
}

var _ ai.Provider = (*MockProvider)(nil)

// NewMockProvider creates a provider backed by default mocks.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		llm:       NewMockLLM(),
		embedder:  NewMockEmbedder(),
		extractor: NewMockEntityExtractor(),
		tokenizer: NewMockTokenizer(),
	}
}

func (p *MockProvider) LLM() ai.LLM                         { return p.llm }
func (p *MockProvider) Embedder() ai.Embedder               { return p.embedder }
func (p *MockProvider) EntityExtractor() ai.EntityExtractor { return p.extractor }
func (p *MockProvider) Tokenizer() ai.Tokenizer             { return p.tokenizer }
func (p *MockProvider) Close() error                        { return nil }

// GetMockLLM returns the concrete LLM mock for assertions.
func (p *MockProvider) GetMockLLM() *MockLLM { return p.llm }

// GetMockEmbedder returns the concrete embedder mock for assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder { return p.embedder }

// GetMockExtractor returns the concrete extractor mock for assertions.
func (p *MockProvider) GetMockExtractor() *MockEntityExtractor { return p.extractor }

// GetMockTokenizer returns the underlying mock tokenizer for test configuration.
func (p *MockProvider) GetMockTokenizer() *MockTokenizer { return p.tokenizer }
