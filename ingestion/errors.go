package ingestion

import "errors"

var (
	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrKeywordStoreRequired is returned when a keyword store is not provided.
	ErrKeywordStoreRequired = errors.New("keyword store required")

	// ErrGraphStoreRequired is returned when a graph store is not provided.
	ErrGraphStoreRequired = errors.New("graph store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrTokenizerRequired is returned when a document with pages is
	// ingested by a pipeline whose provider has no tokenizer.
	ErrTokenizerRequired = errors.New("tokenizer required for chunking")

	// ErrPipelineReleased is returned when ingesting after Release.
	ErrPipelineReleased = errors.New("pipeline released")
)
