package chat

import "errors"

var (
	ErrLLMRequired       = errors.New("LLM required")
	ErrTokenizerRequired = errors.New("tokenizer required")
	ErrSessionNotFound   = errors.New("session not found")

	errEmptySummary = errors.New("summarizer returned an empty summary")
)
