// Package tokenizer counts model tokens with tiktoken-go.
//
// The BPE ranks are loaded on first use. When they cannot be loaded, for
// example on a host without network access, counting falls back to a
// four-characters-per-token estimate and logs the failure once.
package tokenizer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/svjt78/ragmesh/ai"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "cl100k_base"

// Tiktoken implements ai.Tokenizer.
type Tiktoken struct {
	encoding string
	logger   *slog.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

var _ ai.Tokenizer = (*Tiktoken)(nil)

// Option configures a Tiktoken.
type Option func(*Tiktoken)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tiktoken) {
		t.logger = logger
	}
}

// New creates a tokenizer for the named encoding.
func New(encoding string, opts ...Option) *Tiktoken {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	t := &Tiktoken{encoding: encoding, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "tokenizer")
	return t
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			t.logger.Warn("falling back to estimated token counts", "err", t.initErr)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens returns the number of tokens in text.
func (t *Tiktoken) CountTokens(text string) int {
	if err := t.init(); err != nil {
		return Estimate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Estimate approximates a token count as one token per four bytes.
func Estimate(text string) int {
	return len(text) / 4
}

// Estimator is an ai.Tokenizer that only estimates.
type Estimator struct{}

var _ ai.Tokenizer = Estimator{}

func (Estimator) CountTokens(text string) int { return Estimate(text) }
