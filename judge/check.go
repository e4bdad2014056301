package judge

import (
	"context"
	"regexp"
	"strings"

	"github.com/svjt78/ragmesh/core"
)

// Input is everything a check may inspect.
type Input struct {
	Query     string
	Context   string
	Answer    string
	Citations []core.Citation
	Threshold float64
}

// Outcome is a check's verdict before thresholding. Score 1.0 means no
// issue was found.
type Outcome struct {
	Score   float64
	Details map[string]any
	Message string
}

// Check evaluates one aspect of an answer.
type Check interface {
	Name() string
	Evaluate(ctx context.Context, in Input) (*Outcome, error)
}

var (
	sentenceSplit  = regexp.MustCompile(`[.!?]`)
	citationMarker = regexp.MustCompile(`\[(\d+)\]`)
)

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
