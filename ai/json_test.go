package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type verdict struct {
		Score  float64  `json:"score"`
		Issues []string `json:"issues"`
	}

	tests := []struct {
		name    string
		content string
		want    verdict
	}{
		{"plain", `{"score": 0.9, "issues": []}`, verdict{Score: 0.9, Issues: []string{}}},
		{"fenced", "```json\n{\"score\": 0.5}\n```", verdict{Score: 0.5}},
		{"missing opening quote", `{"score": 1.0, issues": ["x"]}`, verdict{Score: 1.0, Issues: []string{"x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got verdict
			require.NoError(t, DecodeJSON(tt.content, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON_Invalid(t *testing.T) {
	var v map[string]any
	assert.Error(t, DecodeJSON("not json at all", &v))
}

func TestRepairJSON_LeavesValidJSONAlone(t *testing.T) {
	in := `{"a": "b, c", "d": [1, 2]}`
	assert.Equal(t, in, repairJSON(in))
}
