package pii

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		wantCats []Category
	}{
		{
			name:  "no pii",
			input: "The deductible is $500 per occurrence.",
			want:  "The deductible is $500 per occurrence.",
		},
		{
			name:     "ssn",
			input:    "Insured SSN 123-45-6789 on file.",
			want:     "Insured SSN [SSN-REDACTED] on file.",
			wantCats: []Category{CategorySSN},
		},
		{
			name:     "email and phone",
			input:    "Contact agent@example.com or 555-123-4567.",
			want:     "Contact [EMAIL-REDACTED] or [PHONE-REDACTED].",
			wantCats: []Category{CategoryEmail, CategoryPhone},
		},
		{
			name:     "phone without separators",
			input:    "Call 5551234567 today",
			want:     "Call [PHONE-REDACTED] today",
			wantCats: []Category{CategoryPhone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cats := Redact(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCats, cats)
		})
	}
}

func TestDetect(t *testing.T) {
	assert.Empty(t, Detect("Coverage A applies to the dwelling."))
	assert.Equal(t, []Category{CategoryCreditCard}, Detect("card 4111 1111 1111 1111"))
	assert.Contains(t, Detect("ssn 123-45-6789"), CategorySSN)
}

func TestRedact_RemovesAllSSNs(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.IntRange(100, 999).Draw(t, "a")
		b := rapid.IntRange(10, 99).Draw(t, "b")
		c := rapid.IntRange(1000, 9999).Draw(t, "c")
		prefix := rapid.StringMatching(`[a-z ]{0,20}`).Draw(t, "prefix")
		ssn := strings.Join([]string{strconv.Itoa(a), strconv.Itoa(b), strconv.Itoa(c)}, "-")

		out, _ := Redact(prefix + " " + ssn + " end")
		if strings.Contains(out, ssn) {
			t.Fatalf("ssn %s survived redaction: %q", ssn, out)
		}
		if len(Detect(out)) != 0 {
			t.Fatalf("redacted text still contains pii: %q", out)
		}
	})
}
