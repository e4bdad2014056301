// Package pii detects and masks personally identifiable information.
//
// Patterns are applied in a fixed order: SSN, Email, Phone and, for
// detection only, CreditCard. Redaction replaces every match of a category
// with a bracketed marker and reports the categories that fired.
package pii

import "regexp"

// Category names a kind of PII.
type Category string

const (
	CategorySSN        Category = "SSN"
	CategoryEmail      Category = "Email"
	CategoryPhone      Category = "Phone"
	CategoryCreditCard Category = "Credit Card"
)

type pattern struct {
	category Category
	re       *regexp.Regexp
	marker   string
}

var (
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)
	cardPattern  = regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)
)

// redactable lists the patterns masked in compiled context, in application order.
var redactable = []pattern{
	{CategorySSN, ssnPattern, "[SSN-REDACTED]"},
	{CategoryEmail, emailPattern, "[EMAIL-REDACTED]"},
	{CategoryPhone, phonePattern, "[PHONE-REDACTED]"},
}

// detectable lists the patterns searched for in generated answers.
var detectable = []pattern{
	{CategorySSN, ssnPattern, ""},
	{CategoryEmail, emailPattern, ""},
	{CategoryPhone, phonePattern, ""},
	{CategoryCreditCard, cardPattern, ""},
}

// Redact masks SSNs, emails and phone numbers in text. It returns the
// masked text and the categories that matched, in application order.
func Redact(text string) (string, []Category) {
	var applied []Category
	for _, p := range redactable {
		if p.re.MatchString(text) {
			text = p.re.ReplaceAllString(text, p.marker)
			applied = append(applied, p.category)
		}
	}
	return text, applied
}

// Detect reports which categories occur in text without modifying it.
func Detect(text string) []Category {
	var found []Category
	for _, p := range detectable {
		if p.re.MatchString(text) {
			found = append(found, p.category)
		}
	}
	return found
}

// Strings converts categories to their string names.
func Strings(cats []Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
