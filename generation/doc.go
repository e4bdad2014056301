// Package generation turns a compiled context into a structured, cited answer.
//
// The model is asked for a JSON object holding the answer text, citations,
// assumptions, limitations and a confidence level. Citations that point at
// chunks outside the context pack are discarded. A response that cannot be
// decoded becomes a low-confidence answer carrying the raw text.
package generation
