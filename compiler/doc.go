// Package compiler packs fused retrieval candidates into a token-bounded,
// citation-annotated context.
//
// Candidates are rendered in rank order and appended while they fit the
// profile's budget. Packing stops at the first candidate that would
// overflow, so a lower-ranked chunk never displaces a higher-ranked one.
// Token counts are taken before PII redaction and are not recounted.
package compiler
