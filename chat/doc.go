// Package chat keeps conversational sessions in memory.
//
// A session accumulates turns until its history grows past the chat
// profile's limits, at which point older turns are folded into an LLM
// written summary and only the most recent turns are kept verbatim. If
// summarization fails the older turns are dropped without a summary.
//
// Sessions expire after a period of inactivity. Every mutation of a
// session is serialized on that session's own lock, so concurrent requests
// for one session never lose updates while different sessions proceed
// independently.
package chat
