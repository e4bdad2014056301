// Package core defines the domain model shared by every pipeline stage.
//
// It holds the documents, chunks and graph entities that retrieval reads,
// the candidate, context pack, answer and judge report types that flow
// between stages, the chat session and run event types, the profile types
// that configure each stage, and the sentinel errors that make up the
// pipeline's error taxonomy.
//
// Enumerations such as CheckStatus, JudgeDecision and EventType are closed
// string types; their JSON form is the persisted form.
package core
