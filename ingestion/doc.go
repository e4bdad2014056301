// Package ingestion provides pipeline orchestration for indexing documents.
//
// The Pipeline type manages the ingestion workflow for pre-chunked documents:
//   - Storing documents and chunks
//   - Indexing chunks for keyword search (synchronously)
//   - Generating chunk embeddings asynchronously
//   - Extracting entities and relationships into the graph asynchronously
//
// Asynchronous work runs on worker pools. Errors during async processing
// are logged and collected; Wait returns them once queued work drains.
package ingestion
