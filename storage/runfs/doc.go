// Package runfs stores run event logs and artifacts on the local filesystem.
//
// Each run owns one directory:
//
//	<root>/<run_id>/events.jsonl
//	<root>/<run_id>/artifacts/<name>.json
//
// The event log is append-only, one JSON object per line. Readers ignore a
// trailing line that does not decode, which is what a crash mid-append leaves
// behind.
package runfs
