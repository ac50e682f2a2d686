// Package ingestion provides the document ingestion pipeline.
//
// The Pipeline type manages the workflow for one document: extension
// check, parsing, chunking, concurrent embedding on a worker pool, and
// per-chunk atomic commits to storage and both indexes. Per-chunk
// failures are isolated; the document fails only when no chunk at all
// could be indexed.
package ingestion
