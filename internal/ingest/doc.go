// Package ingest carries one package through the per-package pipeline.
//
// Run is the explicit context threaded through every stage: the identifiers
// a package accumulates (collection, object UUID, transfer folder, SIP, DIP
// path) live on it rather than on any shared component, and every status
// change is written through it to the queue record. Pipeline chains the
// transfer, assembly and finalize stages and guarantees that whatever
// happens, the outcome is a written queue record: stage errors halt the
// record and never reach the caller.
package ingest
