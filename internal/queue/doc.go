// Package queue persists per-package ingest progress in SQLite.
//
// Each Record is one archival package within a batch. Pipeline stages write
// through UpdateWhere with a partial-match filter and a patch, so the table is
// the only shared state between the batch driver, the transfer orchestrator,
// assembly, and the finalizer. Terminal and Outcome replace a tri-state
// completion flag: a record is either pending, finished successfully, or halted
// with its Error set exactly once.
//
// The database holds operational state rather than the archive itself. The
// schema revision lives in SQLite's user_version; a database stamped with a
// different revision is refused at open and has to be removed by the operator.
package queue
