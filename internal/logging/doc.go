// Package logging assembles structured slog loggers and formatting helpers used
// across accession.
//
// It owns the console and JSON handlers, fans records out to the daemon log
// file through slog-multi, and exposes context-aware helpers so pipeline code
// automatically tags log lines with batch names, package identifiers, queue
// record IDs, and stages. NewNop provides a silent logger for tests.
package logging
