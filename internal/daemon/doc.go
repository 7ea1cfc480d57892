// Package daemon coordinates the long-running accessiond process.
//
// It wires configuration, the queue and repository stores, the batch manager,
// the background tracker and the HTTP API into a single lifecycle, with a
// flock-based lock preventing a second instance on the same data directory.
// A cron schedule runs the queue sweep that reports packages which stopped
// progressing and refreshes the queue gauges.
//
// Keep orchestration logic here: ingest steps live in their own packages
// while the daemon focuses on startup, shutdown and high level coordination.
package daemon
