// Package transfer is the client for the archival transfer processor. It
// starts and approves transfers, reports transfer and ingest status with the
// micro-service currently running, clears finished bookkeeping, and returns
// the dissemination package path of a completed ingest.
package transfer
