// Package transfer drives one package through the archival transfer
// processor: upload to the processor's intake, transfer start and approval,
// then the transfer and ingest phases until the processor reports the
// package ingested.
//
// Orchestrator.Run skips every step the run already persisted, so an
// interrupted package resumes where it stopped. Every remote wait goes
// through poll.Until; exhaustion and processor-reported failures are
// returned to the pipeline, which halts the package.
package transfer
