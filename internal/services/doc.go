// Package services defines shared utilities consumed by the ingest pipeline
// and the collaborator clients under its subpackages.
//
// Key responsibilities:
//   - Context helpers that stamp batch names, package identifiers, queue record
//     IDs, stage names, and correlation identifiers for logging.
//   - Failure markers plus the Wrap helper that classify errors as validation,
//     remote-call, data-integrity, or persistence failures.
//   - ValidationErrors, which aggregates problems found in collaborator
//     responses into a single operator-facing message.
//
// The subpackages (qa, metadata, transfer, storage, handle, search) hold one
// typed client per external system the pipeline coordinates.
package services
