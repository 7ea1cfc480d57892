// Package qagate rejects a batch before any per-package transfer work starts.
//
// Gate.Check runs once per batch and executes its steps in a fixed order,
// halting on the first failure:
//
//  1. resolve the target collection from the batch name, creating it in the
//     repository when it does not exist yet
//  2. folder naming convention
//  3. package naming convention
//  4. pointer files referencing each package's descriptive record
//  5. total batch size against the configured ceiling
//
// A halt marks every pending record of the batch INGEST_HALTED with the
// reason. A pass stamps every pending record with the collection and the
// human-readable batch size.
package qagate
