// Package preflight provides readiness checks for the collaborators and
// filesystem paths accession depends on.
//
// The CLI "accession check" command runs RunAll before an operator starts
// the daemon; the individual checks are exported so status views can reuse
// them. A collaborator without a configured URL is reported as a failure
// rather than skipped, since every ingest needs all of them.
package preflight
