// Package repository persists published repository records: collections,
// digital objects, and the transcripts the ingest pipeline attaches to them.
//
// Records live in a relational database reached through gorm. The database
// URL selects the dialect: sqlite:// for a local file, postgres:// (or
// postgresql://) for a shared server. The schema is migrated on open.
package repository
