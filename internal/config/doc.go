// Package config loads, normalizes, and validates accession configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for
// collaborator credentials. The Config type centralizes every knob the daemon
// and CLI need, from collaborator endpoints to polling limits and the QA batch
// size ceiling.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
