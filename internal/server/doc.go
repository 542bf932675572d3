// Package server owns the gemini listener and per-connection lifecycle.
//
// Lifecycle per connection:
// - accepted -> reading request -> (framing error: close silently)
// - parsed -> resolving -> writing response -> closed
//
// Admission is bounded by max_connections; configuration is copied into the
// Service at construction and never mutated afterwards.
package server
