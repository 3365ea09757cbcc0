// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Ledger listing constants
const (
	// DefaultRecordLimit is the number of records returned when no limit is given
	DefaultRecordLimit = 100

	// MaxRecordLimit caps the limit accepted by record listings
	MaxRecordLimit = 5000
)

// Import constants
const (
	// DefaultImportConcurrency is the number of parallel registrations during bulk import
	DefaultImportConcurrency = 4
)

// Server constants
const (
	// ShutdownTimeout bounds graceful shutdown of the HTTP server
	ShutdownTimeout = 10 * time.Second

	// RequestTimeout bounds regular API requests; capture endpoints get the AI timeout on top
	RequestTimeout = 30 * time.Second
)
