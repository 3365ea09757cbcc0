// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100

	// SSEKeepAliveInterval is how often an idle event stream gets a comment line
	SSEKeepAliveInterval = 25 * time.Second
)

// Upload constants
const (
	// MaxImageUploadSize is the maximum captured image payload in bytes (10MB);
	// base64 bodies are about a third larger than the image itself
	MaxImageUploadSize = 10 << 20
)
