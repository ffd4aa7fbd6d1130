// Package constants provides shared constants used across the codebase.
package constants

// Index constants
const (
	// SaveInterval is the number of photos analysed before the index snapshot is saved
	SaveInterval = 50

	// DefaultTopN is the default number of neighbours returned by a vector lookup
	DefaultTopN = 10
)

// Image constants
const (
	// MinScaledImageSize is the smallest side a multi-scale pass may shrink an image to
	MinScaledImageSize = 160

	// JPEGQuality is used when re-encoding images for the detector service
	JPEGQuality = 90
)

// HTTP constants
const (
	// MaxUploadSize is the maximum reference image upload size in bytes (32MB)
	MaxUploadSize = 32 << 20

	// EventChannelBuffer is the buffer size for job event channels
	EventChannelBuffer = 100

	// ShutdownTimeoutSeconds bounds graceful server shutdown
	ShutdownTimeoutSeconds = 30
)
