package constants

import "time"

// Chunk size limits for backend configurations.
const (
	// MinChunkSize - smallest usable chunk (1 KB). Anything below this is
	// pure per-message overhead.
	MinChunkSize = 1024

	// MaxChunkSize - Discord free-tier attachment limit (10 MB).
	MaxChunkSize = 10 * 1024 * 1024

	// RecommendedMaxChunkSize - default and recommended ceiling (8 MB).
	// Leaves headroom for multipart framing below the 10 MB hard limit.
	RecommendedMaxChunkSize = 8 * 1024 * 1024

	// DefaultChunkSize - plaintext slice size used when the caller does not
	// pick one.
	DefaultChunkSize = RecommendedMaxChunkSize
)

// Per-call deadlines for backend HTTP operations.
const (
	// PrepareTimeout - thread creation, bookmark message, webhook identity
	// fetch, and live credential probes.
	PrepareTimeout = 30 * time.Second

	// TransferTimeout - single chunk upload or download.
	TransferTimeout = 60 * time.Second
)

// Retry configuration for the Discord REST client.
const (
	// RetryMax - retries on transient HTTP failures (429/5xx/network).
	RetryMax = 3

	// RetryWaitMin - initial backoff delay.
	RetryWaitMin = 500 * time.Millisecond

	// RetryWaitMax - backoff cap. Discord rate-limit windows are short, so
	// there is no value in waiting longer.
	RetryWaitMax = 10 * time.Second
)

// HTTP transport tuning, shared by all drivers.
const (
	HTTPMaxIdleConns        = 64
	HTTPMaxIdleConnsPerHost = 16
	HTTPIdleConnTimeout     = 90 * time.Second
	HTTPTLSHandshakeTimeout = 15 * time.Second
)
