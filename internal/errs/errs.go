// Package errs defines the error kinds shared across the storage pipeline.
// Callers classify failures with errors.Is against these sentinels; the
// concrete message travels alongside via fmt.Errorf("%w: ...") wrapping.
package errs

import "errors"

var (
	// ErrUsage indicates the caller violated a precondition (missing key,
	// bad status value, non-map argument).
	ErrUsage = errors.New("usage error")

	// ErrUploadPrep indicates a failure while preparing remote storage for
	// a new file (thread creation, bookmark message).
	ErrUploadPrep = errors.New("upload preparation failed")

	// ErrUpload indicates a failure uploading a single chunk.
	ErrUpload = errors.New("chunk upload failed")

	// ErrDownload indicates a failure downloading a single chunk, including
	// "no attachment found" conditions.
	ErrDownload = errors.New("chunk download failed")

	// ErrDelete indicates a failure deleting a chunk's remote object.
	ErrDelete = errors.New("chunk delete failed")

	// ErrMalformedChunk indicates ciphertext too short to carry an IV or
	// with invalid padding.
	ErrMalformedChunk = errors.New("malformed chunk")

	// ErrNotFound indicates a catalog lookup by id returned nothing.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedPlatform indicates a registry lookup miss.
	ErrUnsupportedPlatform = errors.New("unsupported backend platform")

	// ErrConfigInvalid indicates the backend config validator reported
	// errors and the caller did not allow them.
	ErrConfigInvalid = errors.New("invalid backend configuration")

	// ErrNoChunks indicates a download was requested for a file with an
	// empty chunk set.
	ErrNoChunks = errors.New("no chunks recorded for file")
)
