// Package models defines the persisted data model for the storage pipeline:
// logical files, their chunks, and named backend configurations.
package models

import "time"

// Status is the upload lifecycle state of a LogicalFile.
type Status string

const (
	// StatusPending - upload in progress or interrupted; the only state
	// eligible for resume.
	StatusPending Status = "PENDING"

	// StatusCompleted - all chunks persisted; terminal with respect to
	// upload.
	StatusCompleted Status = "COMPLETED"

	// StatusFailed - marked failed by policy.
	StatusFailed Status = "FAILED"

	// StatusError - marked errored by policy.
	StatusError Status = "ERROR"
)

// ValidStatus reports whether s is in the closed status set.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusError:
		return true
	}
	return false
}

// JSONMap is an opaque backend-specific JSON object. Storage contexts and
// chunk references are JSONMaps: the catalog and everything above the driver
// treat them as blobs.
type JSONMap map[string]any

// Clone returns a shallow copy. Drivers receive clones so they cannot mutate
// the persisted context.
func (m JSONMap) Clone() JSONMap {
	if m == nil {
		return nil
	}
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// GetString returns the value for key as a string when present. Numeric
// JSON values are not coerced; drivers store snowflakes as strings.
func (m JSONMap) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// LogicalFile represents one user file sliced into encrypted chunks on a
// remote backend. The file content itself is never persisted locally.
type LogicalFile struct {
	ID                string    `json:"id"`
	OriginalName      string    `json:"original_name"`
	OpaqueName        string    `json:"opaque_name"`
	Description       string    `json:"description"`
	EncryptionKey     []byte    `json:"encryption_key"`
	ClientFingerprint string    `json:"client_fingerprint,omitempty"`
	UploadedAt        time.Time `json:"uploaded_at"`
	BackendName       string    `json:"backend_name"`
	StorageContext    JSONMap   `json:"storage_context"`
	Status            Status    `json:"status"`

	// ChunkSize is the plaintext slice size the upload was started with.
	// A resume attempt with a different chunk size is refused; chunk
	// boundaries would no longer line up with the persisted orders.
	ChunkSize int64 `json:"chunk_size"`

	// TotalSize is the plaintext byte count, known once the upload
	// completes. Zero while PENDING.
	TotalSize int64 `json:"total_size"`
}

// Chunk represents one stored ciphertext slice of a LogicalFile.
// Orders are 1-based; a COMPLETED file has the contiguous range 1..N.
type Chunk struct {
	FileID    string  `json:"file_id"`
	Order     int     `json:"order"`
	Reference JSONMap `json:"reference"`
}

// BackendConfig is a named backend configuration. Platform selects the
// driver; Config's schema is platform-specific.
type BackendConfig struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Platform string  `json:"platform"`
	Config   JSONMap `json:"config"`
}
