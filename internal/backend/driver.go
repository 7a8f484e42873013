// Package backend defines the driver contract for remote storage platforms
// and the registry mapping platform tags to driver factories.
package backend

import (
	"context"
	nethttp "net/http"

	"github.com/discloud/discloud/internal/logging"
	"github.com/discloud/discloud/internal/models"
)

// FileMeta carries per-file metadata into PrepareStorage. Only the filename
// is defined today; drivers must tolerate an empty value.
type FileMeta struct {
	Filename string
}

// Driver is the capability set every storage platform implements. Drivers
// are stateless apart from their configured credentials and may be reused
// across files on the same backend.
//
// Contexts and references are opaque JSON maps owned by the driver; nothing
// above this interface interprets their keys.
type Driver interface {
	// PrepareStorage is called once per upload and produces the storage
	// context persisted on the logical file. May perform network I/O, e.g.
	// creating a remote container.
	PrepareStorage(ctx context.Context, meta FileMeta) (models.JSONMap, error)

	// UploadChunk uploads one ciphertext chunk and returns a reference
	// sufficient, together with the storage context, for later retrieval.
	// Must not mutate storageContext.
	UploadChunk(ctx context.Context, ciphertext []byte, storageContext models.JSONMap) (models.JSONMap, error)

	// DownloadChunk is the inverse of UploadChunk. Returned bytes are
	// non-empty on success.
	DownloadChunk(ctx context.Context, reference, storageContext models.JSONMap) ([]byte, error)

	// DeleteChunk removes the remote object behind reference. A chunk the
	// remote no longer knows about counts as deleted.
	DeleteChunk(ctx context.Context, reference, storageContext models.JSONMap) error

	// MaxChunkSize is the largest plaintext slice that may be encrypted
	// and uploaded as a single chunk.
	MaxChunkSize() int64
}

// Options tune driver construction.
type Options struct {
	// SkipValidation bypasses the config validator. For tests.
	SkipValidation bool

	// SkipLiveCheck validates schema, formats, and business rules but
	// skips the authenticated probe against the remote.
	SkipLiveCheck bool

	// Client overrides the HTTP client, letting tests point drivers at a
	// fake server. Nil means the shared retrying client.
	Client *nethttp.Client

	// BaseURL overrides the remote API base. Empty means production.
	BaseURL string

	// Logger is the component logger. Nil means a default one.
	Logger *logging.Logger
}

// Factory constructs a Driver from a stored backend configuration.
type Factory func(config models.JSONMap, opts Options) (Driver, error)
