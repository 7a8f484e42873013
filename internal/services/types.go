package services

import (
	"io"

	"github.com/discloud/discloud/internal/catalog"
	"github.com/discloud/discloud/internal/models"
	"github.com/discloud/discloud/internal/storage"
)

// Catalog is the persistence contract the file service depends on. The
// bbolt catalog satisfies it; tests substitute fakes.
type Catalog interface {
	CreateFile(params catalog.CreateFileParams) (*models.LogicalFile, error)
	GetFile(id string) (*models.LogicalFile, error)
	ChangeStatus(id string, newStatus models.Status) error
	UpdateFile(id string, update func(*models.LogicalFile)) error
	DeleteFile(id string) error
	FindResumable(clientFingerprint string) (*models.LogicalFile, error)
	CreateChunk(fileID string, order int, reference models.JSONMap) error
	ListChunks(fileID string) ([]*models.Chunk, error)
	ChunkOrders(fileID string) ([]int, error)
}

// FacadeOpener resolves a backend name to a ready storage facade. The
// default opener goes through the backend directory and registry; tests
// inject fakes built around NewFacadeWithDriver.
type FacadeOpener func(backendName string) (*storage.Facade, error)

// ProgressFn receives per-chunk progress during uploads and downloads:
// the chunk order just finished and the plaintext bytes it carried.
type ProgressFn func(chunkOrder int, plaintextBytes int64)

// UploadParams describes one upload request.
type UploadParams struct {
	// Source yields the plaintext. It is read sequentially, at most
	// ChunkSize bytes at a time; the whole file is never buffered.
	Source io.Reader

	// Filename is the user-facing name of the file.
	Filename string

	// BackendName selects the backend for fresh uploads. Resumed uploads
	// keep the original file's backend.
	BackendName string

	// ChunkSize is the plaintext slice size. Zero means the default.
	ChunkSize int64

	// Description is free text stored on the file.
	Description string

	// ClientFingerprint, when non-empty, makes the upload resumable: a
	// later upload with the same fingerprint picks up where this one
	// stopped.
	ClientFingerprint string

	// Progress, when set, is called after each chunk is persisted
	// (including chunks skipped on resume).
	Progress ProgressFn
}
