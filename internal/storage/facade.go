// Package storage provides a validating facade over a single backend
// driver. The facade resolves a backend by name, constructs its driver
// through the registry, and guards every delegation with contract checks so
// driver bugs surface as tagged pipeline errors rather than silent
// corruption.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/discloud/discloud/internal/backend"
	"github.com/discloud/discloud/internal/errs"
	"github.com/discloud/discloud/internal/logging"
	"github.com/discloud/discloud/internal/models"
)

// Directory is the slice of the catalog the facade needs: backend lookup by
// name.
type Directory interface {
	GetBackendByName(name string) (*models.BackendConfig, error)
}

// Facade fronts one driver instance for one named backend.
type Facade struct {
	driver      backend.Driver
	backendName string
	logger      *logging.Logger
}

// NewFacade resolves backendName through the directory, constructs the
// platform's driver with the stored config, and validates it (unless
// opts.SkipValidation is set).
func NewFacade(directory Directory, backendName string, opts backend.Options) (*Facade, error) {
	if backendName == "" {
		return nil, fmt.Errorf("%w: backend name cannot be empty", errs.ErrUsage)
	}

	cfg, err := directory.GetBackendByName(backendName)
	if err != nil {
		return nil, err
	}

	driver, err := backend.New(cfg.Platform, cfg.Config, opts)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("storage")
	}

	return &Facade{
		driver:      driver,
		backendName: backendName,
		logger:      logger,
	}, nil
}

// NewFacadeWithDriver wraps an already-constructed driver. For tests.
func NewFacadeWithDriver(driver backend.Driver, backendName string) *Facade {
	return &Facade{
		driver:      driver,
		backendName: backendName,
		logger:      logging.NewLogger("storage"),
	}
}

// BackendName returns the name of the backend this facade fronts.
func (f *Facade) BackendName() string {
	return f.backendName
}

// MaxChunkSize returns the driver's plaintext chunk ceiling.
func (f *Facade) MaxChunkSize() int64 {
	return f.driver.MaxChunkSize()
}

// PrepareStorage delegates to the driver and checks the resulting storage
// context is a usable map.
func (f *Facade) PrepareStorage(ctx context.Context, meta backend.FileMeta) (models.JSONMap, error) {
	storageContext, err := f.driver.PrepareStorage(ctx, meta)
	if err != nil {
		return nil, wrap(err, errs.ErrUploadPrep, "failed to prepare storage")
	}
	if len(storageContext) == 0 {
		return nil, fmt.Errorf("%w: driver returned an empty storage context", errs.ErrUploadPrep)
	}
	return storageContext, nil
}

// UploadChunk delegates one ciphertext chunk to the driver. The driver gets
// a clone of the context so the persisted copy cannot be mutated.
func (f *Facade) UploadChunk(ctx context.Context, ciphertext []byte, storageContext models.JSONMap) (models.JSONMap, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext cannot be empty", errs.ErrUsage)
	}
	if storageContext == nil {
		return nil, fmt.Errorf("%w: storage context cannot be nil", errs.ErrUsage)
	}

	reference, err := f.driver.UploadChunk(ctx, ciphertext, storageContext.Clone())
	if err != nil {
		return nil, wrap(err, errs.ErrUpload, "failed to upload chunk")
	}
	if len(reference) == 0 {
		return nil, fmt.Errorf("%w: driver returned an empty chunk reference", errs.ErrUpload)
	}
	return reference, nil
}

// DownloadChunk delegates a chunk retrieval and requires non-empty bytes
// back.
func (f *Facade) DownloadChunk(ctx context.Context, reference, storageContext models.JSONMap) ([]byte, error) {
	if len(reference) == 0 {
		return nil, fmt.Errorf("%w: chunk reference cannot be empty", errs.ErrUsage)
	}
	if storageContext == nil {
		return nil, fmt.Errorf("%w: storage context cannot be nil", errs.ErrUsage)
	}

	data, err := f.driver.DownloadChunk(ctx, reference.Clone(), storageContext.Clone())
	if err != nil {
		return nil, wrap(err, errs.ErrDownload, "failed to download chunk")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: driver returned empty chunk data", errs.ErrDownload)
	}
	return data, nil
}

// DeleteChunk delegates a remote chunk deletion.
func (f *Facade) DeleteChunk(ctx context.Context, reference, storageContext models.JSONMap) error {
	if len(reference) == 0 {
		return fmt.Errorf("%w: chunk reference cannot be empty", errs.ErrUsage)
	}
	if err := f.driver.DeleteChunk(ctx, reference.Clone(), storageContext.Clone()); err != nil {
		return wrap(err, errs.ErrDelete, "failed to delete chunk")
	}
	return nil
}

// wrap tags err with kind unless it already carries a pipeline kind.
// Usage errors pass through untouched; they describe the caller, not the
// transfer.
func wrap(err error, kind error, msg string) error {
	for _, tagged := range []error{
		errs.ErrUsage, errs.ErrUploadPrep, errs.ErrUpload,
		errs.ErrDownload, errs.ErrDelete, errs.ErrConfigInvalid,
	} {
		if errors.Is(err, tagged) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", kind, msg, err)
}
