// Package services implements the upload, download, and delete pipelines on
// top of the catalog, the cipher, and the backend facade.
package services

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/discloud/discloud/internal/backend"
	"github.com/discloud/discloud/internal/catalog"
	"github.com/discloud/discloud/internal/constants"
	"github.com/discloud/discloud/internal/crypto"
	"github.com/discloud/discloud/internal/errs"
	"github.com/discloud/discloud/internal/logging"
	"github.com/discloud/discloud/internal/models"
	"github.com/discloud/discloud/internal/storage"
	"github.com/discloud/discloud/internal/util/buffers"
)

// FileService coordinates file-level operations. Each call opens at most one
// backend facade and streams chunks through it.
type FileService struct {
	catalog    Catalog
	openFacade FacadeOpener
	logger     *logging.Logger
}

// NewFileService builds a service over the given catalog and facade opener.
func NewFileService(cat Catalog, open FacadeOpener) *FileService {
	return &FileService{
		catalog:    cat,
		openFacade: open,
		logger:     logging.NewLogger("files"),
	}
}

// DefaultFacadeOpener resolves backends through the directory and constructs
// live drivers with opts.
func DefaultFacadeOpener(directory storage.Directory, opts backend.Options) FacadeOpener {
	return func(backendName string) (*storage.Facade, error) {
		return storage.NewFacade(directory, backendName, opts)
	}
}

// Upload encrypts and stores the source stream chunk by chunk. When
// params.ClientFingerprint matches an earlier interrupted upload with the
// same chunk size, chunks already persisted are skipped and only the
// remainder is transferred. The returned file is COMPLETED on success; on a
// transfer failure the file row stays PENDING so a later call can resume it.
func (s *FileService) Upload(ctx context.Context, params UploadParams) (*models.LogicalFile, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("%w: upload source cannot be nil", errs.ErrUsage)
	}
	if params.Filename == "" {
		return nil, fmt.Errorf("%w: filename cannot be empty", errs.ErrUsage)
	}
	chunkSize := params.ChunkSize
	if chunkSize == 0 {
		chunkSize = constants.DefaultChunkSize
	}
	if chunkSize < constants.MinChunkSize || chunkSize > constants.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d outside [%d, %d]",
			errs.ErrUsage, chunkSize, constants.MinChunkSize, constants.MaxChunkSize)
	}

	file, facade, known, err := s.prepareUpload(ctx, params, chunkSize)
	if err != nil {
		return nil, err
	}

	cipher, err := crypto.New(file.EncryptionKey)
	if err != nil {
		return nil, err
	}

	total, err := s.transferChunks(ctx, params, file, facade, cipher, chunkSize, known)
	if err != nil {
		return nil, err
	}

	err = s.catalog.UpdateFile(file.ID, func(f *models.LogicalFile) {
		f.TotalSize = total
		f.Status = models.StatusCompleted
	})
	if err != nil {
		return nil, err
	}
	file.TotalSize = total
	file.Status = models.StatusCompleted

	s.logger.Info().
		Str("file_id", file.ID).
		Str("name", file.OriginalName).
		Int64("bytes", total).
		Msg("upload completed")
	return file, nil
}

// prepareUpload resolves the target file row: a resumable PENDING file when
// the fingerprint matches one, otherwise a fresh row with new storage
// prepared on the backend. It returns the file, an open facade for its
// backend, and the set of chunk orders already persisted.
func (s *FileService) prepareUpload(ctx context.Context, params UploadParams, chunkSize int64) (*models.LogicalFile, *storage.Facade, map[int]bool, error) {
	resumable, err := s.catalog.FindResumable(params.ClientFingerprint)
	if err != nil {
		return nil, nil, nil, err
	}

	if resumable != nil {
		if resumable.ChunkSize != chunkSize {
			return nil, nil, nil, fmt.Errorf(
				"%w: resumable upload %q used chunk size %d, cannot resume with %d",
				errs.ErrUsage, resumable.ID, resumable.ChunkSize, chunkSize)
		}

		facade, err := s.openFacade(resumable.BackendName)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := checkChunkLimit(facade, chunkSize); err != nil {
			return nil, nil, nil, err
		}

		orders, err := s.catalog.ChunkOrders(resumable.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		known := make(map[int]bool, len(orders))
		for _, order := range orders {
			known[order] = true
		}

		s.logger.Info().
			Str("file_id", resumable.ID).
			Int("chunks_done", len(orders)).
			Msg("resuming interrupted upload")
		return resumable, facade, known, nil
	}

	if params.BackendName == "" {
		return nil, nil, nil, fmt.Errorf("%w: backend name cannot be empty", errs.ErrUsage)
	}

	facade, err := s.openFacade(params.BackendName)
	if err != nil {
		return nil, nil, nil, err
	}
	// Checked before any remote or catalog writes so an oversized chunk
	// size leaves no orphaned thread or PENDING row behind.
	if err := checkChunkLimit(facade, chunkSize); err != nil {
		return nil, nil, nil, err
	}

	key, err := crypto.NewRandomKey()
	if err != nil {
		return nil, nil, nil, err
	}

	prepCtx, cancel := context.WithTimeout(ctx, constants.PrepareTimeout)
	defer cancel()
	storageContext, err := facade.PrepareStorage(prepCtx, backend.FileMeta{Filename: params.Filename})
	if err != nil {
		return nil, nil, nil, err
	}

	file, err := s.catalog.CreateFile(catalog.CreateFileParams{
		OriginalName:      params.Filename,
		OpaqueName:        uuid.NewString() + ".enc",
		Description:       params.Description,
		EncryptionKey:     key,
		BackendName:       params.BackendName,
		StorageContext:    storageContext,
		ClientFingerprint: params.ClientFingerprint,
		ChunkSize:         chunkSize,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return file, facade, map[int]bool{}, nil
}

// checkChunkLimit rejects chunk sizes the backend cannot store.
func checkChunkLimit(facade *storage.Facade, chunkSize int64) error {
	if chunkSize > facade.MaxChunkSize() {
		return fmt.Errorf("%w: chunk size %d exceeds backend limit %d",
			errs.ErrUsage, chunkSize, facade.MaxChunkSize())
	}
	return nil
}

// transferChunks runs the read loop: slice the source into chunkSize
// plaintext chunks, encrypt each, and upload those not already persisted.
// It returns the total plaintext size.
func (s *FileService) transferChunks(ctx context.Context, params UploadParams, file *models.LogicalFile, facade *storage.Facade, cipher *crypto.Cipher, chunkSize int64, known map[int]bool) (int64, error) {
	buf, backing := buffers.GetChunkBuffer(chunkSize)
	defer buffers.PutChunkBuffer(backing)

	var total int64
	for order := 1; ; order++ {
		n, readErr := io.ReadFull(params.Source, buf)
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			return 0, fmt.Errorf("%w: failed to read source: %v", errs.ErrUpload, readErr)
		}
		atEOF := readErr == io.EOF || readErr == io.ErrUnexpectedEOF

		// An empty source still gets one empty chunk so the file round-trips.
		if n == 0 && order > 1 {
			break
		}
		total += int64(n)

		if known[order] {
			s.logger.Debug().Str("file_id", file.ID).Int("order", order).Msg("chunk already stored, skipping")
		} else {
			ciphertext, err := cipher.Encrypt(buf[:n])
			if err != nil {
				return 0, err
			}

			chunkCtx, cancel := context.WithTimeout(ctx, constants.TransferTimeout)
			reference, err := facade.UploadChunk(chunkCtx, ciphertext, file.StorageContext)
			cancel()
			if err != nil {
				return 0, err
			}

			if err := s.catalog.CreateChunk(file.ID, order, reference); err != nil {
				return 0, err
			}
		}

		if params.Progress != nil {
			params.Progress(order, int64(n))
		}
		if atEOF {
			break
		}
	}
	return total, nil
}

// DownloadStream yields a file's plaintext one chunk at a time. Construction
// and iteration are split so callers can decide when network work starts.
type DownloadStream struct {
	File *models.LogicalFile

	service *FileService
	cipher  *crypto.Cipher
	chunks  []*models.Chunk
	pos     int
	facade  *storage.Facade
}

// OpenDownloadStream prepares a chunk stream for the file. Only the catalog
// is touched here; the backend facade is opened on the first Next call, so
// building a stream costs no network traffic.
func (s *FileService) OpenDownloadStream(fileID string) (*DownloadStream, error) {
	file, err := s.catalog.GetFile(fileID)
	if err != nil {
		return nil, err
	}

	chunks, err := s.catalog.ListChunks(fileID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: file %q has no stored chunks", errs.ErrNoChunks, fileID)
	}

	cipher, err := crypto.New(file.EncryptionKey)
	if err != nil {
		return nil, err
	}

	return &DownloadStream{
		File:    file,
		service: s,
		cipher:  cipher,
		chunks:  chunks,
	}, nil
}

// Len returns the number of chunks the stream will yield.
func (d *DownloadStream) Len() int {
	return len(d.chunks)
}

// Next fetches and decrypts the next chunk. It returns io.EOF once every
// chunk has been yielded.
func (d *DownloadStream) Next(ctx context.Context) ([]byte, error) {
	if d.pos >= len(d.chunks) {
		return nil, io.EOF
	}

	if d.facade == nil {
		facade, err := d.service.openFacade(d.File.BackendName)
		if err != nil {
			return nil, err
		}
		d.facade = facade
	}

	chunk := d.chunks[d.pos]
	chunkCtx, cancel := context.WithTimeout(ctx, constants.TransferTimeout)
	defer cancel()

	ciphertext, err := d.facade.DownloadChunk(chunkCtx, chunk.Reference, d.File.StorageContext)
	if err != nil {
		return nil, err
	}

	plaintext, err := d.cipher.Decrypt(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("chunk %d of file %q: %w", chunk.Order, d.File.ID, err)
	}

	d.pos++
	return plaintext, nil
}

// Download streams the whole file into w.
func (s *FileService) Download(ctx context.Context, fileID string, w io.Writer, progress ProgressFn) (*models.LogicalFile, error) {
	stream, err := s.OpenDownloadStream(fileID)
	if err != nil {
		return nil, err
	}

	for order := 1; ; order++ {
		plaintext, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(plaintext); err != nil {
			return nil, fmt.Errorf("%w: failed to write plaintext: %v", errs.ErrDownload, err)
		}
		if progress != nil {
			progress(order, int64(len(plaintext)))
		}
	}

	s.logger.Info().Str("file_id", fileID).Msg("download completed")
	return stream.File, nil
}

// Delete removes the file's chunks from the backend, then drops the catalog
// rows. Remote deletion runs first so a failure leaves the catalog record in
// place for a retry; chunks the backend no longer has count as deleted.
func (s *FileService) Delete(ctx context.Context, fileID string) error {
	file, err := s.catalog.GetFile(fileID)
	if err != nil {
		return err
	}

	chunks, err := s.catalog.ListChunks(fileID)
	if err != nil {
		return err
	}

	if len(chunks) > 0 {
		facade, err := s.openFacade(file.BackendName)
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			chunkCtx, cancel := context.WithTimeout(ctx, constants.TransferTimeout)
			err := facade.DeleteChunk(chunkCtx, chunk.Reference, file.StorageContext)
			cancel()
			if err != nil {
				return fmt.Errorf("chunk %d of file %q: %w", chunk.Order, fileID, err)
			}
		}
	}

	if err := s.catalog.DeleteFile(fileID); err != nil {
		return err
	}

	s.logger.Info().Str("file_id", fileID).Str("name", file.OriginalName).Msg("file deleted")
	return nil
}

// MarkFailed flags a file row as FAILED without touching remote storage.
// Used by callers that decide an interrupted upload is not worth resuming.
func (s *FileService) MarkFailed(fileID string) error {
	return s.catalog.ChangeStatus(fileID, models.StatusFailed)
}
