// Package catalog persists the local state of the storage pipeline: logical
// files, their ordered chunk references, and named backend configurations.
//
// The store is a single bbolt database. Every exported operation runs in its
// own transaction, so concurrent uploads and downloads see consistent rows
// without any coordination above this package.
package catalog

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/discloud/discloud/internal/errs"
	"github.com/discloud/discloud/internal/logging"
	"github.com/discloud/discloud/internal/models"
)

// Bucket layout:
//
//	files        file id -> LogicalFile JSON
//	chunks       one nested bucket per file id; order (8-byte BE) -> Chunk JSON
//	backends     backend name -> BackendConfig JSON
//	backend_ids  backend id -> backend name
var (
	bucketFiles      = []byte("files")
	bucketChunks     = []byte("chunks")
	bucketBackends   = []byte("backends")
	bucketBackendIDs = []byte("backend_ids")
)

// Catalog is the persistence layer used by the file service and the CLI.
type Catalog struct {
	db     *bolt.DB
	logger *logging.Logger
}

// Open opens (or creates) the catalog database at path.
func Open(path string) (*Catalog, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketFiles, bucketChunks, bucketBackends, bucketBackendIDs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog buckets: %w", err)
	}

	return &Catalog{db: db, logger: logging.NewLogger("catalog")}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// CreateFileParams carries the fields for a new logical file. Status is
// always PENDING at creation.
type CreateFileParams struct {
	OriginalName      string
	OpaqueName        string
	Description       string
	EncryptionKey     []byte
	BackendName       string
	StorageContext    models.JSONMap
	ClientFingerprint string
	ChunkSize         int64
}

// CreateFile persists a new logical file in PENDING state and returns it.
func (c *Catalog) CreateFile(params CreateFileParams) (*models.LogicalFile, error) {
	if params.OriginalName == "" {
		return nil, fmt.Errorf("%w: original name cannot be empty", errs.ErrUsage)
	}
	if len(params.EncryptionKey) != 32 {
		return nil, fmt.Errorf("%w: encryption key must be 32 bytes, got %d", errs.ErrUsage, len(params.EncryptionKey))
	}
	if params.BackendName == "" {
		return nil, fmt.Errorf("%w: backend name cannot be empty", errs.ErrUsage)
	}

	file := &models.LogicalFile{
		ID:                uuid.NewString(),
		OriginalName:      params.OriginalName,
		OpaqueName:        params.OpaqueName,
		Description:       params.Description,
		EncryptionKey:     append([]byte(nil), params.EncryptionKey...),
		ClientFingerprint: params.ClientFingerprint,
		UploadedAt:        time.Now().UTC(),
		BackendName:       params.BackendName,
		StorageContext:    params.StorageContext.Clone(),
		Status:            models.StatusPending,
		ChunkSize:         params.ChunkSize,
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketBackends).Get([]byte(params.BackendName)); b == nil {
			return fmt.Errorf("%w: backend %q", errs.ErrNotFound, params.BackendName)
		}
		return putJSON(tx.Bucket(bucketFiles), []byte(file.ID), file)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Str("file_id", file.ID).Str("name", file.OriginalName).Msg("file created")
	return file, nil
}

// GetFile retrieves a logical file by id.
func (c *Catalog) GetFile(id string) (*models.LogicalFile, error) {
	var file models.LogicalFile
	err := c.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketFiles), []byte(id), &file, "file", id)
	})
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// ListFiles returns all logical files, newest first.
func (c *Catalog) ListFiles() ([]*models.LogicalFile, error) {
	var files []*models.LogicalFile
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			var file models.LogicalFile
			if err := json.Unmarshal(v, &file); err != nil {
				return fmt.Errorf("failed to decode file row: %w", err)
			}
			files = append(files, &file)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].ID > files[j].ID
		}
		return files[i].UploadedAt.After(files[j].UploadedAt)
	})
	return files, nil
}

// UpdateFile applies update to the stored file row inside one transaction.
func (c *Catalog) UpdateFile(id string, update func(*models.LogicalFile)) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		var file models.LogicalFile
		if err := getJSON(files, []byte(id), &file, "file", id); err != nil {
			return err
		}
		update(&file)
		file.ID = id // the id is immutable
		return putJSON(files, []byte(id), &file)
	})
}

// ChangeStatus transitions the file to newStatus. Values outside the closed
// status set are rejected.
func (c *Catalog) ChangeStatus(id string, newStatus models.Status) error {
	if !models.ValidStatus(newStatus) {
		return fmt.Errorf("%w: invalid status %q", errs.ErrUsage, newStatus)
	}
	return c.UpdateFile(id, func(f *models.LogicalFile) {
		f.Status = newStatus
	})
}

// DeleteFile removes the file row and all of its chunk rows.
func (c *Catalog) DeleteFile(id string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		if files.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: file %q", errs.ErrNotFound, id)
		}
		if err := files.Delete([]byte(id)); err != nil {
			return err
		}
		chunks := tx.Bucket(bucketChunks)
		if chunks.Bucket([]byte(id)) != nil {
			if err := chunks.DeleteBucket([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindResumable returns the PENDING file with the given client fingerprint
// that has the most chunks already persisted, or nil when there is none.
// Ties on chunk count go to the earliest upload. An empty fingerprint never
// matches.
func (c *Catalog) FindResumable(clientFingerprint string) (*models.LogicalFile, error) {
	if clientFingerprint == "" {
		return nil, nil
	}

	var best *models.LogicalFile
	bestChunks := -1

	err := c.db.View(func(tx *bolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		return tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			var file models.LogicalFile
			if err := json.Unmarshal(v, &file); err != nil {
				return fmt.Errorf("failed to decode file row: %w", err)
			}
			if file.Status != models.StatusPending || file.ClientFingerprint != clientFingerprint {
				return nil
			}

			count := 0
			if b := chunks.Bucket([]byte(file.ID)); b != nil {
				count = b.Stats().KeyN
			}

			switch {
			case count > bestChunks:
				best, bestChunks = &file, count
			case count == bestChunks && best != nil && file.UploadedAt.Before(best.UploadedAt):
				best = &file
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return best, nil
}

// CreateChunk records a chunk reference for a file. Orders are 1-based and
// (file, order) is unique.
func (c *Catalog) CreateChunk(fileID string, order int, reference models.JSONMap) error {
	if order < 1 {
		return fmt.Errorf("%w: chunk order must be >= 1, got %d", errs.ErrUsage, order)
	}
	if len(reference) == 0 {
		return fmt.Errorf("%w: chunk reference cannot be empty", errs.ErrUsage)
	}

	chunk := models.Chunk{FileID: fileID, Order: order, Reference: reference.Clone()}

	return c.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketFiles).Get([]byte(fileID)) == nil {
			return fmt.Errorf("%w: file %q", errs.ErrNotFound, fileID)
		}
		b, err := tx.Bucket(bucketChunks).CreateBucketIfNotExists([]byte(fileID))
		if err != nil {
			return err
		}
		key := orderKey(order)
		if b.Get(key) != nil {
			return fmt.Errorf("%w: chunk order %d already exists for file %q", errs.ErrUsage, order, fileID)
		}
		return putJSON(b, key, &chunk)
	})
}

// ListChunks returns the file's chunks in ascending order.
func (c *Catalog) ListChunks(fileID string) ([]*models.Chunk, error) {
	var chunks []*models.Chunk
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChunks).Bucket([]byte(fileID))
		if b == nil {
			return nil
		}
		// Keys are big-endian orders, so cursor order is chunk order.
		return b.ForEach(func(_, v []byte) error {
			var chunk models.Chunk
			if err := json.Unmarshal(v, &chunk); err != nil {
				return fmt.Errorf("failed to decode chunk row: %w", err)
			}
			chunks = append(chunks, &chunk)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// ChunkOrders returns the sorted chunk orders recorded for a file.
func (c *Catalog) ChunkOrders(fileID string) ([]int, error) {
	var orders []int
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChunks).Bucket([]byte(fileID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			orders = append(orders, int(binary.BigEndian.Uint64(k)))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func orderKey(order int) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(order))
	return key[:]
}

func putJSON(b *bolt.Bucket, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}
	return b.Put(key, data)
}

func getJSON(b *bolt.Bucket, key []byte, out any, kind, id string) error {
	data := b.Get(key)
	if data == nil {
		return fmt.Errorf("%w: %s %q", errs.ErrNotFound, kind, id)
	}
	// bbolt memory is only valid inside the transaction; decode copies it.
	if err := json.Unmarshal(bytes.Clone(data), out); err != nil {
		return fmt.Errorf("failed to decode %s row: %w", kind, err)
	}
	return nil
}
