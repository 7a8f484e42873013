package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/discloud/discloud/internal/backend"
	"github.com/discloud/discloud/internal/errs"
	"github.com/discloud/discloud/internal/models"
)

// Backend directory: named backend configurations referenced by logical
// files. A backend may not be deleted while any file still points at it.

// CreateBackend stores a new named backend configuration.
func (c *Catalog) CreateBackend(name, platform string, config models.JSONMap) (*models.BackendConfig, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: backend name cannot be empty", errs.ErrUsage)
	}
	if len(config) == 0 {
		return nil, fmt.Errorf("%w: backend config cannot be empty", errs.ErrUsage)
	}
	if !backend.Supported(platform) {
		return nil, fmt.Errorf("%w: platform %q is not registered", errs.ErrUsage, platform)
	}

	cfg := &models.BackendConfig{
		ID:       uuid.NewString(),
		Name:     name,
		Platform: platform,
		Config:   config.Clone(),
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		backends := tx.Bucket(bucketBackends)
		if backends.Get([]byte(name)) != nil {
			return fmt.Errorf("%w: backend %q already exists", errs.ErrUsage, name)
		}
		if err := putJSON(backends, []byte(name), cfg); err != nil {
			return err
		}
		return tx.Bucket(bucketBackendIDs).Put([]byte(cfg.ID), []byte(name))
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("backend", name).Str("platform", platform).Msg("backend created")
	return cfg, nil
}

// GetBackendByName retrieves a backend configuration by its unique name.
func (c *Catalog) GetBackendByName(name string) (*models.BackendConfig, error) {
	var cfg models.BackendConfig
	err := c.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketBackends), []byte(name), &cfg, "backend", name)
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetBackendByID retrieves a backend configuration by id.
func (c *Catalog) GetBackendByID(id string) (*models.BackendConfig, error) {
	var cfg models.BackendConfig
	err := c.db.View(func(tx *bolt.Tx) error {
		name := tx.Bucket(bucketBackendIDs).Get([]byte(id))
		if name == nil {
			return fmt.Errorf("%w: backend id %q", errs.ErrNotFound, id)
		}
		return getJSON(tx.Bucket(bucketBackends), name, &cfg, "backend", string(name))
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListBackends returns all backend configurations sorted by name.
func (c *Catalog) ListBackends() ([]*models.BackendConfig, error) {
	var backends []*models.BackendConfig
	err := c.db.View(func(tx *bolt.Tx) error {
		// Bucket keys are names, so iteration order is name order.
		return tx.Bucket(bucketBackends).ForEach(func(_, v []byte) error {
			var cfg models.BackendConfig
			if err := json.Unmarshal(v, &cfg); err != nil {
				return fmt.Errorf("failed to decode backend row: %w", err)
			}
			backends = append(backends, &cfg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return backends, nil
}

// DeleteBackend removes a backend configuration. Refused while any logical
// file still references it.
func (c *Catalog) DeleteBackend(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		backends := tx.Bucket(bucketBackends)
		raw := backends.Get([]byte(name))
		if raw == nil {
			return fmt.Errorf("%w: backend %q", errs.ErrNotFound, name)
		}
		var cfg models.BackendConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("failed to decode backend row: %w", err)
		}

		referenced := false
		err := tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			var file models.LogicalFile
			if err := json.Unmarshal(v, &file); err != nil {
				return fmt.Errorf("failed to decode file row: %w", err)
			}
			if file.BackendName == name {
				referenced = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if referenced {
			return fmt.Errorf("%w: backend %q is referenced by existing files", errs.ErrUsage, name)
		}

		if err := backends.Delete([]byte(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketBackendIDs).Delete([]byte(cfg.ID))
	})
}
