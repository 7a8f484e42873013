package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discloud/discloud/internal/backend"
	"github.com/discloud/discloud/internal/errs"
	"github.com/discloud/discloud/internal/models"
)

// scriptedDriver returns whatever the test plants on it.
type scriptedDriver struct {
	prepareResult models.JSONMap
	prepareErr    error
	uploadResult  models.JSONMap
	uploadErr     error
	downloadData  []byte
	downloadErr   error
	deleteErr     error

	gotContext models.JSONMap
}

func (d *scriptedDriver) PrepareStorage(_ context.Context, _ backend.FileMeta) (models.JSONMap, error) {
	return d.prepareResult, d.prepareErr
}

func (d *scriptedDriver) UploadChunk(_ context.Context, _ []byte, storageContext models.JSONMap) (models.JSONMap, error) {
	d.gotContext = storageContext
	return d.uploadResult, d.uploadErr
}

func (d *scriptedDriver) DownloadChunk(_ context.Context, _, _ models.JSONMap) ([]byte, error) {
	return d.downloadData, d.downloadErr
}

func (d *scriptedDriver) DeleteChunk(_ context.Context, _, _ models.JSONMap) error {
	return d.deleteErr
}

func (d *scriptedDriver) MaxChunkSize() int64 { return 1 << 20 }

func TestFacadePrepareStorage(t *testing.T) {
	driver := &scriptedDriver{prepareResult: models.JSONMap{"thread_id": "t"}}
	f := NewFacadeWithDriver(driver, "main")

	got, err := f.PrepareStorage(context.Background(), backend.FileMeta{Filename: "x"})
	require.NoError(t, err)
	assert.Equal(t, "t", got["thread_id"])
	assert.Equal(t, "main", f.BackendName())
}

func TestFacadePrepareStorageEmptyContext(t *testing.T) {
	f := NewFacadeWithDriver(&scriptedDriver{prepareResult: models.JSONMap{}}, "main")
	_, err := f.PrepareStorage(context.Background(), backend.FileMeta{})
	assert.ErrorIs(t, err, errs.ErrUploadPrep)
}

func TestFacadeUploadChunkGuards(t *testing.T) {
	driver := &scriptedDriver{uploadResult: models.JSONMap{"message_id": "m"}}
	f := NewFacadeWithDriver(driver, "main")
	ctx := context.Background()

	_, err := f.UploadChunk(ctx, nil, models.JSONMap{})
	assert.ErrorIs(t, err, errs.ErrUsage)

	_, err = f.UploadChunk(ctx, []byte("x"), nil)
	assert.ErrorIs(t, err, errs.ErrUsage)

	storageContext := models.JSONMap{"thread_id": "t"}
	got, err := f.UploadChunk(ctx, []byte("x"), storageContext)
	require.NoError(t, err)
	assert.Equal(t, "m", got["message_id"])

	// The driver sees a clone, never the caller's map
	driver.gotContext["mutated"] = true
	assert.NotContains(t, storageContext, "mutated")
}

func TestFacadeUploadEmptyReference(t *testing.T) {
	f := NewFacadeWithDriver(&scriptedDriver{uploadResult: models.JSONMap{}}, "main")
	_, err := f.UploadChunk(context.Background(), []byte("x"), models.JSONMap{})
	assert.ErrorIs(t, err, errs.ErrUpload)
}

func TestFacadeWrapsUntaggedErrors(t *testing.T) {
	f := NewFacadeWithDriver(&scriptedDriver{uploadErr: errors.New("boom")}, "main")
	_, err := f.UploadChunk(context.Background(), []byte("x"), models.JSONMap{})
	assert.ErrorIs(t, err, errs.ErrUpload)

	// Already-tagged errors pass through without re-wrapping
	tagged := &scriptedDriver{uploadErr: errs.ErrUsage}
	f = NewFacadeWithDriver(tagged, "main")
	_, err = f.UploadChunk(context.Background(), []byte("x"), models.JSONMap{})
	assert.ErrorIs(t, err, errs.ErrUsage)
	assert.NotErrorIs(t, err, errs.ErrUpload)
}

func TestFacadeDownloadChunk(t *testing.T) {
	f := NewFacadeWithDriver(&scriptedDriver{downloadData: []byte("data")}, "main")
	ctx := context.Background()

	_, err := f.DownloadChunk(ctx, nil, models.JSONMap{})
	assert.ErrorIs(t, err, errs.ErrUsage)

	got, err := f.DownloadChunk(ctx, models.JSONMap{"message_id": "m"}, models.JSONMap{})
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	empty := NewFacadeWithDriver(&scriptedDriver{}, "main")
	_, err = empty.DownloadChunk(ctx, models.JSONMap{"message_id": "m"}, models.JSONMap{})
	assert.ErrorIs(t, err, errs.ErrDownload)
}

func TestFacadeDeleteChunk(t *testing.T) {
	f := NewFacadeWithDriver(&scriptedDriver{}, "main")
	ctx := context.Background()

	assert.ErrorIs(t, f.DeleteChunk(ctx, nil, models.JSONMap{}), errs.ErrUsage)
	assert.NoError(t, f.DeleteChunk(ctx, models.JSONMap{"message_id": "m"}, models.JSONMap{}))

	failing := NewFacadeWithDriver(&scriptedDriver{deleteErr: errors.New("boom")}, "main")
	assert.ErrorIs(t, failing.DeleteChunk(ctx, models.JSONMap{"message_id": "m"}, models.JSONMap{}), errs.ErrDelete)
}

func TestNewFacadeResolvesDirectory(t *testing.T) {
	directory := fakeDirectory{
		"main": &models.BackendConfig{Name: "main", Platform: "no_such_platform"},
	}

	_, err := NewFacade(directory, "", backend.Options{})
	assert.ErrorIs(t, err, errs.ErrUsage)

	_, err = NewFacade(directory, "missing", backend.Options{})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = NewFacade(directory, "main", backend.Options{})
	assert.ErrorIs(t, err, errs.ErrUnsupportedPlatform)
}

type fakeDirectory map[string]*models.BackendConfig

func (d fakeDirectory) GetBackendByName(name string) (*models.BackendConfig, error) {
	cfg, ok := d[name]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return cfg, nil
}
