package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discloud/discloud/internal/backend"
	"github.com/discloud/discloud/internal/errs"
	"github.com/discloud/discloud/internal/models"
)

// Sample credentials in the real Discord shapes.
const (
	testBotToken  = "MTk4NjIyNDgzNDcxOTI1MjQ4.Cl2FMQ.ZnCjm1XVW7vRze4b7Cq4se7kKWs"
	testServerID  = "11111111111111111"
	testChannelID = "22222222222222222"
	testThreadID  = "33333333333333333"
)

// botServer fakes the Discord REST surface the bot-channel driver touches.
type botServer struct {
	*httptest.Server

	threadPayload map[string]any
	chunks        map[string][]byte
	deleted       []string
	nextMessage   int

	lastAuth         string
	lastPartFilename string
	lastPartMIME     string
	lastPayloadJSON  string
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	s := &botServer{chunks: map[string][]byte{}}
	s.Server = httptest.NewServer(nethttp.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *botServer) messageJSON(id string) map[string]any {
	return map[string]any{
		"id": id,
		"attachments": []any{
			map[string]any{"url": s.URL + "/cdn/" + id},
		},
	}
}

func (s *botServer) handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	s.lastAuth = r.Header.Get("Authorization")
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case r.Method == nethttp.MethodGet && r.URL.Path == "/users/@me":
		if s.lastAuth != "Bot "+testBotToken {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "bot", "username": "discloud"})

	case r.Method == nethttp.MethodPost && len(parts) == 3 && parts[0] == "channels" && parts[2] == "threads":
		json.NewDecoder(r.Body).Decode(&s.threadPayload)
		w.WriteHeader(nethttp.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": testThreadID})

	case r.Method == nethttp.MethodPost && len(parts) == 3 && parts[0] == "channels" && parts[2] == "messages":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			w.WriteHeader(nethttp.StatusBadRequest)
			return
		}
		s.lastPayloadJSON = r.FormValue("payload_json")
		file, header, err := r.FormFile("files[0]")
		if err != nil {
			w.WriteHeader(nethttp.StatusBadRequest)
			return
		}
		defer file.Close()
		s.lastPartFilename = header.Filename
		s.lastPartMIME = header.Header.Get("Content-Type")
		data, _ := io.ReadAll(file)

		s.nextMessage++
		id := fmt.Sprintf("msg-%d", s.nextMessage)
		s.chunks[id] = data
		json.NewEncoder(w).Encode(s.messageJSON(id))

	case r.Method == nethttp.MethodGet && len(parts) == 4 && parts[0] == "channels" && parts[2] == "messages":
		id := parts[3]
		if _, ok := s.chunks[id]; !ok {
			w.WriteHeader(nethttp.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(s.messageJSON(id))

	case r.Method == nethttp.MethodGet && len(parts) == 2 && parts[0] == "cdn":
		data, ok := s.chunks[parts[1]]
		if !ok {
			w.WriteHeader(nethttp.StatusNotFound)
			return
		}
		w.Write(data)

	case r.Method == nethttp.MethodDelete && len(parts) == 4 && parts[0] == "channels" && parts[2] == "messages":
		id := parts[3]
		if _, ok := s.chunks[id]; !ok {
			w.WriteHeader(nethttp.StatusNotFound)
			return
		}
		delete(s.chunks, id)
		s.deleted = append(s.deleted, id)
		w.WriteHeader(nethttp.StatusNoContent)

	default:
		w.WriteHeader(nethttp.StatusNotFound)
	}
}

func botConfig() models.JSONMap {
	return models.JSONMap{
		"bot_token":  testBotToken,
		"server_id":  testServerID,
		"channel_id": testChannelID,
	}
}

func newTestBotChannel(t *testing.T, s *botServer) *BotChannel {
	t.Helper()
	driver, err := NewBotChannel(botConfig(), backend.Options{
		BaseURL: s.URL,
		Client:  s.Client(),
	})
	require.NoError(t, err)
	return driver
}

func TestNewBotChannelRunsLiveValidation(t *testing.T) {
	s := newBotServer(t)

	// The constructor probes /users/@me with the configured token
	driver := newTestBotChannel(t, s)
	assert.Equal(t, "Bot "+testBotToken, s.lastAuth)
	assert.NotNil(t, driver)
}

func TestNewBotChannelRejectsInvalidConfig(t *testing.T) {
	s := newBotServer(t)

	cfg := botConfig()
	cfg["channel_id"] = "not-a-snowflake"
	_, err := NewBotChannel(cfg, backend.Options{BaseURL: s.URL, Client: s.Client()})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "channel_id")
}

func TestBotChannelPrepareStorage(t *testing.T) {
	s := newBotServer(t)
	driver := newTestBotChannel(t, s)

	storageContext, err := driver.PrepareStorage(context.Background(), backend.FileMeta{Filename: "report.pdf"})
	require.NoError(t, err)
	assert.Equal(t, models.JSONMap{"thread_id": testThreadID}, storageContext)

	assert.Equal(t, "[FILE] report.pdf", s.threadPayload["name"])
	assert.Equal(t, float64(11), s.threadPayload["type"])
	assert.Equal(t, float64(10080), s.threadPayload["auto_archive_duration"])
}

func TestBotChannelPrepareStorageTruncatesLongNames(t *testing.T) {
	s := newBotServer(t)
	driver := newTestBotChannel(t, s)

	long := strings.Repeat("x", 200)
	_, err := driver.PrepareStorage(context.Background(), backend.FileMeta{Filename: long})
	require.NoError(t, err)

	name := s.threadPayload["name"].(string)
	assert.Len(t, name, threadNameLimit+3)
	assert.True(t, strings.HasSuffix(name, "..."))
}

func TestBotChannelPrepareStorageTruncatesOnRuneBoundary(t *testing.T) {
	s := newBotServer(t)
	driver := newTestBotChannel(t, s)

	// 300 bytes of three-byte runes; a byte slice at the limit would split one
	long := strings.Repeat("日", 100)
	_, err := driver.PrepareStorage(context.Background(), backend.FileMeta{Filename: long})
	require.NoError(t, err)

	name := s.threadPayload["name"].(string)
	assert.True(t, utf8.ValidString(name))
	assert.LessOrEqual(t, len(name), threadNameLimit+3)
	assert.True(t, strings.HasSuffix(name, "..."))
}

func TestBotChannelUploadChunk(t *testing.T) {
	s := newBotServer(t)
	driver := newTestBotChannel(t, s)

	ciphertext := []byte("opaque ciphertext bytes")
	reference, err := driver.UploadChunk(context.Background(), ciphertext, models.JSONMap{"thread_id": testThreadID})
	require.NoError(t, err)

	messageID, ok := reference.GetString("message_id")
	require.True(t, ok)
	assert.Equal(t, "msg-1", messageID)
	assert.Equal(t, testThreadID, reference["thread_id"])
	assert.NotContains(t, reference, "id")

	// Wire shape: files[0]=chunk.enc, octet-stream, empty payload_json
	assert.Equal(t, "chunk.enc", s.lastPartFilename)
	assert.Equal(t, "application/octet-stream", s.lastPartMIME)
	assert.Equal(t, "{}", s.lastPayloadJSON)
	assert.Equal(t, ciphertext, s.chunks["msg-1"])
}

func TestBotChannelUploadChunkValidation(t *testing.T) {
	s := newBotServer(t)
	driver := newTestBotChannel(t, s)

	_, err := driver.UploadChunk(context.Background(), nil, models.JSONMap{"thread_id": testThreadID})
	assert.ErrorIs(t, err, errs.ErrUsage)

	_, err = driver.UploadChunk(context.Background(), []byte("x"), models.JSONMap{})
	assert.ErrorIs(t, err, errs.ErrUsage)
}

func TestBotChannelDownloadChunk(t *testing.T) {
	s := newBotServer(t)
	driver := newTestBotChannel(t, s)

	ciphertext := []byte("chunk to fetch back")
	reference, err := driver.UploadChunk(context.Background(), ciphertext, models.JSONMap{"thread_id": testThreadID})
	require.NoError(t, err)

	data, err := driver.DownloadChunk(context.Background(), reference, models.JSONMap{"thread_id": testThreadID})
	require.NoError(t, err)
	assert.Equal(t, ciphertext, data)

	// The reference alone carries enough to locate the chunk
	data, err = driver.DownloadChunk(context.Background(), reference, models.JSONMap{})
	require.NoError(t, err)
	assert.Equal(t, ciphertext, data)
}

func TestBotChannelDownloadMissingChunk(t *testing.T) {
	s := newBotServer(t)
	driver := newTestBotChannel(t, s)

	reference := models.JSONMap{"message_id": "msg-99", "thread_id": testThreadID}
	_, err := driver.DownloadChunk(context.Background(), reference, nil)
	assert.ErrorIs(t, err, errs.ErrDownload)
}

func TestBotChannelDeleteChunk(t *testing.T) {
	s := newBotServer(t)
	driver := newTestBotChannel(t, s)

	reference, err := driver.UploadChunk(context.Background(), []byte("x"), models.JSONMap{"thread_id": testThreadID})
	require.NoError(t, err)

	require.NoError(t, driver.DeleteChunk(context.Background(), reference, models.JSONMap{"thread_id": testThreadID}))
	assert.Equal(t, []string{"msg-1"}, s.deleted)

	// Deleting again hits a 404, which still counts as deleted
	require.NoError(t, driver.DeleteChunk(context.Background(), reference, models.JSONMap{"thread_id": testThreadID}))
}

func TestBotChannelMaxChunkSizeOverride(t *testing.T) {
	s := newBotServer(t)

	cfg := botConfig()
	cfg["max_chunk_size"] = 4096
	driver, err := NewBotChannel(cfg, backend.Options{BaseURL: s.URL, Client: s.Client()})
	require.NoError(t, err)
	assert.Equal(t, int64(4096), driver.MaxChunkSize())
}
