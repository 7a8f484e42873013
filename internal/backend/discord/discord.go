// Package discord implements the Discord storage drivers: a bot-posting
// variant that files chunks into a per-file thread, and a webhook variant
// that needs no bot account. Both store each ciphertext chunk as a message
// attachment named chunk.enc.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"strconv"
	"unicode/utf8"

	"github.com/discloud/discloud/internal/backend"
	internalhttp "github.com/discloud/discloud/internal/http"
	"github.com/discloud/discloud/internal/logging"
	"github.com/discloud/discloud/internal/models"
)

// Platform tags stored on backend configurations.
const (
	PlatformBotChannel = "Discord"
	PlatformWebhook    = "Discord_Webhook"
)

// DefaultAPIBase is the production Discord REST API (v10).
const DefaultAPIBase = "https://discord.com/api/v10"

// Attachment shape for ciphertext chunks. Bit-exact wire contract.
const (
	chunkFilename = "chunk.enc"
	chunkMIMEType = "application/octet-stream"
)

func init() {
	backend.Register(PlatformBotChannel, func(config models.JSONMap, opts backend.Options) (backend.Driver, error) {
		return NewBotChannel(config, opts)
	})
	backend.Register(PlatformWebhook, func(config models.JSONMap, opts backend.Options) (backend.Driver, error) {
		return NewWebhook(config, opts)
	})
}

// restClient is the low-level HTTP plumbing shared by both drivers and the
// validators. It knows nothing about chunks or files, only about Discord's
// request and response shapes.
type restClient struct {
	client  *nethttp.Client
	apiBase string
	logger  *logging.Logger
}

func newRESTClient(opts backend.Options, component string) *restClient {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger(component)
	}
	client := opts.Client
	if client == nil {
		client = internalhttp.NewRetryingClient(logger)
	}
	apiBase := opts.BaseURL
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &restClient{client: client, apiBase: apiBase, logger: logger}
}

// postJSON sends a JSON body and decodes a JSON response. Any status other
// than wantStatus is returned as an error carrying the response text.
func (r *restClient) postJSON(ctx context.Context, url string, headers map[string]string, payload any, wantStatus int) (models.JSONMap, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return r.doJSON(req, wantStatus)
}

// postChunk uploads ciphertext as a message attachment: multipart form with
// files[0]=chunk.enc and an empty payload_json, exactly as Discord expects.
func (r *restClient) postChunk(ctx context.Context, url string, headers map[string]string, ciphertext []byte) (models.JSONMap, error) {
	var form bytes.Buffer
	writer := multipart.NewWriter(&form)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="files[0]"; filename=%q`, chunkFilename)}
	header["Content-Type"] = []string{chunkMIMEType}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(ciphertext); err != nil {
		return nil, fmt.Errorf("failed to write chunk body: %w", err)
	}
	if err := writer.WriteField("payload_json", "{}"); err != nil {
		return nil, fmt.Errorf("failed to write payload_json field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, url, &form)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return r.doJSON(req, nethttp.StatusOK)
}

// getJSON fetches a JSON document.
func (r *restClient) getJSON(ctx context.Context, url string, headers map[string]string) (models.JSONMap, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return r.doJSON(req, nethttp.StatusOK)
}

// getBytes fetches a raw body, used for attachment content.
func (r *restClient) getBytes(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("remote returned status %d: %s", resp.StatusCode, string(text))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// delete issues a DELETE. A 404 reports notFound=true instead of an error so
// callers can treat already-gone objects as deleted.
func (r *restClient) delete(ctx context.Context, url string, headers map[string]string) (notFound bool, err error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodDelete, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == nethttp.StatusNotFound:
		return true, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	default:
		return false, fmt.Errorf("remote returned status %d", resp.StatusCode)
	}
}

func (r *restClient) doJSON(req *nethttp.Request, wantStatus int) (models.JSONMap, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("remote returned status %d: %s", resp.StatusCode, string(text))
	}

	var data models.JSONMap
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return data, nil
}

// botAuthHeader builds the Authorization header for bot requests.
func botAuthHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bot " + token}
}

// firstAttachmentURL extracts attachments[0].url from a message document.
func firstAttachmentURL(message models.JSONMap) (string, error) {
	raw, ok := message["attachments"]
	if !ok {
		return "", fmt.Errorf("message has no attachments field")
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return "", fmt.Errorf("no attachment found on message")
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return "", fmt.Errorf("malformed attachment entry")
	}
	url, ok := first["url"].(string)
	if !ok || url == "" {
		return "", fmt.Errorf("attachment has no url")
	}
	return url, nil
}

// renameMessageID renames the remote's id field to message_id in place.
// Missing id is a protocol error.
func renameMessageID(message models.JSONMap) error {
	id, ok := message["id"]
	if !ok {
		return fmt.Errorf("remote response missing 'id' field")
	}
	delete(message, "id")
	message["message_id"] = id
	return nil
}

// truncateUTF8 shortens s to at most limit bytes without splitting a rune,
// so truncated filenames stay valid UTF-8 on the wire.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// configString reads a config value that may be stored as a string or a
// number (snowflake IDs arrive both ways from JSON).
func configString(config models.JSONMap, key string) string {
	switch v := config[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// configInt64 reads a numeric config value. ok is false when the key is
// absent or not numeric.
func configInt64(config models.JSONMap, key string) (int64, bool) {
	switch v := config[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}
