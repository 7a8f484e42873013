package discord

import (
	"context"
	"fmt"

	"github.com/discloud/discloud/internal/backend"
	"github.com/discloud/discloud/internal/constants"
	"github.com/discloud/discloud/internal/errs"
	"github.com/discloud/discloud/internal/models"
)

// bookmarkContentLimit caps the bookmark message body, below Discord's 2000
// character message limit.
const bookmarkContentLimit = 1950

// Webhook stores chunks through a Discord webhook, with no bot account.
// There is no thread; PrepareStorage posts a "bookmark" message that anchors
// the file in the channel, and each chunk is a webhook message whose
// retrieval URL is synthesized from the webhook identity.
type Webhook struct {
	webhookURL   string
	serverID     string
	channelID    string
	webhookID    string
	webhookToken string
	maxChunkSize int64
	rest         *restClient
}

var _ backend.Driver = (*Webhook)(nil)

// NewWebhook builds the driver from a stored backend configuration and
// fetches the webhook identity (server, channel, id, token) from the
// webhook URL itself.
func NewWebhook(config models.JSONMap, opts backend.Options) (*Webhook, error) {
	if !opts.SkipValidation {
		validator := NewWebhookValidator(config, opts)
		if !validator.Validate(false, opts.SkipLiveCheck) {
			return nil, fmt.Errorf("%w:\n%s", errs.ErrConfigInvalid, validator.Report())
		}
	}

	maxChunkSize := int64(constants.DefaultChunkSize)
	if size, ok := configInt64(config, "max_chunk_size"); ok {
		maxChunkSize = size
	}

	d := &Webhook{
		webhookURL:   configString(config, "webhook_url"),
		maxChunkSize: maxChunkSize,
		rest:         newRESTClient(opts, "discord-webhook"),
	}

	identity, err := d.fetchIdentity(context.Background())
	if err != nil {
		return nil, err
	}
	d.serverID = identity["server_id"]
	d.channelID = identity["channel_id"]
	d.webhookID = identity["webhook_id"]
	d.webhookToken = identity["webhook_token"]

	return d, nil
}

// MaxChunkSize returns the largest plaintext slice this backend accepts.
func (d *Webhook) MaxChunkSize() int64 {
	return d.maxChunkSize
}

// fetchIdentity resolves server_id, channel_id, webhook_id, and
// webhook_token by fetching the webhook URL.
func (d *Webhook) fetchIdentity(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.PrepareTimeout)
	defer cancel()

	d.rest.logger.Debug().Msg("fetching webhook identity")
	data, err := d.rest.getJSON(ctx, d.webhookURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching webhook identity: %v", errs.ErrUploadPrep, err)
	}

	identity := make(map[string]string, 4)
	for field, key := range map[string]string{
		"guild_id":   "server_id",
		"channel_id": "channel_id",
		"id":         "webhook_id",
		"token":      "webhook_token",
	} {
		value, ok := data.GetString(field)
		if !ok || value == "" {
			return nil, fmt.Errorf("%w: webhook identity response missing '%s'", errs.ErrUploadPrep, field)
		}
		identity[key] = value
	}
	return identity, nil
}

// PrepareStorage posts a bookmark message anchoring the file and returns
// the full webhook context needed to upload and locate chunks later.
func (d *Webhook) PrepareStorage(ctx context.Context, meta backend.FileMeta) (models.JSONMap, error) {
	filename := meta.Filename
	if filename == "" {
		filename = "Unknown"
	}
	content := fmt.Sprintf("Preparing for the upload of %s...", filename)
	if len(content) > bookmarkContentLimit {
		d.rest.logger.Info().Msg("bookmark content too long, truncating")
		content = truncateUTF8(content, bookmarkContentLimit) + "..."
	}

	d.rest.logger.Info().Str("filename", filename).Msg("posting bookmark message")

	ctx, cancel := context.WithTimeout(ctx, constants.PrepareTimeout)
	defer cancel()

	data, err := d.rest.postJSON(ctx, d.webhookURL+"?wait=true", nil, map[string]any{"content": content}, 200)
	if err != nil {
		return nil, fmt.Errorf("%w: posting bookmark message: %v", errs.ErrUploadPrep, err)
	}

	storageContext := models.JSONMap{}
	for _, field := range []string{"timestamp", "channel_id", "webhook_id"} {
		if value, ok := data[field]; ok {
			storageContext[field] = value
		}
	}
	// Identity fields the response omits come from the webhook itself.
	if _, ok := storageContext.GetString("webhook_id"); !ok {
		storageContext["webhook_id"] = d.webhookID
	}
	if _, ok := storageContext.GetString("channel_id"); !ok {
		storageContext["channel_id"] = d.channelID
	}
	messageID, ok := data.GetString("id")
	if !ok || messageID == "" {
		return nil, fmt.Errorf("%w: bookmark response missing 'id'", errs.ErrUploadPrep)
	}
	storageContext["message_id"] = messageID
	storageContext["server_id"] = d.serverID
	storageContext["webhook_token"] = d.webhookToken
	storageContext["webhook_url"] = d.webhookURL
	storageContext["message_url"] = fmt.Sprintf("https://discord.com/channels/%s/%v/%s",
		d.serverID, storageContext["channel_id"], messageID)

	d.rest.logger.Info().Str("message_id", messageID).Msg("bookmark message posted")
	return storageContext, nil
}

// UploadChunk posts the ciphertext as a webhook attachment. The reference
// carries both a human message_url and the webhook_message_url used for
// retrieval. URLs are synthesized from the identity fetched at construction;
// a storage context that disagrees is logged and overridden.
func (d *Webhook) UploadChunk(ctx context.Context, ciphertext []byte, storageContext models.JSONMap) (models.JSONMap, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext cannot be empty", errs.ErrUsage)
	}
	if url, ok := storageContext.GetString("webhook_url"); ok && url != "" && url != d.webhookURL {
		d.rest.logger.Warn().Msg("webhook_url mismatch between storage context and driver config, using driver config")
	}
	serverID, _ := storageContext.GetString("server_id")
	channelID, _ := storageContext.GetString("channel_id")
	if serverID == "" || channelID == "" {
		return nil, fmt.Errorf("%w: storage context must contain 'server_id' and 'channel_id'", errs.ErrUsage)
	}
	if serverID != d.serverID || channelID != d.channelID {
		d.rest.logger.Warn().
			Str("context_server_id", serverID).
			Str("context_channel_id", channelID).
			Msg("storage context identity differs from webhook identity, synthesizing URLs from webhook identity")
	}

	d.rest.logger.Debug().Int("bytes", len(ciphertext)).Msg("uploading chunk via webhook")

	ctx, cancel := context.WithTimeout(ctx, constants.TransferTimeout)
	defer cancel()

	message, err := d.rest.postChunk(ctx, d.webhookURL+"?wait=true", nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUpload, err)
	}
	if err := renameMessageID(message); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUpload, err)
	}

	messageID, _ := message.GetString("message_id")
	message["message_url"] = fmt.Sprintf("https://discord.com/channels/%s/%s/%s", d.serverID, d.channelID, messageID)
	message["webhook_message_url"] = fmt.Sprintf("%s/webhooks/%s/%s/messages/%s",
		d.rest.apiBase, d.webhookID, d.webhookToken, messageID)

	d.rest.logger.Debug().Str("message_id", messageID).Msg("chunk uploaded")
	return message, nil
}

// DownloadChunk retrieves the chunk's message through its
// webhook_message_url and downloads the first attachment.
func (d *Webhook) DownloadChunk(ctx context.Context, reference, storageContext models.JSONMap) ([]byte, error) {
	messageURL, ok := reference.GetString("webhook_message_url")
	if !ok || messageURL == "" {
		return nil, fmt.Errorf("%w: chunk reference must contain 'webhook_message_url'", errs.ErrUsage)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.TransferTimeout)
	defer cancel()

	message, err := d.rest.getJSON(ctx, messageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching message: %v", errs.ErrDownload, err)
	}

	attachmentURL, err := firstAttachmentURL(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDownload, err)
	}

	data, err := d.rest.getBytes(ctx, attachmentURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching attachment: %v", errs.ErrDownload, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: attachment is empty", errs.ErrDownload)
	}
	return data, nil
}

// DeleteChunk removes the chunk's message through the webhook, which may
// always delete its own messages.
func (d *Webhook) DeleteChunk(ctx context.Context, reference, storageContext models.JSONMap) error {
	messageURL, ok := reference.GetString("webhook_message_url")
	if !ok || messageURL == "" {
		return fmt.Errorf("%w: chunk reference must contain 'webhook_message_url'", errs.ErrUsage)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.TransferTimeout)
	defer cancel()

	notFound, err := d.rest.delete(ctx, messageURL, nil)
	if err != nil {
		return fmt.Errorf("%w: deleting webhook message: %v", errs.ErrDelete, err)
	}
	if notFound {
		d.rest.logger.Warn().Str("message_url", messageURL).Msg("message already gone, treating as deleted")
	}
	return nil
}
