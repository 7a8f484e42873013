package discord

import (
	"context"
	"fmt"

	"github.com/discloud/discloud/internal/backend"
	"github.com/discloud/discloud/internal/constants"
	"github.com/discloud/discloud/internal/errs"
	"github.com/discloud/discloud/internal/models"
)

// threadNameLimit is where thread names get truncated. Discord allows 100
// characters; 90 leaves room for the ellipsis and stays readable.
const threadNameLimit = 90

// BotChannel stores chunks as bot messages inside a per-file public thread
// under the configured channel. PrepareStorage creates the thread; every
// chunk becomes one message in it.
type BotChannel struct {
	botToken     string
	serverID     string
	channelID    string
	maxChunkSize int64
	rest         *restClient
}

var _ backend.Driver = (*BotChannel)(nil)

// NewBotChannel builds the driver from a stored backend configuration.
// The config is validated first unless opts.SkipValidation is set; a
// validation failure surfaces as ErrConfigInvalid with the full report.
func NewBotChannel(config models.JSONMap, opts backend.Options) (*BotChannel, error) {
	if !opts.SkipValidation {
		validator := NewBotChannelValidator(config, opts)
		if !validator.Validate(false, opts.SkipLiveCheck) {
			return nil, fmt.Errorf("%w:\n%s", errs.ErrConfigInvalid, validator.Report())
		}
	}

	maxChunkSize := int64(constants.DefaultChunkSize)
	if size, ok := configInt64(config, "max_chunk_size"); ok {
		maxChunkSize = size
	}

	return &BotChannel{
		botToken:     configString(config, "bot_token"),
		serverID:     configString(config, "server_id"),
		channelID:    configString(config, "channel_id"),
		maxChunkSize: maxChunkSize,
		rest:         newRESTClient(opts, "discord-bot"),
	}, nil
}

// MaxChunkSize returns the largest plaintext slice this backend accepts.
func (d *BotChannel) MaxChunkSize() int64 {
	return d.maxChunkSize
}

// PrepareStorage creates a public thread named after the file and returns
// its id as the storage context.
func (d *BotChannel) PrepareStorage(ctx context.Context, meta backend.FileMeta) (models.JSONMap, error) {
	filename := meta.Filename
	if filename == "" {
		filename = "Untitled"
	}
	threadName := "[FILE] " + filename
	if len(threadName) > threadNameLimit {
		threadName = truncateUTF8(threadName, threadNameLimit) + "..."
	}

	d.rest.logger.Info().Str("thread", threadName).Msg("creating thread for upload")

	ctx, cancel := context.WithTimeout(ctx, constants.PrepareTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/channels/%s/threads", d.rest.apiBase, d.channelID)
	payload := map[string]any{
		"name":                  threadName,
		"type":                  11,    // PUBLIC_THREAD
		"auto_archive_duration": 10080, // 7 days
	}

	data, err := d.rest.postJSON(ctx, url, botAuthHeader(d.botToken), payload, 201)
	if err != nil {
		return nil, fmt.Errorf("%w: creating thread: %v", errs.ErrUploadPrep, err)
	}

	threadID, ok := data.GetString("id")
	if !ok || threadID == "" {
		return nil, fmt.Errorf("%w: thread create response missing 'id'", errs.ErrUploadPrep)
	}

	d.rest.logger.Info().Str("thread_id", threadID).Msg("thread created")
	return models.JSONMap{"thread_id": threadID}, nil
}

// UploadChunk posts the ciphertext as an attachment into the file's thread.
// The returned reference is the remote message with id renamed to
// message_id and the thread id injected.
func (d *BotChannel) UploadChunk(ctx context.Context, ciphertext []byte, storageContext models.JSONMap) (models.JSONMap, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext cannot be empty", errs.ErrUsage)
	}
	threadID, ok := storageContext.GetString("thread_id")
	if !ok || threadID == "" {
		return nil, fmt.Errorf("%w: storage context must contain 'thread_id'", errs.ErrUsage)
	}

	d.rest.logger.Debug().Str("thread_id", threadID).Int("bytes", len(ciphertext)).Msg("uploading chunk")

	ctx, cancel := context.WithTimeout(ctx, constants.TransferTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/channels/%s/messages", d.rest.apiBase, threadID)
	message, err := d.rest.postChunk(ctx, url, botAuthHeader(d.botToken), ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUpload, err)
	}

	if err := renameMessageID(message); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUpload, err)
	}
	message["thread_id"] = threadID

	messageID, _ := message.GetString("message_id")
	d.rest.logger.Debug().Str("message_id", messageID).Msg("chunk uploaded")
	return message, nil
}

// DownloadChunk fetches the chunk's message and downloads its first
// attachment. The thread id from the storage context wins over the one
// recorded on the reference; a mismatch is logged but not fatal.
func (d *BotChannel) DownloadChunk(ctx context.Context, reference, storageContext models.JSONMap) ([]byte, error) {
	threadID, err := d.effectiveThreadID(reference, storageContext)
	if err != nil {
		return nil, err
	}
	messageID, ok := reference.GetString("message_id")
	if !ok || messageID == "" {
		return nil, fmt.Errorf("%w: chunk reference must contain 'message_id'", errs.ErrUsage)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.TransferTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/channels/%s/messages/%s", d.rest.apiBase, threadID, messageID)
	message, err := d.rest.getJSON(ctx, url, botAuthHeader(d.botToken))
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

// DeleteChunk removes the chunk's message from the thread. A message the
// remote no longer knows about counts as deleted.
func (d *BotChannel) DeleteChunk(ctx context.Context, reference, storageContext models.JSONMap) error {
	threadID, err := d.effectiveThreadID(reference, storageContext)
	if err != nil {
		return err
	}
	messageID, ok := reference.GetString("message_id")
	if !ok || messageID == "" {
		return fmt.Errorf("%w: chunk reference must contain 'message_id'", errs.ErrUsage)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.TransferTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/channels/%s/messages/%s", d.rest.apiBase, threadID, messageID)
	notFound, err := d.rest.delete(ctx, url, botAuthHeader(d.botToken))
	if err != nil {
		return fmt.Errorf("%w: deleting message: %v", errs.ErrDelete, err)
	}
	if notFound {
		d.rest.logger.Warn().Str("message_id", messageID).Msg("message already gone, treating as deleted")
	}
	return nil
}

// effectiveThreadID resolves the thread id, preferring the storage context.
func (d *BotChannel) effectiveThreadID(reference, storageContext models.JSONMap) (string, error) {
	contextThread, _ := storageContext.GetString("thread_id")
	referenceThread, _ := reference.GetString("thread_id")

	if contextThread != "" && referenceThread != "" && contextThread != referenceThread {
		d.rest.logger.Warn().
			Str("context_thread_id", contextThread).
			Str("reference_thread_id", referenceThread).
			Msg("thread id mismatch between storage context and chunk reference, using storage context")
	}

	threadID := contextThread
	if threadID == "" {
		threadID = referenceThread
	}
	if threadID == "" {
		return "", fmt.Errorf("%w: neither storage context nor chunk reference carries 'thread_id'", errs.ErrUsage)
	}
	return threadID, nil
}
