package discord

import (
	"context"
	"fmt"
	nethttp "net/http"
	"regexp"
	"strings"

	"github.com/discloud/discloud/internal/backend"
	"github.com/discloud/discloud/internal/constants"
	"github.com/discloud/discloud/internal/models"
)

// Validation patterns.
var (
	// botTokenPattern matches Discord bot tokens, e.g.
	// MTk4NjIyNDgzNDcxOTI1MjQ4.Cl2FMQ.ZnCjm1XVW7vRze4b7Cq4se7kKWs
	botTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}\.[A-Za-z0-9_-]{6,}\.[A-Za-z0-9_-]{27,}$`)

	// snowflakePattern matches Discord snowflake IDs, typically 17-19 digits.
	snowflakePattern = regexp.MustCompile(`^\d{17,19}$`)

	// webhookURLPattern matches Discord webhook endpoints.
	webhookURLPattern = regexp.MustCompile(`^https://(?:discord|discordapp)\.com/api/webhooks/\d+/[A-Za-z0-9_-]+$`)
)

// validation accumulates errors and warnings across the four layers and
// renders the report. Embedded by both platform validators.
type validation struct {
	errors   []string
	warnings []string
}

func (v *validation) reset() {
	v.errors = nil
	v.warnings = nil
}

func (v *validation) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validation) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

// Errors returns a copy of the validation errors.
func (v *validation) Errors() []string {
	return append([]string(nil), v.errors...)
}

// Warnings returns a copy of the validation warnings.
func (v *validation) Warnings() []string {
	return append([]string(nil), v.warnings...)
}

// Report returns a formatted validation report.
func (v *validation) Report() string {
	if len(v.errors) == 0 && len(v.warnings) == 0 {
		return "[+] Configuration is valid"
	}

	var b strings.Builder
	if len(v.errors) > 0 {
		fmt.Fprintf(&b, "[x] %d error(s) found:\n", len(v.errors))
		for _, e := range v.errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}
	if len(v.warnings) > 0 {
		fmt.Fprintf(&b, "[!] %d warning(s):\n", len(v.warnings))
		for _, w := range v.warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// checkChunkSizeRule applies the shared business rule for max_chunk_size.
// Out-of-bounds values are warnings, not errors: the driver still works,
// the remote just rejects oversized attachments at upload time.
func (v *validation) checkChunkSizeRule(config models.JSONMap) {
	if _, present := config["max_chunk_size"]; !present {
		return
	}
	size, ok := configInt64(config, "max_chunk_size")
	if !ok {
		return // schema layer already rejected the type
	}
	switch {
	case size < constants.MinChunkSize:
		v.addWarning("max_chunk_size (%d) is too small. Minimum is %d bytes", size, constants.MinChunkSize)
	case size > constants.MaxChunkSize:
		v.addWarning("max_chunk_size (%d) exceeds the attachment limit. Maximum is %d bytes", size, constants.MaxChunkSize)
	case size > constants.RecommendedMaxChunkSize:
		v.addWarning("max_chunk_size (%d) is larger than recommended (%d). This may cause issues with overhead",
			size, constants.RecommendedMaxChunkSize)
	}
}

// checkRequiredString validates a required scalar field: present, non-empty,
// and of an accepted type. allowNumeric admits snowflakes stored as numbers.
func (v *validation) checkRequiredString(config models.JSONMap, field string, allowNumeric bool) {
	raw, ok := config[field]
	if !ok {
		v.addError("Missing required field: '%s'", field)
		return
	}
	if raw == nil || raw == "" {
		v.addError("Field '%s' cannot be empty", field)
		return
	}
	if _, isString := raw.(string); isString {
		return
	}
	if allowNumeric {
		if _, isNum := configInt64(config, field); isNum {
			return
		}
		v.addError("Field '%s' must be a string or an integer, got %T", field, raw)
		return
	}
	v.addError("Field '%s' must be a string, got %T", field, raw)
}

// checkOptionalInt validates an optional integer field's type when present.
func (v *validation) checkOptionalInt(config models.JSONMap, field string) {
	raw, present := config[field]
	if !present || raw == nil {
		return
	}
	if _, ok := configInt64(config, field); !ok {
		v.addError("Optional field '%s' must be an integer, got %T", field, raw)
	}
}

// BotChannelValidator validates bot-channel backend configurations in four
// layers: schema, format, business rules, then a live bot-identity probe.
// Each layer runs only when the previous ones produced no errors.
type BotChannelValidator struct {
	validation
	config models.JSONMap
	rest   *restClient
}

// NewBotChannelValidator creates a validator for the given config.
func NewBotChannelValidator(config models.JSONMap, opts backend.Options) *BotChannelValidator {
	return &BotChannelValidator{
		config: config,
		rest:   newRESTClient(opts, "discord-validator"),
	}
}

// Validate runs the validation layers and reports whether the config is
// usable. allowErrors forces a true result even when errors exist; it is
// reserved for test harnesses. skipLive skips the authenticated probe.
func (v *BotChannelValidator) Validate(allowErrors, skipLive bool) bool {
	v.reset()

	v.validateSchema()
	if len(v.errors) == 0 {
		v.validateFormats()
	}
	if len(v.errors) == 0 {
		v.validateBusinessRules()
	}
	if len(v.errors) == 0 && !skipLive {
		v.validateLiveAPI()
	}

	for _, e := range v.errors {
		v.rest.logger.Error().Str("platform", PlatformBotChannel).Msgf("config validation error: %s", e)
	}
	for _, w := range v.warnings {
		v.rest.logger.Warn().Str("platform", PlatformBotChannel).Msgf("config validation warning: %s", w)
	}
	v.rest.logger.Debug().Msgf("config validation completed: %d error(s), %d warning(s)", len(v.errors), len(v.warnings))

	if allowErrors {
		return true
	}
	return len(v.errors) == 0
}

func (v *BotChannelValidator) validateSchema() {
	if v.config == nil {
		v.addError("Config must be a map")
		return
	}
	v.checkRequiredString(v.config, "bot_token", false)
	v.checkRequiredString(v.config, "server_id", true)
	v.checkRequiredString(v.config, "channel_id", true)
	v.checkOptionalInt(v.config, "max_chunk_size")
}

func (v *BotChannelValidator) validateFormats() {
	// Token format mismatch is only a warning so test tokens stay usable.
	if token := configString(v.config, "bot_token"); token != "" && !botTokenPattern.MatchString(token) {
		v.addWarning("Bot token doesn't match expected Discord token format. " +
			"This might be a test token or incorrectly formatted.")
	}

	for _, field := range []string{"server_id", "channel_id"} {
		value := configString(v.config, field)
		if value != "" && !snowflakePattern.MatchString(value) {
			v.addError("'%s' (%s) doesn't match Discord Snowflake ID format (17-19 digits)", field, value)
		}
	}
}

func (v *BotChannelValidator) validateBusinessRules() {
	v.checkChunkSizeRule(v.config)
}

// validateLiveAPI probes the bot identity endpoint with the configured
// token. A single authenticated request settles whether the token works.
func (v *BotChannelValidator) validateLiveAPI() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.PrepareTimeout)
	defer cancel()

	url := v.rest.apiBase + "/users/@me"
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		v.addError("Failed to validate bot token: %v", err)
		return
	}
	req.Header.Set("Authorization", "Bot "+configString(v.config, "bot_token"))

	resp, err := v.rest.client.Do(req)
	if err != nil {
		v.addError("Failed to validate bot token: %v", err)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case nethttp.StatusOK:
	case nethttp.StatusUnauthorized:
		v.addError("Bot token is invalid or unauthorized.")
	default:
		v.addError("Unexpected response from Discord API when validating bot token: HTTP %d", resp.StatusCode)
	}
}

// WebhookValidator validates webhook backend configurations. Same layering
// as BotChannelValidator; the live probe fetches the webhook identity.
type WebhookValidator struct {
	validation
	config models.JSONMap
	rest   *restClient
}

// NewWebhookValidator creates a validator for the given config.
func NewWebhookValidator(config models.JSONMap, opts backend.Options) *WebhookValidator {
	return &WebhookValidator{
		config: config,
		rest:   newRESTClient(opts, "discord-validator"),
	}
}

// Validate runs the validation layers. Semantics match
// BotChannelValidator.Validate.
func (v *WebhookValidator) Validate(allowErrors, skipLive bool) bool {
	v.reset()

	v.validateSchema()
	if len(v.errors) == 0 {
		v.validateFormats()
	}
	if len(v.errors) == 0 {
		v.checkChunkSizeRule(v.config)
	}
	if len(v.errors) == 0 && !skipLive {
		v.validateLiveAPI()
	}

	for _, e := range v.errors {
		v.rest.logger.Error().Str("platform", PlatformWebhook).Msgf("config validation error: %s", e)
	}
	for _, w := range v.warnings {
		v.rest.logger.Warn().Str("platform", PlatformWebhook).Msgf("config validation warning: %s", w)
	}

	if allowErrors {
		return true
	}
	return len(v.errors) == 0
}

func (v *WebhookValidator) validateSchema() {
	if v.config == nil {
		v.addError("Config must be a map")
		return
	}
	v.checkRequiredString(v.config, "webhook_url", false)
	v.checkOptionalInt(v.config, "max_chunk_size")
}

func (v *WebhookValidator) validateFormats() {
	// Warning rather than error: test servers and proxies use other hosts.
	if url := configString(v.config, "webhook_url"); url != "" && !webhookURLPattern.MatchString(url) {
		v.addWarning("webhook_url doesn't match the expected Discord webhook URL format. " +
			"This might be a test endpoint.")
	}
}

// validateLiveAPI fetches the webhook identity. A reachable webhook returns
// its id and token; anything else fails the config.
func (v *WebhookValidator) validateLiveAPI() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.PrepareTimeout)
	defer cancel()

	identity, err := v.rest.getJSON(ctx, configString(v.config, "webhook_url"), nil)
	if err != nil {
		v.addError("Failed to validate webhook: %v", err)
		return
	}
	if _, ok := identity.GetString("id"); !ok {
		v.addError("Webhook identity response missing 'id' field")
	}
	if _, ok := identity.GetString("token"); !ok {
		v.addError("Webhook identity response missing 'token' field")
	}
}
