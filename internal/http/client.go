// Package http builds the HTTP clients used to talk to the remote platform.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/http2"

	"github.com/discloud/discloud/internal/constants"
	"github.com/discloud/discloud/internal/logging"
)

// NewTransferClient creates an HTTP client tuned for chunk transfers.
//
// Key properties:
//   - Pooled connections, reused across chunks of the same file
//   - HTTP/2 with a runtime toggle (DISABLE_HTTP2 env var)
//   - Compression disabled: ciphertext does not compress
//   - No client-level timeout; every call carries its own context deadline
func NewTransferClient() *nethttp.Client {
	tr := &nethttp.Transport{
		Proxy:                 nethttp.ProxyFromEnvironment,
		MaxIdleConns:          constants.HTTPMaxIdleConns,
		MaxIdleConnsPerHost:   constants.HTTPMaxIdleConnsPerHost,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	}

	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	return &nethttp.Client{
		Transport: tr,
		Timeout:   0,
	}
}

// retryLogger adapts the component logger to retryablehttp.LeveledLogger.
// Only retry-relevant noise is surfaced: errors and warnings.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Msgf("%s %v", msg, keysAndValues)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Msgf("%s %v", msg, keysAndValues)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// NewRetryingClient wraps the transfer client with retry on transient
// failures (connection errors, 429, 5xx). retryablehttp honors Retry-After,
// which covers the remote platform's rate-limit responses. Non-transient
// statuses pass through untouched; the drivers decide what they mean.
func NewRetryingClient(logger *logging.Logger) *nethttp.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = NewTransferClient()
	retryClient.RetryMax = constants.RetryMax
	retryClient.RetryWaitMin = constants.RetryWaitMin
	retryClient.RetryWaitMax = constants.RetryWaitMax
	retryClient.Logger = &retryLogger{logger: logger}

	return retryClient.StandardClient()
}
