// Package rest implements ports.Transport over net/http with JSON payloads.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/userdesk/internal/core/domain"
	"github.com/99minutos/userdesk/internal/infrastructure/metrics"
)

const (
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 10 * time.Second

	// maxErrorBody caps how much of a failed response is read into the error message.
	maxErrorBody = 4 << 10
)

// Transport issues JSON requests relative to a base API URL.
type Transport struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// Option customises a Transport.
type Option func(*Transport)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Transport) { t.log = log }
}

// NewTransport returns a Transport for baseURL (e.g. "http://localhost:8080").
func NewTransport(baseURL string, opts ...Option) *Transport {
	t := &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  NewHTTPClient(0),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewHTTPClient creates an HTTP client for the users API.
// A zero timeout leaves requests unbounded; callers bound them through ctx.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: TLSHandshakeTimeout,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// errorEnvelope is the JSON error body returned by the users API.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Do sends method path with body encoded as JSON and decodes the response into out.
func (t *Transport) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		metrics.TransportRequestDuration.WithLabelValues(method, "network_error").Observe(time.Since(start).Seconds())
		t.log.Warn().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return &domain.TransportError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	metrics.TransportRequestDuration.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Observe(elapsed.Seconds())
	t.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.TransportError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{
			Status:  resp.StatusCode,
			Message: "decode response: " + err.Error(),
			Err:     err,
		}
	}
	return nil
}

// errorMessage extracts a human readable message from a failed response.
func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}
