package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultBaseURL is the address a locally started agentapi server binds to.
	DefaultBaseURL = "http://127.0.0.1:8318"
	// DefaultTimeout bounds every request issued by a client.
	DefaultTimeout = 30 * time.Second

	apiKeyEnv     = "AGENTAPI_KEY"
	defaultAPIKey = "8318"

	maxErrorBodyBytes = 1024
)

// Option configures a client at construction time.
type Option func(*options)

type options struct {
	apiKey  string
	timeout time.Duration
	httpc   *http.Client
	clock   Clock
}

// WithAPIKey sets the bearer token attached to every request. When unset the
// token is read from the AGENTAPI_KEY environment variable, with a literal
// fallback matching the server's default.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithTimeout overrides the fixed transport timeout shared by all
// operations of the client.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient supplies a custom underlying *http.Client. The caller owns
// its transport configuration; the timeout option is ignored when set.
func WithHTTPClient(httpc *http.Client) Option {
	return func(o *options) { o.httpc = httpc }
}

// WithClock injects the clock used by polling loops. Intended for tests.
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

func buildOptions(opts []Option) options {
	o := options{timeout: DefaultTimeout, clock: realClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.apiKey == "" {
		o.apiKey = resolveAPIKey()
	}
	if o.httpc == nil {
		o.httpc = &http.Client{
			Timeout:   o.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return o
}

func resolveAPIKey() string {
	if key := strings.TrimSpace(os.Getenv(apiKeyEnv)); key != "" {
		return key
	}
	return defaultAPIKey
}

func normalizeBaseURL(baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// doRequest issues one HTTP request and returns the raw response body.
// Non-2xx statuses and connection failures both surface as *TransportError.
func doRequest(ctx context.Context, httpc *http.Client, op, apiKey, method, url string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := data
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return nil, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	return data, nil
}

// doJSON marshals payload (when non-nil) and issues the request with a JSON
// content type.
func doJSON(ctx context.Context, httpc *http.Client, op, apiKey, method, url string, payload any) ([]byte, error) {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("agentapi: %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return doRequest(ctx, httpc, op, apiKey, method, url, body, contentType)
}

// envelope matches the server's body-wrapped responses. The core endpoints
// (/message, /status, /messages, /upload) wrap their payload under a "body"
// key; the admin and completion endpoints do not. This is an external
// compatibility quirk handled per endpoint.
type envelope[T any] struct {
	Body *T `json:"body"`
}

func decodeEnvelope[T any](data []byte) (T, error) {
	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		var zero T
		return zero, &FormatError{Err: err}
	}
	if env.Body == nil {
		var zero T
		return zero, &FormatError{Field: "body", Err: fmt.Errorf("missing")}
	}
	return *env.Body, nil
}

func decodeJSON[T any](data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, &FormatError{Err: err}
	}
	return out, nil
}

// parseMessageTime parses an ISO-8601 timestamp. A trailing literal "Z" is
// normalized to an explicit UTC offset first, matching the server's
// serialization.
func parseMessageTime(raw string) (time.Time, error) {
	normalized := raw
	if strings.HasSuffix(normalized, "Z") {
		normalized = strings.TrimSuffix(normalized, "Z") + "+00:00"
	}
	t, err := time.Parse(time.RFC3339Nano, normalized)
	if err != nil {
		return time.Time{}, &FormatError{Field: "time", Err: err}
	}
	return t, nil
}
