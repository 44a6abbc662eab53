// Package transport performs authenticated JSON round trips against the
// RecallrAI API. It owns the HTTP client, attaches credentials to every
// request and turns failures into *apierror.Error values. It never retries.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recallrai/recallrai-go/apierror"
)

const (
	// APIPrefix is prepended to every request path.
	APIPrefix = "/api/v1"

	DefaultBaseURL = "https://api.recallrai.com"
	DefaultTimeout = 60 * time.Second

	HeaderAPIKey    = "X-Recallr-Api-Key"
	HeaderProjectID = "X-Recallr-Project-Id"
	HeaderRequestID = "X-Request-Id"

	maxResponseBytes = 16 << 20
)

// Config holds everything needed to build a Transport.
type Config struct {
	APIKey    string
	ProjectID string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Timeout bounds each round trip. Defaults to DefaultTimeout.
	Timeout time.Duration

	UserAgent string

	// HTTPClient is copied, not shared. Its Timeout is kept when set.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Request describes one API call.
type Request struct {
	Method string

	// Path is relative to APIPrefix and should be built with Path.
	Path  string
	Query url.Values

	// Body is JSON-encoded when non-nil.
	Body any

	// Scope selects scope-dependent error kinds.
	Scope apierror.Scope
}

// Transport is safe for concurrent use.
type Transport struct {
	baseURL    string
	apiKey     string
	projectID  string
	userAgent  string
	httpClient *http.Client
	logger     *zap.Logger
}

// New validates cfg and returns a Transport.
func New(cfg Config) (*Transport, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("transport: api key is required")
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("transport: project id is required")
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("transport: parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("transport: base url %q must be an absolute http(s) url", base)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := &http.Client{Timeout: timeout}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		if c.Timeout == 0 {
			c.Timeout = timeout
		}
		hc = &c
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Transport{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		projectID:  cfg.ProjectID,
		userAgent:  cfg.UserAgent,
		httpClient: hc,
		logger:     logger,
	}, nil
}

// BaseURL returns the normalised base URL.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// Timeout returns the per-request timeout in effect.
func (t *Transport) Timeout() time.Duration {
	return t.httpClient.Timeout
}

// Do performs r and returns the raw JSON body of a 2xx response. Empty and
// 204 responses return a nil message. Every failure is an *apierror.Error.
func (t *Transport) Do(ctx context.Context, r Request) (json.RawMessage, error) {
	var body io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindValidation, "encode request body", err)
		}
		body = bytes.NewReader(b)
	}

	target := t.baseURL + APIPrefix + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, "create request", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(HeaderAPIKey, t.apiKey)
	req.Header.Set(HeaderProjectID, t.projectID)
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	start := time.Now()
	log := t.logger.With(
		zap.String("method", r.Method),
		zap.String("path", r.Path),
		zap.String("request_id", requestID),
	)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		apiErr := networkError(err)
		log.Debug("request failed", zap.Duration("duration", time.Since(start)), zap.Error(apiErr))
		return nil, apiErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		apiErr := networkError(err)
		log.Debug("read response failed", zap.Int("status", resp.StatusCode), zap.Error(apiErr))
		return nil, apiErr
	}

	log.Debug("request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.Int("bytes", len(data)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apierror.FromResponse(resp.StatusCode, resp.Header, data, r.Scope)
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, &apierror.Error{
			Kind:       apierror.KindConnection,
			Message:    "response body is not valid JSON",
			HTTPStatus: resp.StatusCode,
		}
	}
	return json.RawMessage(data), nil
}

// DoInto performs r and decodes the response into out. A nil out or an empty
// response leaves out untouched.
func (t *Transport) DoInto(ctx context.Context, r Request, out any) error {
	raw, err := t.Do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierror.Wrap(apierror.KindUnexpected, "decode response", err)
	}
	return nil
}

// networkError classifies a failure that produced no HTTP response.
// Deadlines (client timeout or caller deadline) become KindTimeout;
// everything else, caller cancellation included, becomes KindConnection.
func networkError(err error) *apierror.Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apierror.Wrap(apierror.KindTimeout, "request timed out", err)
	}
	return apierror.Wrap(apierror.KindConnection, "connection failed", err)
}

// Path joins escaped path segments: Path("users", id) == "/users/<id>".
func Path(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
