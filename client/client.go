// Package client is the entry point of the RecallrAI SDK.
//
// A Client creates and fetches users. Everything else is reached through
// handles: a User opens sessions and lists memories and merge conflicts, a
// Session takes messages and is processed into memories, a MergeConflict is
// resolved by answering its clarifying questions.
//
// Handles are local mirrors of server state. They are never synchronised with
// each other: two handles fetched for the same session can disagree until one
// of them is refreshed. A single handle must not be mutated from several
// goroutines at once; independent handles may be used concurrently.
//
// Every failure is an *apierror.Error. Nothing is retried.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/recallrai/recallrai-go/apierror"
	"github.com/recallrai/recallrai-go/core"
	"github.com/recallrai/recallrai-go/transport"
)

// Version is the SDK version sent in the User-Agent header.
const Version = "0.4.0"

// APIKeyPrefix starts every valid API key.
const APIKeyPrefix = "rai_"

// Client holds the credentials and transport shared by every handle.
// It is immutable after New and safe for concurrent use.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger

	tr *transport.Transport
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another deployment.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout sets the per-request timeout. The default is 60 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient supplies the underlying HTTP client, e.g. for a custom
// proxy or TLS setup.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger. Requests are logged at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for the given project.
func New(apiKey, projectID string, opts ...Option) (*Client, error) {
	if !strings.HasPrefix(apiKey, APIKeyPrefix) {
		return nil, apierror.New(apierror.KindValidation, "API key must start with "+APIKeyPrefix)
	}
	if strings.TrimSpace(projectID) == "" {
		return nil, apierror.New(apierror.KindValidation, "project ID is required")
	}

	c := &Client{
		baseURL: transport.DefaultBaseURL,
		timeout: transport.DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	tr, err := transport.New(transport.Config{
		APIKey:     apiKey,
		ProjectID:  projectID,
		BaseURL:    c.baseURL,
		Timeout:    c.timeout,
		UserAgent:  "RecallrAI-Go-SDK/" + Version,
		HTTPClient: c.httpClient,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, apierror.Wrap(apierror.KindValidation, "invalid client configuration", err)
	}
	c.tr = tr
	c.baseURL = tr.BaseURL()
	c.timeout = tr.Timeout()
	return c, nil
}

// BaseURL returns the API base URL in use.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the per-request timeout in use.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// CreateUser registers a new user. An existing user_id fails with
// apierror.KindUserAlreadyExists; the existing user is never returned.
func (c *Client) CreateUser(ctx context.Context, userID string, metadata map[string]any) (*User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apierror.New(apierror.KindValidation, "user ID is required")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := c.tr.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   transport.Path("users"),
		Body:   map[string]any{"user_id": userID, "metadata": metadata},
		Scope:  apierror.ScopeUser,
	})
	if err != nil {
		return nil, err
	}
	u := &User{c: c}
	if err := decodeInto(raw, "user", &u.UserData); err != nil {
		return nil, err
	}
	c.logger.Debug("user created", zap.String("user_id", u.UserID))
	return u, nil
}

// GetUser fetches a user by ID.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	u := &User{c: c, UserData: core.UserData{UserID: userID}}
	if err := u.Refresh(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

// ListUsersParams filters ListUsers. Limit defaults to 10.
type ListUsersParams struct {
	Offset int
	Limit  int

	// MetadataFilter matches users whose metadata contains these pairs.
	MetadataFilter map[string]any
}

// ListUsers returns one page of users.
func (c *Client) ListUsers(ctx context.Context, p ListUsersParams) (core.Page[*User], error) {
	q, err := pageQuery(p.Offset, p.Limit, defaultUsersLimit, 0)
	if err != nil {
		return core.Page[*User]{}, err
	}
	if err := setJSON(q, "metadata_filter", p.MetadataFilter); err != nil {
		return core.Page[*User]{}, err
	}

	raw, err := c.tr.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   transport.Path("users"),
		Query:  q,
	})
	if err != nil {
		return core.Page[*User]{}, err
	}
	page, err := decodePage[core.UserData](raw, "users", "user")
	if err != nil {
		return core.Page[*User]{}, err
	}
	return mapPage(page, func(d core.UserData) *User {
		return &User{c: c, UserData: d}
	}), nil
}

func decodeInto(raw json.RawMessage, key string, out any) error {
	if raw == nil {
		return apierror.New(apierror.KindUnexpected, "empty response body")
	}
	if err := core.DecodeResource(raw, key, out); err != nil {
		return apierror.Wrap(apierror.KindUnexpected, "decode "+key, err)
	}
	return nil
}

func decodePage[T any](raw json.RawMessage, key, itemKey string) (core.Page[T], error) {
	if raw == nil {
		return core.Page[T]{}, apierror.New(apierror.KindUnexpected, "empty response body")
	}
	page, err := core.DecodePage[T](raw, key, itemKey)
	if err != nil {
		return core.Page[T]{}, apierror.Wrap(apierror.KindUnexpected, "decode "+key, err)
	}
	return page, nil
}

func mapPage[T, U any](p core.Page[T], fn func(T) U) core.Page[U] {
	out := core.Page[U]{
		Items:   make([]U, 0, len(p.Items)),
		Total:   p.Total,
		HasMore: p.HasMore,
	}
	for _, it := range p.Items {
		out.Items = append(out.Items, fn(it))
	}
	return out
}

func setJSON(q url.Values, key string, v map[string]any) error {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return apierror.Wrap(apierror.KindValidation, "encode "+key, err)
	}
	q.Set(key, string(b))
	return nil
}
