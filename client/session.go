package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/recallrai/recallrai-go/apierror"
	"github.com/recallrai/recallrai-go/core"
	"github.com/recallrai/recallrai-go/transport"
)

// Session is a handle on one conversation of a user. The embedded SessionData
// mirrors the server's last answer; Status only changes when the server says
// so, never because of a call made through this handle.
type Session struct {
	core.SessionData

	userID string
	c      *Client
}

// UserID returns the ID of the user owning s, as known when s was fetched.
func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) path(rest ...string) string {
	return transport.Path(append([]string{"users", s.userID, "sessions", s.SessionID}, rest...)...)
}

// requirePending fails fast when the mirror already shows the session past
// pending. Statuses never move back, so a non-pending mirror means the server
// would reject the call too.
func (s *Session) requirePending(op string) error {
	if s.Status == "" || s.Status.AcceptsMessages() {
		return nil
	}
	return &apierror.Error{
		Kind:    apierror.KindInvalidSessionState,
		Message: fmt.Sprintf("cannot %s session %s with status %s", op, s.SessionID, s.Status),
	}
}

// AddMessage appends a message to a pending session.
func (s *Session) AddMessage(ctx context.Context, role core.MessageRole, content string) error {
	if !role.Valid() {
		return apierror.New(apierror.KindValidation, fmt.Sprintf("unknown message role %q", role))
	}
	if strings.TrimSpace(content) == "" {
		return apierror.New(apierror.KindValidation, "message content is required")
	}
	if err := s.requirePending("add a message to"); err != nil {
		return err
	}
	_, err := s.c.tr.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   s.path("add-message"),
		Body:   map[string]any{"message": content, "role": string(role)},
		Scope:  apierror.ScopeSession,
	})
	return err
}

// Process asks the server to turn the session into memories. The server
// moves it from pending to in_queue; the handle keeps its status until the
// server reports otherwise, so call Refresh or GetStatus to observe progress.
//
// A timed-out Process leaves the outcome unknown. Check GetStatus before
// calling it again.
func (s *Session) Process(ctx context.Context) error {
	if err := s.requirePending("process"); err != nil {
		return err
	}
	raw, err := s.c.tr.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   s.path("process"),
		Scope:  apierror.ScopeSession,
	})
	if err != nil {
		return err
	}
	s.c.logger.Debug("session queued for processing",
		zap.String("user_id", s.userID), zap.String("session_id", s.SessionID))

	if raw != nil {
		var d core.SessionData
		if decodeInto(raw, "session", &d) == nil && d.SessionID == s.SessionID && d.Status.Valid() {
			s.SessionData = d
		}
	}
	return nil
}

// GetContext returns the recall context the server assembles for s.
func (s *Session) GetContext(ctx context.Context, p ContextParams) (core.Context, error) {
	q, err := p.query()
	if err != nil {
		return core.Context{}, err
	}
	var out core.Context
	err = s.c.tr.DoInto(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   s.path("context"),
		Query:  q,
		Scope:  apierror.ScopeSession,
	}, &out)
	return out, err
}

// GetStatus refreshes s and returns the status the server reports.
func (s *Session) GetStatus(ctx context.Context) (core.SessionStatus, error) {
	if err := s.Refresh(ctx); err != nil {
		return "", err
	}
	return s.Status, nil
}

// Update replaces the session's metadata.
func (s *Session) Update(ctx context.Context, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := s.c.tr.Do(ctx, transport.Request{
		Method: http.MethodPut,
		Path:   s.path(),
		Body:   map[string]any{"metadata": metadata},
		Scope:  apierror.ScopeSession,
	})
	if err != nil {
		return err
	}
	var d core.SessionData
	if err := decodeInto(raw, "session", &d); err != nil {
		return err
	}
	s.SessionData.Metadata = d.Metadata
	return nil
}

// Refresh re-fetches the session and overwrites every local field.
func (s *Session) Refresh(ctx context.Context) error {
	raw, err := s.c.tr.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   s.path(),
		Scope:  apierror.ScopeSession,
	})
	if err != nil {
		return err
	}
	var d core.SessionData
	if err := decodeInto(raw, "session", &d); err != nil {
		return err
	}
	s.SessionData = d
	return nil
}

// Messages returns one page of the session's messages in order. Limit
// defaults to 50.
func (s *Session) Messages(ctx context.Context, offset, limit int) (core.Page[core.Message], error) {
	q, err := pageQuery(offset, limit, defaultMessagesLimit, 0)
	if err != nil {
		return core.Page[core.Message]{}, err
	}
	raw, err := s.c.tr.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   s.path("messages"),
		Query:  q,
		Scope:  apierror.ScopeSession,
	})
	if err != nil {
		return core.Page[core.Message]{}, err
	}
	return decodePage[core.Message](raw, "messages", "")
}
