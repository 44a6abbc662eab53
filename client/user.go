package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/recallrai/recallrai-go/apierror"
	"github.com/recallrai/recallrai-go/core"
	"github.com/recallrai/recallrai-go/transport"
)

// User is a handle on a remote user. The embedded UserData is the last state
// the server reported.
type User struct {
	core.UserData

	c *Client
}

func (u *User) path(rest ...string) string {
	return transport.Path(append([]string{"users", u.UserID}, rest...)...)
}

// Refresh re-fetches the user and overwrites every local field.
func (u *User) Refresh(ctx context.Context) error {
	raw, err := u.c.tr.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   u.path(),
		Scope:  apierror.ScopeUser,
	})
	if err != nil {
		return err
	}
	var d core.UserData
	if err := decodeInto(raw, "user", &d); err != nil {
		return err
	}
	u.UserData = d
	return nil
}

// Update sends the provided fields and applies the server's answer to u in
// place. Renaming to a taken ID fails with apierror.KindUserAlreadyExists.
func (u *User) Update(ctx context.Context, upd UserUpdate) error {
	body := map[string]any{}
	if upd.Metadata != nil {
		body["new_metadata"] = upd.Metadata
	}
	if upd.NewUserID != "" {
		body["new_user_id"] = upd.NewUserID
	}
	if len(body) == 0 {
		return apierror.New(apierror.KindValidation, "update needs new metadata or a new user ID")
	}

	raw, err := u.c.tr.Do(ctx, transport.Request{
		Method: http.MethodPut,
		Path:   u.path(),
		Body:   body,
		Scope:  apierror.ScopeUser,
	})
	if err != nil {
		return err
	}
	var d core.UserData
	if err := decodeInto(raw, "user", &d); err != nil {
		return err
	}
	u.c.logger.Debug("user updated", zap.String("user_id", u.UserID), zap.String("new_user_id", d.UserID))
	u.UserData = d
	return nil
}

// Delete removes the user. A second call fails with apierror.KindUserNotFound.
func (u *User) Delete(ctx context.Context) error {
	_, err := u.c.tr.Do(ctx, transport.Request{
		Method: http.MethodDelete,
		Path:   u.path(),
		Scope:  apierror.ScopeUser,
	})
	if err != nil {
		return err
	}
	u.c.logger.Debug("user deleted", zap.String("user_id", u.UserID))
	return nil
}

// CreateSession opens a new pending session for u.
func (u *User) CreateSession(ctx context.Context, p CreateSessionParams) (*Session, error) {
	after := p.AutoProcessAfterSeconds
	if after == 0 {
		after = MinAutoProcessAfterSeconds
	}
	if after < MinAutoProcessAfterSeconds {
		return nil, apierror.New(apierror.KindValidation,
			fmt.Sprintf("auto_process_after_seconds must be >= %d, got %d", MinAutoProcessAfterSeconds, after))
	}
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	raw, err := u.c.tr.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   u.path("sessions", "session"),
		Body: map[string]any{
			"auto_process_after_seconds": after,
			"metadata":                   metadata,
		},
		Scope: apierror.ScopeUser,
	})
	if err != nil {
		return nil, err
	}
	s := u.newSession(core.SessionData{})
	if err := decodeInto(raw, "session", &s.SessionData); err != nil {
		return nil, err
	}
	if s.AutoProcessAfterSeconds == 0 {
		s.AutoProcessAfterSeconds = after
	}
	u.c.logger.Debug("session created", zap.String("user_id", u.UserID), zap.String("session_id", s.SessionID))
	return s, nil
}

// GetSession fetches one of u's sessions.
func (u *User) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s := u.newSession(core.SessionData{SessionID: sessionID})
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessions returns one page of u's sessions.
func (u *User) ListSessions(ctx context.Context, p ListSessionsParams) (core.Page[*Session], error) {
	q, err := pageQuery(p.Offset, p.Limit, defaultSessionsLimit, 0)
	if err != nil {
		return core.Page[*Session]{}, err
	}
	if err := setJSON(q, "metadata_filter", p.MetadataFilter); err != nil {
		return core.Page[*Session]{}, err
	}
	for _, st := range p.StatusFilter {
		if !st.Valid() {
			return core.Page[*Session]{}, apierror.New(apierror.KindValidation, fmt.Sprintf("unknown session status %q", st))
		}
		q.Add("status_filter", string(st))
	}

	raw, err := u.c.tr.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   u.path("sessions", "session"),
		Query:  q,
		Scope:  apierror.ScopeUser,
	})
	if err != nil {
		return core.Page[*Session]{}, err
	}
	page, err := decodePage[core.SessionData](raw, "sessions", "session")
	if err != nil {
		return core.Page[*Session]{}, err
	}
	return mapPage(page, u.newSession), nil
}

// ListMemories returns one page of u's memories. Unknown category names fail
// with apierror.KindInvalidCategories.
func (u *User) ListMemories(ctx context.Context, p ListMemoriesParams) (core.Page[*Memory], error) {
	q, err := pageQuery(p.Offset, p.Limit, defaultMemoriesLimit, MaxMemoriesLimit)
	if err != nil {
		return core.Page[*Memory]{}, err
	}
	q.Set("include_previous_versions", strconv.FormatBool(boolOr(p.IncludePreviousVersions, true)))
	q.Set("include_connected_memories", strconv.FormatBool(boolOr(p.IncludeConnectedMemories, true)))
	for _, c := range p.Categories {
		q.Add("categories", c)
	}
	for _, id := range p.SessionIDs {
		q.Add("session_id_filter", id)
	}
	if err := setJSON(q, "session_metadata_filter", p.SessionMetadataFilter); err != nil {
		return core.Page[*Memory]{}, err
	}

	raw, err := u.c.tr.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   u.path("memories"),
		Query:  q,
		Scope:  apierror.ScopeMemory,
	})
	if err != nil {
		return core.Page[*Memory]{}, err
	}
	page, err := decodePage[core.MemoryData](raw, "items", "memory")
	if err != nil {
		return core.Page[*Memory]{}, err
	}
	return mapPage(page, u.newMemory), nil
}

// GetMemory fetches one memory with its version history and connections.
func (u *User) GetMemory(ctx context.Context, memoryID string) (*Memory, error) {
	m := u.newMemory(core.MemoryData{MemoryID: memoryID})
	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMergeConflicts returns one page of u's merge conflicts.
func (u *User) ListMergeConflicts(ctx context.Context, p ListMergeConflictsParams) (core.Page[*MergeConflict], error) {
	q, err := pageQuery(p.Offset, p.Limit, defaultConflictsLimit, 0)
	if err != nil {
		return core.Page[*MergeConflict]{}, err
	}
	sortBy := p.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	sortOrder := strings.ToLower(p.SortOrder)
	if sortOrder == "" {
		sortOrder = "desc"
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		return core.Page[*MergeConflict]{}, apierror.New(apierror.KindValidation, fmt.Sprintf("sort order must be asc or desc, got %q", p.SortOrder))
	}
	q.Set("sort_by", sortBy)
	q.Set("sort_order", sortOrder)
	if p.Status != "" {
		st := core.ParseMergeConflictStatus(string(p.Status))
		if !st.Valid() {
			return core.Page[*MergeConflict]{}, apierror.New(apierror.KindValidation, fmt.Sprintf("unknown merge conflict status %q", p.Status))
		}
		q.Set("status", string(st))
	}

	raw, err := u.c.tr.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   u.path("merge-conflicts"),
		Query:  q,
		Scope:  apierror.ScopeUser,
	})
	if err != nil {
		return core.Page[*MergeConflict]{}, err
	}
	page, err := decodePage[core.MergeConflictData](raw, "conflicts", "conflict")
	if err != nil {
		return core.Page[*MergeConflict]{}, err
	}
	return mapPage(page, u.newMergeConflict), nil
}

// GetMergeConflict fetches one of u's merge conflicts.
func (u *User) GetMergeConflict(ctx context.Context, conflictID string) (*MergeConflict, error) {
	mc := u.newMergeConflict(core.MergeConflictData{ID: conflictID})
	if err := mc.Refresh(ctx); err != nil {
		return nil, err
	}
	return mc, nil
}

// LastMessages returns u's n most recent messages across all sessions.
// n must be within [1, MaxLastMessages].
func (u *User) LastMessages(ctx context.Context, n int) ([]core.UserMessage, error) {
	if n < 1 || n > MaxLastMessages {
		return nil, apierror.New(apierror.KindValidation, fmt.Sprintf("n must be between 1 and %d, got %d", MaxLastMessages, n))
	}
	raw, err := u.c.tr.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   u.path("messages"),
		Query:  url.Values{"limit": {strconv.Itoa(n)}},
		Scope:  apierror.ScopeUser,
	})
	if err != nil {
		return nil, err
	}
	page, err := decodePage[core.UserMessage](raw, "messages", "")
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (u *User) newSession(d core.SessionData) *Session {
	return &Session{SessionData: d, userID: u.UserID, c: u.c}
}

func (u *User) newMemory(d core.MemoryData) *Memory {
	return &Memory{MemoryData: d, userID: u.UserID, c: u.c}
}

func (u *User) newMergeConflict(d core.MergeConflictData) *MergeConflict {
	if d.UserID == "" {
		d.UserID = u.UserID
	}
	return &MergeConflict{MergeConflictData: d, userID: u.UserID, c: u.c}
}
