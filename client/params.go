package client

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/recallrai/recallrai-go/apierror"
	"github.com/recallrai/recallrai-go/core"
)

const (
	defaultUsersLimit     = 10
	defaultSessionsLimit  = 10
	defaultMemoriesLimit  = 20
	defaultConflictsLimit = 10
	defaultMessagesLimit  = 50

	// MaxMemoriesLimit is the largest page the memories endpoint serves.
	MaxMemoriesLimit = 200

	// MaxLastMessages bounds User.LastMessages.
	MaxLastMessages = 100

	// MinAutoProcessAfterSeconds is the shortest idle time before the server
	// processes a session on its own.
	MinAutoProcessAfterSeconds = 600
)

// pageQuery validates offset/limit and returns the base query. A zero limit
// takes def; a maxLimit of 0 means unbounded.
func pageQuery(offset, limit, def, maxLimit int) (url.Values, error) {
	if offset < 0 {
		return nil, apierror.New(apierror.KindValidation, fmt.Sprintf("offset must be >= 0, got %d", offset))
	}
	if limit == 0 {
		limit = def
	}
	if limit < 1 {
		return nil, apierror.New(apierror.KindValidation, fmt.Sprintf("limit must be >= 1, got %d", limit))
	}
	if maxLimit > 0 && limit > maxLimit {
		return nil, apierror.New(apierror.KindValidation, fmt.Sprintf("limit must be <= %d, got %d", maxLimit, limit))
	}
	return url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}, nil
}

// Bool returns a pointer to v, for optional boolean parameters.
func Bool(v bool) *bool {
	return &v
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// UserUpdate lists the fields to change on a user. Nil or empty fields are
// left untouched.
type UserUpdate struct {
	Metadata  map[string]any
	NewUserID string
}

// CreateSessionParams configures a new session.
type CreateSessionParams struct {
	// AutoProcessAfterSeconds defaults to MinAutoProcessAfterSeconds and may
	// not be lower.
	AutoProcessAfterSeconds int
	Metadata                map[string]any
}

// ListSessionsParams filters User.ListSessions. Limit defaults to 10.
type ListSessionsParams struct {
	Offset         int
	Limit          int
	MetadataFilter map[string]any
	StatusFilter   []core.SessionStatus
}

// ListMemoriesParams filters User.ListMemories. Limit defaults to 20 and may
// not exceed MaxMemoriesLimit.
type ListMemoriesParams struct {
	Offset int
	Limit  int

	Categories []string

	// SessionIDs restricts results to memories extracted from these sessions.
	SessionIDs            []string
	SessionMetadataFilter map[string]any

	// Both default to true when nil.
	IncludePreviousVersions  *bool
	IncludeConnectedMemories *bool
}

// ListMergeConflictsParams filters User.ListMergeConflicts. Limit defaults to
// 10, SortBy to "created_at" and SortOrder to "desc".
type ListMergeConflictsParams struct {
	Offset    int
	Limit     int
	Status    core.MergeConflictStatus
	SortBy    string
	SortOrder string
}

// ContextParams tunes Session.GetContext. Zero values are left to the
// server's defaults.
type ContextParams struct {
	RecallStrategy core.RecallStrategy

	MinTopK int
	MaxTopK int

	// Thresholds are similarity cut-offs in [0, 1].
	MemoriesThreshold  float64
	SummariesThreshold float64

	LastNMessages  int
	LastNSummaries int

	// Timezone is an IANA name used only to format timestamps in the text.
	Timezone string

	IncludeSystemPrompt *bool
}

func (p ContextParams) query() (url.Values, error) {
	q := url.Values{}
	if p.RecallStrategy != "" {
		if !p.RecallStrategy.Valid() {
			return nil, apierror.New(apierror.KindValidation, fmt.Sprintf("unknown recall strategy %q", p.RecallStrategy))
		}
		q.Set("recall_strategy", string(p.RecallStrategy))
	}
	if p.MinTopK < 0 || p.MaxTopK < 0 || p.LastNMessages < 0 || p.LastNSummaries < 0 {
		return nil, apierror.New(apierror.KindValidation, "context counts must be >= 0")
	}
	if p.MinTopK > 0 && p.MaxTopK > 0 && p.MinTopK > p.MaxTopK {
		return nil, apierror.New(apierror.KindValidation, fmt.Sprintf("min_top_k %d exceeds max_top_k %d", p.MinTopK, p.MaxTopK))
	}
	for name, v := range map[string]float64{"memories_threshold": p.MemoriesThreshold, "summaries_threshold": p.SummariesThreshold} {
		if v < 0 || v > 1 {
			return nil, apierror.New(apierror.KindValidation, fmt.Sprintf("%s must be within [0, 1], got %g", name, v))
		}
		if v > 0 {
			q.Set(name, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	setPositive(q, "min_top_k", p.MinTopK)
	setPositive(q, "max_top_k", p.MaxTopK)
	setPositive(q, "last_n_messages", p.LastNMessages)
	setPositive(q, "last_n_summaries", p.LastNSummaries)
	if p.Timezone != "" {
		q.Set("timezone", p.Timezone)
	}
	if p.IncludeSystemPrompt != nil {
		q.Set("include_system_prompt", strconv.FormatBool(*p.IncludeSystemPrompt))
	}
	return q, nil
}

func setPositive(q url.Values, key string, v int) {
	if v > 0 {
		q.Set(key, strconv.Itoa(v))
	}
}
