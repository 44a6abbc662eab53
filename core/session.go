package core

import (
	"encoding/json"
	"strings"
)

// SessionStatus is the processing state of a session. Transitions only move
// forward: pending, in_queue, processing, then processed or failed.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionInQueue    SessionStatus = "in_queue"
	SessionProcessing SessionStatus = "processing"
	SessionProcessed  SessionStatus = "processed"
	SessionFailed     SessionStatus = "failed"
)

// Valid reports whether s is a known wire value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionInQueue, SessionProcessing, SessionProcessed, SessionFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition can happen.
func (s SessionStatus) Terminal() bool {
	return s == SessionProcessed || s == SessionFailed
}

// AcceptsMessages reports whether messages may still be added. Only pending
// sessions take messages or a process request.
func (s SessionStatus) AcceptsMessages() bool {
	return s == SessionPending
}

func (s *SessionStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = SessionStatus(strings.ToLower(v))
	return nil
}

// MessageRole identifies who sent a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// RecallStrategy selects a server-side retrieval preset. The client passes it
// through untouched.
type RecallStrategy string

const (
	RecallLowLatency RecallStrategy = "low_latency"
	RecallBalanced   RecallStrategy = "balanced"
	RecallDeep       RecallStrategy = "deep"
)

func (r RecallStrategy) Valid() bool {
	switch r {
	case RecallLowLatency, RecallBalanced, RecallDeep:
		return true
	}
	return false
}

// SessionData is the server's view of a session.
type SessionData struct {
	SessionID string         `json:"session_id"`
	Status    SessionStatus  `json:"status"`
	CreatedAt Time           `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`

	// AutoProcessAfterSeconds is the idle time after which the server
	// processes the session on its own.
	AutoProcessAfterSeconds int `json:"auto_process_after_seconds,omitempty"`
}

// Message is one turn of a conversation. Messages are immutable and ordered
// within their session.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp Time        `json:"timestamp"`
}

// Context is the recall context the server assembled for a session.
type Context struct {
	Context string `json:"context"`
}
