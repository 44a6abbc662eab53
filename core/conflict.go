package core

import (
	"encoding/json"
	"strings"
)

// MergeConflictStatus is the lifecycle state of a merge conflict. The wire
// form is upper case; decoding accepts either case.
type MergeConflictStatus string

const (
	ConflictPending   MergeConflictStatus = "PENDING"
	ConflictInQueue   MergeConflictStatus = "IN_QUEUE"
	ConflictResolving MergeConflictStatus = "RESOLVING"
	ConflictResolved  MergeConflictStatus = "RESOLVED"
	ConflictFailed    MergeConflictStatus = "FAILED"
)

func (s MergeConflictStatus) Valid() bool {
	switch s {
	case ConflictPending, ConflictInQueue, ConflictResolving, ConflictResolved, ConflictFailed:
		return true
	}
	return false
}

// Terminal reports whether the conflict can no longer be resolved.
func (s MergeConflictStatus) Terminal() bool {
	return s == ConflictResolved || s == ConflictFailed
}

// ParseMergeConflictStatus normalises v to its wire form.
func ParseMergeConflictStatus(v string) MergeConflictStatus {
	return MergeConflictStatus(strings.ToUpper(strings.TrimSpace(v)))
}

func (s *MergeConflictStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = ParseMergeConflictStatus(v)
	return nil
}

// MergeConflictData is a contradiction between a new candidate memory and
// existing ones, waiting on answers to its clarifying questions.
type MergeConflictData struct {
	ID        string `json:"id"`
	UserID    string `json:"custom_user_id"`
	SessionID string `json:"project_user_session_id"`

	NewMemoryContent    string               `json:"new_memory_content"`
	ConflictingMemories []ConflictingMemory  `json:"conflicting_memories"`
	ClarifyingQuestions []ClarifyingQuestion `json:"clarifying_questions"`

	Status         MergeConflictStatus `json:"status"`
	ResolutionData map[string]any      `json:"resolution_data,omitempty"`
	CreatedAt      Time                `json:"created_at"`
	ResolvedAt     *Time               `json:"resolved_at,omitempty"`
}

// ConflictingMemory is an existing memory that contradicts the candidate.
type ConflictingMemory struct {
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// ClarifyingQuestion asks the caller to pick one of Options.
type ClarifyingQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// ConflictAnswer answers one clarifying question. Message is an optional
// free-text note sent along with the choice.
type ConflictAnswer struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Message  *string `json:"message"`
}
