package core

// UserData is the server's view of a user.
type UserData struct {
	// UserID is the caller-chosen identifier. It can change through a rename.
	UserID string `json:"user_id"`

	// Metadata is an arbitrary key/value mapping owned by the caller.
	Metadata map[string]any `json:"metadata"`

	CreatedAt    Time `json:"created_at"`
	LastActiveAt Time `json:"last_active_at"`
}

// UserMessage is a message returned by the cross-session message feed.
type UserMessage struct {
	Message
	SessionID string `json:"session_id,omitempty"`
}
