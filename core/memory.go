package core

// MemoryData is a versioned fact the server extracted from session messages.
type MemoryData struct {
	MemoryID   string   `json:"memory_id"`
	Categories []string `json:"categories"`
	Content    string   `json:"content"`
	CreatedAt  Time     `json:"created_at"`
	SessionID  string   `json:"session_id,omitempty"`

	// VersionNumber is the version this record represents, starting at 1.
	VersionNumber int `json:"version_number"`
	TotalVersions int `json:"total_versions"`

	HasPreviousVersions bool `json:"has_previous_versions"`

	// PreviousVersions is ordered oldest to newest. It is only populated
	// when the listing asked for version history.
	PreviousVersions []MemoryVersion `json:"previous_versions,omitempty"`

	// ConnectedMemories is unordered.
	ConnectedMemories []MemoryRelationship `json:"connected_memories,omitempty"`

	MergeConflictInProgress bool `json:"merge_conflict_in_progress"`
}

// MemoryVersion is an expired version of a memory.
type MemoryVersion struct {
	VersionNumber    int    `json:"version_number"`
	Content          string `json:"content"`
	CreatedAt        Time   `json:"created_at"`
	ExpiredAt        *Time  `json:"expired_at,omitempty"`
	ExpirationReason string `json:"expiration_reason,omitempty"`
}

// MemoryRelationship points at a memory connected to another one.
type MemoryRelationship struct {
	MemoryID string `json:"memory_id"`
	Content  string `json:"content"`
}

// VersionsConsistent reports whether the version fields agree with each other:
// VersionNumber never exceeds TotalVersions, and a populated version history
// holds exactly TotalVersions-1 entries in ascending order.
func (m MemoryData) VersionsConsistent() bool {
	if m.VersionNumber > m.TotalVersions {
		return false
	}
	if len(m.PreviousVersions) == 0 {
		return true
	}
	if len(m.PreviousVersions) != m.TotalVersions-1 {
		return false
	}
	for i := 1; i < len(m.PreviousVersions); i++ {
		if m.PreviousVersions[i].VersionNumber <= m.PreviousVersions[i-1].VersionNumber {
			return false
		}
	}
	return true
}
