// Package export writes a snapshot of a user's memories and merge conflicts
// to a local SQLite database. Snapshots are write-only from the client's
// point of view; nothing in the SDK reads them back.
package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/recallrai/recallrai-go/core"
)

var (
	ErrMissingUserID = errors.New("export: user id is required")
	ErrClosed        = errors.New("export: store is closed")
)

// Store is an open snapshot database.
type Store struct {
	db   *sql.DB
	path string
}

// Counts reports the number of rows per table.
type Counts struct {
	Memories       int `json:"memories"`
	MemoryVersions int `json:"memory_versions"`
	MergeConflicts int `json:"merge_conflicts"`
}

// Open opens or creates the snapshot database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer; concurrent Save calls queue on the connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		user_id         TEXT NOT NULL,
		memory_id       TEXT NOT NULL,
		content         TEXT NOT NULL,
		categories      TEXT NOT NULL DEFAULT '[]',
		session_id      TEXT,
		version_number  INTEGER NOT NULL DEFAULT 1,
		total_versions  INTEGER NOT NULL DEFAULT 1,
		merge_conflict_in_progress INTEGER NOT NULL DEFAULT 0,
		connected       TEXT NOT NULL DEFAULT '[]',
		created_at      TEXT,
		exported_at     TEXT NOT NULL,
		PRIMARY KEY (user_id, memory_id)
	);
	CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(user_id, session_id);

	CREATE TABLE IF NOT EXISTS memory_versions (
		user_id           TEXT NOT NULL,
		memory_id         TEXT NOT NULL,
		version_number    INTEGER NOT NULL,
		content           TEXT NOT NULL,
		created_at        TEXT,
		expired_at        TEXT,
		expiration_reason TEXT,
		PRIMARY KEY (user_id, memory_id, version_number),
		FOREIGN KEY (user_id, memory_id) REFERENCES memories(user_id, memory_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS merge_conflicts (
		user_id              TEXT NOT NULL,
		conflict_id          TEXT NOT NULL,
		session_id           TEXT,
		status               TEXT NOT NULL,
		new_memory_content   TEXT NOT NULL,
		conflicting_memories TEXT NOT NULL DEFAULT '[]',
		clarifying_questions TEXT NOT NULL DEFAULT '[]',
		resolution_data      TEXT,
		created_at           TEXT,
		resolved_at          TEXT,
		exported_at          TEXT NOT NULL,
		PRIMARY KEY (user_id, conflict_id)
	);
	CREATE INDEX IF NOT EXISTS idx_conflicts_status ON merge_conflicts(user_id, status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SaveMemories upserts memories for userID together with their version
// history. A memory's stored history is replaced on every save.
func (s *Store) SaveMemories(ctx context.Context, userID string, memories []core.MemoryData) (int, error) {
	if err := s.check(userID); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := stamp(time.Now())
	for _, m := range memories {
		categories, err := jsonText(m.Categories, "[]")
		if err != nil {
			return 0, fmt.Errorf("encode categories for %s: %w", m.MemoryID, err)
		}
		connected, err := jsonText(m.ConnectedMemories, "[]")
		if err != nil {
			return 0, fmt.Errorf("encode connected memories for %s: %w", m.MemoryID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO memories (user_id, memory_id, content, categories, session_id,
				version_number, total_versions, merge_conflict_in_progress, connected,
				created_at, exported_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, memory_id) DO UPDATE SET
				content = excluded.content,
				categories = excluded.categories,
				session_id = excluded.session_id,
				version_number = excluded.version_number,
				total_versions = excluded.total_versions,
				merge_conflict_in_progress = excluded.merge_conflict_in_progress,
				connected = excluded.connected,
				created_at = excluded.created_at,
				exported_at = excluded.exported_at`,
			userID, m.MemoryID, m.Content, categories, nullString(m.SessionID),
			m.VersionNumber, m.TotalVersions, m.MergeConflictInProgress, connected,
			timeText(m.CreatedAt), now)
		if err != nil {
			return 0, fmt.Errorf("insert memory %s: %w", m.MemoryID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memory_versions WHERE user_id = ? AND memory_id = ?`,
			userID, m.MemoryID); err != nil {
			return 0, fmt.Errorf("clear versions of %s: %w", m.MemoryID, err)
		}
		for _, v := range m.PreviousVersions {
			var expired any
			if v.ExpiredAt != nil {
				expired = timeText(*v.ExpiredAt)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO memory_versions (user_id, memory_id, version_number, content,
					created_at, expired_at, expiration_reason)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				userID, m.MemoryID, v.VersionNumber, v.Content,
				timeText(v.CreatedAt), expired, nullString(v.ExpirationReason)); err != nil {
				return 0, fmt.Errorf("insert version %d of %s: %w", v.VersionNumber, m.MemoryID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(memories), nil
}

// SaveMergeConflicts upserts merge conflicts for userID.
func (s *Store) SaveMergeConflicts(ctx context.Context, userID string, conflicts []core.MergeConflictData) (int, error) {
	if err := s.check(userID); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := stamp(time.Now())
	for _, c := range conflicts {
		conflicting, err := jsonText(c.ConflictingMemories, "[]")
		if err != nil {
			return 0, fmt.Errorf("encode conflicting memories for %s: %w", c.ID, err)
		}
		questions, err := jsonText(c.ClarifyingQuestions, "[]")
		if err != nil {
			return 0, fmt.Errorf("encode questions for %s: %w", c.ID, err)
		}
		var resolution any
		if len(c.ResolutionData) > 0 {
			b, err := json.Marshal(c.ResolutionData)
			if err != nil {
				return 0, fmt.Errorf("encode resolution for %s: %w", c.ID, err)
			}
			resolution = string(b)
		}
		var resolved any
		if c.ResolvedAt != nil {
			resolved = timeText(*c.ResolvedAt)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO merge_conflicts (user_id, conflict_id, session_id, status,
				new_memory_content, conflicting_memories, clarifying_questions,
				resolution_data, created_at, resolved_at, exported_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, conflict_id) DO UPDATE SET
				session_id = excluded.session_id,
				status = excluded.status,
				new_memory_content = excluded.new_memory_content,
				conflicting_memories = excluded.conflicting_memories,
				clarifying_questions = excluded.clarifying_questions,
				resolution_data = excluded.resolution_data,
				created_at = excluded.created_at,
				resolved_at = excluded.resolved_at,
				exported_at = excluded.exported_at`,
			userID, c.ID, nullString(c.SessionID), string(c.Status),
			c.NewMemoryContent, conflicting, questions,
			resolution, timeText(c.CreatedAt), resolved, now)
		if err != nil {
			return 0, fmt.Errorf("insert merge conflict %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(conflicts), nil
}

// Counts reports the number of rows in each table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if s.db == nil {
		return c, ErrClosed
	}
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"memories", &c.Memories},
		{"memory_versions", &c.MemoryVersions},
		{"merge_conflicts", &c.MergeConflicts},
	} {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return c, fmt.Errorf("count %s: %w", q.table, err)
		}
	}
	return c, nil
}

func (s *Store) check(userID string) error {
	if s.db == nil {
		return ErrClosed
	}
	if userID == "" {
		return ErrMissingUserID
	}
	return nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func timeText(t core.Time) any {
	if t.IsZero() {
		return nil
	}
	return stamp(t.Time)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func jsonText(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}
