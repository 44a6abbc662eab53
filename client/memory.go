package client

import (
	"context"
	"net/http"

	"github.com/recallrai/recallrai-go/apierror"
	"github.com/recallrai/recallrai-go/core"
	"github.com/recallrai/recallrai-go/transport"
)

// Memory is a read-only handle on one of a user's memories. Memories are
// written by the server; the client can only observe them.
type Memory struct {
	core.MemoryData

	userID string
	c      *Client
}

// Refresh re-fetches the memory, including its version history and
// connected memories, and overwrites every local field.
func (m *Memory) Refresh(ctx context.Context) error {
	raw, err := m.c.tr.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   transport.Path("users", m.userID, "memories", m.MemoryID),
		Scope:  apierror.ScopeMemory,
	})
	if err != nil {
		return err
	}
	var d core.MemoryData
	if err := decodeInto(raw, "memory", &d); err != nil {
		return err
	}
	m.MemoryData = d
	return nil
}
