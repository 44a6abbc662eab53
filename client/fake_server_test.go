package client_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recallrai/recallrai-go/client"
	"github.com/recallrai/recallrai-go/core"
)

const (
	testAPIKey    = "rai_test_key"
	testProjectID = "proj-test"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeAPI is an in-memory stand-in for the RecallrAI service.
type fakeAPI struct {
	mu sync.Mutex

	users     map[string]*fakeUser
	userOrder []string
	seq       int

	// calls counts requests per "METHOD pattern".
	calls map[string]int

	// lastQuery is the query string of the most recent request.
	lastQuery map[string][]string

	knownCategories []string
}

type fakeUser struct {
	data      core.UserData
	sessions  []*fakeSession
	memories  []core.MemoryData
	conflicts []*core.MergeConflictData
}

type fakeSession struct {
	data     core.SessionData
	messages []core.Message
}

func newTestClient(t *testing.T) (*client.Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{
		users:           map[string]*fakeUser{},
		calls:           map[string]int{},
		knownCategories: []string{"preferences", "work", "health"},
	}
	srv := httptest.NewServer(api.routes())
	t.Cleanup(srv.Close)

	c, err := client.New(testAPIKey, testProjectID, client.WithBaseURL(srv.URL), client.WithTimeout(5*time.Second))
	require.NoError(t, err)
	return c, api
}

func (f *fakeAPI) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h func(w http.ResponseWriter, r *http.Request)) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls[pattern]++
			f.lastQuery = r.URL.Query()
			if r.Header.Get("X-Recallr-Api-Key") != testAPIKey || r.Header.Get("X-Recallr-Project-Id") != testProjectID {
				writeJSON(w, http.StatusUnauthorized, detail("Invalid API key or project ID"))
				return
			}
			h(w, r)
		})
	}

	handle("POST /api/v1/users", f.createUser)
	handle("GET /api/v1/users", f.listUsers)
	handle("GET /api/v1/users/{user}", f.withUser(f.getUser))
	handle("PUT /api/v1/users/{user}", f.withUser(f.updateUser))
	handle("DELETE /api/v1/users/{user}", f.withUser(f.deleteUser))
	handle("GET /api/v1/users/{user}/messages", f.withUser(f.lastMessages))
	handle("POST /api/v1/users/{user}/sessions", f.withUser(f.createSession))
	handle("GET /api/v1/users/{user}/sessions", f.withUser(f.listSessions))
	handle("GET /api/v1/users/{user}/sessions/{session}", f.withSession(f.getSession))
	handle("PUT /api/v1/users/{user}/sessions/{session}", f.withSession(f.updateSession))
	handle("POST /api/v1/users/{user}/sessions/{session}/add-message", f.withSession(f.addMessage))
	handle("POST /api/v1/users/{user}/sessions/{session}/process", f.withSession(f.processSession))
	handle("GET /api/v1/users/{user}/sessions/{session}/context", f.withSession(f.sessionContext))
	handle("GET /api/v1/users/{user}/sessions/{session}/messages", f.withSession(f.sessionMessages))
	handle("GET /api/v1/users/{user}/memories", f.withUser(f.listMemories))
	handle("GET /api/v1/users/{user}/memories/{memory}", f.withUser(f.getMemory))
	handle("GET /api/v1/users/{user}/merge-conflicts", f.withUser(f.listConflicts))
	handle("GET /api/v1/users/{user}/merge-conflicts/{conflict}", f.withConflict(f.getConflict))
	handle("POST /api/v1/users/{user}/merge-conflicts/{conflict}/resolve", f.withConflict(f.resolveConflict))
	return mux
}

func (f *fakeAPI) count(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pattern]
}

func (f *fakeAPI) query() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

// --- seeding -------------------------------------------------------------

func (f *fakeAPI) seedUser(id string, metadata map[string]any) *fakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUser(id, metadata)
}

func (f *fakeAPI) addUser(id string, metadata map[string]any) *fakeUser {
	if metadata == nil {
		metadata = map[string]any{}
	}
	u := &fakeUser{data: core.UserData{
		UserID:       id,
		Metadata:     metadata,
		CreatedAt:    core.NewTime(baseTime),
		LastActiveAt: core.NewTime(baseTime),
	}}
	f.users[id] = u
	f.userOrder = append(f.userOrder, id)
	return u
}

func (f *fakeAPI) setSessionStatus(userID, sessionID string, status core.SessionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.users[userID].sessions {
		if s.data.SessionID == sessionID {
			s.data.Status = status
		}
	}
}

func (f *fakeAPI) seedMemory(userID string, m core.MemoryData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[userID]
	u.memories = append(u.memories, m)
}

func (f *fakeAPI) seedConflict(userID string, c core.MergeConflictData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[userID]
	c.UserID = userID
	u.conflicts = append(u.conflicts, &c)
}

func (f *fakeAPI) setConflictStatus(userID, conflictID string, status core.MergeConflictStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.users[userID].conflicts {
		if c.ID == conflictID {
			c.Status = status
		}
	}
}

// --- helpers ---------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func detail(msg string) map[string]any {
	return map[string]any{"detail": msg}
}

func decodeBody(r *http.Request) map[string]any {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body
}

func paginate[T any](w http.ResponseWriter, r *http.Request, items []T, maxLimit int) ([]T, int, bool, bool) {
	q := r.URL.Query()
	offset, err1 := strconv.Atoi(q.Get("offset"))
	limit, err2 := strconv.Atoi(q.Get("limit"))
	if err1 != nil || err2 != nil || offset < 0 || limit < 1 || (maxLimit > 0 && limit > maxLimit) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"query", "limit"}, "msg": "invalid pagination", "type": "value_error"}},
		})
		return nil, 0, false, false
	}
	total := len(items)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return items[offset:end], total, end < total, true
}

func matchesMetadata(have map[string]any, rawFilter string) bool {
	if rawFilter == "" {
		return true
	}
	var filter map[string]any
	if json.Unmarshal([]byte(rawFilter), &filter) != nil {
		return false
	}
	for k, v := range filter {
		if fmt.Sprint(have[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func (f *fakeAPI) withUser(h func(http.ResponseWriter, *http.Request, *fakeUser)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("user")
		u, ok := f.users[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, detail(fmt.Sprintf("User %s not found", id)))
			return
		}
		h(w, r, u)
	}
}

func (f *fakeAPI) withSession(h func(http.ResponseWriter, *http.Request, *fakeSession)) func(http.ResponseWriter, *http.Request) {
	return f.withUser(func(w http.ResponseWriter, r *http.Request, u *fakeUser) {
		id := r.PathValue("session")
		for _, s := range u.sessions {
			if s.data.SessionID == id {
				h(w, r, s)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, detail(fmt.Sprintf("Session %s not found", id)))
	})
}

func (f *fakeAPI) withConflict(h func(http.ResponseWriter, *http.Request, *core.MergeConflictData)) func(http.ResponseWriter, *http.Request) {
	return f.withUser(func(w http.ResponseWriter, r *http.Request, u *fakeUser) {
		id := r.PathValue("conflict")
		for _, c := range u.conflicts {
			if c.ID == id {
				h(w, r, c)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, detail(fmt.Sprintf("Merge conflict %s not found", id)))
	})
}

// --- users -----------------------------------------------------------------

func (f *fakeAPI) createUser(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	id, _ := body["user_id"].(string)
	if _, exists := f.users[id]; exists {
		writeJSON(w, http.StatusConflict, detail(fmt.Sprintf("User with ID %s already exists", id)))
		return
	}
	md, _ := body["metadata"].(map[string]any)
	u := f.addUser(id, md)
	writeJSON(w, http.StatusCreated, map[string]any{"user": u.data})
}

func (f *fakeAPI) listUsers(w http.ResponseWriter, r *http.Request) {
	var all []core.UserData
	for _, id := range f.userOrder {
		u := f.users[id]
		if matchesMetadata(u.data.Metadata, r.URL.Query().Get("metadata_filter")) {
			all = append(all, u.data)
		}
	}
	items, total, more, ok := paginate(w, r, all, 0)
	if !ok {
		return
	}
	// each element wrapped, as the API does for users
	wrapped := make([]map[string]any, 0, len(items))
	for _, u := range items {
		wrapped = append(wrapped, map[string]any{"user": u})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": wrapped, "total": total, "has_more": more})
}

func (f *fakeAPI) getUser(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	// flat on purpose: the client accepts both envelopes
	writeJSON(w, http.StatusOK, u.data)
}

func (f *fakeAPI) updateUser(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	body := decodeBody(r)
	if newID, ok := body["new_user_id"].(string); ok && newID != u.data.UserID {
		if _, taken := f.users[newID]; taken {
			writeJSON(w, http.StatusConflict, detail(fmt.Sprintf("User with ID %s already exists", newID)))
			return
		}
		delete(f.users, u.data.UserID)
		for i, id := range f.userOrder {
			if id == u.data.UserID {
				f.userOrder[i] = newID
			}
		}
		u.data.UserID = newID
		f.users[newID] = u
	}
	if md, ok := body["new_metadata"].(map[string]any); ok {
		u.data.Metadata = md
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u.data})
}

func (f *fakeAPI) deleteUser(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	delete(f.users, u.data.UserID)
	f.userOrder = slices.DeleteFunc(f.userOrder, func(id string) bool { return id == u.data.UserID })
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeAPI) lastMessages(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var all []core.UserMessage
	for _, s := range u.sessions {
		for _, m := range s.messages {
			all = append(all, core.UserMessage{Message: m, SessionID: s.data.SessionID})
		}
	}
	slices.SortStableFunc(all, func(a, b core.UserMessage) int { return a.Timestamp.Compare(b.Timestamp.Time) })
	if len(all) > n {
		all = all[len(all)-n:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": all})
}

// --- sessions --------------------------------------------------------------

func (f *fakeAPI) createSession(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	body := decodeBody(r)
	after, _ := body["auto_process_after_seconds"].(float64)
	md, _ := body["metadata"].(map[string]any)
	f.seq++
	s := &fakeSession{data: core.SessionData{
		SessionID:               fmt.Sprintf("sess-%d", f.seq),
		Status:                  core.SessionPending,
		CreatedAt:               core.NewTime(baseTime.Add(time.Duration(f.seq) * time.Minute)),
		Metadata:                md,
		AutoProcessAfterSeconds: int(after),
	}}
	u.sessions = append(u.sessions, s)
	writeJSON(w, http.StatusCreated, map[string]any{"session": s.data})
}

func (f *fakeAPI) listSessions(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	statuses := r.URL.Query()["status_filter"]
	var all []core.SessionData
	for _, s := range u.sessions {
		if len(statuses) > 0 && !slices.Contains(statuses, string(s.data.Status)) {
			continue
		}
		if !matchesMetadata(s.data.Metadata, r.URL.Query().Get("metadata_filter")) {
			continue
		}
		all = append(all, s.data)
	}
	items, total, more, ok := paginate(w, r, all, 0)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items, "total": total, "has_more": more})
}

func (f *fakeAPI) getSession(w http.ResponseWriter, r *http.Request, s *fakeSession) {
	writeJSON(w, http.StatusOK, map[string]any{"session": s.data})
}

func (f *fakeAPI) updateSession(w http.ResponseWriter, r *http.Request, s *fakeSession) {
	md, _ := decodeBody(r)["metadata"].(map[string]any)
	s.data.Metadata = md
	writeJSON(w, http.StatusOK, map[string]any{"session": s.data})
}

func (f *fakeAPI) addMessage(w http.ResponseWriter, r *http.Request, s *fakeSession) {
	if s.data.Status != core.SessionPending {
		writeJSON(w, http.StatusBadRequest, detail(fmt.Sprintf("Cannot add message to session with status %s", s.data.Status)))
		return
	}
	body := decodeBody(r)
	content, _ := body["message"].(string)
	role, _ := body["role"].(string)
	s.messages = append(s.messages, core.Message{
		Role:      core.MessageRole(role),
		Content:   content,
		Timestamp: core.NewTime(baseTime.Add(time.Duration(len(s.messages)) * time.Second)),
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Message added successfully"})
}

func (f *fakeAPI) processSession(w http.ResponseWriter, r *http.Request, s *fakeSession) {
	if s.data.Status != core.SessionPending {
		writeJSON(w, http.StatusBadRequest, detail(fmt.Sprintf("Cannot process session with status %s", s.data.Status)))
		return
	}
	s.data.Status = core.SessionInQueue
	writeJSON(w, http.StatusOK, map[string]any{"message": "Session processing started"})
}

func (f *fakeAPI) sessionContext(w http.ResponseWriter, r *http.Request, s *fakeSession) {
	q := r.URL.Query()
	strategy := q.Get("recall_strategy")
	if strategy == "" {
		strategy = "balanced"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "strategy=%s messages=%d", strategy, len(s.messages))
	if tz := q.Get("timezone"); tz != "" {
		fmt.Fprintf(&b, " tz=%s", tz)
	}
	writeJSON(w, http.StatusOK, map[string]any{"context": b.String()})
}

func (f *fakeAPI) sessionMessages(w http.ResponseWriter, r *http.Request, s *fakeSession) {
	items, total, more, ok := paginate(w, r, s.messages, 0)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": items, "total": total, "has_more": more})
}

// --- memories --------------------------------------------------------------

func (f *fakeAPI) listMemories(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	q := r.URL.Query()
	var unknown []string
	for _, c := range q["categories"] {
		if !slices.Contains(f.knownCategories, c) {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		writeJSON(w, http.StatusBadRequest, detail("Invalid categories: "+strings.Join(unknown, ", ")))
		return
	}
	sessionIDs := q["session_id_filter"]
	withVersions := q.Get("include_previous_versions") == "true"
	withConnected := q.Get("include_connected_memories") == "true"

	var all []core.MemoryData
	for _, m := range u.memories {
		if cats := q["categories"]; len(cats) > 0 && !slices.ContainsFunc(m.Categories, func(c string) bool { return slices.Contains(cats, c) }) {
			continue
		}
		if len(sessionIDs) > 0 && !slices.Contains(sessionIDs, m.SessionID) {
			continue
		}
		if !withVersions {
			m.PreviousVersions = nil
		}
		if !withConnected {
			m.ConnectedMemories = nil
		}
		all = append(all, m)
	}
	items, total, more, ok := paginate(w, r, all, 200)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total, "has_more": more})
}

func (f *fakeAPI) getMemory(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	id := r.PathValue("memory")
	for _, m := range u.memories {
		if m.MemoryID == id {
			writeJSON(w, http.StatusOK, map[string]any{"memory": m})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, detail(fmt.Sprintf("Memory %s not found", id)))
}

// --- merge conflicts -------------------------------------------------------

func (f *fakeAPI) listConflicts(w http.ResponseWriter, r *http.Request, u *fakeUser) {
	status := r.URL.Query().Get("status")
	var all []core.MergeConflictData
	for _, c := range u.conflicts {
		if status != "" && string(c.Status) != status {
			continue
		}
		all = append(all, *c)
	}
	if r.URL.Query().Get("sort_order") == "desc" {
		slices.Reverse(all)
	}
	items, total, more, ok := paginate(w, r, all, 0)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": items, "total": total, "has_more": more})
}

func (f *fakeAPI) getConflict(w http.ResponseWriter, r *http.Request, c *core.MergeConflictData) {
	writeJSON(w, http.StatusOK, c)
}

func (f *fakeAPI) resolveConflict(w http.ResponseWriter, r *http.Request, c *core.MergeConflictData) {
	if c.Status.Terminal() {
		writeJSON(w, http.StatusBadRequest, detail(fmt.Sprintf("Merge conflict %s is already resolved", c.ID)))
		return
	}
	var body struct {
		Answers struct {
			QuestionAnswers []core.ConflictAnswer `json:"question_answers"`
		} `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, detail(err.Error()))
		return
	}
	answers := map[string]string{}
	for _, a := range body.Answers.QuestionAnswers {
		answers[a.Question] = a.Answer
	}
	for _, q := range c.ClarifyingQuestions {
		a, ok := answers[q.Question]
		if !ok {
			writeJSON(w, http.StatusBadRequest, detail("Missing answers for the following questions: "+q.Question))
			return
		}
		if !slices.Contains(q.Options, a) {
			writeJSON(w, http.StatusBadRequest, detail(fmt.Sprintf("Invalid answer '%s' for question '%s'. Valid options: %s", a, q.Question, strings.Join(q.Options, ", "))))
			return
		}
	}
	resolved := core.NewTime(baseTime.Add(time.Hour))
	c.Status = core.ConflictResolved
	c.ResolvedAt = &resolved
	c.ResolutionData = map[string]any{"answers": answers}
	writeJSON(w, http.StatusOK, map[string]any{"conflict": c})
}
