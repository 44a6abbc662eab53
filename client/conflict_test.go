package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallrai/recallrai-go/apierror"
	"github.com/recallrai/recallrai-go/client"
	"github.com/recallrai/recallrai-go/core"
)

const resolvePattern = "POST /api/v1/users/{user}/merge-conflicts/{conflict}/resolve"

func seedConflict(api *fakeAPI, userID, id string) {
	api.seedConflict(userID, core.MergeConflictData{
		ID:               id,
		SessionID:        "sess-1",
		NewMemoryContent: "Lives in Porto",
		ConflictingMemories: []core.ConflictingMemory{
			{Content: "Lives in Lisbon", Reason: "different city of residence"},
		},
		ClarifyingQuestions: []core.ClarifyingQuestion{
			{Question: "Where do you live now?", Options: []string{"Porto", "Lisbon"}},
			{Question: "Did you move recently?", Options: []string{"Yes", "No"}},
		},
		Status:    core.ConflictPending,
		CreatedAt: core.NewTime(baseTime),
	})
}

func answer(q, a string) core.ConflictAnswer {
	return core.ConflictAnswer{Question: q, Answer: a}
}

func TestResolveValidatesBeforeSending(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	u := newUser(t, c, api, "alice")
	seedConflict(api, "alice", "mc-1")

	mc, err := u.GetMergeConflict(ctx, "mc-1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		answers []core.ConflictAnswer
		kind    apierror.Kind
		check   func(t *testing.T, e *apierror.Error)
	}{
		{
			name: "unknown question",
			answers: []core.ConflictAnswer{
				answer("Where do you live now?", "Porto"),
				answer("Do you like fish?", "Yes"),
			},
			kind: apierror.KindInvalidQuestions,
			check: func(t *testing.T, e *apierror.Error) {
				assert.Equal(t, []string{"Do you like fish?"}, e.InvalidQuestions)
			},
		},
		{
			name: "duplicate question",
			answers: []core.ConflictAnswer{
				answer("Where do you live now?", "Porto"),
				answer("Where do you live now?", "Lisbon"),
				answer("Did you move recently?", "Yes"),
			},
			kind: apierror.KindInvalidQuestions,
			check: func(t *testing.T, e *apierror.Error) {
				assert.Equal(t, []string{"Where do you live now?"}, e.InvalidQuestions)
			},
		},
		{
			name:    "missing answer",
			answers: []core.ConflictAnswer{answer("Did you move recently?", "Yes")},
			kind:    apierror.KindMissingAnswers,
			check: func(t *testing.T, e *apierror.Error) {
				assert.Equal(t, []string{"Where do you live now?"}, e.MissingQuestions)
			},
		},
		{
			name:    "no answers",
			answers: nil,
			kind:    apierror.KindMissingAnswers,
			check: func(t *testing.T, e *apierror.Error) {
				assert.Len(t, e.MissingQuestions, 2)
			},
		},
		{
			name: "answer outside options",
			answers: []core.ConflictAnswer{
				answer("Where do you live now?", "Braga"),
				answer("Did you move recently?", "Yes"),
			},
			kind: apierror.KindInvalidAnswer,
			check: func(t *testing.T, e *apierror.Error) {
				assert.Equal(t, "Where do you live now?", e.Question)
				assert.Equal(t, []string{"Porto", "Lisbon"}, e.ValidOptions)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mc.Resolve(ctx, tt.answers)
			var apiErr *apierror.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Zero(t, apiErr.HTTPStatus)
			assert.ErrorIs(t, err, apierror.ErrMergeConflict)
			tt.check(t, apiErr)
		})
	}
	assert.Zero(t, api.count(resolvePattern))
	assert.Equal(t, core.ConflictPending, mc.Status)
}

func TestResolveSuccessAndAlreadyResolved(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	u := newUser(t, c, api, "alice")
	seedConflict(api, "alice", "mc-1")

	mc, err := u.GetMergeConflict(ctx, "mc-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", mc.UserID)
	require.Len(t, mc.ClarifyingQuestions, 2)

	note := "moved in May"
	err = mc.Resolve(ctx, []core.ConflictAnswer{
		{Question: "Did you move recently?", Answer: "Yes", Message: &note},
		answer("Where do you live now?", "Porto"),
	})
	require.NoError(t, err)
	assert.Equal(t, core.ConflictResolved, mc.Status)
	require.NotNil(t, mc.ResolvedAt)
	assert.NotEmpty(t, mc.ResolutionData)

	err = mc.Resolve(ctx, []core.ConflictAnswer{
		answer("Where do you live now?", "Porto"),
		answer("Did you move recently?", "Yes"),
	})
	assert.ErrorIs(t, err, apierror.ErrMergeConflictAlreadyResolved)
	assert.Equal(t, 1, api.count(resolvePattern))
}

func TestResolveServerIsFinalAuthority(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	u := newUser(t, c, api, "alice")
	seedConflict(api, "alice", "mc-1")

	mc, err := u.GetMergeConflict(ctx, "mc-1")
	require.NoError(t, err)

	// resolved elsewhere; this mirror is stale
	api.setConflictStatus("alice", "mc-1", core.ConflictResolved)
	err = mc.Resolve(ctx, []core.ConflictAnswer{
		answer("Where do you live now?", "Porto"),
		answer("Did you move recently?", "No"),
	})
	assert.ErrorIs(t, err, apierror.ErrMergeConflictAlreadyResolved)
	assert.Equal(t, core.ConflictPending, mc.Status)

	require.NoError(t, mc.Refresh(ctx))
	assert.Equal(t, core.ConflictResolved, mc.Status)
}

func TestResolveMapsServerRejections(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/users/alice", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"user_id":"alice","metadata":{}}}`))
	})
	mux.HandleFunc("GET /api/v1/users/alice/merge-conflicts/mc-9", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"conflict":{"id":"mc-9","custom_user_id":"alice","status":"PENDING",
			"clarifying_questions":[{"question":"Q1","options":["a","b"]}],"conflicting_memories":[],
			"new_memory_content":"x","project_user_session_id":"s","created_at":"2025-01-01T00:00:00"}}`))
	})
	mux.HandleFunc("POST /api/v1/users/alice/merge-conflicts/mc-9/resolve", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Invalid answer 'a' for question 'Q1'. Valid options: b"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := client.New(testAPIKey, testProjectID, client.WithBaseURL(srv.URL))
	require.NoError(t, err)
	ctx := context.Background()

	u, err := c.GetUser(ctx, "alice")
	require.NoError(t, err)
	mc, err := u.GetMergeConflict(ctx, "mc-9")
	require.NoError(t, err)

	err = mc.Resolve(ctx, []core.ConflictAnswer{answer("Q1", "a")})
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierror.KindInvalidAnswer, apiErr.Kind)
	assert.Equal(t, "Q1", apiErr.Question)
	assert.Equal(t, []string{"b"}, apiErr.ValidOptions)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	assert.Equal(t, core.ConflictPending, mc.Status)
}

func TestListMergeConflicts(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	u := newUser(t, c, api, "alice")
	seedConflict(api, "alice", "mc-1")
	seedConflict(api, "alice", "mc-2")
	seedConflict(api, "alice", "mc-3")
	api.setConflictStatus("alice", "mc-2", core.ConflictFailed)

	page, err := u.ListMergeConflicts(ctx, client.ListMergeConflictsParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "mc-3", page.Items[0].ID)
	q := api.query()
	assert.Equal(t, []string{"created_at"}, q["sort_by"])
	assert.Equal(t, []string{"desc"}, q["sort_order"])

	page, err = u.ListMergeConflicts(ctx, client.ListMergeConflictsParams{Status: "failed", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "mc-2", page.Items[0].ID)
	assert.Equal(t, []string{"FAILED"}, api.query()["status"])

	_, err = u.ListMergeConflicts(ctx, client.ListMergeConflictsParams{SortOrder: "sideways"})
	assert.ErrorIs(t, err, apierror.ErrValidation)

	_, err = u.GetMergeConflict(ctx, "mc-404")
	assert.ErrorIs(t, err, apierror.ErrMergeConflictNotFound)
}
