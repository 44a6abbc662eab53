package client

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/recallrai/recallrai-go/apierror"
	"github.com/recallrai/recallrai-go/core"
	"github.com/recallrai/recallrai-go/transport"
)

// MergeConflict is a handle on a conflict between a new memory and existing
// ones. It is settled by answering every clarifying question.
type MergeConflict struct {
	core.MergeConflictData

	userID string
	c      *Client
}

func (mc *MergeConflict) path(rest ...string) string {
	return transport.Path(append([]string{"users", mc.userID, "merge-conflicts", mc.ID}, rest...)...)
}

// Resolve answers the clarifying questions. Answers are checked against the
// local mirror before anything is sent:
//
//   - a resolved or failed conflict gives apierror.KindMergeConflictAlreadyResolved
//   - a question the conflict does not ask, or one answered twice, gives
//     apierror.KindInvalidQuestions
//   - an unanswered question gives apierror.KindMissingAnswers
//   - an answer outside the question's options gives apierror.KindInvalidAnswer;
//     questions without options accept any answer
//
// The server may still reject answers the mirror accepted. On success the
// handle takes the server's view of the conflict; its status is not guessed.
func (mc *MergeConflict) Resolve(ctx context.Context, answers []core.ConflictAnswer) error {
	if err := validateAnswers(mc.MergeConflictData, answers); err != nil {
		return err
	}

	qa := make([]map[string]any, 0, len(answers))
	for _, a := range answers {
		qa = append(qa, map[string]any{
			"question": a.Question,
			"answer":   a.Answer,
			"message":  a.Message,
		})
	}
	raw, err := mc.c.tr.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   mc.path("resolve"),
		Body:   map[string]any{"answers": map[string]any{"question_answers": qa}},
		Scope:  apierror.ScopeMergeConflict,
	})
	if err != nil {
		return err
	}
	mc.c.logger.Debug("merge conflict resolution submitted",
		zap.String("user_id", mc.userID), zap.String("conflict_id", mc.ID), zap.Int("answers", len(answers)))

	if raw != nil {
		var d core.MergeConflictData
		if decodeInto(raw, "conflict", &d) == nil && d.Status.Valid() {
			mc.apply(d)
		}
	}
	return nil
}

// Refresh re-fetches the conflict and overwrites every local field.
func (mc *MergeConflict) Refresh(ctx context.Context) error {
	raw, err := mc.c.tr.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   mc.path(),
		Scope:  apierror.ScopeMergeConflict,
	})
	if err != nil {
		return err
	}
	var d core.MergeConflictData
	if err := decodeInto(raw, "conflict", &d); err != nil {
		return err
	}
	mc.apply(d)
	return nil
}

func (mc *MergeConflict) apply(d core.MergeConflictData) {
	if d.ID == "" {
		d.ID = mc.ID
	}
	if d.UserID == "" {
		d.UserID = mc.userID
	}
	mc.MergeConflictData = d
}

func validateAnswers(d core.MergeConflictData, answers []core.ConflictAnswer) error {
	if d.Status.Terminal() {
		return &apierror.Error{
			Kind:    apierror.KindMergeConflictAlreadyResolved,
			Message: fmt.Sprintf("merge conflict %s is already %s", d.ID, d.Status),
		}
	}

	options := make(map[string][]string, len(d.ClarifyingQuestions))
	for _, q := range d.ClarifyingQuestions {
		options[q.Question] = q.Options
	}

	seen := make(map[string]bool, len(answers))
	var invalid []string
	for _, a := range answers {
		if _, ok := options[a.Question]; !ok || seen[a.Question] {
			invalid = append(invalid, a.Question)
		}
		seen[a.Question] = true
	}
	if len(invalid) > 0 {
		return &apierror.Error{
			Kind:             apierror.KindInvalidQuestions,
			Message:          fmt.Sprintf("answers do not match the clarifying questions of merge conflict %s", d.ID),
			InvalidQuestions: invalid,
		}
	}

	var missing []string
	for _, q := range d.ClarifyingQuestions {
		if !seen[q.Question] {
			missing = append(missing, q.Question)
		}
	}
	if len(missing) > 0 {
		return &apierror.Error{
			Kind:             apierror.KindMissingAnswers,
			Message:          fmt.Sprintf("missing answers for %d clarifying question(s)", len(missing)),
			MissingQuestions: missing,
		}
	}

	for _, a := range answers {
		opts := options[a.Question]
		if len(opts) > 0 && !slices.Contains(opts, a.Answer) {
			return &apierror.Error{
				Kind:         apierror.KindInvalidAnswer,
				Message:      fmt.Sprintf("invalid answer %q for question %q", a.Answer, a.Question),
				Question:     a.Question,
				ValidOptions: opts,
			}
		}
	}
	return nil
}
