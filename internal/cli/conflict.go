package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recallrai/recallrai-go/client"
	"github.com/recallrai/recallrai-go/core"
)

func newConflictCmd(a *app) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:     "conflict",
		Aliases: []string{"merge-conflict"},
		Short:   "Inspect and resolve a user's merge conflicts",
	}
	cmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "Owning user ID (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	get := func(cmd *cobra.Command, id string) (*client.MergeConflict, error) {
		u, err := a.getUser(cmd, userID)
		if err != nil {
			return nil, err
		}
		return u.GetMergeConflict(cmd.Context(), id)
	}

	cmd.AddCommand(
		newConflictListCmd(a, &userID),
		&cobra.Command{
			Use:   "get <conflict-id>",
			Short: "Show a merge conflict and its questions",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mc, err := get(cmd, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), mc)
			},
		},
		newConflictResolveCmd(get),
	)
	return cmd
}

func newConflictListCmd(a *app, userID *string) *cobra.Command {
	var (
		offset, limit             int
		status, sortBy, sortOrder string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List merge conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.getUser(cmd, *userID)
			if err != nil {
				return err
			}
			page, err := u.ListMergeConflicts(cmd.Context(), client.ListMergeConflictsParams{
				Offset:    offset,
				Limit:     limit,
				Status:    core.ParseMergeConflictStatus(status),
				SortBy:    sortBy,
				SortOrder: sortOrder,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pageOutput{
				Items: page.Items, Total: page.Total, HasMore: page.HasMore, Offset: offset,
			})
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&offset, "offset", 0, "Items to skip")
	fl.IntVar(&limit, "limit", 10, "Page size")
	fl.StringVar(&status, "status", "", "Only conflicts in this status")
	fl.StringVar(&sortBy, "sort-by", "created_at", "Sort field")
	fl.StringVar(&sortOrder, "sort-order", "desc", "asc or desc")
	return cmd
}

type conflictGetter func(cmd *cobra.Command, id string) (*client.MergeConflict, error)

func newConflictResolveCmd(get conflictGetter) *cobra.Command {
	var answers, messages []string
	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Answer every clarifying question of a merge conflict",
		Example: `  recallr conflict resolve c1 -u alice \
    --answer "Where do you live now?=Berlin" \
    --message "Where do you live now?=moved in March"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAnswers(answers, messages)
			if err != nil {
				return err
			}
			mc, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			if err := mc.Resolve(cmd.Context(), parsed); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), mc)
		},
	}
	cmd.Flags().StringArrayVar(&answers, "answer", nil, `"question=answer" pair (repeatable)`)
	cmd.Flags().StringArrayVar(&messages, "message", nil, `"question=note" explaining an answer (repeatable)`)
	_ = cmd.MarkFlagRequired("answer")
	return cmd
}

// parseAnswers splits "question=answer" pairs at the last '='.
func parseAnswers(answers, messages []string) ([]core.ConflictAnswer, error) {
	notes := make(map[string]string, len(messages))
	for _, m := range messages {
		q, note, ok := splitPair(m)
		if !ok {
			return nil, fmt.Errorf("--message %q: want question=note", m)
		}
		notes[q] = note
	}

	out := make([]core.ConflictAnswer, 0, len(answers))
	seen := make(map[string]bool, len(answers))
	for _, a := range answers {
		q, ans, ok := splitPair(a)
		if !ok {
			return nil, fmt.Errorf("--answer %q: want question=answer", a)
		}
		ca := core.ConflictAnswer{Question: q, Answer: ans}
		if note, ok := notes[q]; ok {
			ca.Message = &note
		}
		seen[q] = true
		out = append(out, ca)
	}
	for q := range notes {
		if !seen[q] {
			return nil, fmt.Errorf("--message given for unanswered question %q", q)
		}
	}
	return out, nil
}

func splitPair(s string) (string, string, bool) {
	i := strings.LastIndex(s, "=")
	if i <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
}
