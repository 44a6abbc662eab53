package cli

import (
	"github.com/spf13/cobra"

	"github.com/recallrai/recallrai-go/client"
	"github.com/recallrai/recallrai-go/core"
)

func newSessionCmd(a *app) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage a user's sessions",
	}
	cmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "Owning user ID (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	get := func(cmd *cobra.Command, sessionID string) (*client.Session, error) {
		u, err := a.getUser(cmd, userID)
		if err != nil {
			return nil, err
		}
		return u.GetSession(cmd.Context(), sessionID)
	}

	cmd.AddCommand(
		newSessionCreateCmd(a, &userID),
		newSessionListCmd(a, &userID),
		&cobra.Command{
			Use:   "get <session-id>",
			Short: "Show a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := get(cmd, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			},
		},
		newSessionAddMessageCmd(get),
		&cobra.Command{
			Use:   "process <session-id>",
			Short: "Queue a pending session for processing",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := get(cmd, args[0])
				if err != nil {
					return err
				}
				if err := s.Process(cmd.Context()); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			},
		},
		&cobra.Command{
			Use:   "status <session-id>",
			Short: "Show a session's processing status",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := get(cmd, args[0])
				if err != nil {
					return err
				}
				st, err := s.GetStatus(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"session_id": s.SessionID, "status": st})
			},
		},
		newSessionContextCmd(get),
		newSessionMessagesCmd(get),
		newSessionUpdateCmd(get),
	)
	return cmd
}

type sessionGetter func(cmd *cobra.Command, sessionID string) (*client.Session, error)

func newSessionCreateCmd(a *app, userID *string) *cobra.Command {
	var (
		after    int
		metadata string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := parseMetadata("metadata", metadata)
			if err != nil {
				return err
			}
			u, err := a.getUser(cmd, *userID)
			if err != nil {
				return err
			}
			s, err := u.CreateSession(cmd.Context(), client.CreateSessionParams{
				AutoProcessAfterSeconds: after,
				Metadata:                md,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().IntVar(&after, "auto-process-after", client.MinAutoProcessAfterSeconds, "Idle seconds before the server processes the session")
	cmd.Flags().StringVar(&metadata, "metadata", "", "Metadata as a JSON object")
	return cmd
}

func newSessionListCmd(a *app, userID *string) *cobra.Command {
	var (
		offset, limit int
		filter        string
		statuses      []string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the user's sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseMetadata("metadata-filter", filter)
			if err != nil {
				return err
			}
			u, err := a.getUser(cmd, *userID)
			if err != nil {
				return err
			}
			var sf []core.SessionStatus
			for _, s := range statuses {
				sf = append(sf, core.SessionStatus(s))
			}
			page, err := u.ListSessions(cmd.Context(), client.ListSessionsParams{
				Offset:         offset,
				Limit:          limit,
				MetadataFilter: f,
				StatusFilter:   sf,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pageOutput{
				Items: page.Items, Total: page.Total, HasMore: page.HasMore, Offset: offset,
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Items to skip")
	cmd.Flags().IntVar(&limit, "limit", 10, "Page size")
	cmd.Flags().StringVar(&filter, "metadata-filter", "", "Only sessions whose metadata contains this JSON object")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only sessions in these statuses (repeatable)")
	return cmd
}

func newSessionAddMessageCmd(get sessionGetter) *cobra.Command {
	var role, content string
	cmd := &cobra.Command{
		Use:   "add-message <session-id>",
		Short: "Append a message to a pending session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			if err := s.AddMessage(cmd.Context(), core.MessageRole(role), content); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"session_id": s.SessionID, "added": true})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(core.RoleUser), "Message role: user or assistant")
	cmd.Flags().StringVar(&content, "content", "", "Message text (required)")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newSessionContextCmd(get sessionGetter) *cobra.Command {
	var (
		p            client.ContextParams
		strategy     string
		systemPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "context <session-id>",
		Short: "Fetch the recalled context for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			p.RecallStrategy = core.RecallStrategy(strategy)
			if cmd.Flags().Changed("include-system-prompt") {
				p.IncludeSystemPrompt = client.Bool(systemPrompt)
			}
			out, err := s.GetContext(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&strategy, "strategy", "", "Recall strategy: low_latency, balanced or deep")
	f.IntVar(&p.MinTopK, "min-top-k", 0, "Minimum memories to recall")
	f.IntVar(&p.MaxTopK, "max-top-k", 0, "Maximum memories to recall")
	f.Float64Var(&p.MemoriesThreshold, "memories-threshold", 0, "Memory similarity cut-off in [0, 1]")
	f.Float64Var(&p.SummariesThreshold, "summaries-threshold", 0, "Summary similarity cut-off in [0, 1]")
	f.IntVar(&p.LastNMessages, "last-n-messages", 0, "Recent messages to include")
	f.IntVar(&p.LastNSummaries, "last-n-summaries", 0, "Recent session summaries to include")
	f.StringVar(&p.Timezone, "timezone", "", "IANA timezone for timestamps in the context")
	f.BoolVar(&systemPrompt, "include-system-prompt", true, "Prepend the default system prompt")
	return cmd
}

func newSessionMessagesCmd(get sessionGetter) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "messages <session-id>",
		Short: "List a session's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			page, err := s.Messages(cmd.Context(), offset, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pageOutput{
				Items: page.Items, Total: page.Total, HasMore: page.HasMore, Offset: offset,
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Items to skip")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	return cmd
}

func newSessionUpdateCmd(get sessionGetter) *cobra.Command {
	var metadata string
	cmd := &cobra.Command{
		Use:   "update <session-id>",
		Short: "Replace a session's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := parseMetadata("metadata", metadata)
			if err != nil {
				return err
			}
			s, err := get(cmd, args[0])
			if err != nil {
				return err
			}
			if err := s.Update(cmd.Context(), md); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().StringVar(&metadata, "metadata", "{}", "Metadata as a JSON object")
	return cmd
}
