package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/recallrai/recallrai-go/client"
	"github.com/recallrai/recallrai-go/core"
	"github.com/recallrai/recallrai-go/export"
)

func newMemoryCmd(a *app) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and export a user's memories",
	}
	cmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "Owning user ID (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(
		newMemoryListCmd(a, &userID),
		&cobra.Command{
			Use:   "get <memory-id>",
			Short: "Show one memory with its history",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				u, err := a.getUser(cmd, userID)
				if err != nil {
					return err
				}
				m, err := u.GetMemory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			},
		},
		newMemoryExportCmd(a, &userID),
	)
	return cmd
}

func newMemoryListCmd(a *app, userID *string) *cobra.Command {
	var (
		offset, limit        int
		categories, sessions []string
		sessionFilter        string
		noHistory, noLinks   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseMetadata("session-metadata-filter", sessionFilter)
			if err != nil {
				return err
			}
			u, err := a.getUser(cmd, *userID)
			if err != nil {
				return err
			}
			page, err := u.ListMemories(cmd.Context(), client.ListMemoriesParams{
				Offset:                   offset,
				Limit:                    limit,
				Categories:               categories,
				SessionIDs:               sessions,
				SessionMetadataFilter:    f,
				IncludePreviousVersions:  client.Bool(!noHistory),
				IncludeConnectedMemories: client.Bool(!noLinks),
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
	fl.IntVar(&limit, "limit", 20, "Page size (max 200)")
	fl.StringSliceVar(&categories, "category", nil, "Only these categories (repeatable)")
	fl.StringSliceVar(&sessions, "session", nil, "Only memories from these sessions (repeatable)")
	fl.StringVar(&sessionFilter, "session-metadata-filter", "", "Only memories from sessions whose metadata contains this JSON object")
	fl.BoolVar(&noHistory, "no-history", false, "Omit previous versions")
	fl.BoolVar(&noLinks, "no-connected", false, "Omit connected memories")
	return cmd
}

func newMemoryExportCmd(a *app, userID *string) *cobra.Command {
	var (
		dbPath   string
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Snapshot every memory and merge conflict of a user into SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = a.cfg.Export.DatabasePath
			}
			if !cmd.Flags().Changed("page-size") && a.cfg.Export.PageSize > 0 {
				pageSize = a.cfg.Export.PageSize
			}

			u, err := a.getUser(cmd, *userID)
			if err != nil {
				return err
			}
			store, err := export.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var (
				memories  []core.MemoryData
				conflicts []core.MergeConflictData
			)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				items, err := client.Collect(ctx, pageSize, func(ctx context.Context, off, lim int) (core.Page[*client.Memory], error) {
					return u.ListMemories(ctx, client.ListMemoriesParams{Offset: off, Limit: lim})
				})
				if err != nil {
					return err
				}
				for _, m := range items {
					memories = append(memories, m.MemoryData)
				}
				_, err = store.SaveMemories(ctx, u.UserID, memories)
				return err
			})
			g.Go(func() error {
				items, err := client.Collect(ctx, min(pageSize, 100), func(ctx context.Context, off, lim int) (core.Page[*client.MergeConflict], error) {
					return u.ListMergeConflicts(ctx, client.ListMergeConflictsParams{Offset: off, Limit: lim})
				})
				if err != nil {
					return err
				}
				for _, c := range items {
					conflicts = append(conflicts, c.MergeConflictData)
				}
				_, err = store.SaveMergeConflicts(ctx, u.UserID, conflicts)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			counts, err := store.Counts(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("export finished",
				zap.String("user_id", u.UserID),
				zap.String("db", store.Path()),
				zap.Int("memories", len(memories)),
				zap.Int("merge_conflicts", len(conflicts)))
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"user_id":  u.UserID,
				"database": store.Path(),
				"exported": map[string]int{"memories": len(memories), "merge_conflicts": len(conflicts)},
				"totals":   counts,
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default from config)")
	cmd.Flags().IntVar(&pageSize, "page-size", client.MaxMemoriesLimit, "Items fetched per request")
	return cmd
}
