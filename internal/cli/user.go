package cli

import (
	"github.com/spf13/cobra"

	"github.com/recallrai/recallrai-go/client"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(
		newUserCreateCmd(a),
		newUserGetCmd(a),
		newUserListCmd(a),
		newUserUpdateCmd(a),
		newUserDeleteCmd(a),
		newUserMessagesCmd(a),
	)
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var metadata string
	cmd := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := parseMetadata("metadata", metadata)
			if err != nil {
				return err
			}
			c, err := a.getClient()
			if err != nil {
				return err
			}
			u, err := c.CreateUser(cmd.Context(), args[0], md)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
	cmd.Flags().StringVar(&metadata, "metadata", "", "Metadata as a JSON object")
	return cmd
}

func newUserGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.getUser(cmd, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
}

func newUserListCmd(a *app) *cobra.Command {
	var (
		offset, limit int
		filter        string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseMetadata("metadata-filter", filter)
			if err != nil {
				return err
			}
			c, err := a.getClient()
			if err != nil {
				return err
			}
			page, err := c.ListUsers(cmd.Context(), client.ListUsersParams{
				Offset:         offset,
				Limit:          limit,
				MetadataFilter: f,
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
	cmd.Flags().StringVar(&filter, "metadata-filter", "", "Only users whose metadata contains this JSON object")
	return cmd
}

func newUserUpdateCmd(a *app) *cobra.Command {
	var metadata, newID string
	cmd := &cobra.Command{
		Use:   "update <user-id>",
		Short: "Replace a user's metadata or rename it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := parseMetadata("metadata", metadata)
			if err != nil {
				return err
			}
			u, err := a.getUser(cmd, args[0])
			if err != nil {
				return err
			}
			if err := u.Update(cmd.Context(), client.UserUpdate{Metadata: md, NewUserID: newID}); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
	cmd.Flags().StringVar(&metadata, "metadata", "", "New metadata as a JSON object")
	cmd.Flags().StringVar(&newID, "new-id", "", "New user ID")
	return cmd
}

func newUserDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.getUser(cmd, args[0])
			if err != nil {
				return err
			}
			if err := u.Delete(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"deleted": args[0]})
		},
	}
}

func newUserMessagesCmd(a *app) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "messages <user-id>",
		Short: "Show the user's most recent messages across sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.getUser(cmd, args[0])
			if err != nil {
				return err
			}
			msgs, err := u.LastMessages(cmd.Context(), n)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), msgs)
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 10, "Number of messages (1-100)")
	return cmd
}
