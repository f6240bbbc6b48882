package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/store"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage provisioned users",
		Long:  "Users are created on first GitHub sign-in. Admin rights are granted here, never by the login path.",
	}

	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserAdminCmd("grant-admin", "Grant admin rights to a user", true))
	cmd.AddCommand(newUserAdminCmd("revoke-admin", "Remove admin rights from a user", false))
	cmd.AddCommand(newUserDeleteCmd())

	return cmd
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(cmd *cobra.Command, jsonOutput bool) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	users, err := sess.store.ListUsers(cmdCtx())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if users == nil {
			users = []model.User{}
		}
		return printJSON(out, users)
	}

	if len(users) == 0 {
		fmt.Fprintln(out, "No users yet. Users are created when an allow-listed account signs in.")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-24s %-32s %-6s\n", "ID", "USERNAME", "EMAIL", "ADMIN")
	fmt.Fprintf(out, "%-6s %-24s %-32s %-6s\n", "--", "--------", "-----", "-----")
	for _, u := range users {
		admin := "no"
		if u.Admin {
			admin = "yes"
		}
		fmt.Fprintf(out, "%-6d %-24s %-32s %-6s\n", u.ID, orDash(u.ProviderLogin), u.Email, admin)
	}
	return nil
}

// ---------- user grant-admin / revoke-admin ----------

func newUserAdminCmd(use, short string, admin bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			sess, err := openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.store.SetUserAdmin(cmdCtx(), id, admin); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("user %d not found", id)
				}
				return err
			}
			state := "granted to"
			if !admin {
				state = "removed from"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Admin rights %s user %d.\n", state, id)
			return nil
		},
	}
}

// ---------- user delete ----------

func newUserDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Soft-delete a user; their session tokens stop working",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			sess, err := openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.store.SoftDeleteUser(cmdCtx(), id, time.Now()); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("user %d not found", id)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %d deleted.\n", id)
			return nil
		},
	}
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}
