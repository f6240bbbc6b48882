package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/service"
	"github.com/reconnoiter/reconnoiter/internal/store"
)

func newAllowListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "allowlist",
		Aliases: []string{"whitelist"},
		Short:   "Manage the GitHub allow-list",
		Long:    "Only GitHub accounts on the allow-list can sign in. Removing an entry blocks new sign-ins but keeps the existing user.",
	}

	cmd.AddCommand(newAllowListAddCmd())
	cmd.AddCommand(newAllowListListCmd())
	cmd.AddCommand(newAllowListRemoveCmd())
	cmd.AddCommand(newAllowListCheckCmd())

	return cmd
}

// ---------- allowlist add ----------

func newAllowListAddCmd() *cobra.Command {
	var (
		githubID int64
		username string
		email    string
		notes    string
		addedBy  string
	)

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Allow a GitHub account to sign in",
		Example: `  reconnoiter allowlist add --github-id 583231 --username octocat --notes "design team"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := &model.AllowListEntry{
				ProviderID:    githubID,
				ProviderLogin: username,
				Email:         optionalString(email),
				Notes:         optionalString(notes),
				AddedBy:       optionalString(addedBy),
			}
			return runAllowListAdd(cmd, entry)
		},
	}

	cmd.Flags().Int64Var(&githubID, "github-id", 0, "Numeric GitHub user ID (required)")
	cmd.Flags().StringVar(&username, "username", "", "GitHub login (required)")
	cmd.Flags().StringVar(&email, "email", "", "Contact email")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	cmd.Flags().StringVar(&addedBy, "added-by", "", "Who approved the entry")
	cmd.MarkFlagRequired("github-id")
	cmd.MarkFlagRequired("username")

	return cmd
}

func runAllowListAdd(cmd *cobra.Command, entry *model.AllowListEntry) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.allowList().Add(cmdCtx(), entry); err != nil {
		if errors.Is(err, service.ErrAlreadyAllowListed) {
			return fmt.Errorf("github id %d is already on the allow-list", entry.ProviderID)
		}
		return fmt.Errorf("add allow-list entry: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added %s (github id %d) to the allow-list.\n", entry.ProviderLogin, entry.ProviderID)
	return nil
}

// ---------- allowlist list ----------

func newAllowListListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List allow-listed GitHub accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAllowListList(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAllowListList(cmd *cobra.Command, jsonOutput bool) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	entries, err := sess.allowList().List(cmdCtx())
	if err != nil {
		return fmt.Errorf("list allow-list: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if entries == nil {
			entries = []model.AllowListEntry{}
		}
		return printJSON(out, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "The allow-list is empty. Use 'reconnoiter allowlist add' to admit a GitHub account.")
		return nil
	}

	fmt.Fprintf(out, "%-12s %-24s %-28s %-20s\n", "GITHUB ID", "USERNAME", "NOTES", "ADDED")
	fmt.Fprintf(out, "%-12s %-24s %-28s %-20s\n", "---------", "--------", "-----", "-----")
	for _, e := range entries {
		fmt.Fprintf(out, "%-12d %-24s %-28s %-20s\n", e.ProviderID, e.ProviderLogin, orDash(e.Notes), e.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// ---------- allowlist remove ----------

func newAllowListRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <username>",
		Aliases: []string{"rm"},
		Short:   "Remove a GitHub account from the allow-list",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAllowListRemove(cmd, args[0])
		},
	}

	return cmd
}

func runAllowListRemove(cmd *cobra.Command, login string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.allowList().Remove(cmdCtx(), login); err != nil {
		if errors.Is(err, service.ErrNotAllowListed) {
			return fmt.Errorf("%s is not on the allow-list", login)
		}
		return fmt.Errorf("remove allow-list entry: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from the allow-list.\n", login)
	return nil
}

// ---------- allowlist check ----------

func newAllowListCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <github-id>",
		Short: "Check whether a GitHub user ID may sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid github id %q", args[0])
			}
			return runAllowListCheck(cmd, id)
		},
	}

	return cmd
}

func runAllowListCheck(cmd *cobra.Command, id int64) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	out := cmd.OutOrStdout()
	entry, err := sess.store.GetAllowListEntry(cmdCtx(), id)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(out, "github id %d is NOT allowed\n", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("check allow-list: %w", err)
	}

	fmt.Fprintf(out, "github id %d is allowed (%s, added %s)\n", id, entry.ProviderLogin, entry.CreatedAt.Format("2006-01-02"))
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
