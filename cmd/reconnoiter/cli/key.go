package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/service"
	"github.com/reconnoiter/reconnoiter/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage service credentials",
		Long:    "Generate, list, revoke and verify the API keys trusted front-end services present as Bearer tokens.",
	}

	cmd.AddCommand(newKeyGenerateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyCleanupCmd())
	cmd.AddCommand(newKeyCheckCmd())

	return cmd
}

// ---------- key generate ----------

func newKeyGenerateCmd() *cobra.Command {
	var (
		name  string
		owner int64
	)

	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"create"},
		Short:   "Generate a new service credential",
		Long:    "Generate a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  reconnoiter key generate --name "web frontend"
  reconnoiter key generate --name "alice laptop" --owner 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ownerID *int64
			if cmd.Flags().Changed("owner") {
				ownerID = &owner
			}
			return runKeyGenerate(cmd, name, ownerID)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().Int64Var(&owner, "owner", 0, "ID of the user that owns the key")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyGenerate(cmd *cobra.Command, name string, owner *int64) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx := cmdCtx()
	if owner != nil {
		if _, err := sess.store.GetUser(ctx, *owner); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("user %d not found", *owner)
			}
			return err
		}
	}

	creds, err := sess.credentials()
	if err != nil {
		return err
	}
	raw, cred, err := creds.Issue(ctx, name, owner)
	if err != nil {
		return fmt.Errorf("generate api key: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "API key generated:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Key:    %s\n", raw)
	fmt.Fprintf(out, "  ID:     %d\n", cred.ID)
	fmt.Fprintf(out, "  Name:   %s\n", cred.Name)
	fmt.Fprintf(out, "  Prefix: %s\n", cred.Prefix)
	if cred.OwnerUserID != nil {
		fmt.Fprintf(out, "  Owner:  user %d\n", *cred.OwnerUserID)
	} else {
		fmt.Fprintln(out, "  Owner:  system")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		jsonOutput bool
		all        bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List service credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd, all, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include revoked keys")

	return cmd
}

func runKeyList(cmd *cobra.Command, all, jsonOutput bool) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	creds, err := sess.credentials()
	if err != nil {
		return err
	}
	keys, err := creds.List(cmdCtx(), store.CredentialFilter{IncludeRevoked: all})
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if keys == nil {
			keys = []model.ServiceCredential{}
		}
		return printJSON(out, keys)
	}

	if len(keys) == 0 {
		fmt.Fprintln(out, "No API keys found. Use 'reconnoiter key generate' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-10s %-24s %-8s %-10s %-20s\n", "ID", "PREFIX", "NAME", "OWNER", "REQUESTS", "STATUS")
	fmt.Fprintf(out, "%-6s %-10s %-24s %-8s %-10s %-20s\n", "--", "------", "----", "-----", "--------", "------")
	for _, k := range keys {
		owner := "system"
		if k.OwnerUserID != nil {
			owner = strconv.FormatInt(*k.OwnerUserID, 10)
		}
		status := "active"
		if k.RevokedAt != nil {
			status = "revoked " + k.RevokedAt.Format("2006-01-02")
		}
		fmt.Fprintf(out, "%-6d %-10s %-24s %-8s %-10d %-20s\n", k.ID, k.Prefix, k.Name, owner, k.RequestCount, status)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a service credential by ID",
		Long:  "Revoke an API key, rejecting every further request that presents it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid key id %q", args[0])
			}
			return runKeyRevoke(cmd, id)
		},
	}

	return cmd
}

func runKeyRevoke(cmd *cobra.Command, id int64) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	creds, err := sess.credentials()
	if err != nil {
		return err
	}
	revoked, err := creds.Revoke(cmdCtx(), id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if !revoked {
		return fmt.Errorf("api key %d not found or already revoked", id)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "API key %d revoked.\n", id)
	return nil
}

// ---------- key cleanup ----------

func newKeyCleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete keys revoked longer ago than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCleanup(cmd, days)
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default: auth.key_retention_days)")

	return cmd
}

func runKeyCleanup(cmd *cobra.Command, days int) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if !cmd.Flags().Changed("days") {
		days = sess.settings.Auth.KeyRetentionDays
	}
	if days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	creds, err := sess.credentials()
	if err != nil {
		return err
	}
	n, err := creds.Cleanup(cmdCtx(), days)
	if err != nil {
		return fmt.Errorf("cleanup api keys: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d API key(s) revoked more than %d day(s) ago.\n", n, days)
	return nil
}

// ---------- key check ----------

func newKeyCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether an API key is valid",
		Long: `Verify a raw API key against the store. The key is read from the terminal
without echo, or from stdin when piped. A successful check counts as a use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCheck(cmd)
		},
	}

	return cmd
}

func runKeyCheck(cmd *cobra.Command) error {
	raw, err := readSecret("API key: ")
	if err != nil {
		return err
	}

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	creds, err := sess.credentials()
	if err != nil {
		return err
	}
	cred, err := creds.Verify(cmdCtx(), raw)
	if errors.Is(err, service.ErrCredentialNotFound) {
		return fmt.Errorf("api key is not valid")
	}
	if err != nil {
		return fmt.Errorf("verify api key: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Valid: key %d (%s), %d request(s)\n", cred.ID, cred.Name, cred.RequestCount)
	return nil
}

// readSecret reads a line without echo when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
