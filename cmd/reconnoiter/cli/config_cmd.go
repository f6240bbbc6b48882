package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reconnoiter/reconnoiter/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Reconnoiter configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default reconnoiter.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteFile(path, config.Defaults(), force); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s\n", path)
			fmt.Fprintf(out, "Set auth.jwt_secret (or %s_AUTH_JWT_SECRET) to at least %d bytes, then run 'reconnoiter serve'.\n",
				config.EnvPrefix, config.MinSigningKeyLength)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVarP(&path, "output", "o", config.FileName+".yaml", "Path of the file to write")

	return cmd
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			data, err := config.Marshal(settings.Redacted())
			if err != nil {
				return err
			}
			cmd.OutOrStdout().Write(data)

			if validate {
				if err := settings.Validate(); err != nil {
					return fmt.Errorf("invalid configuration:\n%w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "# configuration is valid")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "Also check the configuration for errors")

	return cmd
}
