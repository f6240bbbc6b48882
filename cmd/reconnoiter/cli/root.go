package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reconnoiter/reconnoiter/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, used by serve and the API description
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconnoiter",
		Short: "Service credential and GitHub session gateway",
		Long: `Reconnoiter guards an API with two callers: a trusted front-end service
holding a long-lived API key, and people who sign in with GitHub and receive a
short-lived session token. Only GitHub accounts on the allow-list get in.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./reconnoiter.yaml)")
	cmd.PersistentFlags().String("data-dir", "", "data directory for the SQLite store (default: ~/.reconnoiter)")
	viper.BindPFlag("database.data_dir", cmd.PersistentFlags().Lookup("data-dir"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newAllowListCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(config.FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.reconnoiter")
	}

	config.BindEnv(v)
	v.ReadInConfig() // Ignore error - config file is optional
}
