package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reconnoiter/reconnoiter/internal/connector"
	"github.com/reconnoiter/reconnoiter/internal/handler"
	"github.com/reconnoiter/reconnoiter/internal/openapi"
	"github.com/reconnoiter/reconnoiter/internal/provider"
	"github.com/reconnoiter/reconnoiter/internal/server"
	"github.com/reconnoiter/reconnoiter/internal/service"
	"github.com/reconnoiter/reconnoiter/internal/telemetry"
)

const banner = `
 ___ ___ ___ ___  _  _ _  _  ___ ___ _____ ___ ___
| _ \ __/ __/ _ \| \| | \| |/ _ \_ _|_   _| __| _ \
|   / _| (_| (_) | .' | .' | (_) | |  | | | _||   /
|_|_\___\___\___/|_|\_|_|\_|\___/___| |_| |___|_|_\
`

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the HTTP server that authenticates service credentials and GitHub sessions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if dev {
		settings.Log.Level = "debug"
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	fmt.Print(banner)
	fmt.Println()

	logger := newLogger(settings.Log, os.Stderr)

	// 1. Store
	st, err := openStore(settings.Database)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()
	logger.Info("store initialized", "driver", st.Driver(),
		"dsn", connector.RedactDSN(settings.Database.Driver, settings.Database.DSN))

	// 2. Defect reporting
	var reporter telemetry.Reporter = telemetry.NewLogReporter(logger)
	endpoint := ""
	if settings.Telemetry.Enabled {
		endpoint = settings.Telemetry.Endpoint
	}
	if httpReporter := telemetry.NewHTTPReporter(endpoint, logger); httpReporter != nil {
		httpReporter.Start()
		defer httpReporter.Shutdown()
		reporter = telemetry.Multi{reporter, httpReporter}
	}
	logger.Info("defect reporting", "sink", telemetry.Describe(endpoint))

	// 3. Credentials and sessions
	hasher, err := service.NewBcryptHasher(settings.Auth.BcryptCost)
	if err != nil {
		return err
	}
	creds := service.NewCredentialService(st, hasher, service.CredentialOptions{
		AllowSystemKeys: settings.Auth.AllowSystemKeys,
		Logger:          logger,
	})
	codec, err := service.NewSessionCodec([]byte(settings.Auth.JWTSecret), settings.Auth.SessionTTL.D())
	if err != nil {
		return err
	}

	// 4. GitHub exchange
	github := provider.NewGitHubClient(provider.GitHubOptions{
		BaseURL:         settings.GitHub.APIBaseURL,
		ConnectTimeout:  settings.GitHub.ConnectTimeout.D(),
		ResponseTimeout: settings.GitHub.ResponseTimeout.D(),
		UserAgent:       "reconnoiter/" + versionString(),
	})
	allowList := service.NewAllowListService(st, logger)
	provisioner := service.NewUserProvisioner(st, logger)
	exchange := service.NewExchangeService(github, allowList, provisioner, codec, logger)

	// 5. Retention sweeper
	sweeper := service.NewSweeper(creds, settings.Auth.SweepInterval.D(), settings.Auth.KeyRetentionDays, logger)
	sweeper.Start()
	defer sweeper.Stop()

	// 6. HTTP server
	srvCfg := server.Config{
		Host:                settings.Server.Host,
		Port:                settings.Server.Port,
		ShutdownTimeout:     settings.Server.ShutdownTimeout.D(),
		CORSOrigins:         settings.Server.CORSOrigins,
		MaxBodySize:         settings.Server.MaxBodySize,
		SessionHeader:       settings.Auth.SessionHeader,
		ExchangeRateLimit:   settings.RateLimit.ExchangePerMinute,
		CredentialRateLimit: settings.RateLimit.PerCredentialPerMinute,
		TrustProxyHeaders:   settings.Server.TrustProxyHeaders,
	}
	baseURL := fmt.Sprintf("http://%s:%d", displayHost(settings.Server.Host), settings.Server.Port)

	srv := server.New(srvCfg, server.Deps{
		Store:       st,
		Credentials: creds,
		Sessions:    codec,
		AllowList:   allowList,
		Exchange:    exchange,
		Reporter:    reporter,
		OAuth: handler.OAuthOptions{
			ClientID:      settings.GitHub.ClientID,
			ClientSecret:  settings.GitHub.ClientSecret,
			RedirectURL:   settings.GitHub.RedirectURL,
			FrontendURL:   settings.Frontend.BaseURL,
			SecureCookies: strings.HasPrefix(settings.GitHub.RedirectURL, "https://"),
		},
		OpenAPI: openapi.Options{
			BaseURL: baseURL,
			Version: versionString(),
		},
	}, logger)

	fmt.Printf("→ Reconnoiter %s\n", versionString())
	fmt.Printf("→ Listening on %s\n", baseURL)
	fmt.Printf("→ OpenAPI:    %s/openapi.json\n", baseURL)
	fmt.Printf("→ Health:     %s/healthz\n", baseURL)
	if settings.GitHub.ClientID != "" {
		fmt.Printf("→ Login:      %s/oauth2/authorization/github\n", baseURL)
	} else {
		fmt.Println("→ Login:      browser flow disabled (github.client_id not set)")
	}
	fmt.Println()

	return srv.ListenAndServe()
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "localhost"
	}
	return host
}
