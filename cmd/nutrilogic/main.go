package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nutrilogic/datacache/internal/app"
	"github.com/nutrilogic/datacache/internal/config"
)

var (
	configPath  string
	apiURL      string
	logLevel    string
	cacheTTL    string
	backendName string
	redisAddr   string
	metricsAddr string
	email       string
	password    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nutrilogic",
		Short:         "NutriLogic posyandu client with a session data cache",
		Long:          "Browse and edit posyandu child records. Reads are cached per session and invalidated after every change.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&apiURL, "api", "", "Posyandu API base URL")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&cacheTTL, "ttl", "", "Cache TTL, e.g. 5m or 300 (seconds)")
	pf.StringVar(&backendName, "backend", "", "Cache backend: memory or redis")
	pf.StringVar(&redisAddr, "redis", "", "Redis address for the redis backend")
	pf.StringVar(&email, "email", "", "Login email")
	pf.StringVar(&password, "password", "", "Login password")

	rootCmd.AddCommand(
		shellCmd(),
		childrenCmd(),
		dashboardCmd(),
		priorityCmd(),
		childCmd(),
		devserverCmd(),
		configCmd(),
	)
	return rootCmd
}

// loadConfig layers flags over the file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("api") {
		cfg.API.URL = apiURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("ttl") {
		ttl, err := config.ParseTTL(cacheTTL)
		if err != nil {
			return nil, fmt.Errorf("--ttl: %w", err)
		}
		cfg.Cache.TTL = ttl
	}
	if flags.Changed("backend") {
		cfg.Cache.Backend = backendName
	}
	if flags.Changed("redis") {
		cfg.Redis.Addr = redisAddr
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	if flags.Changed("email") {
		cfg.API.Email = email
	}
	if flags.Changed("password") {
		cfg.API.Password = password
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withSession logs in with the configured credentials, runs fn and logs out.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, s *app.Session) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, cleanup, err := initializeApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	s, err := a.Login(ctx, cfg.API.Email, cfg.API.Password)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Logout(context.Background(), s); err != nil {
			a.Logger.Warn().Err(err).Msg("logout")
		}
	}()
	return fn(ctx, a, s)
}
