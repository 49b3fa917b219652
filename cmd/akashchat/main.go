// Package main provides the akashchat CLI entry point.
// akashchat is a chat front end for the Akash Chat API with optional web search.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"akashchat/internal/app"
	"akashchat/internal/config"
	"akashchat/internal/logger"
	"akashchat/internal/observability"
	"akashchat/internal/server"
	"akashchat/internal/services"
	"akashchat/internal/shell"
	"akashchat/internal/version"
)

var (
	logLevel string
	logFile  string
	testMode bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "akashchat",
	Short: "akashchat - streaming chat for the Akash Chat API",
	Long: `akashchat forwards prompts to the Akash Chat API, optionally enriched with
web search snippets, and streams the answer back to a browser or terminal.`,
	SilenceUsage: true,
	RunE:         runServe, // Default behavior is to serve the browser UI
}

// serveCmd starts the browser chat server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser chat UI",
	Long:  `Start the HTTP server with the chat page, the JSON API, SSE and websocket streaming, and /metrics.`,
	RunE:  runServe,
}

// chatCmd starts the terminal shell
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive terminal chat",
	Long:  `Start a line-editing chat in the terminal. Type /help for shell commands.`,
	RunE:  runChat,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the version of akashchat.`,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetFormattedVersion())
	},
}

// flagUsage describes the configuration flags registered from config.FlagNames.
var flagUsage = map[string]string{
	"listen-addr":          "HTTP listen address (AKASHCHAT_LISTEN_ADDR)",
	"completion-base-url":  "OpenAI-compatible completion base URL (AKASHCHAT_COMPLETION_BASE_URL)",
	"completion-transport": "Completion transport: sdk|http (AKASHCHAT_COMPLETION_TRANSPORT)",
	"completion-timeout":   "Completion request timeout (AKASHCHAT_COMPLETION_TIMEOUT)",
	"search-url":           "Serper search endpoint (AKASHCHAT_SEARCH_URL)",
	"search-timeout":       "Search request timeout (AKASHCHAT_SEARCH_TIMEOUT)",
	"catalog-file":         "YAML model catalog replacing the built-in one (AKASHCHAT_CATALOG_FILE)",
	"session-ttl":          "Idle time before a browser session is dropped (AKASHCHAT_SESSION_TTL)",
	"debug-http":           "Capture outgoing HTTP exchanges for debugging (AKASHCHAT_DEBUG_HTTP)",
	"trace":                "Print OpenTelemetry spans to stderr (AKASHCHAT_TRACE)",
}

var boolFlags = map[string]bool{
	"debug-http": true,
	"trace":      true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode")

	if err := registerConfigFlags(rootCmd, viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding flags: %v\n", err)
		os.Exit(1)
	}

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(versionCmd)

	// Configure logger before any command execution
	cobra.OnInitialize(initConfig)
}

// registerConfigFlags adds one persistent flag per configuration key and binds it to v.
func registerConfigFlags(cmd *cobra.Command, v *viper.Viper) error {
	for _, name := range []string{"log-level", "log-file", "test-mode"} {
		if err := v.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}

	for _, name := range config.FlagNames() {
		if boolFlags[name] {
			cmd.PersistentFlags().Bool(name, false, flagUsage[name])
		} else {
			cmd.PersistentFlags().String(name, "", flagUsage[name])
		}
		if err := v.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}

func initConfig() {
	// Configure logger with CLI flags
	if err := logger.Configure(logLevel, logFile, testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper(), config.Options{})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupTracing installs the stdout span exporter when tracing is enabled.
func setupTracing(cfg *config.Config) func() {
	if !cfg.Trace {
		return func() {}
	}
	shutdown, err := observability.InitTracing(os.Stderr, version.GetVersion())
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("Tracer shutdown failed", "error", err)
		}
	}
}

// sweepInterval checks for idle sessions a few times per TTL.
func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer setupTracing(cfg)()

	logger.Info("Starting akashchat", "version", version.GetVersion(), "addr", cfg.ListenAddr)

	a, err := app.Build(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	srv := server.New(server.Options{
		Sessions:   a.Sessions,
		Catalog:    a.Catalog,
		Turns:      a.Turns,
		Thinking:   a.Thinking,
		SessionTTL: cfg.SessionTTL,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.ListenAddr)
	})
	g.Go(func() error {
		return a.Sessions.Run(gctx, sweepInterval(cfg.SessionTTL))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("akashchat stopped")
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer setupTracing(cfg)()

	a, err := app.Build(cfg, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	session, err := a.Sessions.CreateSession()
	if err != nil {
		return err
	}

	var md *services.MarkdownService
	candidate := services.NewMarkdownService("", 0)
	if err := candidate.Initialize(); err != nil {
		logger.Debug("Markdown rendering disabled", "error", err)
	} else if candidate.Style() != services.MarkdownStyleNoTTY {
		md = candidate
	}

	sh := shell.New(shell.Options{
		Turns:       a.Turns,
		Catalog:     a.Catalog,
		Session:     session,
		Markdown:    md,
		Thinking:    a.Thinking,
		Now:         a.Sessions.Now,
		Out:         cmd.OutOrStdout(),
		ErrOut:      cmd.ErrOrStderr(),
		HistoryFile: shell.DefaultHistoryFile(),
		Indicators:  md != nil,
	})
	return sh.Run(cmd.Context())
}
