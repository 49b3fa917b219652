// Package config loads akashchat settings from layered sources:
// built-in defaults, ~/.config/akashchat/.env, ./.env, the process
// environment and finally CLI flags bound through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"akashchat/internal/logger"
	"akashchat/pkg/chattypes"
)

// Transport names for the OpenAI-compatible completion client.
const (
	TransportSDK  = "sdk"
	TransportHTTP = "http"
)

// Config holds resolved settings for the server and terminal shell.
type Config struct {
	ListenAddr          string
	CompletionBaseURL   string
	CompletionTransport string
	CompletionTimeout   time.Duration
	SearchURL           string
	SearchTimeout       time.Duration
	CatalogFile         string
	SessionTTL          time.Duration
	DebugHTTP           bool
	Trace               bool

	AkashAPIKey     string
	SerperAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string
}

// setting maps an environment key to its flag name and default.
// An empty flag means the key can only come from .env files or the environment.
type setting struct {
	env  string
	flag string
	def  string
}

var settings = []setting{
	{env: "AKASHCHAT_LISTEN_ADDR", flag: "listen-addr", def: ":8501"},
	{env: "AKASHCHAT_COMPLETION_BASE_URL", flag: "completion-base-url", def: "https://chatapi.akash.network/api/v1"},
	{env: "AKASHCHAT_COMPLETION_TRANSPORT", flag: "completion-transport", def: TransportSDK},
	{env: "AKASHCHAT_COMPLETION_TIMEOUT", flag: "completion-timeout", def: "120s"},
	{env: "AKASHCHAT_SEARCH_URL", flag: "search-url", def: "https://google.serper.dev/search"},
	{env: "AKASHCHAT_SEARCH_TIMEOUT", flag: "search-timeout", def: "15s"},
	{env: "AKASHCHAT_CATALOG_FILE", flag: "catalog-file", def: ""},
	{env: "AKASHCHAT_SESSION_TTL", flag: "session-ttl", def: "2h"},
	{env: "AKASHCHAT_DEBUG_HTTP", flag: "debug-http", def: "false"},
	{env: "AKASHCHAT_TRACE", flag: "trace", def: "false"},
	{env: "AKASH_API_KEY"},
	{env: "SERPER_API_KEY"},
	{env: "ANTHROPIC_API_KEY"},
	{env: "GOOGLE_API_KEY"},
}

// FlagNames returns the flag names that Load reads from viper.
func FlagNames() []string {
	names := make([]string, 0, len(settings))
	for _, s := range settings {
		if s.flag != "" {
			names = append(names, s.flag)
		}
	}
	return names
}

// Options controls where Load looks for its sources.
type Options struct {
	// UserConfigDir holds the user-level .env. Defaults to ~/.config/akashchat.
	UserConfigDir string
	// WorkingDir holds the project-level .env. Defaults to the current directory.
	WorkingDir string
	// LookupEnv reads the process environment. Defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// Load resolves the configuration. v may be nil when no flags are bound.
func Load(v *viper.Viper, opts Options) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.UserConfigDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			opts.UserConfigDir = filepath.Join(home, ".config", "akashchat")
		}
	}
	if opts.WorkingDir == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.WorkingDir = wd
		}
	}

	values := make(map[string]string, len(settings))
	for _, s := range settings {
		values[s.env] = s.def
	}

	for _, dir := range []string{opts.UserConfigDir, opts.WorkingDir} {
		if dir == "" {
			continue
		}
		if err := loadDotEnvFile(filepath.Join(dir, ".env"), values); err != nil {
			return nil, chattypes.NewTurnError(chattypes.KindConfiguration, "load .env", err)
		}
	}

	for _, s := range settings {
		if value, ok := opts.LookupEnv(s.env); ok && value != "" {
			values[s.env] = value
		}
	}

	// Flags win over every other layer. Unchanged flags fall back to the
	// defaults registered here.
	for _, s := range settings {
		if s.flag == "" {
			continue
		}
		v.SetDefault(s.flag, values[s.env])
		values[s.env] = v.GetString(s.flag)
	}

	return build(values)
}

// loadDotEnvFile merges the known keys of a .env file into values.
// A missing file is not an error.
func loadDotEnvFile(path string, values map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read .env file %s: %w", path, err)
	}

	envMap, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse .env file %s: %w", path, err)
	}

	for key, value := range envMap {
		if _, known := values[key]; known {
			values[key] = value
		}
	}
	logger.Debug("Loaded .env file", "path", path, "keys", len(envMap))
	return nil
}

func build(values map[string]string) (*Config, error) {
	cfg := &Config{
		ListenAddr:          values["AKASHCHAT_LISTEN_ADDR"],
		CompletionBaseURL:   strings.TrimRight(values["AKASHCHAT_COMPLETION_BASE_URL"], "/"),
		CompletionTransport: strings.ToLower(strings.TrimSpace(values["AKASHCHAT_COMPLETION_TRANSPORT"])),
		SearchURL:           values["AKASHCHAT_SEARCH_URL"],
		CatalogFile:         values["AKASHCHAT_CATALOG_FILE"],
		AkashAPIKey:         values["AKASH_API_KEY"],
		SerperAPIKey:        values["SERPER_API_KEY"],
		AnthropicAPIKey:     values["ANTHROPIC_API_KEY"],
		GoogleAPIKey:        values["GOOGLE_API_KEY"],
	}

	var err error
	if cfg.CompletionTimeout, err = parseDuration("AKASHCHAT_COMPLETION_TIMEOUT", values); err != nil {
		return nil, err
	}
	if cfg.SearchTimeout, err = parseDuration("AKASHCHAT_SEARCH_TIMEOUT", values); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = parseDuration("AKASHCHAT_SESSION_TTL", values); err != nil {
		return nil, err
	}
	if cfg.DebugHTTP, err = parseBool("AKASHCHAT_DEBUG_HTTP", values); err != nil {
		return nil, err
	}
	if cfg.Trace, err = parseBool("AKASHCHAT_TRACE", values); err != nil {
		return nil, err
	}

	switch cfg.CompletionTransport {
	case TransportSDK, TransportHTTP:
	default:
		return nil, configError("AKASHCHAT_COMPLETION_TRANSPORT",
			fmt.Errorf("unknown transport %q (want %s or %s)", cfg.CompletionTransport, TransportSDK, TransportHTTP))
	}

	return cfg, nil
}

// Validate checks the settings required to run a turn.
func (c *Config) Validate() error {
	if c.AkashAPIKey == "" {
		return chattypes.NewTurnError(chattypes.KindConfiguration, "validate", fmt.Errorf("AKASH_API_KEY is not set"))
	}
	if c.CompletionBaseURL == "" {
		return chattypes.NewTurnError(chattypes.KindConfiguration, "validate", fmt.Errorf("completion base URL is empty"))
	}
	return nil
}

// WebSearchAvailable reports whether the web-search toggle can be offered.
func (c *Config) WebSearchAvailable() bool {
	return c.SerperAPIKey != "" && c.SearchURL != ""
}

func parseDuration(key string, values map[string]string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(values[key]))
	if err != nil {
		return 0, configError(key, err)
	}
	if d <= 0 {
		return 0, configError(key, fmt.Errorf("must be positive, got %s", d))
	}
	return d, nil
}

func parseBool(key string, values map[string]string) (bool, error) {
	raw := strings.TrimSpace(values[key])
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, configError(key, err)
	}
	return b, nil
}

func configError(key string, err error) error {
	return chattypes.NewTurnError(chattypes.KindConfiguration, "parse "+key, err)
}
