package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akashchat/pkg/chattypes"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeDotEnv(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0600))
}

func isolatedOptions(t *testing.T, env map[string]string) Options {
	return Options{
		UserConfigDir: t.TempDir(),
		WorkingDir:    t.TempDir(),
		LookupEnv:     envFrom(env),
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, isolatedOptions(t, nil))
	require.NoError(t, err)

	assert.Equal(t, ":8501", cfg.ListenAddr)
	assert.Equal(t, "https://chatapi.akash.network/api/v1", cfg.CompletionBaseURL)
	assert.Equal(t, TransportSDK, cfg.CompletionTransport)
	assert.Equal(t, 120*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, "https://google.serper.dev/search", cfg.SearchURL)
	assert.Equal(t, 15*time.Second, cfg.SearchTimeout)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.DebugHTTP)
	assert.False(t, cfg.WebSearchAvailable())
}

func TestLoad_LayerPrecedence(t *testing.T) {
	opts := isolatedOptions(t, map[string]string{
		"AKASHCHAT_SEARCH_TIMEOUT": "5s",
	})
	writeDotEnv(t, opts.UserConfigDir, "AKASH_API_KEY=user-key\nAKASHCHAT_LISTEN_ADDR=:7000\nAKASHCHAT_SEARCH_TIMEOUT=1s\n")
	writeDotEnv(t, opts.WorkingDir, "AKASHCHAT_LISTEN_ADDR=:7100\nSERPER_API_KEY=serper\nUNRELATED=1\n")

	v := viper.New()
	v.Set("session-ttl", "30m")

	cfg, err := Load(v, opts)
	require.NoError(t, err)

	assert.Equal(t, "user-key", cfg.AkashAPIKey)
	assert.Equal(t, ":7100", cfg.ListenAddr, "local .env beats user .env")
	assert.Equal(t, 5*time.Second, cfg.SearchTimeout, "environment beats .env")
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL, "flags beat everything")
	assert.True(t, cfg.WebSearchAvailable())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"AKASHCHAT_COMPLETION_TIMEOUT": "soon"}},
		{"negative duration", map[string]string{"AKASHCHAT_SESSION_TTL": "-1m"}},
		{"bad bool", map[string]string{"AKASHCHAT_DEBUG_HTTP": "maybe"}},
		{"bad transport", map[string]string{"AKASHCHAT_COMPLETION_TRANSPORT": "grpc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(nil, isolatedOptions(t, tt.env))
			require.Error(t, err)
			assert.ErrorIs(t, err, chattypes.ErrConfiguration)
		})
	}
}

func TestLoad_MalformedDotEnv(t *testing.T) {
	opts := isolatedOptions(t, nil)
	writeDotEnv(t, opts.WorkingDir, "AKASH_API_KEY='unterminated\n")

	_, err := Load(nil, opts)
	assert.ErrorIs(t, err, chattypes.ErrConfiguration)
}

func TestConfig_Validate(t *testing.T) {
	cfg, err := Load(nil, isolatedOptions(t, nil))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, chattypes.KindConfiguration, chattypes.KindOf(err))

	cfg.AkashAPIKey = "key"
	assert.NoError(t, cfg.Validate())
}

func TestFlagNames(t *testing.T) {
	names := FlagNames()
	assert.Contains(t, names, "listen-addr")
	assert.Contains(t, names, "debug-http")
	assert.NotContains(t, names, "")
}

func TestFlagNames_NoSearchResultCount(t *testing.T) {
	assert.NotContains(t, FlagNames(), "search-results")
	assert.Contains(t, FlagNames(), "search-timeout")
}
