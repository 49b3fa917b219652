package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akashchat/internal/config"
)

func TestRootCommand_RegistersConfigFlags(t *testing.T) {
	for _, name := range config.FlagNames() {
		flag := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.NotEmpty(t, flag.Usage, name)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

func TestRegisterConfigFlags_FlagOverridesEnvironment(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.PersistentFlags().String("log-level", "", "")
	cmd.PersistentFlags().String("log-file", "", "")
	cmd.PersistentFlags().Bool("test-mode", false, "")

	v := viper.New()
	require.NoError(t, registerConfigFlags(cmd, v))
	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--listen-addr", ":9999", "--trace"}))

	cfg, err := config.Load(v, config.Options{
		UserConfigDir: t.TempDir(),
		WorkingDir:    t.TempDir(),
		LookupEnv: func(key string) (string, bool) {
			if key == "AKASHCHAT_LISTEN_ADDR" {
				return ":7000", true
			}
			return "", false
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.True(t, cfg.Trace)
	assert.Equal(t, config.TransportSDK, cfg.CompletionTransport)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "akashchat v")
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, 30*time.Minute, sweepInterval(2*time.Hour))
	assert.Equal(t, time.Minute, sweepInterval(time.Minute))
}
