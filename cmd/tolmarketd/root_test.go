package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	logging "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/wallet"
)

// execute runs the root command with args and returns its output. Flag
// variables are restored afterwards.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		configFile, keyFile, logLevel = "", "validator.key", ""
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFlagsReachConfig(t *testing.T) {
	path := writeConfig(t, "rpc_port: 9100\nlog_level: warn\ngenesis:\n  chain_id: cli-test\n")

	_, err := execute(t, "--config", path, "--log-level", "debug", "version")
	require.NoError(t, err)
	assert.Equal(t, path, configFile)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.RPCPort)
	assert.Equal(t, "cli-test", cfg.Genesis.ChainID)
	assert.Equal(t, "warn", cfg.LogLevel)

	lvl, err := logLevelFor(cfg)
	require.NoError(t, err)
	assert.Equal(t, logging.LevelDebug, lvl)
}

func TestConfigLogLevelWithoutFlag(t *testing.T) {
	path := writeConfig(t, "log_level: error\n")
	_, err := execute(t, "--config", path, "version")
	require.NoError(t, err)

	cfg, err := loadConfig()
	require.NoError(t, err)
	lvl, err := logLevelFor(cfg)
	require.NoError(t, err)
	assert.Equal(t, logging.LevelError, lvl)
}

func TestBadLogLevelFlag(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "version")
	require.NoError(t, err)
	_, err = loadConfig()
	require.Error(t, err)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "version")
	require.NoError(t, err)
	_, err = loadConfig()
	require.ErrorContains(t, err, "config file")
}

func TestGenkeyWritesKeystore(t *testing.T) {
	t.Setenv(passwordEnv, "s3cret")
	path := filepath.Join(t.TempDir(), "validator.key")

	out, err := execute(t, "--key", path, "genkey")
	require.NoError(t, err)

	priv, err := wallet.LoadKey(path, "s3cret")
	require.NoError(t, err)
	assert.Contains(t, out, priv.Public().Hex())
	assert.Contains(t, out, path)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tolmarketd version "+version)
}
