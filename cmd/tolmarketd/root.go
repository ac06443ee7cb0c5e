package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/tolelom/tolmarket/config"
)

var log = logging.Logger("tolmarketd")

var (
	configFile string
	keyFile    string
	logLevel   string
)

// passwordEnv names the keystore password variable. Passwords are never
// taken from flags since those leak via ps.
const passwordEnv = "TOLMARKET_PASSWORD"

var rootCmd = &cobra.Command{
	Use:           "tolmarketd",
	Short:         "tolmarketd - peer-to-peer NFT marketplace settlement node",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file path (JSON, YAML or TOML)")
	rootCmd.PersistentFlags().StringVar(&keyFile, "key", "validator.key", "path to keystore file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

// loadConfig loads the config and applies the log level it names.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	lvl, err := logLevelFor(cfg)
	if err != nil {
		return nil, err
	}
	logging.SetAllLoggers(lvl)
	return cfg, nil
}

// logLevelFor returns the --log-level flag if set, else the config's level.
func logLevelFor(cfg *config.Config) (logging.LogLevel, error) {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return logging.LevelFromString(level)
}

func keystorePassword() string {
	password := os.Getenv(passwordEnv)
	if password == "" {
		log.Warnf("%s not set; keystore will use an empty password", passwordEnv)
	}
	return password
}
