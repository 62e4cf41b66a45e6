package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"weibogeo/pkg/config"
	"weibogeo/pkg/logger"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "weibogeo",
	Short: "Collect location-tagged Weibo posts",
	Long: `weibogeo collects Weibo posts for a list of named places.

The pipeline has three stages, each usable on its own:
  geocode   resolve place names to coordinates
  urls      build the paged API query URLs for geocoded places
  collect   page through the API and harvest posts

Credentials come from a stored session ('weibogeo auth login'), the
WEIBOGEO_COOKIE environment variable, or the config file.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .weibogeo.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`weibogeo {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads configuration and initializes the global logger.
func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, logger.GetLogger(), nil
}
