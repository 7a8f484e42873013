// Package cli provides the command-line interface for discloud.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/discloud/discloud/internal/backend"
	"github.com/discloud/discloud/internal/catalog"
	"github.com/discloud/discloud/internal/config"
	"github.com/discloud/discloud/internal/logging"
	"github.com/discloud/discloud/internal/services"
)

var (
	// Global flags
	cfgFile       string
	verbose       bool
	skipLiveCheck bool

	// Global logger
	logger *logging.Logger
)

// Version information, set by the main package at startup.
var (
	Version   = "v1.0.0-dev"
	BuildTime = "unknown"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "discloud",
		Short: "discloud - encrypted chunked file storage on Discord",
		Long: `discloud ` + Version + ` - Built: ` + BuildTime + `
Stores files as encrypted chunks in Discord channels.

Files are sliced into chunks, each chunk is AES-256 encrypted and posted
as a message attachment. Only the chunk references are kept locally, in
the catalog database. Interrupted uploads resume where they stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger("cli")
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&skipLiveCheck, "skip-live-check", false, "Skip live API probes during backend validation")

	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newFilesCmd())
	rootCmd.AddCommand(newBackendsCmd())
	rootCmd.AddCommand(newBootstrapCmd())

	return rootCmd
}

// loadConfig loads the app config and applies its log level unless the
// verbose flag already forced debug.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if !verbose {
		switch cfg.LogLevel {
		case "debug":
			logging.SetGlobalLevel(zerolog.DebugLevel)
		case "warn":
			logging.SetGlobalLevel(zerolog.WarnLevel)
		case "error":
			logging.SetGlobalLevel(zerolog.ErrorLevel)
		}
	}
	return cfg, nil
}

// openCatalog loads the config and opens the catalog database it points at.
// The caller owns the returned catalog and must Close it.
func openCatalog() (*catalog.Catalog, *config.AppConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	path, err := cfg.ResolveCatalogPath()
	if err != nil {
		return nil, nil, err
	}
	cat, err := catalog.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return cat, cfg, nil
}

// newFileService wires the service over the catalog with live drivers.
func newFileService(cat *catalog.Catalog) *services.FileService {
	opts := backend.Options{
		Logger:        logger,
		SkipLiveCheck: skipLiveCheck,
	}
	return services.NewFileService(cat, services.DefaultFacadeOpener(cat, opts))
}
