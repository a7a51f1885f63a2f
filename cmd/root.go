// Package cmd provides the command line interface of imagefinder.
package cmd

import (
	"fmt"

	"dhashfinder/config"
	"dhashfinder/logging"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debugMode  bool
	logPath    string
	dbPath     string

	// settings is the merged configuration for the running command
	settings config.Config
)

var rootCmd = &cobra.Command{
	Use:   "imagefinder",
	Short: "imagefinder - find visually similar images",
	Long: `imagefinder fingerprints a collection of images with a difference hash,
stores the fingerprints in a single SQLite file and ranks the stored images
by their distance to a query image.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseLogger()
	},
}

func init() {
	pflags := rootCmd.PersistentFlags()
	pflags.StringVar(&configPath, "config", "", "Path to a YAML config file")
	pflags.BoolVar(&debugMode, "debug", false, "Enable debug logging")
	pflags.StringVar(&logPath, "logfile", "", "Write log output to this file")
	pflags.StringVarP(&dbPath, "database", "s", config.Default().Database, "Path to the fingerprint database")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// setup loads the config file and lets explicitly set flags override it
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("database") {
		cfg.Database = dbPath
	}
	if flags.Changed("debug") {
		cfg.Debug = debugMode
	}
	if flags.Changed("logfile") {
		cfg.LogFile = logPath
	}

	overrideInt(cmd, "hash-size", &cfg.HashSize)
	overrideInt(cmd, "workers", &cfg.Workers)
	overrideInt(cmd, "max-results", &cfg.MaxResults)
	overrideInt(cmd, "max-distance", &cfg.MaxDistance)
	if flags.Changed("resampler") {
		if cfg.Resampler, err = flags.GetString("resampler"); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.SetupLogger(cfg.LogFile, cfg.Debug); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if cfg.Debug && cfg.LogFile != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Debug mode enabled. Logging to: %s\n", cfg.LogFile)
	}

	settings = cfg
	return nil
}

// overrideInt copies an int flag into dst when the flag exists on cmd and was set
func overrideInt(cmd *cobra.Command, name string, dst *int) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil || !flag.Changed {
		return
	}
	if v, err := cmd.Flags().GetInt(name); err == nil {
		*dst = v
	}
}
