package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	screenlocator "github.com/menta2k/screen-locator"
	"github.com/menta2k/screen-locator/internal/config"
	"github.com/menta2k/screen-locator/internal/logging"
)

var (
	cfgFile string
	verbose bool
	timeout time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "screen-locator",
	Short: "Find and click screen elements from a natural-language description",
	Long: `Overlays a numbered grid on a screenshot, asks a vision model which marker
is closest to the described element and zooms into that region, repeating for
a fixed number of rounds. The center of the final region is the click point.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == configInitCmd {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Logging.Format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.json or "+config.GetConfigPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "operation timeout")

	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(clickCmd)
	rootCmd.AddCommand(gridCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newScreenLocator builds the library facade from the loaded config
func newScreenLocator() (*screenlocator.ScreenLocator, error) {
	return screenlocator.New(optionsFromConfig(cfg), logger)
}

func optionsFromConfig(c *config.Config) screenlocator.Options {
	opts := screenlocator.Options{
		Locator:         c.LocatorConfig(),
		Oracle:          c.OracleConfig(),
		Backend:         c.Oracle.Backend,
		OracleURL:       c.Oracle.URL,
		DeviceURL:       c.Device.URL,
		SettleDelay:     c.Device.SettleDelay,
		ArtifactsFormat: c.Artifacts.Format,
		Action:          c.ActionConfig(),
	}
	if c.Artifacts.Enabled {
		opts.ArtifactsDir = c.Artifacts.DataPath
	}
	return opts
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
