// Package main provides the pagebook CLI: turn a PDF or a set of images into
// page images and text, entirely locally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spherical/pagebook/internal/config"
	"github.com/spherical/pagebook/internal/observability"
)

const version = "1.0.0"

var (
	// Global flags
	cfgFile string
	verbose bool
	noColor bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:     "pagebook",
	Short:   "Render PDFs and images into an editable book of page images",
	Version: version,
	Long: `pagebook converts a PDF, or a set of images, into page images.

Use this tool to:
- Inspect page counts and sizes without rendering
- Convert every page in parallel
- Render selected pages on demand, rotated, mirrored or cropped
- Recognize text on pages and export it as a .txt file

Nothing leaves the machine.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load() // Ignore error if .env doesn't exist

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      cfg.Log.Format,
			ServiceName: "pagebook",
			NoColor:     noColor,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: defaults plus env vars)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newConvertCmd())
	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newOCRCmd())
}

func main() {
	// Set up signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}
