package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose     bool
	configPath  string
	labelsPath  string
	outputsRoot string
	backend     string
	readOnly    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pdfledger",
	Short: "Keeps human document-type labels attached to a changing PDF catalog",
	Long: `pdfledger keys human labels by a stable document identity, reconciles
them against inventory snapshots and fuses them with model predictions and
a heuristic fallback into one decision per document.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeService()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&configPath, "config", "", "Config file (default: pdfledger.yaml/.toml of the workspace)")
	flags.StringVar(&labelsPath, "labels", "", "Label store path (overrides labels_file)")
	flags.StringVar(&outputsRoot, "outputs", "", "Outputs root (overrides outputs_root)")
	flags.StringVar(&backend, "backend", "", "Storage backend: csv or sqlite (overrides backend)")
	flags.BoolVar(&readOnly, "read-only", false, "Refuse every write to the label store")
}
