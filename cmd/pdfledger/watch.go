package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aretw0/pdfledger/pkg/adapters/fs"
	"github.com/aretw0/pdfledger/pkg/adapters/lifecycle"
	"github.com/aretw0/pdfledger/pkg/pointer"
	"github.com/spf13/cobra"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile again whenever the labels or the latest inventory change",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		svc, cfg := openService()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		run := func(ctx context.Context, path string) error {
			slog.Info("change detected", "path", path)
			snap, _, err := readSnapshot(cfg, inventoryRef)
			if err != nil {
				return err
			}
			res, err := svc.Reconcile(ctx, snap)
			if err != nil {
				return err
			}
			printReconciliation(res.Report)
			if reportPath != "" {
				return writeReport(reportPath, res.Report)
			}
			return nil
		}

		files := []string{cfg.LabelsFile}
		invPointer := filepath.Join(cfg.OutputsRoot, "inventory", pointer.FileName)
		if _, err := os.Stat(filepath.Dir(invPointer)); err == nil {
			files = append(files, invPointer)
		} else {
			slog.Warn("inventory directory missing, only watching labels", "dir", filepath.Dir(invPointer))
		}

		if err := run(ctx, cfg.LabelsFile); err != nil {
			fatal("Failed to reconcile", err)
		}

		src := lifecycle.NewSource(files, watchDebounce, slog.Default())
		if err := src.Start(ctx); err != nil {
			fatal("Failed to start watcher", err)
		}
		fmt.Printf("Watching %d files, press Ctrl+C to stop\n", len(files))

		for ev := range src.Events() {
			change, ok := ev.(lifecycle.ChangeEvent)
			if !ok {
				continue
			}
			if err := run(ctx, change.Path); err != nil {
				slog.Error("reconcile failed", "error", err)
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&inventoryRef, "inventory", "LATEST", "Inventory run id, table path or LATEST")
	watchCmd.Flags().StringVar(&reportPath, "report", "", "Rewrite this .json or .yaml report on every change")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", fs.DefaultDebounce, "Quiet period before a change is handled")
	rootCmd.AddCommand(watchCmd)
}
