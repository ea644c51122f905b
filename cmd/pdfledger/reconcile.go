package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/spf13/cobra"
)

var (
	inventoryRef string
	reportPath   string
	noReport     bool
	showOrphaned bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Report which labels match the current inventory",
	Long: `Reconcile the label store against an inventory snapshot and report active,
orphaned and drifted labels. The label store is never modified.

The report is written to <outputs>/labels/label_reconciliation_<UTC time>.json
unless --report names another file or --no-report is given.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		svc, cfg := openService()
		snap, _ := loadSnapshot(cfg, inventoryRef)

		res, err := svc.Reconcile(context.Background(), snap)
		if err != nil {
			fatal("Failed to reconcile", err)
		}

		printReconciliation(res.Report)
		if showOrphaned {
			for _, rec := range res.Orphaned {
				fmt.Printf("  orphaned: %s (%s)\n", rec.Key, rec.LabelRaw)
			}
		}
		if noReport {
			return
		}
		path := reportPath
		if path == "" {
			path = defaultReportPath(cfg.OutputsRoot, res.Report.GeneratedAt)
		}
		if err := writeReport(path, res.Report); err != nil {
			fatal("Failed to write report", err)
		}
		fmt.Printf("Report written to %s\n", path)
	},
}

// defaultReportPath names the reconciliation report of a run made at.
func defaultReportPath(outputs string, at time.Time) string {
	return filepath.Join(outputs, "labels", "label_reconciliation_"+at.UTC().Format("20060102T150405Z")+".json")
}

func printReconciliation(r core.ReconciliationReport) {
	rows := [][]string{
		{"snapshot", r.SnapshotID},
		{"inventory entries", strconv.Itoa(r.InventoryEntries)},
		{"labels", strconv.Itoa(r.TotalLabels)},
		{"active", strconv.Itoa(r.Active)},
		{"orphaned", strconv.Itoa(r.Orphaned)},
		{"unkeyed", strconv.Itoa(r.Unkeyed)},
		{"unlabeled documents", strconv.Itoa(r.UnlabeledDocs)},
		{"invalid entries", strconv.Itoa(r.InvalidEntries)},
		{"drifted", strconv.Itoa(len(r.Drift))},
	}
	fmt.Println(renderTable([]string{"Reconciliation", ""}, rows, []columnAlignment{alignLeft, alignRight}))

	if r.EmptySnapshot {
		fmt.Println(warnf("warning: the inventory snapshot is empty; every label is orphaned"))
	}
	if len(r.CollidingKeys) > 0 {
		fmt.Println(warnf("warning: %d keys are shared by several inventory entries", len(r.CollidingKeys)))
	}
}

func init() {
	reconcileCmd.Flags().StringVar(&inventoryRef, "inventory", "LATEST", "Inventory run id, table path or LATEST")
	reconcileCmd.Flags().StringVar(&reportPath, "report", "", "Write the report to this .json or .yaml file (default: <outputs>/labels/label_reconciliation_<time>.json)")
	reconcileCmd.Flags().BoolVar(&noReport, "no-report", false, "Do not write a report file")
	reconcileCmd.Flags().BoolVar(&showOrphaned, "orphaned", false, "List orphaned labels")
	rootCmd.AddCommand(reconcileCmd)
}
