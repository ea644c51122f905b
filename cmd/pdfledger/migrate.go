package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateDryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Recompute normalized labels with the current taxonomy",
	Long: `Recompute label_norm for every label with the current taxonomy mapping.
The store is backed up before it is rewritten, and only when something changes.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		svc, _ := openService()

		report, err := svc.Migrate(context.Background(), migrateDryRun)
		if err != nil {
			fatal("Failed to migrate labels", err)
		}

		rows := make([][]string, 0, len(report.Changes))
		for _, c := range report.Changes {
			rows = append(rows, []string{string(c.Key), c.LabelRaw, c.From, string(c.To)})
		}
		if len(rows) > 0 {
			fmt.Println(renderTable([]string{"rel_path", "label_raw", "from", "to"}, rows, nil))
		}
		if report.Unknown > 0 {
			fmt.Println(warnf("warning: %d labels are not in the taxonomy", report.Unknown))
		}

		switch {
		case report.DryRun:
			fmt.Printf("%d of %d labels would change (dry run)\n", len(report.Changes), report.TotalLabels)
		case report.Written:
			fmt.Printf("%s %d labels, backup at %s\n", okf("migrated"), len(report.Changes), report.BackupPath)
		default:
			fmt.Println(okf("labels already normalized"))
		}

		if reportPath != "" {
			if err := writeReport(reportPath, report); err != nil {
				fatal("Failed to write report", err)
			}
		}
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Report the changes without writing")
	migrateCmd.Flags().StringVar(&reportPath, "report", "", "Write the report to this .json or .yaml file")
	rootCmd.AddCommand(migrateCmd)
}
