package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var recoverDryRun bool

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Re-attach legacy labels that lost their rel_path",
	Long: `Match labels without a rel_path to the inventory by the document id or
digest recorded when they were made. A label is only re-attached when exactly
one unlabeled document matches.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		svc, cfg := openService()
		snap, _ := loadSnapshot(cfg, inventoryRef)

		res, err := svc.RecoverKeys(context.Background(), snap, recoverDryRun)
		if err != nil {
			fatal("Failed to recover keys", err)
		}

		rows := make([][]string, 0, len(res.Recovered))
		for _, r := range res.Recovered {
			rows = append(rows, []string{strconv.Itoa(r.Index), string(r.Key), r.By})
		}
		if len(rows) > 0 {
			fmt.Println(renderTable([]string{"row", "rel_path", "matched by"}, rows, []columnAlignment{alignRight}))
		}
		if len(res.Unresolved) > 0 {
			fmt.Println(warnf("warning: %d rows could not be matched", len(res.Unresolved)))
		}
		if recoverDryRun {
			fmt.Printf("%d rows would be recovered (dry run)\n", len(res.Recovered))
			return
		}
		fmt.Printf("%s %d rows\n", okf("recovered"), len(res.Recovered))
	},
}

func init() {
	recoverCmd.Flags().StringVar(&inventoryRef, "inventory", "LATEST", "Inventory run id, table path or LATEST")
	recoverCmd.Flags().BoolVar(&recoverDryRun, "dry-run", false, "Report the matches without writing")
	rootCmd.AddCommand(recoverCmd)
}
