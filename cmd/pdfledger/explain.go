package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/inventory"
	"github.com/spf13/cobra"
)

var (
	explainFeatures string
	explainModel    string
	explainTop      int
)

var explainCmd = &cobra.Command{
	Use:   "explain <rel_path>",
	Short: "Show which features drove the model prediction for a document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cfg := openService()

		path := explainFeatures
		if path == "" {
			_, invPath := loadSnapshot(cfg, inventoryRef)
			path = sibling(invPath, featuresFile)
		}
		if path == "" {
			fatal("Failed to explain", fmt.Errorf("no %s next to the inventory; pass --features", featuresFile))
		}
		features, errs, err := inventory.LoadFeatures(path)
		if err != nil {
			fatal("Failed to read features table", err)
		}
		logSkipped("features", errs)

		ref := cfg.Fusion.Model
		if explainModel != "" {
			ref = explainModel
		}
		ex, err := svc.Explain(context.Background(), ref, features, core.StableKey(args[0]), explainTop)
		if err != nil {
			fatal("Failed to explain", err)
		}

		fmt.Printf("%s %s -> %s (%.2f, model %s)\n", okf("predicted"), ex.Key, ex.Prediction.Class, ex.Prediction.Confidence, ex.ModelID)
		rows := make([][]string, 0, len(ex.Reasons))
		for _, r := range ex.Reasons {
			rows = append(rows, []string{
				r.Feature,
				strconv.FormatFloat(r.Value, 'g', 6, 64),
				strconv.FormatFloat(r.Contribution, 'f', 4, 64),
			})
		}
		fmt.Println(renderTable([]string{"Feature", "Value", "Contribution"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
	},
}

func init() {
	explainCmd.Flags().StringVar(&explainFeatures, "features", "", "Feature table (default: features.csv next to the inventory)")
	explainCmd.Flags().StringVar(&explainModel, "model", "", "Model run id or LATEST (overrides fusion.model)")
	explainCmd.Flags().IntVar(&explainTop, "top", 5, "Number of features to list; 0 lists all")
	explainCmd.Flags().StringVar(&inventoryRef, "inventory", "LATEST", "Inventory run id, table path or LATEST")
	rootCmd.AddCommand(explainCmd)
}
