package main

import (
	"context"
	"fmt"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/spf13/cobra"
)

var (
	labelOverwrite    bool
	labelNotes        string
	labelInventoryRun string
	labelContentKey   string
)

var labelCmd = &cobra.Command{
	Use:   "label <rel_path> <label>",
	Short: "Record a human label for a document",
	Long: `Record a human document-type label for the document at rel_path.
The path is normalized into its stable key before it is stored. An existing
label is only replaced with --overwrite.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		svc, _ := openService()

		var opts []core.PutOption
		if labelNotes != "" {
			opts = append(opts, core.WithNotes(labelNotes))
		}
		if labelInventoryRun != "" {
			opts = append(opts, core.WithSourceInventoryRun(labelInventoryRun))
		}
		if labelContentKey != "" {
			opts = append(opts, core.WithContentKey(core.ContentKey(labelContentKey)))
		}

		rec, err := svc.ApplyLabel(context.Background(), core.StableKey(args[0]), args[1], labelOverwrite, opts...)
		if err != nil {
			fatal("Failed to label document", err)
		}
		fmt.Printf("%s %s -> %s\n", okf("labeled"), rec.Key, rec.LabelNorm)
	},
}

func init() {
	labelCmd.Flags().BoolVar(&labelOverwrite, "overwrite", false, "Replace an existing label")
	labelCmd.Flags().StringVar(&labelNotes, "notes", "", "Free-form notes stored with the label")
	labelCmd.Flags().StringVar(&labelInventoryRun, "inventory-run", "", "Inventory run the label was made against")
	labelCmd.Flags().StringVar(&labelContentKey, "content-key", "", "Content key of the document at labeling time")
	rootCmd.AddCommand(labelCmd)
}
