package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <rel_path>",
	Short: "Show the label recorded for a document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, _ := openService()

		rec, err := svc.Label(context.Background(), core.StableKey(args[0]))
		if errors.Is(err, core.ErrLabelNotFound) {
			fmt.Fprintln(os.Stderr, warnf("%v", err))
			os.Exit(2)
		}
		if err != nil {
			fatal("Failed to read label", err)
		}
		fmt.Println(renderTable([]string{string(rec.Key), ""}, labelRows(rec), nil))
	},
}

func labelRows(rec core.LabelRecord) [][]string {
	rows := [][]string{
		{"label_raw", rec.LabelRaw},
		{"label_norm", string(rec.LabelNorm)},
	}
	if !rec.CreatedAt.IsZero() {
		rows = append(rows, []string{"created_at", rec.CreatedAt.Format(time.RFC3339)})
	}
	if !rec.UpdatedAt.IsZero() {
		rows = append(rows, []string{"updated_at", rec.UpdatedAt.Format(time.RFC3339)})
	}
	keys := make([]string, 0, len(rec.Extra))
	for k := range rec.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, []string{k, rec.Extra[k]})
	}
	return rows
}

func init() {
	rootCmd.AddCommand(showCmd)
}
