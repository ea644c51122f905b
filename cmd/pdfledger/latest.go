package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/aretw0/pdfledger/pkg/pointer"
	"github.com/spf13/cobra"
)

var latestCmd = &cobra.Command{
	Use:   "latest <family>",
	Short: "Show the latest run of a family (inventory, decisions, models/doc_type)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("Failed to load config", err)
		}

		dir := filepath.Join(cfg.OutputsRoot, filepath.FromSlash(args[0]))
		rec, err := pointer.Read(dir)
		if err != nil {
			fatal("Failed to read pointer", err)
		}

		rows := [][]string{
			{"id", rec.ID},
			{"path", rec.Resolve(cfg.OutputsRoot)},
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
		fmt.Println(renderTable([]string{args[0], ""}, rows, nil))
	},
}

func init() {
	rootCmd.AddCommand(latestCmd)
}
