package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/aretw0/pdfledger/pkg/adapters/fs"
	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/inventory"
	"github.com/aretw0/pdfledger/pkg/ledger"
	"github.com/aretw0/pdfledger/pkg/pointer"
	"github.com/spf13/cobra"
)

// Tables looked up next to the inventory table when no flag names them.
const (
	readinessFile   = "readiness.csv"
	predictionsFile = "predictions.csv"
	featuresFile    = "features.csv"
	decisionsFile   = "decisions.csv"
	summaryFile     = "summary.json"
)

var (
	decideReadiness   string
	decidePredictions string
	decideFeatures    string
	decideModel       string
	decideNoModel     bool
	decideMinConf     float64
	decideLabel       string
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Produce one final classification per document",
	Long: `Fuse human labels, model predictions and the readiness heuristic into one
decision per inventory document. A human label always wins; model predictions
are used when confident enough; the heuristic fills the rest.

Decisions are written to <outputs>/decisions/<run>/ and the decisions LATEST
pointer is moved to the new run.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		svc, cfg := openService()
		snap, invPath := loadSnapshot(cfg, inventoryRef)

		req := ledger.DecideRequest{
			Snapshot: snap,
			Policy:   cfg.Policy(),
			ModelRef: cfg.Fusion.Model,
		}
		if decideModel != "" {
			req.ModelRef = decideModel
		}
		if decideNoModel {
			req.Policy.ModelEnabled = false
		}
		if cmd.Flags().Changed("min-confidence") {
			if decideMinConf < 0 || decideMinConf > 1 {
				fatal("Invalid --min-confidence", fmt.Errorf("%v is outside [0,1]", decideMinConf))
			}
			req.Policy.MinModelConfidence = decideMinConf
		}

		if path := firstExisting(decideReadiness, sibling(invPath, readinessFile)); path != "" {
			readiness, errs, err := inventory.LoadReadiness(path)
			if err != nil {
				fatal("Failed to read readiness table", err)
			}
			logSkipped("readiness", errs)
			req.Readiness = readiness
		}
		if path := firstExisting(decidePredictions, sibling(invPath, predictionsFile)); path != "" {
			preds, errs, err := inventory.LoadPredictions(path, req.ModelRef)
			if err != nil {
				fatal("Failed to read predictions table", err)
			}
			logSkipped("predictions", errs)
			req.Predictions = preds
		}
		if req.Predictions == nil {
			if path := firstExisting(decideFeatures, sibling(invPath, featuresFile)); path != "" {
				features, errs, err := inventory.LoadFeatures(path)
				if err != nil {
					fatal("Failed to read features table", err)
				}
				logSkipped("features", errs)
				req.Features = features
			}
		}

		res, err := svc.DecideAll(context.Background(), req)
		if err != nil {
			fatal("Failed to decide", err)
		}

		runID := pointer.NewRunID("decisions", decideLabel, time.Now())
		runDir := filepath.Join(cfg.OutputsRoot, "decisions", runID)
		if err := os.MkdirAll(runDir, 0755); err != nil {
			fatal("Failed to create run directory", err)
		}
		if err := fs.WriteDecisions(filepath.Join(runDir, decisionsFile), res.Decisions); err != nil {
			fatal("Failed to write decisions", err)
		}
		if err := fs.WriteReport(filepath.Join(runDir, summaryFile), res.Summary); err != nil {
			fatal("Failed to write summary", err)
		}
		rel, err := filepath.Rel(cfg.OutputsRoot, runDir)
		if err != nil {
			rel = runDir
		}
		err = pointer.Write(filepath.Join(cfg.OutputsRoot, "decisions"), pointer.Record{
			ID:        runID,
			Path:      filepath.ToSlash(rel),
			UpdatedAt: time.Now().UTC(),
			Extra: map[string]string{
				"run_uuid":    res.Summary.RunID,
				"snapshot_id": snap.ID,
			},
		})
		if err != nil {
			fatal("Failed to update decisions pointer", err)
		}

		for _, e := range res.Errors {
			slog.Warn("document not decided", "error", e)
		}
		for _, w := range res.Summary.Warnings {
			fmt.Println(warnf("warning: %s", w))
		}
		printSummary(res.Summary.Documents, res.Summary.Decided, res.Summary.Skipped, res.Summary.Errored, res.Summary.ByProvenance)
		fmt.Printf("Decisions written to %s\n", runDir)
	},
}

func printSummary(docs, decided, skipped, errored int, by map[core.Provenance]int) {
	rows := [][]string{
		{"documents", strconv.Itoa(docs)},
		{"decided", strconv.Itoa(decided)},
	}
	provs := make([]string, 0, len(by))
	for p := range by {
		provs = append(provs, string(p))
	}
	sort.Strings(provs)
	for _, p := range provs {
		rows = append(rows, []string{"  " + p, strconv.Itoa(by[core.Provenance(p)])})
	}
	rows = append(rows,
		[]string{"skipped", strconv.Itoa(skipped)},
		[]string{"errored", strconv.Itoa(errored)},
	)
	fmt.Println(renderTable([]string{"Decisions", ""}, rows, []columnAlignment{alignLeft, alignRight}))
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p != "" {
			return p
		}
	}
	return ""
}

func logSkipped(table string, errs []core.ItemError) {
	for _, e := range errs {
		slog.Warn("row skipped", "table", table, "error", e)
	}
}

func init() {
	flags := decideCmd.Flags()
	flags.StringVar(&inventoryRef, "inventory", "LATEST", "Inventory run id, table path or LATEST")
	flags.StringVar(&decideReadiness, "readiness", "", "Readiness table (default: readiness.csv next to the inventory)")
	flags.StringVar(&decidePredictions, "predictions", "", "Precomputed predictions table (default: predictions.csv next to the inventory)")
	flags.StringVar(&decideFeatures, "features", "", "Feature table for the model (default: features.csv next to the inventory)")
	flags.StringVar(&decideModel, "model", "", "Model id, directory or LATEST (overrides fusion.model)")
	flags.BoolVar(&decideNoModel, "no-model", false, "Skip the model stage")
	flags.Float64Var(&decideMinConf, "min-confidence", 0, "Minimum model confidence (overrides fusion.min_model_confidence)")
	flags.StringVar(&decideLabel, "run-label", "", "Label prefixed to the run id")
	rootCmd.AddCommand(decideCmd)
}
