package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/model"
	"github.com/aretw0/pdfledger/pkg/pointer"
)

// execute runs the root command with args and resets the flag globals
// afterwards, since cobra binds them once per process.
func execute(t *testing.T, args ...string) {
	t.Helper()
	t.Cleanup(func() {
		verbose, configPath, labelsPath, outputsRoot, backend, readOnly = false, "", "", "", "", false
		inventoryRef, reportPath, noReport = "LATEST", "", false
		labelOverwrite, migrateDryRun, recoverDryRun, decideNoModel = false, false, false, false
		labelNotes, explainFeatures, explainModel, explainTop = "", "", "", 5
	})
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pdfledger.yaml"), "outputs_root: outputs\nlabels_file: labels/doc_type_labels.csv\n")

	runDir := filepath.Join(dir, "outputs", "inventory", "inv_001")
	writeFile(t, filepath.Join(runDir, "inventory.csv"),
		"rel_path,sha256,size_bytes\ncase/a.pdf,aaa,10\ncase/b.pdf,bbb,20\nnotes.txt,ccc,3\n")
	writeFile(t, filepath.Join(runDir, "readiness.csv"),
		"rel_path,text_coverage_pct,avg_text_chars_per_page,page_count,classification\ncase/b.pdf,0,0,4,Scanned\n")
	require.NoError(t, pointer.Write(filepath.Join(dir, "outputs", "inventory"), pointer.Record{
		ID:   "inv_001",
		Path: "inventory/inv_001",
	}))
	return dir
}

func TestLabelAndReconcile(t *testing.T) {
	dir := workspace(t)
	cfg := filepath.Join(dir, "pdfledger.yaml")

	execute(t, "--config", cfg, "label", `case\a.pdf`, "TEXT")

	report := filepath.Join(dir, "reports", "reconcile.json")
	execute(t, "--config", cfg, "reconcile", "--report", report)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var got core.ReconciliationReport
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "inv_001", got.SnapshotID)
	assert.Equal(t, 2, got.InventoryEntries, "non-pdf entries are filtered out")
	assert.Equal(t, 1, got.Active)
	assert.Equal(t, 1, got.UnlabeledDocs)
}

func TestReconcile_DefaultReport(t *testing.T) {
	dir := workspace(t)
	cfg := filepath.Join(dir, "pdfledger.yaml")

	execute(t, "--config", cfg, "reconcile")

	reports, err := filepath.Glob(filepath.Join(dir, "outputs", "labels", "label_reconciliation_*.json"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	data, err := os.ReadFile(reports[0])
	require.NoError(t, err)
	var got core.ReconciliationReport
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "inv_001", got.SnapshotID)

	at := time.Date(2024, 6, 1, 8, 30, 5, 0, time.FixedZone("X", 3600))
	assert.Equal(t, filepath.Join("out", "labels", "label_reconciliation_20240601T073005Z.json"), defaultReportPath("out", at))
}

func TestReconcile_NoReport(t *testing.T) {
	dir := workspace(t)

	execute(t, "--config", filepath.Join(dir, "pdfledger.yaml"), "reconcile", "--no-report")

	_, err := os.Stat(filepath.Join(dir, "outputs", "labels"))
	assert.True(t, os.IsNotExist(err))
}

func TestShow(t *testing.T) {
	dir := workspace(t)
	cfg := filepath.Join(dir, "pdfledger.yaml")
	execute(t, "--config", cfg, "label", "case/a.pdf", "TEXT", "--notes", "checked")

	svc, _ := openService()
	rec, err := svc.Label(context.Background(), "case/a.pdf")
	require.NoError(t, err)
	assert.Contains(t, renderTable([]string{"case/a.pdf", ""}, labelRows(rec), nil), "checked")

	_, err = svc.Label(context.Background(), "case/b.pdf")
	assert.True(t, errors.Is(err, core.ErrLabelNotFound))
	closeService()
	assert.Nil(t, opened)
}

func TestExplain(t *testing.T) {
	dir := workspace(t)
	writeFile(t, filepath.Join(dir, "outputs", "inventory", "inv_001", featuresFile), "rel_path,text_coverage\ncase/a.pdf,1.0\n")
	modelDir := filepath.Join(dir, "outputs", "models", "doc_type", "doc_type_001")
	writeFile(t, filepath.Join(modelDir, model.ArtifactFile), `{
  "model_id": "doc_type_001",
  "classes": ["TEXT", "IMAGE", "MIXED"],
  "feature_names": ["text_coverage"],
  "coefficients": [[4], [-4], [0]],
  "intercepts": [0, 0, 0]
}`)

	execute(t, "--config", filepath.Join(dir, "pdfledger.yaml"), "explain", "case/a.pdf", "--model", "doc_type_001", "--top", "1")
}

func TestDecide(t *testing.T) {
	dir := workspace(t)
	cfg := filepath.Join(dir, "pdfledger.yaml")

	execute(t, "--config", cfg, "label", "case/a.pdf", "TEXT")
	execute(t, "--config", cfg, "decide", "--run-label", "test")

	rec, err := pointer.Read(filepath.Join(dir, "outputs", "decisions"))
	require.NoError(t, err)
	assert.Contains(t, rec.ID, "test_decisions_")
	assert.Equal(t, "inv_001", rec.Extra["snapshot_id"])

	f, err := os.Open(filepath.Join(rec.Resolve(filepath.Join(dir, "outputs")), decisionsFile))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"rel_path", "doc_type", "provenance", "confidence", "model_id"},
		{"case/a.pdf", "TEXT", "human", "", ""},
		{"case/b.pdf", "IMAGE", "heuristic", "", ""},
	}, rows)
}

func TestMigrateDryRunLeavesStore(t *testing.T) {
	dir := workspace(t)
	labels := filepath.Join(dir, "labels", "doc_type_labels.csv")
	writeFile(t, labels, "rel_path,label_raw,label_norm,created_at,updated_at\ncase/a.pdf,TEXT_PDF,TEXT_PDF,2024-01-01T00:00:00Z,2024-01-01T00:00:00Z\n")
	before, err := os.ReadFile(labels)
	require.NoError(t, err)

	execute(t, "--config", filepath.Join(dir, "pdfledger.yaml"), "migrate", "--dry-run")

	after, err := os.ReadFile(labels)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestHelpers(t *testing.T) {
	dir := t.TempDir()
	inv := filepath.Join(dir, "inventory.csv")
	writeFile(t, filepath.Join(dir, readinessFile), "rel_path\n")

	assert.Equal(t, filepath.Join(dir, readinessFile), sibling(inv, readinessFile))
	assert.Empty(t, sibling(inv, featuresFile))
	assert.Equal(t, "b", firstExisting("", "b", "c"))
	assert.Empty(t, renderTable(nil, nil, nil))
	assert.Contains(t, renderTable([]string{"k", "v"}, [][]string{{"only"}}, nil), "only")
}
