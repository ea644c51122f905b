package platform_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pdfledger/internal/platform"
	"github.com/aretw0/pdfledger/pkg/fusion"
	"github.com/aretw0/pdfledger/pkg/heuristic"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "pdfledger.yaml", `
outputs_root: out
labels_file: data/labels.csv
backend: SQLite
inventory:
  include: ["**/*.pdf", "**/*.PDF.gz"]
fusion:
  model_enabled: false
  min_model_confidence: 0.9
heuristic:
  min_chars_per_page: 50
`)

	cfg, err := platform.LoadConfig(path)
	require.NoError(t, err)

	root, _ := filepath.Abs(dir)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, filepath.Join(root, "out"), cfg.OutputsRoot)
	assert.Equal(t, filepath.Join(root, "data", "labels.csv"), cfg.LabelsFile)
	assert.Equal(t, platform.BackendSQLite, cfg.Backend)
	assert.Equal(t, []string{"**/*.pdf", "**/*.PDF.gz"}, cfg.Inventory.Include)

	assert.Equal(t, 50.0, cfg.Heuristic.MinCharsPerPage)
	assert.Equal(t, heuristic.DefaultThresholds().TextCoverageText, cfg.Heuristic.TextCoverageText)

	assert.Equal(t, fusion.Policy{ModelEnabled: false, MinModelConfidence: 0.9}, cfg.Policy())
}

func TestLoadConfig_TOML(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(t.TempDir(), "labels.csv")
	path := writeConfig(t, dir, "pdfledger.toml", `
labels_file = '`+abs+`'
versioning = true

[fusion]
model = "run-7"
`)

	cfg, err := platform.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, abs, cfg.LabelsFile, "absolute paths are kept")
	assert.True(t, cfg.Versioning)
	assert.Equal(t, "run-7", cfg.Fusion.Model)
	assert.Equal(t, platform.BackendCSV, cfg.Backend)
	assert.Equal(t, fusion.DefaultPolicy(), cfg.Policy())
}

func TestLoadConfig_Empty(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "pdfledger.yaml", "")

	cfg, err := platform.LoadConfig(path)
	require.NoError(t, err)

	root, _ := filepath.Abs(dir)
	assert.Equal(t, filepath.Join(root, "labels", "doc_type_labels.csv"), cfg.LabelsFile)
	assert.Equal(t, filepath.Join(root, "outputs"), cfg.OutputsRoot)
	assert.Equal(t, "LATEST", cfg.Fusion.Model)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"unknown yaml field", "pdfledger.yaml", "colour: red\n", "colour"},
		{"unknown toml field", "pdfledger.toml", "colour = 'red'\n", "parse config"},
		{"bad backend", "pdfledger.yaml", "backend: postgres\n", "backend must be"},
		{"versioned sqlite", "pdfledger.yaml", "backend: sqlite\nversioning: true\n", "versioning is not supported"},
		{"confidence out of range", "pdfledger.yaml", "fusion:\n  min_model_confidence: 1.5\n", "min_model_confidence"},
		{"bad include", "pdfledger.yaml", "inventory:\n  include: ['[']\n", "inventory.include"},
		{"unsupported format", "pdfledger.json", "{}", "unsupported config format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.file, tt.body)
			_, err := platform.LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadWorkspace(t *testing.T) {
	t.Run("Config In Parent", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "pdfledger.yaml", "labels_file: l.csv\n")
		sub := filepath.Join(dir, "a", "b")
		require.NoError(t, os.MkdirAll(sub, 0755))

		cfg, err := platform.LoadWorkspace(sub)
		require.NoError(t, err)

		root, _ := filepath.Abs(dir)
		assert.Equal(t, filepath.Join(root, "l.csv"), cfg.LabelsFile)
	})

	t.Run("Marker Without Config", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, platform.MarkerDir), 0755))
		sub := filepath.Join(dir, "docs")
		require.NoError(t, os.Mkdir(sub, 0755))

		cfg, err := platform.LoadWorkspace(sub)
		require.NoError(t, err)

		root, _ := filepath.Abs(dir)
		assert.Equal(t, root, cfg.Root)
		assert.Equal(t, filepath.Join(root, "labels", "doc_type_labels.csv"), cfg.LabelsFile)
	})
}
