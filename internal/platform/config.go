package platform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/pdfledger/pkg/fusion"
	"github.com/aretw0/pdfledger/pkg/heuristic"
	"github.com/aretw0/pdfledger/pkg/inventory"
)

// Config is the workspace configuration file.
type Config struct {
	OutputsRoot string               `yaml:"outputs_root" toml:"outputs_root"`
	LabelsFile  string               `yaml:"labels_file" toml:"labels_file"`
	Backend     string               `yaml:"backend" toml:"backend"`
	Versioning  bool                 `yaml:"versioning" toml:"versioning"`
	ReadOnly    bool                 `yaml:"read_only" toml:"read_only"`
	Inventory   InventoryConfig      `yaml:"inventory" toml:"inventory"`
	Fusion      FusionConfig         `yaml:"fusion" toml:"fusion"`
	Heuristic   heuristic.Thresholds `yaml:"heuristic" toml:"heuristic"`

	// Root is the directory relative paths are resolved against.
	Root string `yaml:"-" toml:"-"`
}

// InventoryConfig selects the documents taking part in a snapshot.
type InventoryConfig struct {
	Include []string `yaml:"include" toml:"include"`
}

// FusionConfig configures the model stage of decision fusion.
type FusionConfig struct {
	Model              string   `yaml:"model" toml:"model"`
	ModelEnabled       *bool    `yaml:"model_enabled" toml:"model_enabled"`
	MinModelConfidence *float64 `yaml:"min_model_confidence" toml:"min_model_confidence"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		OutputsRoot: "outputs",
		LabelsFile:  filepath.Join("labels", "doc_type_labels.csv"),
		Backend:     BackendCSV,
		Inventory:   InventoryConfig{Include: append([]string(nil), inventory.DefaultInclude...)},
		Fusion:      FusionConfig{Model: "LATEST"},
		Heuristic:   heuristic.DefaultThresholds(),
	}
}

// LoadConfig reads a YAML or TOML config file over the defaults. Relative
// paths are resolved against the file's directory.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format: %s", path)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return Config{}, err
	}
	cfg.Root = abs
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadWorkspace loads the config of the workspace containing dir. Without
// a workspace the defaults apply, relative to dir.
func LoadWorkspace(dir string) (Config, error) {
	path, err := FindConfig(dir)
	if err == nil && path != "" {
		return LoadConfig(path)
	}
	cfg := DefaultConfig()
	abs, absErr := filepath.Abs(dir)
	if absErr != nil {
		return Config{}, absErr
	}
	if root, rootErr := FindRoot(dir); rootErr == nil {
		abs = root
	}
	cfg.Root = abs
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendCSV
	}
	c.OutputsRoot = c.resolve(c.OutputsRoot)
	c.LabelsFile = c.resolve(c.LabelsFile)
	defaults := heuristic.DefaultThresholds()
	if c.Heuristic.TextCoverageText == 0 {
		c.Heuristic.TextCoverageText = defaults.TextCoverageText
	}
	if c.Heuristic.TextCoverageScanned == 0 {
		c.Heuristic.TextCoverageScanned = defaults.TextCoverageScanned
	}
	if c.Heuristic.MinCharsPerPage == 0 {
		c.Heuristic.MinCharsPerPage = defaults.MinCharsPerPage
	}
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendCSV, BackendSQLite:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendCSV, BackendSQLite, c.Backend)
	}
	if c.LabelsFile == "" {
		return fmt.Errorf("labels_file is required")
	}
	if c.Versioning && c.Backend == BackendSQLite {
		return fmt.Errorf("versioning is not supported by the %s backend", BackendSQLite)
	}
	if conf := c.Fusion.MinModelConfidence; conf != nil && (*conf < 0 || *conf > 1) {
		return fmt.Errorf("fusion.min_model_confidence must be within [0,1], got %v", *conf)
	}
	if err := (inventory.Filter{Include: c.Inventory.Include}).Validate(); err != nil {
		return fmt.Errorf("inventory.include: %w", err)
	}
	return nil
}

// Policy returns the fusion policy the config describes.
func (c Config) Policy() fusion.Policy {
	p := fusion.DefaultPolicy()
	if c.Fusion.ModelEnabled != nil {
		p.ModelEnabled = *c.Fusion.ModelEnabled
	}
	if c.Fusion.MinModelConfidence != nil {
		p.MinModelConfidence = *c.Fusion.MinModelConfidence
	}
	return p
}

// Options converts the config into service options.
func (c Config) Options() []Option {
	return []Option{
		WithBackend(c.Backend),
		WithVersioning(c.Versioning),
		WithAutoInit(c.Versioning),
		WithReadOnly(c.ReadOnly),
		WithOutputsRoot(c.OutputsRoot),
		WithHeuristicThresholds(c.Heuristic),
	}
}
