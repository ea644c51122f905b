package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace markers, in lookup order. The first config file found in a
// directory is the one loaded.
var (
	ConfigFiles = []string{"pdfledger.yaml", "pdfledger.yml", "pdfledger.toml"}
	MarkerDir   = ".pdfledger"
)

// FindRoot recursively looks upwards for a workspace root indicator.
// Indicators are a pdfledger config file or a .pdfledger directory.
// If found, returns the absolute path to the root.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, MarkerDir) || configIn(dir) != "" {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("root not found")
}

// FindConfig returns the config file of the workspace containing startDir,
// or "" when the workspace has none.
func FindConfig(startDir string) (string, error) {
	root, err := FindRoot(startDir)
	if err != nil {
		return "", err
	}
	return configIn(root), nil
}

func configIn(dir string) string {
	for _, name := range ConfigFiles {
		if hasFile(dir, name) {
			return filepath.Join(dir, name)
		}
	}
	return ""
}

func hasFile(dir, name string) bool {
	path := filepath.Join(dir, name)
	_, err := os.Stat(path)
	return err == nil
}
