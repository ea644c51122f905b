package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindRoot(t *testing.T) {
	// /tmp/
	//   repo/ (.pdfledger)
	//     subdir/
	//       nested/
	//   configured/ (pdfledger.toml)
	//   empty/

	baseDir := t.TempDir()
	repoDir := filepath.Join(baseDir, "repo")
	subDir := filepath.Join(repoDir, "subdir")
	nestedDir := filepath.Join(subDir, "nested")
	configuredDir := filepath.Join(baseDir, "configured")
	emptyDir := filepath.Join(baseDir, "empty")

	for _, dir := range []string{nestedDir, configuredDir, emptyDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}

	if err := os.Mkdir(filepath.Join(repoDir, MarkerDir), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(configuredDir, "pdfledger.toml"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		startPath string
		wantRoot  string
		wantErr   bool
	}{
		{
			name:      "Start at Root",
			startPath: repoDir,
			wantRoot:  repoDir,
		},
		{
			name:      "Start in Subdir",
			startPath: subDir,
			wantRoot:  repoDir,
		},
		{
			name:      "Start Nested Deeply",
			startPath: nestedDir,
			wantRoot:  repoDir,
		},
		{
			name:      "Config File Marks Root",
			startPath: configuredDir,
			wantRoot:  configuredDir,
		},
		{
			name:      "No Root Found",
			startPath: emptyDir,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindRoot(tt.startPath)
			if (err != nil) != tt.wantErr {
				t.Errorf("FindRoot() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if got != "" && filepath.Clean(got) != filepath.Clean(tt.wantRoot) {
				t.Errorf("FindRoot() = %v, want %v", got, tt.wantRoot)
			}
		})
	}
}

func TestFindConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, MarkerDir), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindConfig(dir)
	if err != nil {
		t.Fatalf("FindConfig() error = %v", err)
	}
	if got != "" {
		t.Errorf("expected no config file, got %s", got)
	}

	// yaml wins over toml when both exist
	for _, name := range []string{"pdfledger.toml", "pdfledger.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	got, err = FindConfig(filepath.Join(dir, MarkerDir))
	if err != nil {
		t.Fatalf("FindConfig() error = %v", err)
	}
	if filepath.Base(got) != "pdfledger.yaml" {
		t.Errorf("FindConfig() = %s, want pdfledger.yaml", got)
	}
}
