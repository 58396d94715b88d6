package analysis

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/rajarajane97/mastt/internal/log"
)

// writeTree creates files (with trivial content) under root.
func writeTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("x\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

func TestFullAnalysisStructure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"main.go",
		"internal/server/handler.go",
		"internal/server/handler_test.go",
		"db/migrations/001_init.sql",
		"web/src/App.tsx",
		"README.md",
		".git/config",
		"node_modules/dep/index.js",
	)

	a := New(root, log.NewNop())
	result, err := a.FullAnalysis(context.Background())
	if err != nil {
		t.Fatalf("FullAnalysis: %v", err)
	}

	// .git and node_modules are skipped entirely.
	if result.Structure.TotalFiles != 6 {
		t.Errorf("total files = %d, want 6", result.Structure.TotalFiles)
	}
	if !slices.Contains(result.Structure.Languages, "Go") {
		t.Errorf("languages = %v, want Go included", result.Structure.Languages)
	}
	if !slices.Contains(result.Structure.Languages, "JavaScript/TypeScript") {
		t.Errorf("languages = %v, want JavaScript/TypeScript included", result.Structure.Languages)
	}
	if len(result.Structure.TestFiles) != 1 {
		t.Errorf("test files = %v, want one", result.Structure.TestFiles)
	}
	if !slices.Contains(result.Structure.EntryPoints, "main.go") {
		t.Errorf("entry points = %v, want main.go", result.Structure.EntryPoints)
	}
}

func TestFullAnalysisDetectsSurfaces(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"internal/api/handler.go",
		"db/migrations/001_init.sql",
		"cmd/tool/main.go",
		"web/src/LoginComponent.tsx",
	)

	result, err := New(root, nil).FullAnalysis(context.Background())
	if err != nil {
		t.Fatalf("FullAnalysis: %v", err)
	}

	tt := result.TestTypes
	if !tt.Backend.API || !tt.Backend.Database || !tt.Backend.CLI {
		t.Errorf("backend = %+v, want all true", tt.Backend)
	}
	if !tt.Frontend.GUI || !tt.Frontend.Components {
		t.Errorf("frontend = %+v, want all true", tt.Frontend)
	}
	// Both sides present enables integration and E2E.
	if !tt.Integration || !tt.E2E {
		t.Errorf("integration/e2e = %v/%v, want true", tt.Integration, tt.E2E)
	}
	if !result.Summary.RequiresBackendTesting || !result.Summary.RequiresE2ETesting {
		t.Errorf("summary = %+v", result.Summary)
	}
}

func TestFullAnalysisBackendOnly(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "internal/api/handler.go")

	result, err := New(root, nil).FullAnalysis(context.Background())
	if err != nil {
		t.Fatalf("FullAnalysis: %v", err)
	}
	if result.TestTypes.Integration || result.TestTypes.E2E {
		t.Error("integration/e2e require both backend and frontend surfaces")
	}
	if result.Summary.RequiresFrontendTesting {
		t.Error("no frontend surface expected")
	}
}

func TestFullAnalysisMissingPath(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "nope"), nil)
	if _, err := a.FullAnalysis(context.Background()); err == nil {
		t.Fatal("expected error for missing repository path")
	}
}

func TestAnalysisSave(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "main.go")

	result, err := New(root, nil).FullAnalysis(context.Background())
	if err != nil {
		t.Fatalf("FullAnalysis: %v", err)
	}

	out := t.TempDir()
	if err := result.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(out, "code_analysis.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var loaded Analysis
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if loaded.Summary.TotalFiles != 1 {
		t.Errorf("round-tripped total files = %d, want 1", loaded.Summary.TotalFiles)
	}
}
