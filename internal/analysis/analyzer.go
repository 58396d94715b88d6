// Package analysis inspects a repository tree and derives what kinds of
// testing the project needs. The result seeds the context given to the
// planning agents.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rajarajane97/mastt/internal/log"
)

// skipDirs are directory names never descended into.
var skipDirs = map[string]struct{}{
	"node_modules": {},
	"vendor":       {},
	"venv":         {},
	"build":        {},
	"dist":         {},
	"__pycache__":  {},
	"target":       {},
}

// languageByExt maps file extensions to language labels.
var languageByExt = map[string]string{
	".py":   "Python",
	".js":   "JavaScript/TypeScript",
	".jsx":  "JavaScript/TypeScript",
	".ts":   "JavaScript/TypeScript",
	".tsx":  "JavaScript/TypeScript",
	".vue":  "JavaScript/TypeScript",
	".java": "Java",
	".go":   "Go",
	".rb":   "Ruby",
	".cs":   "C#",
	".rs":   "Rust",
	".php":  "PHP",
	".kt":   "Kotlin",
	".c":    "C",
	".cpp":  "C++",
	".sql":  "SQL",
}

// Structure describes the repository layout.
type Structure struct {
	Directories []string            `json:"directories"`
	FilesByType map[string][]string `json:"files_by_type"`
	TotalFiles  int                 `json:"total_files"`
	Languages   []string            `json:"languages"`
	TestFiles   []string            `json:"test_files"`
	EntryPoints []string            `json:"entry_points"`
}

// Backend flags the backend surfaces detected in the tree.
type Backend struct {
	API      bool `json:"api"`
	Database bool `json:"database"`
	CLI      bool `json:"cli"`
}

// Frontend flags the frontend surfaces detected in the tree.
type Frontend struct {
	GUI        bool `json:"gui"`
	Components bool `json:"components"`
}

// TestTypes lists the kinds of testing the repository calls for.
type TestTypes struct {
	Backend     Backend  `json:"backend"`
	Frontend    Frontend `json:"frontend"`
	Integration bool     `json:"integration"`
	E2E         bool     `json:"e2e"`
}

// Summary is the condensed result injected into agent context.
type Summary struct {
	TotalFiles                 int      `json:"total_files"`
	Languages                  []string `json:"languages"`
	RequiresBackendTesting     bool     `json:"requires_backend_testing"`
	RequiresFrontendTesting    bool     `json:"requires_frontend_testing"`
	RequiresIntegrationTesting bool     `json:"requires_integration_testing"`
	RequiresE2ETesting         bool     `json:"requires_e2e_testing"`
}

// Analysis is the full analyzer output.
type Analysis struct {
	RepositoryPath string    `json:"repository_path"`
	Structure      Structure `json:"structure"`
	TestTypes      TestTypes `json:"test_types"`
	Summary        Summary   `json:"summary"`
}

// Analyzer walks a local repository. Remote URLs must be cloned by the
// caller first.
type Analyzer struct {
	repoPath string
	logger   log.Logger
}

// New creates an Analyzer for the repository at path.
func New(repoPath string, logger log.Logger) *Analyzer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Analyzer{repoPath: repoPath, logger: logger}
}

// FullAnalysis walks the tree and derives structure, detected surfaces, and
// the summary. The context is checked between directories so a huge tree can
// be abandoned.
func (a *Analyzer) FullAnalysis(ctx context.Context) (*Analysis, error) {
	info, err := os.Stat(a.repoPath)
	if err != nil {
		return nil, fmt.Errorf("repository path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository path %s is not a directory", a.repoPath)
	}

	structure := Structure{FilesByType: map[string][]string{}}
	languages := map[string]struct{}{}

	err = filepath.WalkDir(a.repoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == a.repoPath {
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			if _, skip := skipDirs[name]; skip {
				return fs.SkipDir
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, _ := filepath.Rel(a.repoPath, path)
			structure.Directories = append(structure.Directories, rel)
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}

		rel, _ := filepath.Rel(a.repoPath, path)
		ext := filepath.Ext(name)
		structure.TotalFiles++
		structure.FilesByType[ext] = append(structure.FilesByType[ext], rel)
		if lang, ok := languageByExt[ext]; ok {
			languages[lang] = struct{}{}
		}
		if isTestFile(name) {
			structure.TestFiles = append(structure.TestFiles, rel)
		}
		if isEntryPoint(name) {
			structure.EntryPoints = append(structure.EntryPoints, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", a.repoPath, err)
	}

	structure.Languages = sortedKeys(languages)
	testTypes := detectTestTypes(structure)

	result := &Analysis{
		RepositoryPath: a.repoPath,
		Structure:      structure,
		TestTypes:      testTypes,
		Summary: Summary{
			TotalFiles:                 structure.TotalFiles,
			Languages:                  structure.Languages,
			RequiresBackendTesting:     testTypes.Backend.API || testTypes.Backend.Database || testTypes.Backend.CLI,
			RequiresFrontendTesting:    testTypes.Frontend.GUI || testTypes.Frontend.Components,
			RequiresIntegrationTesting: testTypes.Integration,
			RequiresE2ETesting:         testTypes.E2E,
		},
	}

	a.logger.Info("code analysis complete",
		"files", structure.TotalFiles,
		"languages", structure.Languages,
		"test_files", len(structure.TestFiles),
	)
	return result, nil
}

// Save writes the analysis as code_analysis.json under dir.
func (an *Analysis) Save(dir string) error {
	data, err := json.MarshalIndent(an, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling analysis: %w", err)
	}
	path := filepath.Join(dir, "code_analysis.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// detectTestTypes derives required test kinds from filename heuristics.
func detectTestTypes(structure Structure) TestTypes {
	var tt TestTypes
	for ext, files := range structure.FilesByType {
		for _, file := range files {
			lower := strings.ToLower(file)

			if containsAnyKeyword(lower, "api", "route", "endpoint", "controller", "handler") {
				tt.Backend.API = true
			}
			if containsAnyKeyword(lower, "model", "schema", "migration", "database", "db") {
				tt.Backend.Database = true
			}
			if containsAnyKeyword(lower, "cli", "command", "cmd") {
				tt.Backend.CLI = true
			}
			if ext == ".jsx" || ext == ".tsx" || ext == ".vue" || strings.Contains(lower, "component") {
				tt.Frontend.GUI = true
				tt.Frontend.Components = true
			}
		}
	}

	hasBackend := tt.Backend.API || tt.Backend.Database || tt.Backend.CLI
	hasFrontend := tt.Frontend.GUI || tt.Frontend.Components
	if hasBackend && hasFrontend {
		tt.Integration = true
		tt.E2E = true
	}
	return tt
}

func isTestFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "_test.go") ||
		strings.HasPrefix(lower, "test_") ||
		strings.HasSuffix(lower, "_test.py") ||
		strings.Contains(lower, ".spec.") ||
		strings.Contains(lower, ".test.")
}

func isEntryPoint(name string) bool {
	switch strings.ToLower(name) {
	case "main.go", "main.py", "index.js", "index.ts", "app.py", "manage.py":
		return true
	}
	return false
}

func containsAnyKeyword(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
