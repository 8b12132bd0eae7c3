// Package testutil holds test helpers that enforce package boundaries.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// InternalImport matches any import path under an internal/ directory.
func InternalImport(path string) bool {
	return strings.Contains(path, "/internal/")
}

// InfraImport matches the concrete storage and blob driver packages, which
// only the wiring layers may import directly.
func InfraImport(path string) bool {
	return strings.Contains(path, "/internal/infra/")
}

// AssertNoDirectImports fails t when a non-test .go file in dir imports a
// path matched by forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func directImportViolations(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}
