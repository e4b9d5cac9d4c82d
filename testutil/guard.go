// Package testutil holds test helpers that enforce package boundary
// invariants across the repository.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoDirectImports parses every non-test .go file in dir and fails the
// test if any import path satisfies the forbidden predicate. Subdirectories
// are not scanned and build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
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
			t.Fatalf("parse %s: %v", name, err)
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// CoreImportForbidden matches import paths inside the service core. Storage
// drivers and adapters below the core must not reach back into it.
func CoreImportForbidden(path string) bool {
	return path == "stockcore/internal/core" || strings.HasPrefix(path, "stockcore/internal/core/")
}

// InternalImportForbidden matches any import path containing an internal
// segment. The domain package must stay importable from anywhere.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}
