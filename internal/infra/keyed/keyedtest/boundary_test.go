package keyedtest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stockcore/testutil"
)

// Drivers sit below the service core. They may depend on the domain contract
// but never on the core package or any adapter above it.
func TestDriversStayBelowTheCore(t *testing.T) {
	root := filepath.Join("..")
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read driver root: %v", err)
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "keyedtest" {
			continue
		}
		dir := filepath.Join(root, e.Name())
		testutil.AssertNoDirectImports(t, dir, func(path string) bool {
			return testutil.CoreImportForbidden(path) ||
				strings.HasPrefix(path, "stockcore/internal/adapters/")
		}, "drivers must not import the core or adapters")
	}
}
