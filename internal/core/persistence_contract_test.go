package core

import (
	"go/types"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestKeyedStoreImplementationsHardening ensures only sanctioned persistence
// packages provide concrete implementations of the domain.KeyedStore
// interface. This guards architectural drift from introducing additional
// backends outside the vetted locations without an explicit test update.
func TestKeyedStoreImplementationsHardening(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes, Tests: true}
	pkgs, err := packages.Load(cfg, "stockcore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	// Locate the KeyedStore interface type from the domain package.
	var keyedStore *types.Interface
	for _, p := range pkgs {
		if p.PkgPath == "stockcore/pkg/domain" {
			obj := p.Types.Scope().Lookup("KeyedStore")
			if obj == nil {
				t.Fatalf("domain.KeyedStore not found")
			}
			iface, ok := obj.Type().Underlying().(*types.Interface)
			if !ok {
				t.Fatalf("domain.KeyedStore is not an interface")
			}
			keyedStore = iface
		}
	}
	if keyedStore == nil {
		t.Fatalf("failed to resolve KeyedStore interface")
	}
	allowed := map[string]struct{}{
		"stockcore/internal/infra/keyed/memory":   {},
		"stockcore/internal/infra/keyed/sqlite":   {},
		"stockcore/internal/infra/keyed/postgres": {},
		"stockcore/internal/infra/keyed/mysql":    {},
		"stockcore/internal/infra/keyed/redis":    {},
	}
	var unexpected []string
	for _, p := range pkgs {
		if p.Types == nil || p.Types.Scope() == nil {
			continue
		}
		// Test variants may carry store fakes; only production packages are guarded.
		if strings.HasSuffix(p.PkgPath, "_test") || strings.Contains(p.ID, ".test") {
			continue
		}
		for _, name := range p.Types.Scope().Names() {
			obj := p.Types.Scope().Lookup(name)
			named, ok := obj.Type().(*types.Named)
			if !ok {
				continue
			}
			if _, ok := named.Underlying().(*types.Struct); !ok {
				continue
			}
			if types.Implements(types.NewPointer(named), keyedStore) {
				if _, ok := allowed[p.PkgPath]; !ok {
					unexpected = append(unexpected, p.PkgPath+"."+name)
				}
			}
		}
	}
	if len(unexpected) > 0 {
		_, file, line, _ := runtime.Caller(0)
		t.Fatalf("unexpected KeyedStore implementations (update allowed list intentionally if adding a new backend):\nfile=%s:%d\n%s", filepath.Base(file), line, unexpected)
	}
}
