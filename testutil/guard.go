// Package testutil provides test helpers that enforce import boundaries
// between the layers of the module.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// ImportRule forbids importing Forbidden, or any package below it, from
// packages outside Allowed.
type ImportRule struct {
	Forbidden string
	Allowed   []string
	Reason    string
}

var loadPackages = func(pattern string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	return packages.Load(cfg, pattern)
}

// AssertImportRules loads pattern (e.g. "qitp/...") including test variants
// and fails the test for every import that breaks one of rules.
func AssertImportRules(t testing.TB, pattern string, rules ...ImportRule) {
	t.Helper()
	pkgs, err := loadPackages(pattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	failIfViolations(t, "import rules", importRuleViolations(pkgs, rules))
}

// AssertNoDirectImports scans the non-test .go files in dir and fails if any
// import path satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfViolations(t, reason, viols)
}

// InternalImportForbidden matches any import path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// Under reports whether importPath is prefix or a package below it.
func Under(importPath, prefix string) bool {
	return importPath == prefix || strings.HasPrefix(importPath, prefix+"/")
}

func importRuleViolations(pkgs []*packages.Package, rules []ImportRule) []string {
	seen := make(map[string]struct{})
	for _, rule := range rules {
		for _, pkg := range pkgs {
			if underAny(pkg.PkgPath, rule.Allowed) {
				continue
			}
			for importPath := range pkg.Imports {
				if !Under(importPath, rule.Forbidden) {
					continue
				}
				v := pkg.PkgPath + ": " + importPath
				if rule.Reason != "" {
					v += " (" + rule.Reason + ")"
				}
				seen[v] = struct{}{}
			}
		}
	}
	viols := make([]string, 0, len(seen))
	for v := range seen {
		viols = append(viols, v)
	}
	sort.Strings(viols)
	return viols
}

func underAny(pkgPath string, prefixes []string) bool {
	// test variants are reported as "path [path.test]" or "path_test"
	pkgPath, _, _ = strings.Cut(pkgPath, " ")
	pkgPath = strings.TrimSuffix(pkgPath, "_test")
	for _, p := range prefixes {
		if Under(pkgPath, p) {
			return true
		}
	}
	return false
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
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
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
