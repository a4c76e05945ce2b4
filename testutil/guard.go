// Package testutil holds shared helpers for architecture boundary tests.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// InternalImportForbidden matches import paths inside any internal tree.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// InfraImportForbidden matches import paths reaching the infra layer.
func InfraImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/infra/")
}

// AssertNoTransitiveDependency fails the test when `go list -deps pattern`
// reports any package matched by forbidden. The reason is included in the
// failure message so the offending boundary is named.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	out, err := exec.Command("go", "list", "-deps", pattern).CombinedOutput()
	if err != nil {
		t.Fatalf("go list -deps %s: %v\n%s", pattern, err, out)
	}
	var hits []string
	for line := range strings.Lines(string(out)) {
		pkg := strings.TrimSpace(line)
		if pkg != "" && forbidden(pkg) {
			hits = append(hits, pkg)
		}
	}
	if len(hits) > 0 {
		t.Fatalf("forbidden transitive dependency (%s):\n%s", reason, strings.Join(hits, "\n"))
	}
}

// AssertNoDirectImports parses every non-test .go file in dir and fails when
// an import path is matched by forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	fset := token.NewFileSet()
	var hits []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		parsed, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		for _, imp := range parsed.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				hits = append(hits, fmt.Sprintf("%s (in %s)", path, name))
			}
		}
	}
	if len(hits) > 0 {
		t.Fatalf("forbidden direct imports (%s):\n%s", reason, strings.Join(hits, "\n"))
	}
}
