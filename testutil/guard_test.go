package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"example.com/mod/internal/x", true},
		{"example.com/mod/pkg/x", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInfraImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"example.com/mod/internal/infra/persistence/sqlite", true},
		{"example.com/mod/internal/core", false},
		{"example.com/mod/pkg/domain", false},
	}
	for _, c := range cases {
		if got := InfraImportForbidden(c.in); got != c.want {
			t.Fatalf("InfraImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

// A throwaway package with only safe imports must pass the direct-import scan.
func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestAssertNoTransitiveDependency(t *testing.T) {
	AssertNoTransitiveDependency(t, "./...", func(string) bool { return false }, "none")
}
