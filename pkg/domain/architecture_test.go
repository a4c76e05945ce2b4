package domain

import (
	"testing"

	"vialcore/testutil"
)

// TestDomainHasNoInternalImports keeps the domain package free of internal
// dependencies so external tooling can consume it.
func TestDomainHasNoInternalImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "domain must not depend on internal packages")
}
