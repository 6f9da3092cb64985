package core_test

import (
	"testing"

	"rocklandcensus/testutil"
)

// TestCoreStaysTransportFree keeps the merge engine independent of the
// census client, the HTTP shell and the storage backends.
func TestCoreStaysTransportFree(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.PackageForbidden("net/http"), "core must not speak HTTP")
	testutil.AssertNoTransitiveDependency(t, ".", testutil.AnyForbidden(
		testutil.PackageForbidden("rocklandcensus/internal/census"),
		testutil.PackageForbidden("rocklandcensus/internal/narrative"),
		testutil.PackageForbidden("rocklandcensus/internal/adapters"),
		testutil.InfraImportForbidden,
	), "core is a leaf of the domain graph")
}
