package domain

import (
	"testing"

	"qitp/testutil"
)

// TestDomainDoesNotImportInternal keeps the record contract free of any
// implementation package so every store and handler can share it.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "domain must not import internal packages")
}

func TestOnlyPersistenceImportsDrivers(t *testing.T) {
	testutil.AssertImportRules(t, "qitp/...",
		testutil.ImportRule{
			Forbidden: "modernc.org/sqlite",
			Allowed:   []string{"qitp/internal/infra/persistence/sqlite"},
		},
		testutil.ImportRule{
			Forbidden: "github.com/jackc/pgx/v5",
			Allowed:   []string{"qitp/internal/infra/persistence/postgres"},
		},
		testutil.ImportRule{
			Forbidden: "qitp/internal/infra/persistence",
			Allowed:   []string{"qitp/internal/core", "qitp/internal/infra/persistence", "qitp/internal/observability", "qitp/internal/fixtures", "qitp/internal/adapters/api"},
			Reason:    "open stores through core.OpenStore",
		},
	)
}
