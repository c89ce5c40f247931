package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func fakePackage(path string, imports ...string) *packages.Package {
	pkg := &packages.Package{PkgPath: path, Imports: map[string]*packages.Package{}}
	for _, ip := range imports {
		pkg.Imports[ip] = &packages.Package{PkgPath: ip}
	}
	return pkg
}

func TestPredicates(t *testing.T) {
	assert.True(t, InternalImportForbidden("qitp/internal/core"))
	assert.True(t, InternalImportForbidden("qitp/internal"))
	assert.False(t, InternalImportForbidden("qitp/pkg/domain"))

	assert.True(t, Under("qitp/internal/infra/blob", "qitp/internal/infra/blob"))
	assert.True(t, Under("qitp/internal/infra/blob/s3", "qitp/internal/infra/blob"))
	assert.False(t, Under("qitp/internal/infra/blobber", "qitp/internal/infra/blob"))
}

func TestImportRuleViolations(t *testing.T) {
	pkgs := []*packages.Package{
		fakePackage("qitp/internal/blob", "qitp/internal/infra/blob/fs"),
		fakePackage("qitp/internal/blob [qitp/internal/blob.test]", "qitp/internal/infra/blob/memory"),
		fakePackage("qitp/internal/blob_test", "qitp/internal/infra/blob/memory"),
		fakePackage("qitp/internal/adapters/api", "qitp/internal/infra/blob/memory", "qitp/pkg/domain"),
		fakePackage("qitp/internal/infra/blob/s3", "github.com/aws/aws-sdk-go-v2/service/s3"),
		fakePackage("qitp/internal/documents", "github.com/aws/aws-sdk-go-v2/aws"),
	}
	rules := []ImportRule{
		{Forbidden: "qitp/internal/infra/blob", Allowed: []string{"qitp/internal/blob"}, Reason: "use blob.Store"},
		{Forbidden: "github.com/aws/aws-sdk-go-v2", Allowed: []string{"qitp/internal/infra/blob/s3"}},
	}

	got := importRuleViolations(pkgs, rules)
	assert.Equal(t, []string{
		"qitp/internal/adapters/api: qitp/internal/infra/blob/memory (use blob.Store)",
		"qitp/internal/documents: github.com/aws/aws-sdk-go-v2/aws",
	}, got)
}

func TestAssertImportRulesLoadError(t *testing.T) {
	prev := loadPackages
	t.Cleanup(func() { loadPackages = prev })
	loadPackages = func(string) ([]*packages.Package, error) { return nil, errors.New("boom") }

	rec := &recordingFatal{}
	tb := &fatalTB{TB: t, rec: rec}
	AssertImportRules(tb, "qitp/...")
	assert.Contains(t, rec.msg, "boom")
}

func TestAssertImportRulesStubbedPackages(t *testing.T) {
	prev := loadPackages
	t.Cleanup(func() { loadPackages = prev })
	loadPackages = func(string) ([]*packages.Package, error) {
		return []*packages.Package{fakePackage("qitp/pkg/domain", "context")}, nil
	}
	AssertImportRules(t, "qitp/...", ImportRule{Forbidden: "qitp/internal"})
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
	}
	write("a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"qitp/internal/core\"\n)\nvar _ = fmt.Sprint\nvar _ core.Store\n")
	write("b_test.go", "package tmp\nimport \"qitp/internal/server\"\n")
	write("notes.txt", "import \"qitp/internal/x\"")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.go"), 0o700))

	viols, err := directImportViolations(dir, InternalImportForbidden)
	require.NoError(t, err)
	assert.Equal(t, []string{"qitp/internal/core (in a.go)"}, viols)

	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestDirectImportErrors(t *testing.T) {
	_, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InternalImportForbidden)
	require.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.go"), []byte("not go"), 0o600))
	_, err = directImportViolations(dir, InternalImportForbidden)
	require.Error(t, err)
}

func TestFailIfViolations(t *testing.T) {
	rec := &recordingFatal{}
	failIfViolations(rec, "layering", nil)
	assert.Empty(t, rec.msg)

	failIfViolations(rec, "layering", []string{"x: y", "z: w"})
	assert.Contains(t, rec.msg, "layering")
	assert.Contains(t, rec.msg, "x: y\nz: w")
}

// fatalTB captures Fatalf instead of stopping the test.
type fatalTB struct {
	testing.TB
	rec *recordingFatal
}

func (f *fatalTB) Fatalf(format string, args ...any) { f.rec.Fatalf(format, args...) }
func (f *fatalTB) Helper()                           {}
