package runner

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swiftsc/pkg/project"
)

func newProject(t *testing.T) *project.Manifest {
	t.Helper()
	dir := t.TempDir()
	_, err := project.Init(dir)
	require.NoError(t, err)
	m, err := project.Load(dir)
	require.NoError(t, err)
	return m
}

func TestRunScaffoldTests(t *testing.T) {
	m := newProject(t)

	var out bytes.Buffer
	sum, err := New(m, &out).Run()
	require.NoError(t, err)

	assert.True(t, sum.OK())
	assert.Equal(t, 2, sum.Passed)
	assert.Equal(t, 0, sum.Failed)
	assert.Contains(t, out.String(), "PASS test_insert_and_read")
	assert.Contains(t, out.String(), "test result: ok. 2 passed; 0 failed")
}

func TestRunReportsFailures(t *testing.T) {
	m := newProject(t)

	failing := `contract FailTest {
    fn test_always_fails() {
        require(1 == 2, "one is not two");
    }

    fn test_still_passes() {
        require(1 == 1);
    }
}
`
	path := filepath.Join(m.Dir(), "tests", "failing_test.stc")
	require.NoError(t, os.WriteFile(path, []byte(failing), 0o644))

	var out bytes.Buffer
	sum, err := New(m, &out).Run()
	require.NoError(t, err)

	assert.False(t, sum.OK())
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, sum.Passed)
	assert.Contains(t, out.String(), "FAIL test_always_fails")
	assert.Contains(t, out.String(), "one is not two")
	assert.Contains(t, out.String(), "test result: FAILED")
}

func TestRunRejectsBrokenTestFile(t *testing.T) {
	m := newProject(t)

	path := filepath.Join(m.Dir(), "tests", "broken_test.stc")
	require.NoError(t, os.WriteFile(path, []byte("contract Broken {"), 0o644))

	var out bytes.Buffer
	_, err := New(m, &out).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken_test.stc")
}

func TestRunWithoutTestsDir(t *testing.T) {
	dir := t.TempDir()
	_, err := project.Init(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "tests")))
	m, err := project.Load(dir)
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = New(m, &out).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .stc files")
}

func TestCompileCacheReused(t *testing.T) {
	m := newProject(t)

	var out bytes.Buffer
	r := New(m, &out)
	_, err := r.Run()
	require.NoError(t, err)

	entries, err := os.ReadDir(r.cacheDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	// Corrupt a cached module; a second run must reuse it, not recompile.
	cached := filepath.Join(r.cacheDir, entries[0].Name())
	require.NoError(t, os.WriteFile(cached, []byte("junk"), 0o644))

	_, err = New(m, &out).Run()
	require.Error(t, err)
}

func TestNonTestExportsAreSkipped(t *testing.T) {
	m := newProject(t)

	mixed := `contract MixedTest {
    storage n: u64;

    fn helper(v: u64) -> u64 {
        return v * 2;
    }

    fn test_uses_helper() {
        self.n = helper(21);
        require(self.n == 42);
    }
}
`
	path := filepath.Join(m.Dir(), "tests", "mixed_test.stc")
	require.NoError(t, os.WriteFile(path, []byte(mixed), 0o644))

	var out bytes.Buffer
	sum, err := New(m, &out).Run()
	require.NoError(t, err)
	assert.True(t, sum.OK())
	assert.NotContains(t, out.String(), "PASS helper")
	assert.Contains(t, out.String(), "PASS test_uses_helper")
}
