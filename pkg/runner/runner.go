// Package runner discovers and executes contract test files. A test
// file is any .stc file under tests/; every exported function whose
// name starts with test_ runs once against a fresh environment.
package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"swiftsc/pkg/compiler"
	"swiftsc/pkg/project"
	"swiftsc/pkg/vm"
	"swiftsc/pkg/wasm"
)

const testPrefix = "test_"

// defaultGasLimit bounds a single test when metering is on.
const defaultGasLimit = 10_000_000

// testCaller is the caller address every test observes.
const testCaller = 0xC0FFEE

// Result is the outcome of one test function.
type Result struct {
	File string
	Test string
	Gas  uint64
	Err  error
}

// Summary totals a whole run.
type Summary struct {
	Passed  int
	Failed  int
	Results []Result
}

// OK reports whether every test passed.
func (s *Summary) OK() bool { return s.Failed == 0 }

// Runner executes the test files of one project.
type Runner struct {
	root     string
	cacheDir string
	metering bool
	out      io.Writer
}

// New builds a runner for the project described by m. Output goes
// to out.
func New(m *project.Manifest, out io.Writer) *Runner {
	return &Runner{
		root:     m.Dir(),
		cacheDir: filepath.Join(m.Dir(), "target", "test-cache"),
		metering: m.Build.GasMetering,
		out:      out,
	}
}

// Run compiles and executes every test file, printing progress as it
// goes, and returns the summary.
func (r *Runner) Run() (*Summary, error) {
	files, err := filepath.Glob(filepath.Join(r.root, "tests", "*.stc"))
	if err != nil {
		return nil, errors.Wrap(err, "could not list test files")
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no .stc files under %s", filepath.Join(r.root, "tests"))
	}
	sort.Strings(files)

	sum := &Summary{}
	for _, file := range files {
		if err := r.runFile(file, sum); err != nil {
			return nil, err
		}
	}

	status := "ok"
	if sum.Failed > 0 {
		status = "FAILED"
	}
	fmt.Fprintf(r.out, "\ntest result: %s. %d passed; %d failed\n", status, sum.Passed, sum.Failed)
	return sum, nil
}

func (r *Runner) runFile(path string, sum *Summary) error {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		rel = path
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "could not read %s", rel)
	}

	code, err := r.compileCached(string(src))
	if err != nil {
		return errors.Wrapf(err, "%s", rel)
	}
	mod, err := wasm.Decode(code)
	if err != nil {
		return errors.Wrapf(err, "%s", rel)
	}

	tests := testExports(mod)
	if len(tests) == 0 {
		fmt.Fprintf(r.out, "%s: no test functions\n", rel)
		return nil
	}

	fmt.Fprintf(r.out, "running %d tests from %s\n", len(tests), rel)
	for _, name := range tests {
		res := Result{File: rel, Test: name}

		env := vm.NewEnv()
		env.Caller = testCaller
		env.Metering = r.metering
		env.GasLimit = defaultGasLimit

		inst, err := vm.NewInstance(mod, env)
		if err != nil {
			res.Err = err
		} else {
			_, res.Err = inst.Invoke(name)
		}
		res.Gas = env.GasUsed

		if res.Err != nil {
			sum.Failed++
			fmt.Fprintf(r.out, "  FAIL %s: %v\n", name, res.Err)
		} else {
			sum.Passed++
			fmt.Fprintf(r.out, "  PASS %s (gas: %d)\n", name, res.Gas)
		}
		sum.Results = append(sum.Results, res)
	}
	return nil
}

// testExports lists the module's test_ exports in export order.
func testExports(mod *wasm.Module) []string {
	var names []string
	for _, e := range mod.Exports {
		if strings.HasPrefix(e.Name, testPrefix) {
			names = append(names, e.Name)
		}
	}
	return names
}

// compileCached compiles src, reusing a previous build of identical
// source from the on-disk cache.
func (r *Runner) compileCached(src string) ([]byte, error) {
	key := fmt.Sprintf("%016x.wasm", xxhash.Sum64String(src))
	path := filepath.Join(r.cacheDir, key)
	if code, err := os.ReadFile(path); err == nil {
		return code, nil
	}

	art, err := compiler.Compile(src)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.cacheDir, 0o755); err == nil {
		// A failed cache write is not fatal; the next run recompiles.
		_ = os.WriteFile(path, art.Wasm, 0o644)
	}
	return art.Wasm, nil
}
