// Command swiftsc is the contract toolchain front door: scaffolding,
// compilation, static analysis, local simulation, testing and
// deployment.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"swiftsc/pkg/analyzer"
	"swiftsc/pkg/compiler"
	"swiftsc/pkg/deploy"
	"swiftsc/pkg/project"
	"swiftsc/pkg/runner"
	"swiftsc/pkg/vm"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: swiftsc <command> [flags]

commands:
  init      [dir]                scaffold a new project
  lex       <file.stc>           dump the token stream
  parse     <file.stc>           dump the syntax tree
  check     [--root dir]         type-check the project sources
  build     [--root dir] [--output dir]
                                 compile to wasm + ABI
  analyze   [--root dir] [--verbose]
                                 run the static safety passes
  test      [--root dir]         run the tests/ directory
  simulate  [--root dir] --call fn [--args a,b] [--caller addr] [--gas n]
                                 execute a function locally
  deploy    --network name [--root dir] [--key file]
                                 sign and submit to a network`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit(os.Args[2:])
	case "lex":
		err = cmdLex(os.Args[2:])
	case "parse":
		err = cmdParse(os.Args[2:])
	case "check":
		err = cmdCheck(os.Args[2:])
	case "build":
		err = cmdBuild(os.Args[2:])
	case "analyze":
		err = cmdAnalyze(os.Args[2:])
	case "test":
		err = cmdTest(os.Args[2:])
	case "simulate":
		err = cmdSimulate(os.Args[2:])
	case "deploy":
		err = cmdDeploy(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	fs.Parse(args)

	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	created, err := project.Init(dir)
	if err != nil {
		return err
	}
	for _, f := range created {
		fmt.Println("  created:", f)
	}
	fmt.Println("✓ Project initialized successfully!")
	return nil
}

func cmdLex(args []string) error {
	fs := flag.NewFlagSet("lex", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("lex wants exactly one .stc file")
	}

	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	tokens, err := compiler.Lex(string(src))
	if err != nil {
		return err
	}
	fmt.Printf("Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Println(" ", tok)
	}
	return nil
}

func cmdParse(args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("parse wants exactly one .stc file")
	}

	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	tokens, err := compiler.Lex(string(src))
	if err != nil {
		return err
	}
	prog, err := compiler.Parse(tokens, string(src))
	if err != nil {
		return err
	}

	for _, u := range prog.Uses {
		fmt.Println(u)
	}
	fmt.Printf("contract %s\n", prog.Contract.Name)
	for _, s := range prog.Contract.Storage {
		fmt.Printf("  storage %s: %s\n", s.Name, s.Type)
	}
	for _, f := range prog.Contract.Funcs {
		params := make([]string, len(f.Params))
		for i, p := range f.Params {
			params[i] = fmt.Sprintf("%s: %s", p.Name, p.Type)
		}
		ret := "()"
		if f.Return != nil {
			ret = f.Return.String()
		}
		fmt.Printf("  fn %s(%s) -> %s\n", f.Name, strings.Join(params, ", "), ret)
		for _, s := range f.Body.Stmts {
			fmt.Println("    ", s)
		}
	}
	return nil
}

func cmdCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	root := fs.String("root", ".", "project root (or any directory under it)")
	fs.Parse(args)

	m, files, err := loadProject(*root)
	if err != nil {
		return err
	}
	for _, file := range files {
		if _, _, err := checkFile(file); err != nil {
			return err
		}
	}
	fmt.Printf("Semantic Check Passed (%s, %d file(s))\n", m.Package.Name, len(files))
	return nil
}

func cmdBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	root := fs.String("root", ".", "project root (or any directory under it)")
	output := fs.String("output", "", "output directory (default <root>/target)")
	fs.Parse(args)

	m, files, err := loadProject(*root)
	if err != nil {
		return err
	}
	outDir := *output
	if outDir == "" {
		outDir = filepath.Join(m.Dir(), "target")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	for _, file := range files {
		fmt.Printf("--- Compiling: %s ---\n", filepath.Base(file))
		src, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		art, err := compiler.Compile(string(src))
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(file), err)
		}

		wasmPath := filepath.Join(outDir, art.Name+".wasm")
		if err := os.WriteFile(wasmPath, art.Wasm, 0o644); err != nil {
			return err
		}
		abiPath := filepath.Join(outDir, art.Name+".abi.json")
		if err := os.WriteFile(abiPath, art.ABI, 0o644); err != nil {
			return err
		}
		fmt.Printf("Build Successful: %s (%d bytes)\n", wasmPath, len(art.Wasm))
	}
	return nil
}

func cmdAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	root := fs.String("root", ".", "project root (or any directory under it)")
	verbose := fs.Bool("verbose", false, "print per-pass counts")
	fs.Parse(args)

	_, files, err := loadProject(*root)
	if err != nil {
		return err
	}

	total := 0
	perPass := map[string]int{}
	for _, file := range files {
		prog, info, err := checkFile(file)
		if err != nil {
			return err
		}
		warnings := analyzer.Analyze(prog, info)
		if len(warnings) > 0 {
			fmt.Printf("%s:\n", filepath.Base(file))
		}
		for _, w := range warnings {
			fmt.Println(" ", w)
			perPass[w.Pass]++
		}
		total += len(warnings)
	}

	if *verbose {
		passes := make([]string, 0, len(perPass))
		for p := range perPass {
			passes = append(passes, p)
		}
		sort.Strings(passes)
		for _, p := range passes {
			fmt.Printf("pass %s: %d finding(s)\n", p, perPass[p])
		}
	}
	if total == 0 {
		fmt.Println("Analysis complete: no findings")
		return nil
	}
	fmt.Printf("Analysis complete: %d finding(s)\n", total)
	return fmt.Errorf("analysis found %d issue(s)", total)
}

func cmdTest(args []string) error {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	root := fs.String("root", ".", "project root (or any directory under it)")
	fs.Parse(args)

	rootDir, err := project.FindRoot(*root)
	if err != nil {
		return err
	}
	m, err := project.Load(rootDir)
	if err != nil {
		return err
	}
	sum, err := runner.New(m, os.Stdout).Run()
	if err != nil {
		return err
	}
	if !sum.OK() {
		os.Exit(1)
	}
	return nil
}

func cmdSimulate(args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	root := fs.String("root", ".", "project root (or any directory under it)")
	call := fs.String("call", "", "function to invoke")
	argList := fs.String("args", "", "comma separated u64 arguments (0x.. for hex)")
	caller := fs.Uint64("caller", 0xCA11E4, "caller address")
	gas := fs.Uint64("gas", 1_000_000, "gas limit (0 disables metering)")
	fs.Parse(args)

	if *call == "" {
		return fmt.Errorf("simulate needs --call <function>")
	}

	m, files, err := loadProject(*root)
	if err != nil {
		return err
	}
	if len(files) != 1 {
		return fmt.Errorf("simulate needs exactly one source file under src/, found %d", len(files))
	}

	prog, info, err := checkFile(files[0])
	if err != nil {
		return err
	}
	mod, err := compiler.Generate(prog, info)
	if err != nil {
		return err
	}

	var callArgs []uint64
	if *argList != "" {
		for _, part := range strings.Split(*argList, ",") {
			v, err := strconv.ParseUint(strings.TrimSpace(part), 0, 64)
			if err != nil {
				return fmt.Errorf("bad argument %q: %w", part, err)
			}
			callArgs = append(callArgs, v)
		}
	}

	env := vm.NewEnv()
	env.Caller = *caller
	if *gas > 0 && m.Build.GasMetering {
		env.Metering = true
		env.GasLimit = *gas
	}

	inst, err := vm.NewInstance(mod, env)
	if err != nil {
		return err
	}

	fmt.Printf("simulating %s.%s(%s) as 0x%x\n", info.Name, *call, *argList, *caller)
	results, err := inst.Invoke(*call, callArgs...)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	for _, r := range results {
		fmt.Printf("=> %d\n", r)
	}
	for _, ev := range env.Events {
		fmt.Printf("event %s: %d\n", ev.Name, ev.Value)
	}
	fmt.Printf("gas used: %d\n", env.GasUsed)

	if dump := env.StorageDump(); len(dump) > 0 {
		fmt.Println("storage:")
		for _, entry := range dump {
			fmt.Printf("  %s[%d] = %d\n", storageName(info, entry.Slot), entry.Key, entry.Value)
		}
	}
	return nil
}

func cmdDeploy(args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	root := fs.String("root", ".", "project root (or any directory under it)")
	network := fs.String("network", "", "target network from the manifest")
	keyFile := fs.String("key", "", "signing key file (default <root>/deploy.key)")
	fs.Parse(args)
	if *network == "" {
		return fmt.Errorf("deploy requires --network")
	}

	m, files, err := loadProject(*root)
	if err != nil {
		return err
	}
	net, err := m.Network(*network)
	if err != nil {
		return err
	}

	path := *keyFile
	if path == "" {
		path = filepath.Join(m.Dir(), "deploy.key")
	}
	kp, err := loadOrCreateKey(path)
	if err != nil {
		return err
	}

	client := deploy.NewClient(net.URL)
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		art, err := compiler.Compile(string(src))
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(file), err)
		}
		bundle := deploy.NewBundle(art)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		receipt, err := client.Deploy(ctx, bundle, kp, net.ChainID)
		cancel()
		if err != nil {
			return err
		}
		fmt.Printf("deployed %s to %s (chain %d)\n", art.Name, *network, net.ChainID)
		fmt.Printf("  code cid: %s\n", receipt.CodeCID)
		fmt.Printf("  tx hash:  %s\n", receipt.TxHash)
	}
	return nil
}

// loadProject resolves the project root, loads the manifest and lists
// the source files under src/.
func loadProject(start string) (*project.Manifest, []string, error) {
	rootDir, err := project.FindRoot(start)
	if err != nil {
		return nil, nil, err
	}
	m, err := project.Load(rootDir)
	if err != nil {
		return nil, nil, err
	}
	files, err := filepath.Glob(filepath.Join(rootDir, "src", "*.stc"))
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no .stc files under %s", filepath.Join(rootDir, "src"))
	}
	sort.Strings(files)
	return m, files, nil
}

// checkFile runs the front end on one file: lex, parse, semantic check.
func checkFile(path string) (*compiler.Program, *compiler.ContractInfo, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := compiler.Lex(string(src))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	prog, err := compiler.Parse(tokens, string(src))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	info, err := compiler.Analyze(prog)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return prog, info, nil
}

func loadOrCreateKey(path string) (*deploy.KeyPair, error) {
	if _, err := os.Stat(path); err == nil {
		return deploy.LoadKey(path)
	}
	kp, err := deploy.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := kp.SaveKey(path); err != nil {
		return nil, err
	}
	fmt.Printf("generated new signing key: %s\n", path)
	return kp, nil
}

func storageName(info *compiler.ContractInfo, slot int32) string {
	for i := range info.Storage {
		if info.Storage[i].Slot == slot {
			return info.Storage[i].Name
		}
	}
	if slot < 0 {
		return "balance"
	}
	return fmt.Sprintf("slot%d", slot)
}
