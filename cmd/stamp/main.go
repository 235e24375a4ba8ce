// Command stamp is the CLI driver around the stamplang toolchain: lexer,
// parser, compiler and interpreter wired together behind a single set of
// flags, plus a persistent REPL for interactive sessions. None of this is
// part of the language core — it is the thinnest possible collaborator
// that feeds source or bytecode into the packages that do the real work.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/stamplang/stamp/pkg/ast"
	"github.com/stamplang/stamp/pkg/bytecode"
	"github.com/stamplang/stamp/pkg/compiler"
	"github.com/stamplang/stamp/pkg/disasm"
	"github.com/stamplang/stamp/pkg/kind"
	"github.com/stamplang/stamp/pkg/parser"
	"github.com/stamplang/stamp/pkg/vm"
)

// cli is the flag surface: one input (a source file, a bytecode file with
// -f, or none at all for the REPL), plus the dump/write flags. kong fills
// Help in automatically via its default --help/-h binding.
var cli struct {
	DumpAST       bool     `short:"a" help:"Dump the parsed AST before compiling."`
	DumpBytecode  bool     `short:"b" help:"Dump the generated basic blocks and lexical scopes."`
	DumpRegisters bool     `short:"r" help:"Dump the register file after execution."`
	Out           *string  `short:"o" help:"Write compiled bytecode to PATH; PATH defaults to the input with its extension replaced by .ostamp." optional:""`
	From          string   `short:"f" help:"Read a bytecode file instead of parsing source." type:"path"`
	Dirs          []string `short:"d" help:"Comma-separated directories searched for a 'use' path." sep:","`
	CompileOnly   bool     `short:"c" help:"Stop after compiling (and any -a/-b dumps or -o write) without executing; with -f and -b this disassembles a bytecode file."`
	Verbose       bool     `short:"v" help:"Trace every message send to stderr, and print a stack trace on a terminating error."`

	Input string `arg:"" optional:"" help:"Source file to run. Omit to start the REPL (or combine with -f to run bytecode)." type:"path"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("stamp"),
		kong.Description("Lex, parse, compile and run Stamp programs."),
		kong.UsageOnError(),
	)

	if err := run(); err != nil {
		if cli.Verbose {
			fmt.Fprintf(os.Stderr, "%+v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newLogger() *zap.SugaredLogger {
	if !cli.Verbose {
		return nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "stamp: logger init failed:", err)
		return nil
	}
	return l.Sugar()
}

func run() error {
	inc := &dirIncluder{dirs: cli.Dirs}
	if cli.Input == "" && cli.From == "" {
		return runREPL(inc)
	}

	var prog *bytecode.Program
	var decoded *bytecode.DecodeResult

	if cli.From != "" {
		f, err := os.Open(cli.From)
		if err != nil {
			return err
		}
		defer f.Close()
		decoded, err = bytecode.Read(f)
		if err != nil {
			return err
		}
		prog = decoded.Program
	} else {
		if d := filepath.Dir(cli.Input); d != "." {
			inc.dirs = append(inc.dirs, d)
		}
		src, err := os.ReadFile(cli.Input)
		if err != nil {
			return err
		}
		astProg, err := parseSource(string(src), inc)
		if err != nil {
			return err
		}
		if cli.DumpAST {
			disasm.AST(os.Stdout, astProg)
		}
		prog, err = compiler.Compile(astProg, inc)
		if err != nil {
			return err
		}
	}

	if cli.DumpBytecode {
		disasm.Bytecode(os.Stdout, prog)
	}

	if cli.Out != nil {
		path := *cli.Out
		if path == "" {
			path = deriveOutputPath(cli.Input)
		}
		out, err := os.Create(path)
		if err != nil {
			return err
		}
		defer out.Close()
		if err := bytecode.Write(out, prog); err != nil {
			return err
		}
	}

	if cli.CompileOnly {
		return nil
	}

	opts := []vm.Option{}
	if log := newLogger(); log != nil {
		opts = append(opts, vm.WithLogger(log))
	}
	if decoded != nil {
		opts = append(opts, vm.WithRegisterFileSize(decoded.RegisterFileSize()))
	}
	machine := vm.New(prog, opts...)
	if err := machine.Run(); err != nil {
		return err
	}

	if cli.DumpRegisters {
		disasm.Registers(os.Stdout, machine.Registers())
	}
	return nil
}

func parseSource(src string, inc parser.Includer) (*ast.Program, error) {
	p, err := parser.New(src, inc)
	if err != nil {
		return nil, err
	}
	return p.ParseProgram()
}

func deriveOutputPath(input string) string {
	if input == "" {
		return "out.ostamp"
	}
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".ostamp"
}

// dirIncluder resolves a `use "name"` path by searching its dirs in order
// (the -d directories, then the input file's directory when run added it)
// followed by the current working directory, reading "<dir>/<name>.stamp"
// off disk for the first match.
type dirIncluder struct {
	dirs []string
}

func (d *dirIncluder) IncludeFrom(path string) (string, error) {
	candidates := append(append([]string{}, d.dirs...), ".")
	for _, dir := range candidates {
		full := filepath.Join(dir, path+".stamp")
		if data, err := os.ReadFile(full); err == nil {
			return string(data), nil
		}
	}
	return "", kind.New(kind.FileParsingError, "use %q: not found in any of %v", path, candidates)
}

var (
	replPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true).Render("stamp> ")
	replError  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// runREPL drives a persistent session: one Compiler with its global scope
// opened once and never closed, and one VM whose program is swapped out
// for a longer one (via SetProgram) after every line, so Run always
// resumes exactly where the previous line left off instead of re-running
// blocks that already executed. Bindings made on one line are ordinary
// global-scope Stores, so they're visible to every later line.
func runREPL(inc *dirIncluder) error {
	c := compiler.New(inc)
	c.AddBasicBlock()
	globalScope := c.AddScopeBeginningCurrentBB(0, true)
	// The REPL never calls EndScope on this scope — its range has no known
	// upper bound until the process exits — so popScopesEndingHere must
	// never mistake the zero End value for "already closed". This sentinel
	// is a REPL-only concern; a one-shot compiler.Compile run always
	// assigns a real End once the program is fully lowered.
	globalScope.End = ^bytecode.BlockIndex(0)

	machine := vm.New(c.Program())
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("stamp REPL — Ctrl-D to exit")
	for {
		fmt.Print(replPrompt)
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		astProg, err := parseSource(line, inc)
		if err != nil {
			fmt.Println(replError.Render(err.Error()))
			continue
		}
		// Each line starts a fresh block: the VM has already run past the
		// current one, so code appended to it would never execute.
		c.AddBasicBlock()
		if err := c.CompileStatements(astProg.Statements); err != nil {
			fmt.Println(replError.Render(err.Error()))
			continue
		}
		machine.SetProgram(c.Program())
		if err := machine.Run(); err != nil {
			fmt.Println(replError.Render(err.Error()))
			continue
		}
	}
}
