// Command crt is a thin REPL over the tensor VM, generalizing the
// teacher's cmd/gnd/main.go flag-parsed, bufio.Scanner-driven
// read-eval-print loop from a string-slot scripting shell into a
// line-oriented front end for token.Program assembly and execution.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/crtlang/crt/internal/asm"
	"github.com/crtlang/crt/internal/executor"
	"github.com/crtlang/crt/internal/logging"
	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/vm"
	"github.com/crtlang/crt/internal/vmconfig"
)

func parseLogLevel(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.Debug
	case "info":
		return logging.Info
	case "warn":
		return logging.Warn
	default:
		return logging.Error
	}
}

func parseMode(s string) vmconfig.Mode {
	if strings.EqualFold(s, "eager") {
		return vmconfig.Eager
	}
	return vmconfig.Lazy
}

func buildInterpreter(logLevel logging.Level, mode vmconfig.Mode, workers int, backend string) (*vm.Interpreter, error) {
	def, err := executor.NewWithTypeID(backend, 0)
	if err != nil {
		return nil, fmt.Errorf("unknown backend %q (have: %s): %w", backend, strings.Join(executor.Kinds(), ", "), err)
	}
	pool := executor.NewPool(workers, def)
	cfg := vmconfig.Default()
	cfg.LogLevel = logLevel
	cfg.Mode = mode
	cfg.Workers = workers
	return vm.NewInterpreter(cfg, pool), nil
}

func runFile(interp *vm.Interpreter, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := asm.Assemble(string(src))
	if err != nil {
		return err
	}
	return interp.Run(prog)
}

func watch(interp *vm.Interpreter, arg string) {
	slot, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "watch: invalid slot %q: %v\n", arg, err)
		return
	}
	ts, err := interp.Slots().GetTensor(slot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		return
	}
	fmt.Printf("%%%d: %s%v shape=%v\n", slot, ts.DType(), tensorValues(ts), ts.Shape())
}

func tensorValues(ts *tensor.Tensor) interface{} {
	switch ts.DType() {
	case tensor.I32:
		return ts.I32()
	case tensor.I64:
		return ts.I64()
	default:
		return ts.F32()
	}
}

func repl(interp *vm.Interpreter, mode *vmconfig.Mode) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("crt REPL. Built-ins: quit, list, watch <slot>, mode eager|lazy, run-eager <file>, run-lazy <file>.")
	for {
		fmt.Print("crt> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])
		switch cmd {
		case "quit", "exit":
			return
		case "list":
			fmt.Println("registered backends:", strings.Join(executor.Kinds(), ", "))
			continue
		case "watch":
			if len(fields) != 2 {
				fmt.Fprintln(os.Stderr, "usage: watch <slot>")
				continue
			}
			watch(interp, fields[1])
			continue
		case "mode":
			if len(fields) != 2 {
				fmt.Fprintln(os.Stderr, "usage: mode eager|lazy")
				continue
			}
			*mode = parseMode(fields[1])
			fmt.Println("mode set to", mode.String())
			continue
		case "run-eager", "run-lazy":
			if len(fields) != 2 {
				fmt.Fprintf(os.Stderr, "usage: %s <file>\n", cmd)
				continue
			}
			if err := runFile(interp, fields[1]); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
				continue
			}
			fmt.Println("state:", interp.State())
			continue
		}

		// Fall through: treat the line as one assembly statement,
		// assembled and run immediately against the live slot table.
		prog, err := asm.Assemble(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if err := interp.Run(prog); err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
	}
}

func main() {
	logLevelFlag := flag.String("log-level", "error", "Set log level: debug, info, warn, error")
	modeFlag := flag.String("mode", "lazy", "Execution mode: eager or lazy")
	workersFlag := flag.Int("workers", 8, "Executor pool concurrency cap")
	backendFlag := flag.String("backend", "cpu", "Default backend: cpu, gpu, or mock")
	flag.Parse()

	logging.SetLevel(parseLogLevel(*logLevelFlag))
	mode := parseMode(*modeFlag)

	interp, err := buildInterpreter(parseLogLevel(*logLevelFlag), mode, *workersFlag, *backendFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		repl(interp, &mode)
		return
	}

	for _, path := range args {
		if err := runFile(interp, path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
	}
}
