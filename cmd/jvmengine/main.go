// jvmengine runs the static main method of a class file.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/daimatz/jvmengine/pkg/classfile"
	"github.com/daimatz/jvmengine/pkg/classpath"
	"github.com/daimatz/jvmengine/pkg/config"
	"github.com/daimatz/jvmengine/pkg/host"
	"github.com/daimatz/jvmengine/pkg/native"
	"github.com/daimatz/jvmengine/pkg/trace"
	"github.com/daimatz/jvmengine/pkg/vm"
)

const mainDescriptor = "([Ljava/lang/String;)V"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("jvmengine", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Configuration file (.toml, .yaml)")
	cp := fs.String("cp", "", "Class path entries separated by "+string(os.PathListSeparator))
	jmod := fs.String("jmod", "", "Path to java.base.jmod (default: discovered from JAVA_BASE_JMOD or JAVA_HOME)")
	method := fs.String("m", "main", "Method to run")
	descriptor := fs.String("d", mainDescriptor, "Descriptor of the method to run")
	construction := fs.String("construction", "", "Object construction policy: deferred or eager")
	noRecursive := fs.Bool("no-recursive", false, "Delegate every call to the host instead of interpreting it")
	maxDepth := fs.Int("max-depth", -1, "Maximum call depth")
	verbose := fs.Bool("v", false, "Trace every instruction to the log")
	traceOut := fs.String("trace-out", "", "Record a CBOR trace to this file")
	dumpTrace := fs.String("dump-trace", "", "Print a recorded CBOR trace and exit")
	logLevel := fs.String("log-level", "", "Log level (trace, debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: jvmengine [options] <Class.class | ClassName> [args...]\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  jvmengine Hello.class                # run Hello.main from its directory\n")
		fmt.Fprintf(stderr, "  jvmengine -cp out com.example.App a  # run App.main with args [a]\n")
		fmt.Fprintf(stderr, "  jvmengine -m fib -d '(I)I' -v Fib    # run a static method with tracing\n")
		fmt.Fprintf(stderr, "  jvmengine -dump-trace run.cbor       # print a recorded trace\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *dumpTrace != "" {
		if err := dump(*dumpTrace, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cp":
			cfg.ClassPath = filepath.SplitList(*cp)
		case "jmod":
			cfg.JavaBaseJmod = *jmod
		case "construction":
			cfg.Construction = *construction
		case "no-recursive":
			cfg.Recursive = !*noRecursive
		case "max-depth":
			cfg.MaxDepth = *maxDepth
		case "v":
			cfg.Trace.Verbose = *verbose
		case "trace-out":
			cfg.Trace.Output = *traceOut
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if cfg.Trace.Verbose && *logLevel == "" {
		cfg.Log.Level = zerolog.TraceLevel.String()
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	logger, err := cfg.Logger(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	className, entries := target(fs.Arg(0), cfg.ClassPathEntries())
	loader, err := classpath.New(cfg.Jmod(), entries)
	if err != nil {
		logger.Error().Err(err).Msg("invalid class path")
		return 1
	}

	var sinks trace.Tee
	if cfg.Trace.Verbose {
		sinks = append(sinks, trace.NewLogSink(logger))
	}
	if cfg.Trace.Output != "" {
		f, err := os.Create(cfg.Trace.Output)
		if err != nil {
			logger.Error().Err(err).Msg("cannot create trace file")
			return 1
		}
		defer f.Close()
		w := bufio.NewWriter(f)
		defer w.Flush()
		sinks = append(sinks, trace.NewRecorder(w))
		cfg.Trace.Verbose = true
	}
	var sink trace.Sink
	if len(sinks) > 0 {
		sink = sinks
	}
	opts, err := cfg.EngineOptions(logger, sink)
	if err != nil {
		logger.Error().Err(err).Msg("invalid engine options")
		return 1
	}

	u := host.New(loader, host.WithStdout(stdout), host.WithStderr(stderr), host.WithLogger(logger))
	engine := vm.NewEngine(u, u, opts)

	callArgs, err := arguments(u, *descriptor, fs.Args()[1:])
	if err != nil {
		logger.Error().Err(err).Msg("cannot build arguments")
		return 1
	}

	logger.Debug().Str("class", className).Str("method", *method+*descriptor).Msg("starting")
	v, ok, err := engine.Run(className, *method, *descriptor, callArgs)
	if err != nil {
		var f *vm.Fault
		if errors.As(err, &f) {
			fmt.Fprintf(stderr, "Exception in thread \"main\" %s\n", describe(f))
			return 1
		}
		logger.Error().Err(err).Msg("execution failed")
		return 1
	}
	if ok {
		fmt.Fprintln(stdout, native.Format(v))
	}
	return 0
}

// target splits the program argument into a class name and the class
// path. A path to a .class file adds its directory to the class path.
func target(arg string, entries []string) (string, []string) {
	if strings.HasSuffix(arg, ".class") {
		return strings.TrimSuffix(filepath.Base(arg), ".class"), append([]string{filepath.Dir(arg)}, entries...)
	}
	return strings.ReplaceAll(arg, ".", "/"), entries
}

// arguments converts command line arguments for a method. main receives
// them as a String[]; other methods take one argument per parameter.
func arguments(u *host.Universe, descriptor string, args []string) ([]vm.Value, error) {
	if descriptor == mainDescriptor {
		argv, err := stringArray(u, args)
		if err != nil {
			return nil, err
		}
		return []vm.Value{argv}, nil
	}
	sig, err := classfile.ParseMethodDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	if len(args) != len(sig.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", descriptor, len(sig.Params), len(args))
	}
	values := make([]vm.Value, len(args))
	for i, p := range sig.Params {
		if values[i], err = parseArgument(p, args[i]); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return values, nil
}

func parseArgument(t classfile.FieldType, s string) (vm.Value, error) {
	switch t {
	case "I", "S", "B", "C":
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.Coerce(vm.IntValue(int32(n)), t)
	case "Z":
		b, err := strconv.ParseBool(s)
		return vm.BoolValue(b), err
	case "J":
		n, err := strconv.ParseInt(s, 10, 64)
		return vm.LongValue(n), err
	case "F":
		f, err := strconv.ParseFloat(s, 32)
		return vm.FloatValue(float32(f)), err
	case "D":
		f, err := strconv.ParseFloat(s, 64)
		return vm.DoubleValue(f), err
	case "Ljava/lang/String;", "Ljava/lang/Object;":
		return vm.RefValue(s), nil
	}
	return vm.Value{}, fmt.Errorf("cannot pass %q as %s", s, t)
}

func stringArray(u *host.Universe, args []string) (vm.Value, error) {
	cls, err := u.LoadClass("[Ljava/lang/String;")
	if err != nil {
		return vm.Value{}, err
	}
	a := vm.NewArray(vm.ElemRef, cls, len(args))
	for i, s := range args {
		if err := a.Store(i, vm.RefValue(s)); err != nil {
			return vm.Value{}, err
		}
	}
	return vm.ArrayValue(a), nil
}

func describe(f *vm.Fault) string {
	if !f.Exception.IsNull() {
		return native.Format(f.Exception)
	}
	name := strings.ReplaceAll(f.Class, "/", ".")
	if f.Message == "" {
		return name
	}
	return name + ": " + f.Message
}

func dump(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	events, err := trace.ReadEvents(bufio.NewReader(f))
	for _, ev := range events {
		thread := ev.Thread
		if len(thread) > 8 {
			thread = thread[:8]
		}
		fmt.Fprintf(w, "%6d %-8s %-6s %*s%s pc=%d %s %s\n",
			ev.Seq, thread, ev.Kind, ev.Depth*2, "", ev.Method, ev.PC, ev.Op, ev.Detail)
	}
	return err
}
