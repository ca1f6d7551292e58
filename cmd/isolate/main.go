package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-isolate/config"
	"github.com/wippyai/wasm-isolate/host"
	"github.com/wippyai/wasm-isolate/loader"
	"github.com/wippyai/wasm-isolate/module"
	"github.com/wippyai/wasm-isolate/runtime"
	"github.com/wippyai/wasm-isolate/trace"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to HCL configuration file")
		load        = flag.String("load", "", "Modules to resolve (comma-separated)")
		guest       = flag.String("transformer", "", "Guest module to attach as transformer")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *load == "" && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: isolate [-config file.hcl] [-transformer name] -load a.b.C,d.e.F")
		fmt.Fprintln(os.Stderr, "       isolate [-config file.hcl] [-transformer name] -i  (interactive mode)")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	logger, err := newLogger(cfg, *interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	loader.SetLogger(logger.Named("loader"))
	host.SetLogger(logger.Named("host"))
	trace.SetLogger(logger.Named("trace"))

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg, *guest); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *guest, splitNames(*load)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger logs to stderr at the configured level. The TUI owns the
// terminal, so interactive mode only logs errors.
func newLogger(cfg *config.Config, interactive bool) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	if interactive {
		zc.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func splitNames(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func newRuntime(ctx context.Context, cfg *config.Config, guest string) (*runtime.Runtime, error) {
	rt, err := runtime.New(ctx, runtime.Options{Config: cfg})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	if guest != "" {
		if err := rt.LoadGuestTransformer(ctx, guest); err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("attach transformer %s: %w", guest, err)
		}
	}
	return rt, nil
}

func run(cfg *config.Config, guest string, names []string) error {
	ctx := context.Background()

	rt, err := newRuntime(ctx, cfg, guest)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	root, started := rt.Tracer().StartRoot("isolate")
	if started || rt.Registry().IsCurrentRootSpanDisabled() {
		defer rt.Tracer().EndRoot()
	}

	var failed int
	for _, name := range names {
		m, err := rt.Load(ctx, name)
		if err != nil {
			fmt.Printf("%-40s error: %v\n", name, err)
			failed++
			continue
		}
		fmt.Printf("%-40s %s\n", name, describe(m))
	}

	fmt.Printf("\nPackages: %s\n", strings.Join(rt.Loader().Packages(), ", "))
	fmt.Printf("Transform calls: %d\n", rt.Transformed())

	if root != nil {
		fmt.Printf("\nTrace %s (%s):\n", root.ID, root.Duration())
		for _, s := range root.Spans() {
			fmt.Printf("  %s%-36s %s\n", strings.Repeat("  ", s.Depth), s.Name, s.Duration)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d modules failed", failed, len(names))
	}
	return nil
}

func describe(m *module.Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s owner=%s", m.Kind, m.Owner)
	if m.Bytes != nil {
		fmt.Fprintf(&b, " bytes=%d", len(m.Bytes))
	}
	if m.Compiled != nil {
		fmt.Fprintf(&b, " imports=%d exports=%d",
			len(m.Compiled.ImportedFunctions()), len(m.Compiled.ExportedFunctions()))
	}
	return b.String()
}
