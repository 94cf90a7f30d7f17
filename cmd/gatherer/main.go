// Command gatherer polls every configured inventory backend once and writes the merged
// host inventory.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nmslite/hostgatherer/internal/config"
	"github.com/nmslite/hostgatherer/internal/gatherer"
	"github.com/nmslite/hostgatherer/internal/output"
	"github.com/nmslite/hostgatherer/internal/registry"
	"github.com/nmslite/hostgatherer/internal/store"
	"github.com/nmslite/hostgatherer/internal/workers"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, workers.Registry()))
}

type options struct {
	configPath    string
	configSet     bool
	infile        string
	outfile       string
	logLevel      string
	listModules   bool
	exampleConfig bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("gatherer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML configuration file")
	fs.StringVar(&opts.infile, "infile", "", "nodes file (JSON or YAML object keyed by node name)")
	fs.StringVar(&opts.outfile, "outfile", "", "inventory output path, - for stdout (overrides output.file)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.BoolVar(&opts.listModules, "list-modules", false, "list worker types with their parameters and exit")
	fs.BoolVar(&opts.exampleConfig, "example-config", false, "print an example configuration and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			opts.configSet = true
		}
	})
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, reg *registry.Registry) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "gatherer: %v\n", err)
		return exitUsage
	}

	if opts.exampleConfig {
		if err := config.DumpExampleConfig(stdout); err != nil {
			fmt.Fprintf(stderr, "gatherer: %v\n", err)
			return exitError
		}
		return exitOK
	}

	if opts.listModules {
		if err := listModules(stdout, reg); err != nil {
			fmt.Fprintf(stderr, "gatherer: %v\n", err)
			return exitError
		}
		return exitOK
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "gatherer: %v\n", err)
		return exitUsage
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(opts.logLevel)
		if !cfg.Logging.IsLogLevelValid() {
			fmt.Fprintf(stderr, "gatherer: invalid log level %q\n", opts.logLevel)
			return exitUsage
		}
	}

	logger, closeLog, err := initLogger(cfg.Logging, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "gatherer: %v\n", err)
		return exitError
	}
	defer closeLog()

	nodes := cfg.Nodes
	if opts.infile != "" {
		fileNodes, err := config.LoadNodesFile(opts.infile)
		if err != nil {
			logger.Error("Failed to load nodes file", "path", opts.infile, "error", err)
			return exitUsage
		}
		nodes = append(nodes, fileNodes...)
	}
	if len(nodes) == 0 {
		logger.Warn("No nodes configured, the inventory will be empty")
	}

	g := gatherer.New(reg, gatherer.Config{
		MaxWorkers:  cfg.Gatherer.MaxWorkers,
		NodeTimeout: cfg.Gatherer.NodeTimeout(),
	}, logger)
	result := g.Gather(ctx, nodeSpecs(nodes))

	outPath := cfg.Output.File
	if opts.outfile != "" {
		outPath = opts.outfile
	}
	outOpts := output.Options{Format: cfg.Output.Format, Pretty: cfg.Output.Pretty}
	if err := writeInventory(outPath, stdout, result, outOpts); err != nil {
		logger.Error("Failed to write inventory", "path", outPath, "error", err)
		return exitError
	}

	summarize(logger, result)

	if cfg.Store.Driver != "" {
		if err := saveSnapshot(ctx, cfg.Store, result, logger); err != nil {
			logger.Error("Failed to save snapshot", "driver", cfg.Store.Driver, "error", err)
			return exitError
		}
	}

	return exitOK
}

// loadConfig reads the config file. A missing default config.yaml falls back to defaults
// so that -infile alone is enough to run.
func loadConfig(opts *options) (*config.Config, error) {
	if !opts.configSet {
		if _, err := os.Stat(opts.configPath); errors.Is(err, os.ErrNotExist) {
			return config.Parse(nil)
		}
	}
	return config.Load(opts.configPath)
}

func nodeSpecs(nodes []config.Node) []gatherer.NodeSpec {
	specs := make([]gatherer.NodeSpec, len(nodes))
	for i, n := range nodes {
		specs[i] = gatherer.NodeSpec{Name: n.Name, Type: n.Type, Params: n.Params}
	}
	return specs
}

func writeInventory(path string, stdout io.Writer, result *gatherer.Result, opts output.Options) error {
	if path == "" || path == "-" {
		return output.Write(stdout, result.Inventory, opts)
	}
	return output.WriteFile(path, result.Inventory, opts)
}

func listModules(w io.Writer, reg *registry.Registry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reg.List()); err != nil {
		return fmt.Errorf("failed to encode modules: %w", err)
	}
	return nil
}

func summarize(logger *slog.Logger, result *gatherer.Result) {
	for _, n := range result.Problems() {
		logger.Warn("Node skipped", "node", n.Name, "type", n.Type, "error", n.Error)
	}
	for _, n := range result.BackendFailures() {
		logger.Warn("Node returned partial results", "node", n.Name, "type", n.Type, "hosts", n.Hosts, "error", n.Error)
	}
	logger.Info("Inventory written",
		"run_id", result.RunID.String(),
		"hosts", len(result.Inventory),
		"nodes", len(result.Nodes),
		"skipped", len(result.Problems()),
		"backend_failures", len(result.BackendFailures()),
	)
}

func saveSnapshot(ctx context.Context, cfg config.StoreConfig, result *gatherer.Result, logger *slog.Logger) error {
	// The snapshot is still written after an interrupt.
	ctx = context.WithoutCancel(ctx)

	s, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.SaveRun(ctx, result)
}

func initLogger(cfg config.LoggingConfig, stdout, stderr io.Writer) (*slog.Logger, func(), error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	out := stderr
	closeFn := func() {}
	switch cfg.Output {
	case "stdout":
		out = stdout
	case "file":
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closeFn, nil
}
