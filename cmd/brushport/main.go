package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/xlab/treeprint"
	"golang.org/x/term"

	"github.com/floegence/brushport/internal/brush"
	"github.com/floegence/brushport/internal/config"
	"github.com/floegence/brushport/internal/convert"
	"github.com/floegence/brushport/internal/history"
	"github.com/floegence/brushport/internal/mapping"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "convert":
		os.Exit(convertCmd(os.Args[2:]))
	case "table":
		os.Exit(tableCmd(os.Args[2:]))
	case "init-config":
		os.Exit(initConfigCmd(os.Args[2:]))
	case "history":
		os.Exit(historyCmd(os.Args[2:]))
	case "version":
		fmt.Printf("brushport %s (%s)\n", Version, Commit)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `brushport

Usage:
  brushport convert [flags] <source.sut> <output-dir>
  brushport table [flags]
  brushport init-config [flags]
  brushport history [flags]
  brushport version

Commands:
  convert       Convert a Clip Studio Paint brush into a Procreate .brush or .brushset.
  table         Print the setting mapping table.
  init-config   Write a config file with the default settings.
  history       List recent conversions.
  version       Print build information.

`)
}

func convertCmd(args []string) int {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	overwrite := fs.Bool("overwrite", false, "Replace an existing output file")
	workers := fs.Int("workers", 0, "Concurrent tips (0: physical core count)")
	logFormat := fs.String("log-format", "", "Log format: json|text (default: text on a terminal)")
	logLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")
	quiet := fs.Bool("quiet", false, "Do not print diagnostics")
	_ = fs.Parse(args)

	if fs.NArg() != 2 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *overwrite {
		cfg.Overwrite = true
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	} else if cfg.LogFormat == "" && term.IsTerminal(int(os.Stderr.Fd())) {
		cfg.LogFormat = "text"
	}
	log, err := config.NewLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging flags: %v\n", err)
		return 2
	}

	table, err := loadTable(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load mapping table: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	started := time.Now()
	res, err := convert.Convert(ctx, fs.Arg(0), fs.Arg(1), convert.Options{
		Logger:    log,
		Table:     table,
		Assets:    cfg.Normalize(),
		Workers:   cfg.Workers,
		Overwrite: cfg.Overwrite,
	})
	if !cfg.DisableHistory {
		if store, herr := openHistory(cfg, log); herr != nil {
			log.Warn("history unavailable", "error", herr)
		} else {
			store.Append(history.NewRecord(fs.Arg(0), res, err, time.Since(started)))
		}
	}
	if err != nil {
		if kind := brush.ErrorKind(err); kind != "" {
			fmt.Fprintf(os.Stderr, "conversion failed [%s]: %v\n", kind, err)
		} else {
			fmt.Fprintf(os.Stderr, "conversion failed: %v\n", err)
		}
		return 1
	}

	if !*quiet {
		for _, d := range res.Diagnostics {
			fmt.Fprintf(os.Stderr, "warning: %s\n", d)
		}
	}
	for _, p := range res.ProducedPaths {
		size := ""
		if info, err := os.Stat(p); err == nil {
			size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
		}
		fmt.Printf("Wrote %s%s\n", p, size)
	}
	log.Debug("done", "diagnostics", len(res.Diagnostics))
	return 0
}

func initConfigCmd(args []string) int {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	force := fs.Bool("force", false, "Replace an existing config file")
	_ = fs.Parse(args)

	path := filepath.Clean(*cfgPath)
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "config already exists: %s (use -force)\n", path)
		return 1
	}
	if err := config.Save(path, config.Default()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
		return 1
	}
	fmt.Printf("Config written: %s\n", path)
	return 0
}

func historyCmd(args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	limit := fs.Int("n", 20, "Number of records to show")
	_ = fs.Parse(args)

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	store, err := openHistory(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open history: %v\n", err)
		return 1
	}
	records, err := store.List(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read history: %v\n", err)
		return 1
	}
	for _, r := range records {
		fmt.Println(formatRecord(r))
	}
	return 0
}

func formatRecord(r history.Record) string {
	when := r.CreatedAt
	if t, err := time.Parse(time.RFC3339Nano, r.CreatedAt); err == nil {
		when = humanize.Time(t)
	}
	if r.Status != "success" {
		return fmt.Sprintf("%s  FAILED  %s  [%s] %s", when, r.Source, r.ErrorKind, r.Error)
	}
	n := 0
	for _, c := range r.Diagnostics {
		n += c
	}
	return fmt.Sprintf("%s  ok  %s -> %s  (%s diagnostics)", when, r.Source, r.Output, humanize.Comma(int64(n)))
}

func openHistory(cfg *config.Config, log *slog.Logger) (*history.Store, error) {
	dir := cfg.StateDir
	if dir == "" {
		dir = config.DefaultStateDir()
	}
	return history.New(history.Options{Logger: log, StateDir: dir})
}

func loadTable(cfg *config.Config) (*mapping.Table, error) {
	if cfg.MappingTable != "" {
		return mapping.Load(cfg.MappingTable)
	}
	return mapping.Default()
}

func tableCmd(args []string) int {
	fs := flag.NewFlagSet("table", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	path := fs.String("file", "", "YAML mapping table (default: configured or built-in)")
	_ = fs.Parse(args)

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *path != "" {
		cfg.MappingTable = *path
	}
	table, err := loadTable(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load mapping table: %v\n", err)
		return 1
	}
	fmt.Print(renderTable(table))
	return 0
}

// renderTable prints one branch per source key with its targets as leaves.
func renderTable(table *mapping.Table) string {
	root := treeprint.NewWithRoot(fmt.Sprintf("mapping table %s (%d entries)", table.Version(), table.Len()))
	for _, src := range table.Sources() {
		entries, _ := table.Lookup(src)
		branch := root.AddBranch(src)
		for _, e := range entries {
			if e.Unsupported {
				branch.AddNode("unsupported: " + e.Concept)
				continue
			}
			leaf := fmt.Sprintf("%s %s %s -> %s", e.Target, e.Transform.Kind, e.SourceDomain, e.TargetDomain)
			if e.When != nil {
				leaf += " when " + e.When.Key
			}
			branch.AddNode(leaf)
		}
	}
	return root.String()
}
