package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/sahilm/fuzzy"

	_ "github.com/git-pkgs/pkgsync/all"
	"github.com/git-pkgs/pkgsync/client"
	"github.com/git-pkgs/pkgsync/fetch"
	"github.com/git-pkgs/pkgsync/internal/config"
	"github.com/git-pkgs/pkgsync/internal/core"
	"github.com/git-pkgs/pkgsync/internal/logging"
	"github.com/git-pkgs/pkgsync/internal/report"
)

const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitBlocked = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	config       string
	format       string
	only         string
	instructions bool
	download     string
	strict       bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	var f flags
	fs := flag.NewFlagSet("pkgsync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", config.DefaultFile, "path to the TOML config file")
	fs.StringVar(&f.format, "format", "table", "output format: table, json or yaml")
	fs.StringVar(&f.only, "only", "", "comma separated package keys to report on")
	fs.BoolVar(&f.instructions, "instructions", false, "print build instructions instead of the status report")
	fs.StringVar(&f.download, "download", "", "download registry snapshots for sync-registry-down packages into this directory")
	fs.BoolVar(&f.strict, "strict", false, "exit with status 3 if any package is blocked")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return &f, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	format, err := report.ParseFormat(f.format)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	logger := logging.Configure("pkgsync", logging.Options{Out: stderr})

	cfg, err := config.Load(f.config)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return exitError
	}

	statuses, urls, err := reconcile(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("reconciliation failed")
		return exitError
	}

	if f.only != "" {
		known := keys(statuses, nil)
		var missing []string
		statuses, missing = filter(statuses, splitList(f.only))
		for _, name := range missing {
			msg := fmt.Sprintf("unknown package %q", name)
			if s := suggest(name, known); len(s) > 0 {
				msg += fmt.Sprintf(", did you mean %s?", strings.Join(s, ", "))
			}
			fmt.Fprintln(stderr, msg)
		}
		if len(missing) > 0 {
			return exitUsage
		}
	}

	insts := core.DispatchAll(statuses, urls)
	if f.instructions {
		err = report.WriteInstructions(stdout, format, insts)
	} else {
		err = report.Write(stdout, format, report.Build(statuses))
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to write output")
		return exitError
	}

	if f.download != "" {
		if err := download(ctx, cfg, urls, insts, f.download, logger); err != nil {
			logger.Error().Err(err).Msg("snapshot download failed")
			return exitError
		}
	}

	if f.strict {
		for _, s := range statuses {
			if s.Decision.Kind() == core.KindBlocked {
				return exitBlocked
			}
		}
	}
	return exitOK
}

func reconcile(ctx context.Context, cfg *config.Config, logger zerolog.Logger) ([]*core.Status, core.URLBuilder, error) {
	var clientOpts []client.Option
	if cfg.Cache.Size > 0 {
		clientOpts = append(clientOpts, client.WithCache(cfg.Cache.Size, cfg.Cache.TTL))
	}
	c := client.NewClient(clientOpts...)
	if cfg.UserAgent != "" {
		c = c.WithUserAgent(cfg.UserAgent)
	}

	opts := core.Options{
		Root:       cfg.Root,
		BaseURL:    cfg.RegistryURL,
		Maintainer: cfg.Maintainer,
		Command:    cfg.OracleCommand,
		Timeout:    cfg.OracleTimeout,
		Workers:    cfg.Workers,
		Client:     c,
		Logger:     logger,
	}

	local, err := core.NewFor(cfg.Local, core.SourceLocal, opts)
	if err != nil {
		return nil, nil, err
	}
	registry, err := core.NewFor(cfg.Registry, core.SourceRegistry, opts)
	if err != nil {
		return nil, nil, err
	}
	upstream, err := core.NewFor(cfg.Oracle, core.SourceUpstream, opts)
	if err != nil {
		return nil, nil, err
	}

	src, err := core.CollectAll(ctx, local, registry, upstream)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().
		Int("local", len(src.Local)).
		Int("registry", len(src.Registry)).
		Int("upstream", len(src.Upstream)).
		Msg("collected records")

	engine := core.NewEngine(core.WithWorkers(cfg.Workers), core.WithLogger(logger))
	statuses := core.Reconcile(src, engine)

	var urls core.URLBuilder
	if u, ok := registry.(interface{ URLs() core.URLBuilder }); ok {
		urls = u.URLs()
	}
	return statuses, urls, nil
}

func download(ctx context.Context, cfg *config.Config, urls core.URLBuilder, insts []core.Instruction, dir string, logger zerolog.Logger) error {
	opts := []fetch.Option{fetch.WithLogger(logger)}
	if cfg.UserAgent != "" {
		opts = append(opts, fetch.WithUserAgent(cfg.UserAgent))
	}
	d := fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(opts...),
		fetch.WithThreshold(cfg.Download.BreakerThreshold),
		fetch.WithCooldown(cfg.Download.BreakerCooldown, cfg.Download.BreakerMaxWait),
	)

	paths, err := fetch.NewResolver(urls).Download(ctx, d, insts, dir)
	for _, p := range paths {
		logger.Info().Str("path", p).Msg("snapshot saved")
	}
	return err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// filter keeps the statuses named in want, in their original order, and
// returns the names that matched nothing.
func filter(statuses []*core.Status, want []string) ([]*core.Status, []string) {
	var out []*core.Status
	for _, s := range statuses {
		if slices.Contains(want, string(s.Key)) {
			out = append(out, s)
		}
	}
	var missing []string
	for _, name := range want {
		if !slices.Contains(keys(out, nil), name) {
			missing = append(missing, name)
		}
	}
	return out, missing
}

func keys(statuses []*core.Status, dst []string) []string {
	for _, s := range statuses {
		dst = append(dst, string(s.Key))
	}
	return dst
}

// suggest returns up to three keys that fuzzily match name.
func suggest(name string, candidates []string) []string {
	matches := fuzzy.Find(name, candidates)
	var out []string
	for i, m := range matches {
		if i == 3 {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
