// Package pkgsync reconciles the version state of a set of source packages
// across a local build-definition tree, a package registry and an upstream
// version oracle, and decides one action per package.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/git-pkgs/pkgsync"
//		_ "github.com/git-pkgs/pkgsync/all"
//	)
//
//	local, _ := pkgsync.NewCollector("srcinfo", pkgsync.Options{Root: "."})
//	registry, _ := pkgsync.NewCollector("aur", pkgsync.Options{Maintainer: "alice"})
//	upstream, _ := pkgsync.NewCollector("nvchecker", pkgsync.Options{Root: "."})
//
//	res, err := pkgsync.Reconcile(context.Background(), local, registry, upstream)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, s := range res.Statuses {
//		fmt.Println(s.Key, s.Decision.Kind())
//	}
package pkgsync

import (
	"context"
	"fmt"

	"github.com/git-pkgs/purl"
	"github.com/rs/zerolog"

	"github.com/git-pkgs/pkgsync/client"
	"github.com/git-pkgs/pkgsync/internal/core"
	"github.com/git-pkgs/pkgsync/internal/report"
	"github.com/git-pkgs/pkgsync/version"
)

// Re-export types from internal/core
type (
	// PackageKey identifies a package across all sources.
	PackageKey = core.PackageKey

	// SourceKind names where a record came from.
	SourceKind = core.SourceKind

	// Record is one source's view of a package.
	Record = core.Record

	// Auxiliary is metadata passed through to the build pipeline.
	Auxiliary = core.Auxiliary

	// Status is the merged and decided view of a package.
	Status = core.Status

	// Collector supplies the records of one source.
	Collector = core.Collector

	// CollectorFunc adapts a function to Collector.
	CollectorFunc = core.CollectorFunc

	// Options configures a collector.
	Options = core.Options

	Decision       = core.Decision
	DecisionKind   = core.DecisionKind
	NoAction       = core.NoAction
	UpstreamUpdate = core.UpstreamUpdate
	RegistrySync   = core.RegistrySync
	LocalPush      = core.LocalPush
	Blocked        = core.Blocked

	// Instruction is the build pipeline input for one package.
	Instruction = core.Instruction
	Action      = core.Action

	// Row is one line of the status report.
	Row = report.Row
)

// Re-export constants
const (
	SourceLocal    = core.SourceLocal
	SourceRegistry = core.SourceRegistry
	SourceUpstream = core.SourceUpstream

	KindNoAction       = core.KindNoAction
	KindUpstreamUpdate = core.KindUpstreamUpdate
	KindRegistrySync   = core.KindRegistrySync
	KindLocalPush      = core.KindLocalPush
	KindBlocked        = core.KindBlocked

	ActionRebuildAndPublish = core.ActionRebuildAndPublish
	ActionSyncRegistryDown  = core.ActionSyncRegistryDown
	ActionPushLocalUp       = core.ActionPushLocalUp
	ActionNoOp              = core.ActionNoOp
)

// Re-export errors
var (
	ErrParse        = core.ErrParse
	ErrDuplicateKey = core.ErrDuplicateKey
	ErrInvariant    = core.ErrInvariant
	ErrDefensive    = core.ErrDefensive
	ErrBlocked      = core.ErrBlocked
	ErrNotFound     = client.ErrNotFound
)

// Error types
type (
	ParseError        = core.ParseError
	DuplicateKeyError = core.DuplicateKeyError
	InvariantError    = core.InvariantError
	DefensiveError    = core.DefensiveError
)

// NewRecord builds a record, downgrading an unparseable version to absent.
func NewRecord(key PackageKey, name string, source SourceKind, raw string) Record {
	return core.NewRecord(key, name, source, raw)
}

// NewCollector creates the collector registered under name. Collectors
// must be imported to be registered.
func NewCollector(name string, opts Options) (Collector, error) {
	return core.New(name, opts)
}

// SupportedCollectors returns all registered collector names.
func SupportedCollectors() []string {
	return core.SupportedCollectors()
}

// Compare orders b relative to a; see version.Compare.
func Compare(a, b *version.Spec) version.Relation {
	return version.Compare(a, b)
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	Statuses     []*Status
	Instructions []Instruction
	Rows         []Row
}

// Blocked returns the statuses whose decision is Blocked.
func (r *Result) Blocked() []*Status {
	var out []*Status
	for _, s := range r.Statuses {
		if s.Decision != nil && s.Decision.Kind() == KindBlocked {
			out = append(out, s)
		}
	}
	return out
}

// Lookup finds the status for a package key.
func (r *Result) Lookup(key PackageKey) (*Status, bool) {
	for _, s := range r.Statuses {
		if s.Key == key {
			return s, true
		}
	}
	return nil, false
}

// LookupPURL finds the status named by a package URL such as
// pkg:alpm/aur/yay. Any version in the PURL is ignored.
func (r *Result) LookupPURL(purlStr string) (*Status, error) {
	key, _, err := core.KeyFromPURL(purlStr)
	if err != nil {
		return nil, err
	}
	s, ok := r.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%s: %w", purlStr, ErrNotFound)
	}
	return s, nil
}

type settings struct {
	engine []core.EngineOption
	urls   client.URLBuilder
}

// Option configures Reconcile.
type Option func(*settings)

// WithWorkers bounds the number of packages decided concurrently.
func WithWorkers(n int) Option {
	return func(s *settings) {
		s.engine = append(s.engine, core.WithWorkers(n))
	}
}

// WithLogger sets the logger for engine diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) {
		s.engine = append(s.engine, core.WithLogger(l))
	}
}

// WithURLs attaches registry URLs to every instruction.
func WithURLs(urls client.URLBuilder) Option {
	return func(s *settings) {
		s.urls = urls
	}
}

// Reconcile collects from the three sources concurrently, then merges,
// decides and dispatches every package. It fails only if a collector fails;
// per-package problems are reported on the statuses.
func Reconcile(ctx context.Context, local, registry, upstream Collector, opts ...Option) (*Result, error) {
	var cfg settings
	for _, opt := range opts {
		opt(&cfg)
	}

	src, err := core.CollectAll(ctx, local, registry, upstream)
	if err != nil {
		return nil, err
	}

	statuses := core.Reconcile(src, core.NewEngine(cfg.engine...))
	return &Result{
		Statuses:     statuses,
		Instructions: core.DispatchAll(statuses, cfg.urls),
		Rows:         report.Build(statuses),
	}, nil
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components.
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}
