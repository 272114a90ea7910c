package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Collector supplies one source's records.
type Collector interface {
	// Source returns the kind of records this collector produces.
	Source() SourceKind

	// Collect gathers records. Every record must carry a normalised key.
	Collect(ctx context.Context) ([]Record, error)
}

// Options carries the settings a collector factory may use. Fields a
// collector does not need are ignored.
type Options struct {
	Root       string        // build-definition tree
	BaseURL    string        // registry endpoint
	Maintainer string        // registry maintainer or scope
	Command    string        // oracle executable
	Timeout    time.Duration // bound on a single oracle run
	Workers    int
	Client     *Client
	Logger     zerolog.Logger
}

// Factory creates a collector.
type Factory func(opts Options) Collector

type registration struct {
	source  SourceKind
	factory Factory
}

var (
	factories = make(map[string]registration)
	mu        sync.RWMutex
)

// Register adds a collector factory under name.
func Register(name string, source SourceKind, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = registration{source: source, factory: factory}
}

// New creates the collector registered under name. If opts.Client is nil,
// DefaultClient() is used.
func New(name string, opts Options) (Collector, error) {
	mu.RLock()
	reg, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown collector: %s", name)
	}

	if opts.Client == nil {
		opts.Client = DefaultClient()
	}

	return reg.factory(opts), nil
}

// NewFor is New that also checks the collector produces the given source.
func NewFor(name string, source SourceKind, opts Options) (Collector, error) {
	mu.RLock()
	reg, ok := factories[name]
	mu.RUnlock()

	if ok && reg.source != source {
		return nil, fmt.Errorf("collector %s produces %s records, not %s", name, reg.source, source)
	}
	return New(name, opts)
}

// SupportedCollectors returns the registered collector names, sorted.
func SupportedCollectors() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
