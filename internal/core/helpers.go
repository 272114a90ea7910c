package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Sources holds the output of the three collectors.
type Sources struct {
	Local    []Record
	Registry []Record
	Upstream []Record
}

// CollectAll runs the three collectors concurrently. Any collector may be
// nil, in which case its source is empty. A collector error fails the whole
// collection: an empty registry would otherwise look like nothing was ever
// published.
func CollectAll(ctx context.Context, local, registry, upstream Collector) (*Sources, error) {
	var out Sources
	g, gCtx := errgroup.WithContext(ctx)

	run := func(c Collector, source SourceKind, dst *[]Record) {
		if c == nil {
			return
		}
		g.Go(func() error {
			records, err := c.Collect(gCtx)
			if err != nil {
				return fmt.Errorf("collecting %s records: %w", source, err)
			}
			*dst = records
			return nil
		})
	}

	run(local, SourceLocal, &out.Local)
	run(registry, SourceRegistry, &out.Registry)
	run(upstream, SourceUpstream, &out.Upstream)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reconcile merges sources and decides every package, returning statuses
// sorted by key.
func Reconcile(src *Sources, engine *Engine) []*Status {
	if engine == nil {
		engine = NewEngine()
	}
	return engine.Run(Merge(src.Local, src.Registry, src.Upstream))
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc struct {
	Kind SourceKind
	Fn   func(ctx context.Context) ([]Record, error)
}

func (c CollectorFunc) Source() SourceKind {
	return c.Kind
}

func (c CollectorFunc) Collect(ctx context.Context) ([]Record, error) {
	return c.Fn(ctx)
}
