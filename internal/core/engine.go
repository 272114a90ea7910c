package core

import (
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/pkgsync/version"
)

// Decide evaluates s and sets its relations, errors, candidacy and decision.
// A status that already carries a decision is left untouched.
//
// The oracle reports no release numbers, so relations against upstream
// compare epoch and base only. Branches are tried in order and the first
// match wins:
//   - Blocked when a comparison is Unknown, when the registry is ahead of
//     the upstream oracle, or when the local tree is ahead of the oracle
//     without being ahead of a published registry version.
//   - UpstreamUpdate when upstream is newer than local and not older than
//     the registry is allowed to be.
//   - RegistrySync when the registry is newer than local.
//   - LocalPush when local is newer than the registry (or nothing is published).
//   - NoAction otherwise.
func Decide(s *Status) {
	if s.Decision != nil {
		return
	}

	local, registry, upstream := versionOf(s.Local), versionOf(s.Registry), versionOf(s.Upstream)
	relLU := version.CompareBase(local, upstream)
	relRU := version.CompareBase(registry, upstream)
	relLR := version.Compare(local, registry)
	s.Relations = map[string]version.Relation{
		RelLocalUpstream:    relLU,
		RelRegistryUpstream: relRU,
		RelLocalRegistry:    relLR,
	}

	var reasons []error
	for _, name := range []string{RelLocalUpstream, RelRegistryUpstream, RelLocalRegistry} {
		if s.Relations[name] == version.Unknown {
			reasons = append(reasons, &DefensiveError{Key: s.Key, Relation: name})
		}
	}

	if upstream != nil {
		if relRU == version.Downgrade {
			reasons = append(reasons, &InvariantError{
				Key:      s.Key,
				Source:   SourceRegistry,
				Version:  registry.String(),
				Upstream: upstream.String(),
			})
		}
		// A local version ahead of upstream is accepted only as a deliberate
		// edit on top of something already published.
		if relLU == version.Downgrade && !(registry != nil && relLR == version.Downgrade) {
			reasons = append(reasons, &InvariantError{
				Key:      s.Key,
				Source:   SourceLocal,
				Version:  local.String(),
				Upstream: upstream.String(),
			})
		}
	}

	if len(reasons) > 0 {
		s.Errors = append(s.Errors, reasons...)
		s.Candidate = false
		s.Decision = Blocked{Reasons: reasons}
		return
	}

	s.Candidate = true
	s.Decision = choose(local, registry, upstream, relLU, relRU, relLR)
}

func choose(local, registry, upstream *version.Spec, relLU, relRU, relLR version.Relation) Decision {
	if upstream != nil && relLU == version.Upgrade && (registry == nil || relRU == version.Upgrade) {
		target := upstream.WithRelease(1)
		if version.Newer(local, &target) {
			return UpstreamUpdate{TargetVersion: target}
		}
	}
	if registry != nil && relLR == version.Upgrade {
		return RegistrySync{TargetVersion: registry.WithRelease(registry.Release)}
	}
	if local != nil && (registry == nil || relLR == version.Downgrade) && relLU != version.Upgrade {
		return LocalPush{CurrentLocalVersion: local.WithRelease(local.Release)}
	}
	return NoAction{}
}

// Engine runs Decide over many statuses in parallel.
type Engine struct {
	workers int
	logger  zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWorkers bounds the number of concurrent decisions. Values below one
// mean GOMAXPROCS.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithLogger sets the logger used for blocked and defensive outcomes.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	return e
}

// Run decides every status and returns them sorted by key.
func (e *Engine) Run(statuses map[PackageKey]*Status) []*Status {
	out := make([]*Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, s := range out {
		g.Go(func() error {
			Decide(s)
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range out {
		e.logOutcome(s)
	}
	return out
}

func (e *Engine) logOutcome(s *Status) {
	for _, err := range s.Errors {
		switch KindOf(err) {
		case KindDefensive:
			e.logger.Error().Str("package", string(s.Key)).Err(err).Msg("comparison reached an unexpected state")
		case KindInvariant:
			e.logger.Warn().Str("package", string(s.Key)).Err(err).Msg("ordering invariant violated")
		case KindParse, KindDuplicate:
			e.logger.Warn().Str("package", string(s.Key)).Err(err).Msg("source data degraded")
		}
	}
	e.logger.Debug().
		Str("package", string(s.Key)).
		Str("decision", string(s.Decision.Kind())).
		Bool("candidate", s.Candidate).
		Msg("decided")
}
