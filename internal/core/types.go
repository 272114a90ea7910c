// Package core provides the shared types, the collector registry and the
// reconciliation engine.
package core

import (
	"github.com/git-pkgs/pkgsync/version"
)

// PackageKey is the stable identity of a buildable unit (the pkgbase). It is
// matched exactly; collectors normalise keys before handing records over.
type PackageKey string

// SourceKind identifies which of the three version sources a record came from.
type SourceKind string

const (
	SourceLocal    SourceKind = "local"
	SourceRegistry SourceKind = "registry"
	SourceUpstream SourceKind = "upstream"
)

// Auxiliary carries metadata the build pipeline needs. Reconciliation never
// looks at it.
type Auxiliary struct {
	Names        []string // package names built from this key
	Depends      []string
	MakeDepends  []string
	CheckDepends []string
	Sources      []string
	Licenses     []string
	Maintainer   string
	URL          string
	Metadata     map[string]any // source-specific data
}

// Record is one source's view of one package. Records are immutable once
// handed to Merge.
type Record struct {
	Key        PackageKey
	Name       string // display name as this source spells it
	RawVersion string
	Version    *version.Spec // nil when absent or unparseable
	Source     SourceKind
	Aux        Auxiliary
	ParseErr   error // set when RawVersion could not be parsed
}

// NewRecord builds a record and parses raw. A malformed version leaves the
// record without a version and keeps the error for the reconciler.
func NewRecord(key PackageKey, name string, source SourceKind, raw string) Record {
	r := Record{
		Key:        key,
		Name:       name,
		RawVersion: raw,
		Source:     source,
	}
	spec, err := version.ParseOptional(raw)
	if err != nil {
		r.ParseErr = &ParseError{Key: key, Source: source, Raw: raw, Err: err}
		return r
	}
	r.Version = spec
	return r
}

// VersionString renders the parsed version, or "" when absent.
func (r *Record) VersionString() string {
	if r == nil || r.Version == nil {
		return ""
	}
	return r.Version.String()
}

// Relation names stored on Status.Relations.
const (
	RelLocalUpstream    = "local/upstream"
	RelRegistryUpstream = "registry/upstream"
	RelLocalRegistry    = "local/registry"
)

// Status is the merged view of one package across all sources, plus the
// outcome of the decision engine.
type Status struct {
	Key      PackageKey
	Local    *Record
	Registry *Record
	Upstream *Record

	Relations map[string]version.Relation
	Errors    []error
	Candidate bool
	Decision  Decision
}

// Record returns the record for the given source, or nil.
func (s *Status) Record(source SourceKind) *Record {
	switch source {
	case SourceLocal:
		return s.Local
	case SourceRegistry:
		return s.Registry
	case SourceUpstream:
		return s.Upstream
	}
	return nil
}

// DisplayName picks the local name, then the registry name, then the
// upstream name, falling back to the key. It is cosmetic only.
func (s *Status) DisplayName() string {
	for _, r := range []*Record{s.Local, s.Registry, s.Upstream} {
		if r != nil && r.Name != "" {
			return r.Name
		}
	}
	return string(s.Key)
}

func versionOf(r *Record) *version.Spec {
	if r == nil {
		return nil
	}
	return r.Version
}
