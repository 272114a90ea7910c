package core

import "github.com/git-pkgs/pkgsync/version"

// DecisionKind names a Decision variant.
type DecisionKind string

const (
	KindNoAction       DecisionKind = "no-action"
	KindUpstreamUpdate DecisionKind = "upstream-update"
	KindRegistrySync   DecisionKind = "registry-sync"
	KindLocalPush      DecisionKind = "local-push"
	KindBlocked        DecisionKind = "blocked"
)

// Decision is the single outcome of the decision engine for one package.
// The set of implementations is closed.
type Decision interface {
	Kind() DecisionKind
	// Target is the version the decision moves the package to, if any.
	Target() *version.Spec
	decision()
}

// NoAction means all present sources agree or there is nothing to act on.
type NoAction struct{}

// UpstreamUpdate rebuilds the package at a new upstream base version.
type UpstreamUpdate struct {
	TargetVersion version.Spec
}

// RegistrySync pulls an already published version down into the local tree.
type RegistrySync struct {
	TargetVersion version.Spec
}

// LocalPush publishes a local definition that is ahead of the registry.
type LocalPush struct {
	CurrentLocalVersion version.Spec
}

// Blocked halts automated action. Reasons are InvariantError or
// DefensiveError values.
type Blocked struct {
	Reasons []error
}

func (NoAction) Kind() DecisionKind       { return KindNoAction }
func (UpstreamUpdate) Kind() DecisionKind { return KindUpstreamUpdate }
func (RegistrySync) Kind() DecisionKind   { return KindRegistrySync }
func (LocalPush) Kind() DecisionKind      { return KindLocalPush }
func (Blocked) Kind() DecisionKind        { return KindBlocked }

func (NoAction) Target() *version.Spec         { return nil }
func (d UpstreamUpdate) Target() *version.Spec { return &d.TargetVersion }
func (d RegistrySync) Target() *version.Spec   { return &d.TargetVersion }
func (d LocalPush) Target() *version.Spec      { return &d.CurrentLocalVersion }
func (Blocked) Target() *version.Spec          { return nil }

func (NoAction) decision()       {}
func (UpstreamUpdate) decision() {}
func (RegistrySync) decision()   {}
func (LocalPush) decision()      {}
func (Blocked) decision()        {}
