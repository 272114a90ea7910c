package core

import "fmt"

// Action tells the build pipeline what to do with a package.
type Action string

const (
	ActionRebuildAndPublish Action = "rebuild-and-publish"
	ActionSyncRegistryDown  Action = "sync-registry-down"
	ActionPushLocalUp       Action = "push-local-up"
	ActionNoOp              Action = "no-op"
)

// Instruction is the build pipeline's input for one package.
type Instruction struct {
	Key     PackageKey
	Name    string
	Action  Action
	Version string     // full target version, empty for no-op
	Source  SourceKind // the source whose metadata is attached
	Aux     Auxiliary
	URLs    map[string]string // registry, download, docs and purl URLs when a URLBuilder is given
}

// Dispatch maps the decision on s to exactly one instruction shape. Blocked
// and undecided statuses yield ErrBlocked. urls may be nil.
func Dispatch(s *Status, urls URLBuilder) (Instruction, error) {
	inst := Instruction{Key: s.Key, Name: s.DisplayName()}

	var rec *Record
	switch d := s.Decision.(type) {
	case UpstreamUpdate:
		inst.Action = ActionRebuildAndPublish
		inst.Version = d.TargetVersion.String()
		rec = firstPresent(s.Local, s.Registry, s.Upstream)
	case RegistrySync:
		inst.Action = ActionSyncRegistryDown
		inst.Version = d.TargetVersion.String()
		rec = s.Registry
	case LocalPush:
		inst.Action = ActionPushLocalUp
		inst.Version = d.CurrentLocalVersion.String()
		rec = s.Local
	case NoAction:
		inst.Action = ActionNoOp
		rec = firstPresent(s.Local, s.Registry, s.Upstream)
	case Blocked:
		return Instruction{}, fmt.Errorf("%s: %w", s.Key, ErrBlocked)
	default:
		return Instruction{}, fmt.Errorf("%s: no decision: %w", s.Key, ErrBlocked)
	}

	if rec != nil {
		inst.Source = rec.Source
		inst.Aux = rec.Aux
	}
	if urls != nil {
		inst.URLs = BuildURLs(urls, string(s.Key), inst.Version)
	}
	return inst, nil
}

// DispatchAll dispatches every non-blocked status, preserving order.
func DispatchAll(statuses []*Status, urls URLBuilder) []Instruction {
	out := make([]Instruction, 0, len(statuses))
	for _, s := range statuses {
		inst, err := Dispatch(s, urls)
		if err != nil {
			continue
		}
		out = append(out, inst)
	}
	return out
}

func firstPresent(records ...*Record) *Record {
	for _, r := range records {
		if r != nil {
			return r
		}
	}
	return nil
}
