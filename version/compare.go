package version

import "strings"

// Relation is the answer to "does b represent an upgrade, downgrade, or the
// same version versus a".
type Relation int

const (
	Same Relation = iota
	Upgrade
	Downgrade
	// Unknown is only produced for malformed specs that never came out of
	// Parse. Callers treat it as an invariant violation.
	Unknown
)

func (r Relation) String() string {
	switch r {
	case Same:
		return "same"
	case Upgrade:
		return "upgrade"
	case Downgrade:
		return "downgrade"
	default:
		return "unknown"
	}
}

// Invert swaps Upgrade and Downgrade.
func (r Relation) Invert() Relation {
	switch r {
	case Upgrade:
		return Downgrade
	case Downgrade:
		return Upgrade
	default:
		return r
	}
}

// Compare orders b relative to a. A nil spec means "absent" and is older
// than any present spec; two absent specs are the same.
func Compare(a, b *Spec) Relation {
	switch {
	case a == nil && b == nil:
		return Same
	case a == nil:
		return Upgrade
	case b == nil:
		return Downgrade
	}
	if !a.valid() || !b.valid() {
		return Unknown
	}
	return fromCmp(cmp(*a, *b))
}

// CompareBase is Compare with release numbers ignored. It is used against
// sources that have no notion of a release.
func CompareBase(a, b *Spec) Relation {
	if a == nil || b == nil {
		return Compare(a, b)
	}
	ab, bb := a.WithRelease(0), b.WithRelease(0)
	return Compare(&ab, &bb)
}

// Cmp returns -1, 0 or +1 as a is older than, equal to, or newer than b.
// Malformed specs sort by their rendered strings.
func Cmp(a, b Spec) int {
	if !a.valid() || !b.valid() {
		return strings.Compare(a.String(), b.String())
	}
	return cmp(a, b)
}

// Newer reports whether b is strictly newer than a.
func Newer(a, b *Spec) bool {
	return Compare(a, b) == Upgrade
}

func fromCmp(c int) Relation {
	switch {
	case c < 0:
		return Upgrade
	case c > 0:
		return Downgrade
	default:
		return Same
	}
}

func cmp(a, b Spec) int {
	if c := cmpUint(a.Epoch, b.Epoch); c != 0 {
		return c
	}
	if c := cmpBase(a.Base, b.Base); c != 0 {
		return c
	}
	return cmpUint(a.Release, b.Release)
}

func cmpBase(a, b []Segment) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		sa, sb := a[i], b[i]
		switch {
		case sa.Numeric && sb.Numeric:
			if c := cmpDigits(sa.Value, sb.Value); c != 0 {
				return c
			}
		case sa.Numeric:
			return 1
		case sb.Numeric:
			return -1
		default:
			if c := strings.Compare(sa.Value, sb.Value); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(a) > len(b):
		return 1
	case len(a) < len(b):
		return -1
	default:
		return 0
	}
}

// cmpDigits compares two digit strings by value without overflow.
func cmpDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) > len(b) {
			return 1
		}
		return -1
	}
	return strings.Compare(a, b)
}

func cmpUint(a, b uint64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

func (s Spec) valid() bool {
	if len(s.Base) == 0 {
		return false
	}
	for _, seg := range s.Base {
		if seg.Value == "" {
			return false
		}
		for i := 0; i < len(seg.Value); i++ {
			if isDigit(seg.Value[i]) != seg.Numeric {
				return false
			}
		}
	}
	return true
}
