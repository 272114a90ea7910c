// Package version parses and orders package versions of the form
// [epoch:]base[-release].
//
// The base is split into maximal runs of digits and maximal runs of
// non-digits. Runs compare numeric-to-numeric by integer value and
// alpha-to-alpha lexically; a numeric run outranks an alpha run at the same
// position, and when one sequence is a prefix of the other the longer one is
// newer. Epoch dominates everything, release breaks ties.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalid is the sentinel wrapped by every ParseError.
var ErrInvalid = errors.New("invalid version")

// ParseError describes a version string that does not match the grammar.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrInvalid
}

// Segment is one run of the base version.
type Segment struct {
	Value   string
	Numeric bool
}

// Spec is a parsed version.
type Spec struct {
	Epoch   uint64
	Base    []Segment
	Release uint64
}

// Parse parses raw into a Spec. A missing release defaults to 1 and a
// missing epoch to 0.
func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)

	var spec Spec
	if i := strings.IndexByte(s, ':'); i >= 0 {
		epoch, err := parseNumber(s[:i])
		if err != nil {
			return Spec{}, &ParseError{Input: raw, Reason: "epoch " + err.Error()}
		}
		spec.Epoch = epoch
		s = s[i+1:]
	}

	spec.Release = 1
	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		rel, err := parseNumber(s[i+1:])
		if err != nil {
			return Spec{}, &ParseError{Input: raw, Reason: "release " + err.Error()}
		}
		spec.Release = rel
		s = s[:i]
	}

	if s == "" {
		return Spec{}, &ParseError{Input: raw, Reason: "empty base version"}
	}
	spec.Base = segment(strings.ReplaceAll(s, "_", "."))
	return spec, nil
}

// ParseOptional is Parse for values that may be missing: blank input yields
// a nil Spec and no error.
func ParseOptional(raw string) (*Spec, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

// MustParse is Parse that panics on error. Intended for tests and constants.
func MustParse(raw string) Spec {
	spec, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return spec
}

func parseNumber(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("is empty")
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return 0, fmt.Errorf("%q is not numeric", s)
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	return n, nil
}

func segment(base string) []Segment {
	var segs []Segment
	for i := 0; i < len(base); {
		numeric := isDigit(base[i])
		j := i + 1
		for j < len(base) && isDigit(base[j]) == numeric {
			j++
		}
		segs = append(segs, Segment{Value: base[i:j], Numeric: numeric})
		i = j
	}
	return segs
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// BaseString renders the base segments.
func (s Spec) BaseString() string {
	var b strings.Builder
	for _, seg := range s.Base {
		b.WriteString(seg.Value)
	}
	return b.String()
}

// String renders the full version. The epoch is omitted when zero and a zero
// release is suppressed; both are display conventions only.
func (s Spec) String() string {
	var b strings.Builder
	if s.Epoch > 0 {
		b.WriteString(strconv.FormatUint(s.Epoch, 10))
		b.WriteByte(':')
	}
	b.WriteString(s.BaseString())
	if s.Release > 0 {
		b.WriteByte('-')
		b.WriteString(strconv.FormatUint(s.Release, 10))
	}
	return b.String()
}

// WithRelease returns a copy of s with the release replaced.
func (s Spec) WithRelease(release uint64) Spec {
	out := Spec{Epoch: s.Epoch, Release: release}
	out.Base = append([]Segment(nil), s.Base...)
	return out
}

// Equal reports whether s and o have the same epoch, segments and release.
func (s Spec) Equal(o Spec) bool {
	if s.Epoch != o.Epoch || s.Release != o.Release || len(s.Base) != len(o.Base) {
		return false
	}
	for i := range s.Base {
		if s.Base[i] != o.Base[i] {
			return false
		}
	}
	return true
}
