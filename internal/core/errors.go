package core

import (
	"errors"
	"fmt"

	"github.com/git-pkgs/pkgsync/version"
)

var (
	ErrParse        = errors.New("malformed version")
	ErrDuplicateKey = errors.New("duplicate package key")
	ErrInvariant    = errors.New("invariant violation")
	ErrDefensive    = errors.New("unexpected comparison state")
	ErrBlocked      = errors.New("package is blocked")
)

// ErrorKind classifies per-package errors for reports.
type ErrorKind string

const (
	KindParse     ErrorKind = "parse-error"
	KindDuplicate ErrorKind = "duplicate-key"
	KindInvariant ErrorKind = "invariant-violation"
	KindDefensive ErrorKind = "defensive-unknown"
	KindOther     ErrorKind = "error"
)

// ParseError records a version string, or a whole source record, a collector
// could not parse. The source is treated as having no version.
type ParseError struct {
	Key    PackageKey
	Source SourceKind
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("%s: %s record: %v", e.Key, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %s version %q: %v", e.Key, e.Source, e.Raw, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// DuplicateKeyError is a warning: a collector emitted the same key twice and
// the later record won.
type DuplicateKeyError struct {
	Key    PackageKey
	Source SourceKind
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s: %s source reported the key more than once, keeping the last record", e.Key, e.Source)
}

func (e *DuplicateKeyError) Unwrap() error {
	return ErrDuplicateKey
}

// InvariantError reports a source that claims a newer version than the
// upstream oracle.
type InvariantError struct {
	Key      PackageKey
	Source   SourceKind
	Version  string
	Upstream string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s ahead of upstream oracle (%s > %s)", e.Key, e.Source, e.Version, e.Upstream)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// DefensiveError reports a comparison that returned version.Unknown.
type DefensiveError struct {
	Key      PackageKey
	Relation string
}

func (e *DefensiveError) Error() string {
	return fmt.Sprintf("%s: comparison %s returned %s", e.Key, e.Relation, version.Unknown)
}

func (e *DefensiveError) Unwrap() error {
	return ErrDefensive
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrDuplicateKey):
		return KindDuplicate
	case errors.Is(err, ErrInvariant):
		return KindInvariant
	case errors.Is(err, ErrDefensive):
		return KindDefensive
	default:
		return KindOther
	}
}

// IsBlocking reports whether err forces a Blocked decision.
func IsBlocking(err error) bool {
	return errors.Is(err, ErrInvariant) || errors.Is(err, ErrDefensive)
}
