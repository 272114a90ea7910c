// Package srcinfo collects local build-definition versions from .SRCINFO
// files in a package tree.
package srcinfo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/pkgsync/internal/core"
)

const (
	name     = "srcinfo"
	FileName = ".SRCINFO"
)

func init() {
	core.Register(name, core.SourceLocal, func(opts core.Options) core.Collector {
		return New(opts.Root, opts.Workers, opts.Logger)
	})
}

// Collector walks a tree of package directories.
type Collector struct {
	root    string
	workers int
	logger  zerolog.Logger
}

// New creates a collector rooted at root. workers below one means GOMAXPROCS.
func New(root string, workers int, logger zerolog.Logger) *Collector {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Collector{root: root, workers: workers, logger: logger}
}

func (c *Collector) Source() core.SourceKind {
	return core.SourceLocal
}

// Collect parses every .SRCINFO under the root, one task per file. A file
// that cannot be read or parsed yields a versionless record keyed by its
// directory name, carrying the error.
func (c *Collector) Collect(ctx context.Context) ([]core.Record, error) {
	files, err := Find(c.root)
	if err != nil {
		return nil, err
	}

	records := make([]core.Record, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			info, err := ParseFile(path)
			if err != nil {
				c.logger.Warn().Str("file", path).Err(err).Msg("unreadable build definition")
				records[i] = unreadable(path, err)
				return nil
			}
			records[i] = info.Record()
			c.logger.Debug().Str("file", path).Str("package", info.PkgBase).Str("version", info.FullVersion()).Msg("read build definition")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func unreadable(path string, err error) core.Record {
	key := core.PackageKey(filepath.Base(filepath.Dir(path)))
	return core.Record{
		Key:      key,
		Name:     string(key),
		Source:   core.SourceLocal,
		Aux:      core.Auxiliary{Metadata: map[string]any{"path": path}},
		ParseErr: &core.ParseError{Key: key, Source: core.SourceLocal, Err: err},
	}
}

// Find returns every .SRCINFO below root, skipping hidden directories.
func Find(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == FileName {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}

// Info is the subset of a .SRCINFO the reconciler and build pipeline use.
type Info struct {
	PkgBase      string
	PkgNames     []string
	Epoch        string
	PkgVer       string
	PkgRel       string
	URL          string
	Licenses     []string
	Depends      []string
	MakeDepends  []string
	CheckDepends []string
	Sources      []string
	Path         string
}

// FullVersion renders [epoch:]pkgver[-pkgrel].
func (i *Info) FullVersion() string {
	if i.PkgVer == "" {
		return ""
	}
	v := i.PkgVer
	if i.Epoch != "" && i.Epoch != "0" {
		v = i.Epoch + ":" + v
	}
	if i.PkgRel != "" {
		v += "-" + i.PkgRel
	}
	return v
}

// Record converts the info into a local record.
func (i *Info) Record() core.Record {
	display := i.PkgBase
	if len(i.PkgNames) > 0 {
		display = i.PkgNames[0]
	}
	rec := core.NewRecord(core.PackageKey(i.PkgBase), display, core.SourceLocal, i.FullVersion())
	rec.Aux = core.Auxiliary{
		Names:        i.PkgNames,
		Depends:      i.Depends,
		MakeDepends:  i.MakeDepends,
		CheckDepends: i.CheckDepends,
		Sources:      i.Sources,
		Licenses:     i.Licenses,
		URL:          i.URL,
		Metadata:     map[string]any{"path": i.Path},
	}
	return rec
}

// ParseFile parses the .SRCINFO at path.
func ParseFile(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	info.Path = path
	return info, nil
}

// Parse reads .SRCINFO content. Fields from pkgname sections are merged into
// the package-level lists; architecture-suffixed lists (depends_x86_64) are
// folded into their base field.
func Parse(r io.Reader) (*Info, error) {
	info := &Info{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected key = value", lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if base, _, found := strings.Cut(key, "_"); found && isArchList(base) {
			key = base
		}

		switch key {
		case "pkgbase":
			info.PkgBase = value
		case "pkgname":
			info.PkgNames = appendUnique(info.PkgNames, value)
		case "epoch":
			info.Epoch = value
		case "pkgver":
			info.PkgVer = value
		case "pkgrel":
			info.PkgRel = value
		case "url":
			if info.URL == "" {
				info.URL = value
			}
		case "license":
			info.Licenses = appendUnique(info.Licenses, value)
		case "depends":
			info.Depends = appendUnique(info.Depends, value)
		case "makedepends":
			info.MakeDepends = appendUnique(info.MakeDepends, value)
		case "checkdepends":
			info.CheckDepends = appendUnique(info.CheckDepends, value)
		case "source":
			info.Sources = appendUnique(info.Sources, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if info.PkgBase == "" {
		if len(info.PkgNames) == 0 {
			return nil, fmt.Errorf("no pkgbase or pkgname")
		}
		info.PkgBase = info.PkgNames[0]
	}
	return info, nil
}

func isArchList(key string) bool {
	switch key {
	case "depends", "makedepends", "checkdepends", "source":
		return true
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
