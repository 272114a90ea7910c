// Package nvchecker collects upstream versions by running nvchecker over the
// per-package .nvchecker.toml files of a package tree.
package nvchecker

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/git-pkgs/pkgsync/internal/core"
	"github.com/git-pkgs/pkgsync/internal/srcinfo"
)

const (
	name           = "nvchecker"
	ConfigFile     = ".nvchecker.toml"
	DefaultCommand = "nvchecker"
	DefaultTimeout = 5 * time.Minute

	configSection = "__config__"
)

func init() {
	core.Register(name, core.SourceUpstream, func(opts core.Options) core.Collector {
		o := New(opts.Root)
		if opts.Command != "" {
			o.command = opts.Command
		}
		if opts.Timeout > 0 {
			o.timeout = opts.Timeout
		}
		o.logger = opts.Logger
		return o
	})
}

// Runner executes the oracle command. It returns combined output for error
// reporting.
type Runner func(ctx context.Context, command string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, command string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, command, args...).CombinedOutput()
}

// Oracle is the upstream collector.
type Oracle struct {
	root    string
	command string
	timeout time.Duration
	run     Runner
	logger  zerolog.Logger
}

// New creates an oracle for the tree at root.
func New(root string) *Oracle {
	return &Oracle{
		root:    root,
		command: DefaultCommand,
		timeout: DefaultTimeout,
		run:     execRunner,
		logger:  zerolog.Nop(),
	}
}

// WithRunner replaces the command runner.
func (o *Oracle) WithRunner(r Runner) *Oracle {
	o.run = r
	return o
}

func (o *Oracle) Source() core.SourceKind {
	return core.SourceUpstream
}

// Entry is one nvchecker table and the file it came from. Key is the package
// base the table reports for: the pkgbase of the .SRCINFO next to the config
// when there is one, otherwise the table name.
type Entry struct {
	Key    core.PackageKey
	Name   string
	Path   string
	Config map[string]any
}

// Collect merges all package configs, runs the oracle once and reads its
// newver file. Records are keyed by Entry.Key; the table name is kept in
// Aux.Metadata. Packages without configuration get no record.
func (o *Oracle) Collect(ctx context.Context) ([]core.Record, error) {
	entries, err := o.Entries()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "pkgsync-nvchecker-")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	configPath := filepath.Join(dir, "nvchecker.toml")
	newver := filepath.Join(dir, "new_ver.json")
	if err := writeConfig(configPath, newver, filepath.Join(dir, "old_ver.json"), entries); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	out, err := o.run(runCtx, o.command, "-c", configPath)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w: %s", o.command, err, strings.TrimSpace(string(out)))
	}
	o.logger.Debug().Int("entries", len(entries)).Dur("took", time.Since(start)).Msg("upstream oracle finished")

	data, err := os.ReadFile(newver)
	if err != nil {
		return nil, fmt.Errorf("reading oracle results: %w", err)
	}
	versions, err := ParseResults(data)
	if err != nil {
		return nil, err
	}

	records := make([]core.Record, 0, len(entries))
	for _, e := range entries {
		v, ok := versions[e.Name]
		if !ok {
			o.logger.Warn().Str("package", string(e.Key)).Str("table", e.Name).Msg("upstream oracle reported no version")
			continue
		}
		rec := core.NewRecord(e.Key, string(e.Key), core.SourceUpstream, v.Version)
		rec.Aux = core.Auxiliary{
			URL: v.URL,
			Metadata: map[string]any{
				"table":    e.Name,
				"config":   e.Path,
				"source":   e.Config["source"],
				"revision": v.Revision,
			},
		}
		records = append(records, rec)
	}
	return records, nil
}

// Entries reads every package config under the root. A config that sits next
// to a .SRCINFO reports for that package base: the table named after the base
// is preferred, then the first in name order, and the rest are ignored. A table
// name or package key defined by more than one file keeps its first definition.
func (o *Oracle) Entries() ([]Entry, error) {
	var files []string
	err := filepath.WalkDir(o.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != o.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.IsDir() && d.Name() == ConfigFile {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", o.root, err)
	}
	sort.Strings(files)

	tables := make(map[string]string)
	keys := make(map[core.PackageKey]string)
	var entries []Entry
	for _, path := range files {
		var doc map[string]map[string]any
		if _, err := toml.DecodeFile(path, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		base := o.pkgbase(path)
		for _, n := range tableOrder(doc, base) {
			key := core.PackageKey(n)
			if base != "" {
				key = core.PackageKey(base)
			}
			if prev, ok := tables[n]; ok {
				o.logger.Warn().Str("table", n).Str("file", path).Str("kept", prev).Msg("duplicate oracle entry ignored")
				continue
			}
			if prev, ok := keys[key]; ok {
				o.logger.Warn().Str("package", string(key)).Str("table", n).Str("file", path).Str("kept", prev).Msg("second oracle entry for package ignored")
				continue
			}
			tables[n] = path
			keys[key] = path
			entries = append(entries, Entry{Key: key, Name: n, Path: path, Config: doc[n]})
		}
	}
	return entries, nil
}

// pkgbase reads the .SRCINFO next to a config. It returns "" when there is
// none or it cannot be parsed.
func (o *Oracle) pkgbase(config string) string {
	path := filepath.Join(filepath.Dir(config), srcinfo.FileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	info, err := srcinfo.ParseFile(path)
	if err != nil {
		o.logger.Warn().Str("file", path).Err(err).Msg("keying oracle entries by table name")
		return ""
	}
	return info.PkgBase
}

// tableOrder lists the package tables of doc, the one named base first.
func tableOrder(doc map[string]map[string]any, base string) []string {
	names := make([]string, 0, len(doc))
	for n := range doc {
		if n != configSection {
			names = append(names, n)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if (names[i] == base) != (names[j] == base) {
			return names[i] == base
		}
		return names[i] < names[j]
	})
	return names
}

func writeConfig(path, newver, oldver string, entries []Entry) error {
	doc := map[string]map[string]any{
		configSection: {"newver": newver, "oldver": oldver},
	}
	for _, e := range entries {
		doc[e.Name] = e.Config
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing oracle config: %w", err)
	}
	return f.Close()
}

// Result is one package's entry in a newver file.
type Result struct {
	Version  string `json:"version"`
	Revision string `json:"revision,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ParseResults reads a newver file in either the versioned format
// ({"version": 2, "data": {...}}) or the legacy flat name-to-version map.
func ParseResults(data []byte) (map[string]Result, error) {
	var v2 struct {
		Version int               `json:"version"`
		Data    map[string]Result `json:"data"`
	}
	if err := json.Unmarshal(data, &v2); err == nil && v2.Version == 2 {
		return v2.Data, nil
	}

	var legacy map[string]string
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("decoding oracle results: %w", err)
	}
	out := make(map[string]Result, len(legacy))
	for k, v := range legacy {
		out[k] = Result{Version: v}
	}
	return out, nil
}
