package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/git-pkgs/pkgsync/internal/core"
)

var (
	ErrNotSyncable   = errors.New("instruction does not sync from the registry")
	ErrNoDownloadURL = errors.New("no download URL available")
)

// SnapshotInfo describes where to download a package snapshot.
type SnapshotInfo struct {
	Key      core.PackageKey
	Version  string
	URL      string
	Filename string
}

// Resolver turns sync-registry-down instructions into snapshot downloads.
type Resolver struct {
	urls core.URLBuilder
}

// NewResolver creates a resolver. urls is consulted when an instruction
// carries no download URL of its own and may be nil.
func NewResolver(urls core.URLBuilder) *Resolver {
	return &Resolver{urls: urls}
}

// Resolve returns the snapshot for inst.
func (r *Resolver) Resolve(inst core.Instruction) (*SnapshotInfo, error) {
	if inst.Action != core.ActionSyncRegistryDown {
		return nil, fmt.Errorf("%s (%s): %w", inst.Key, inst.Action, ErrNotSyncable)
	}

	url := inst.URLs["download"]
	if url == "" && r.urls != nil {
		url = r.urls.Download(string(inst.Key), inst.Version)
	}
	if url == "" {
		return nil, fmt.Errorf("%s: %w", inst.Key, ErrNoDownloadURL)
	}

	return &SnapshotInfo{
		Key:      inst.Key,
		Version:  inst.Version,
		URL:      url,
		Filename: filenameFromURL(url),
	}, nil
}

// Download resolves and saves every syncable instruction into dir. It stops
// at the first error.
func (r *Resolver) Download(ctx context.Context, d Downloader, insts []core.Instruction, dir string) ([]string, error) {
	var paths []string
	for _, inst := range insts {
		if inst.Action != core.ActionSyncRegistryDown {
			continue
		}
		info, err := r.Resolve(inst)
		if err != nil {
			return paths, err
		}
		path, err := Save(ctx, d, info.URL, dir, info.Filename)
		if err != nil {
			return paths, fmt.Errorf("%s: %w", inst.Key, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func filenameFromURL(url string) string {
	if idx := strings.IndexAny(url, "?#"); idx >= 0 {
		url = url[:idx]
	}
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}
