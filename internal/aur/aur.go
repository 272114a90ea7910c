// Package aur collects published versions from the Arch User Repository RPC
// interface.
package aur

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/git-pkgs/pkgsync/client"
	"github.com/git-pkgs/pkgsync/internal/core"
)

const (
	DefaultURL = "https://aur.archlinux.org"
	name       = "aur"

	// infoBatch bounds the number of names per info request to keep URLs short.
	infoBatch = 100
)

func init() {
	core.Register(name, core.SourceRegistry, func(opts core.Options) core.Collector {
		r := New(opts.BaseURL, opts.Client)
		r.maintainer = opts.Maintainer
		r.logger = opts.Logger
		return r
	})
}

// Registry is an AUR RPC client and the registry collector.
type Registry struct {
	baseURL    string
	client     *core.Client
	urls       *URLs
	maintainer string
	logger     zerolog.Logger
}

// New creates a client for the AUR at baseURL.
func New(baseURL string, c *core.Client) *Registry {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if c == nil {
		c = core.DefaultClient()
	}
	r := &Registry{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  c,
		logger:  zerolog.Nop(),
	}
	r.urls = &URLs{baseURL: r.baseURL}
	return r
}

// WithMaintainer returns r scoped to a maintainer.
func (r *Registry) WithMaintainer(m string) *Registry {
	r.maintainer = m
	return r
}

func (r *Registry) Source() core.SourceKind {
	return core.SourceRegistry
}

func (r *Registry) URLs() core.URLBuilder {
	return r.urls
}

type rpcResponse struct {
	Version     int           `json:"version"`
	Type        string        `json:"type"`
	ResultCount int           `json:"resultcount"`
	Results     []PackageInfo `json:"results"`
	Error       string        `json:"error"`
}

// PackageInfo is one package entry of an RPC response.
type PackageInfo struct {
	ID             int      `json:"ID"`
	Name           string   `json:"Name"`
	PackageBaseID  int      `json:"PackageBaseID"`
	PackageBase    string   `json:"PackageBase"`
	Version        string   `json:"Version"`
	Description    string   `json:"Description"`
	URL            string   `json:"URL"`
	NumVotes       int      `json:"NumVotes"`
	Popularity     float64  `json:"Popularity"`
	OutOfDate      *int64   `json:"OutOfDate"`
	Maintainer     string   `json:"Maintainer"`
	FirstSubmitted int64    `json:"FirstSubmitted"`
	LastModified   int64    `json:"LastModified"`
	URLPath        string   `json:"URLPath"`
	Depends        []string `json:"Depends"`
	MakeDepends    []string `json:"MakeDepends"`
	CheckDepends   []string `json:"CheckDepends"`
	License        []string `json:"License"`
}

// RPCError is an error payload returned by the RPC interface.
type RPCError struct {
	Message string
}

func (e *RPCError) Error() string {
	return "aur rpc: " + e.Message
}

func (r *Registry) call(ctx context.Context, u string) ([]PackageInfo, error) {
	var resp rpcResponse
	if err := r.client.GetJSON(ctx, u, &resp); err != nil {
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return nil, &client.NotFoundError{Registry: name, Name: u}
		}
		return nil, err
	}
	if resp.Type == "error" || resp.Error != "" {
		return nil, &RPCError{Message: resp.Error}
	}
	return resp.Results, nil
}

// Search lists the packages maintained by maintainer.
func (r *Registry) Search(ctx context.Context, maintainer string) ([]PackageInfo, error) {
	u := fmt.Sprintf("%s/rpc/v5/search/%s?by=maintainer", r.baseURL, url.PathEscape(maintainer))
	return r.call(ctx, u)
}

// Info fetches full metadata for the named packages.
func (r *Registry) Info(ctx context.Context, names []string) ([]PackageInfo, error) {
	var out []PackageInfo
	for start := 0; start < len(names); start += infoBatch {
		end := min(start+infoBatch, len(names))
		q := url.Values{}
		for _, n := range names[start:end] {
			q.Add("arg[]", n)
		}
		results, err := r.call(ctx, fmt.Sprintf("%s/rpc/v5/info?%s", r.baseURL, q.Encode()))
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	return out, nil
}

// Collect returns one record per package base maintained by the configured
// maintainer. Split packages share a base and are folded into one record.
func (r *Registry) Collect(ctx context.Context) ([]core.Record, error) {
	if r.maintainer == "" {
		return nil, fmt.Errorf("aur: no maintainer configured")
	}

	found, err := r.Search(ctx, r.maintainer)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(found))
	for _, p := range found {
		names = append(names, p.Name)
	}
	detailed, err := r.Info(ctx, names)
	if err != nil {
		return nil, err
	}
	detailed = withMissing(detailed, found)

	records := groupByBase(detailed)
	r.logger.Debug().Str("maintainer", r.maintainer).Int("packages", len(found)).Int("bases", len(records)).Msg("queried registry")
	return records, nil
}

// withMissing appends search results the info call did not return, so a
// package never drops out of the registry source.
func withMissing(detailed, found []PackageInfo) []PackageInfo {
	have := make(map[string]bool, len(detailed))
	for _, p := range detailed {
		have[p.Name] = true
	}
	for _, p := range found {
		if !have[p.Name] {
			detailed = append(detailed, p)
		}
	}
	return detailed
}

func groupByBase(pkgs []PackageInfo) []core.Record {
	byBase := make(map[string][]PackageInfo)
	var order []string
	for _, p := range pkgs {
		base := p.PackageBase
		if base == "" {
			base = p.Name
		}
		if _, ok := byBase[base]; !ok {
			order = append(order, base)
		}
		byBase[base] = append(byBase[base], p)
	}
	sort.Strings(order)

	records := make([]core.Record, 0, len(order))
	for _, base := range order {
		members := byBase[base]
		sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
		first := members[0]

		rec := core.NewRecord(core.PackageKey(base), displayName(base, members), core.SourceRegistry, first.Version)
		aux := core.Auxiliary{
			Maintainer: first.Maintainer,
			URL:        first.URL,
			Metadata: map[string]any{
				"url_path":      first.URLPath,
				"num_votes":     first.NumVotes,
				"popularity":    first.Popularity,
				"last_modified": first.LastModified,
				"out_of_date":   first.OutOfDate != nil,
			},
		}
		for _, m := range members {
			aux.Names = append(aux.Names, m.Name)
			aux.Depends = appendUnique(aux.Depends, m.Depends...)
			aux.MakeDepends = appendUnique(aux.MakeDepends, m.MakeDepends...)
			aux.CheckDepends = appendUnique(aux.CheckDepends, m.CheckDepends...)
			aux.Licenses = appendUnique(aux.Licenses, m.License...)
		}
		rec.Aux = aux
		records = append(records, rec)
	}
	return records
}

// displayName prefers the package named like its base.
func displayName(base string, members []PackageInfo) string {
	for _, m := range members {
		if m.Name == base {
			return m.Name
		}
	}
	return members[0].Name
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, existing := range list {
			if existing == v {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, v)
		}
	}
	return list
}

// URLs builds AUR URLs for a package base.
type URLs struct {
	baseURL string
}

func (u *URLs) Registry(name, version string) string {
	return fmt.Sprintf("%s/pkgbase/%s", u.baseURL, name)
}

func (u *URLs) Download(name, version string) string {
	return fmt.Sprintf("%s/cgit/aur.git/snapshot/%s.tar.gz", u.baseURL, name)
}

func (u *URLs) Git(name string) string {
	return fmt.Sprintf("%s/%s.git", u.baseURL, name)
}

func (u *URLs) PURL(name, version string) string {
	return core.KeyPURL(core.PackageKey(name), version)
}
