package pkgsync_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/git-pkgs/pkgsync"
	_ "github.com/git-pkgs/pkgsync/all"
	"github.com/git-pkgs/pkgsync/client"
)

func collector(kind pkgsync.SourceKind, versions map[string]string) pkgsync.Collector {
	return pkgsync.CollectorFunc{Kind: kind, Fn: func(context.Context) ([]pkgsync.Record, error) {
		var out []pkgsync.Record
		for key, v := range versions {
			out = append(out, pkgsync.NewRecord(pkgsync.PackageKey(key), key, kind, v))
		}
		return out, nil
	}}
}

func TestSupportedCollectors(t *testing.T) {
	got := pkgsync.SupportedCollectors()
	for _, want := range []string{"aur", "nvchecker", "srcinfo"} {
		if !slices.Contains(got, want) {
			t.Errorf("collector %q not registered: %v", want, got)
		}
	}
}

func TestReconcileDecisions(t *testing.T) {
	local := collector(pkgsync.SourceLocal, map[string]string{
		"b": "1.0-1",
		"c": "2.0-1",
		"d": "1.0-1",
		"e": "1.0-1",
	})
	registry := collector(pkgsync.SourceRegistry, map[string]string{
		"b": "1.0-1",
		"c": "1.0-1",
		"d": "1.5-2",
		"e": "1.0-1",
	})
	upstream := collector(pkgsync.SourceUpstream, map[string]string{
		"a": "1.2.0",
		"b": "1.1",
		"c": "1.0",
		"d": "1.0",
		"e": "1.0-1",
	})

	res, err := pkgsync.Reconcile(context.Background(), local, registry, upstream, pkgsync.WithWorkers(2))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	tests := []struct {
		key    pkgsync.PackageKey
		kind   pkgsync.DecisionKind
		target string
	}{
		{"a", pkgsync.KindUpstreamUpdate, "1.2.0-1"},
		{"b", pkgsync.KindUpstreamUpdate, "1.1-1"},
		{"c", pkgsync.KindLocalPush, "2.0-1"},
		{"d", pkgsync.KindBlocked, ""},
		{"e", pkgsync.KindNoAction, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			s, ok := res.Lookup(tt.key)
			if !ok {
				t.Fatalf("no status for %s", tt.key)
			}
			if s.Decision.Kind() != tt.kind {
				t.Fatalf("decision = %s, want %s", s.Decision.Kind(), tt.kind)
			}
			var target string
			if v := s.Decision.Target(); v != nil {
				target = v.String()
			}
			if target != tt.target {
				t.Errorf("target = %q, want %q", target, tt.target)
			}
		})
	}

	blocked := res.Blocked()
	if len(blocked) != 1 || blocked[0].Key != "d" {
		t.Fatalf("blocked = %v", blocked)
	}
	var inv *pkgsync.InvariantError
	if !errors.As(blocked[0].Errors[0], &inv) || inv.Source != pkgsync.SourceRegistry {
		t.Errorf("expected registry invariant violation, got %v", blocked[0].Errors)
	}

	if len(res.Instructions) != 4 {
		t.Errorf("expected 4 instructions, got %d", len(res.Instructions))
	}
	if len(res.Rows) != 5 || res.Rows[0].Key != "a" || res.Rows[4].Key != "e" {
		t.Errorf("rows not one per key in order: %+v", res.Rows)
	}
}

func TestReconcileCollectorFailure(t *testing.T) {
	boom := errors.New("rpc down")
	failing := pkgsync.CollectorFunc{Kind: pkgsync.SourceRegistry, Fn: func(context.Context) ([]pkgsync.Record, error) {
		return nil, boom
	}}
	_, err := pkgsync.Reconcile(context.Background(), collector(pkgsync.SourceLocal, map[string]string{"a": "1.0-1"}), failing, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected collector error, got %v", err)
	}
}

func TestReconcileDegradedInput(t *testing.T) {
	local := pkgsync.CollectorFunc{Kind: pkgsync.SourceLocal, Fn: func(context.Context) ([]pkgsync.Record, error) {
		return []pkgsync.Record{
			pkgsync.NewRecord("a", "a", pkgsync.SourceLocal, "1.0-1"),
			pkgsync.NewRecord("a", "a", pkgsync.SourceLocal, "1.1-1"),
			pkgsync.NewRecord("b", "b", pkgsync.SourceLocal, "1.0-beta"),
		}, nil
	}}
	registry := collector(pkgsync.SourceRegistry, map[string]string{"a": "1.1-1", "b": "1.0-1"})

	res, err := pkgsync.Reconcile(context.Background(), local, registry, nil)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := res.Lookup("a")
	if !errors.Is(a.Errors[0], pkgsync.ErrDuplicateKey) {
		t.Errorf("expected duplicate warning, got %v", a.Errors)
	}
	if a.Decision.Kind() != pkgsync.KindNoAction {
		t.Errorf("later duplicate should win, decision = %s", a.Decision.Kind())
	}

	b, _ := res.Lookup("b")
	if !errors.Is(b.Errors[0], pkgsync.ErrParse) {
		t.Errorf("expected parse error, got %v", b.Errors)
	}
	if b.Decision.Kind() != pkgsync.KindRegistrySync || !b.Candidate {
		t.Errorf("parse failure should degrade to absent, decision = %s", b.Decision.Kind())
	}
}

func TestReconcileURLs(t *testing.T) {
	urls := &client.BaseURLs{
		RegistryFn: func(name, _ string) string { return "https://aur.example/packages/" + name },
	}
	res, err := pkgsync.Reconcile(context.Background(),
		nil, nil, collector(pkgsync.SourceUpstream, map[string]string{"yay": "12.0"}),
		pkgsync.WithURLs(urls))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(res.Instructions))
	}
	inst := res.Instructions[0]
	if inst.Action != pkgsync.ActionRebuildAndPublish || inst.Version != "12.0-1" {
		t.Errorf("instruction = %+v", inst)
	}
	if inst.URLs["registry"] != "https://aur.example/packages/yay" {
		t.Errorf("registry url = %q", inst.URLs["registry"])
	}
}

func TestLookupPURL(t *testing.T) {
	res, err := pkgsync.Reconcile(context.Background(),
		collector(pkgsync.SourceLocal, map[string]string{"yay": "12.0-1"}), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	s, err := res.LookupPURL("pkg:alpm/aur/yay@12.0-1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Key != "yay" {
		t.Errorf("key = %s", s.Key)
	}

	if _, err := res.LookupPURL("pkg:alpm/aur/paru"); !errors.Is(err, pkgsync.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := res.LookupPURL("not a purl"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := res.LookupPURL("pkg:npm/yay"); err == nil {
		t.Error("expected error for non-alpm PURL")
	}
}

func TestParsePURL(t *testing.T) {
	p, err := pkgsync.ParsePURL("pkg:alpm/aur/yay@12.3.5-1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "yay" || p.Version != "12.3.5-1" {
		t.Errorf("parsed %+v", p)
	}
}
