// Package report renders reconciliation results as a terminal table, JSON
// or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/git-pkgs/pkgsync/internal/core"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, json or yaml)", s)
	}
}

// Row is the flattened view of one package status.
type Row struct {
	Key       string   `json:"key" yaml:"key"`
	Name      string   `json:"name" yaml:"name"`
	Local     string   `json:"local,omitempty" yaml:"local,omitempty"`
	Registry  string   `json:"registry,omitempty" yaml:"registry,omitempty"`
	Upstream  string   `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	Decision  string   `json:"decision" yaml:"decision"`
	Target    string   `json:"target,omitempty" yaml:"target,omitempty"`
	Candidate bool     `json:"candidate" yaml:"candidate"`
	Errors    []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Build flattens statuses into rows sorted by key.
func Build(statuses []*core.Status) []Row {
	rows := make([]Row, 0, len(statuses))
	for _, s := range statuses {
		row := Row{
			Key:       string(s.Key),
			Name:      s.DisplayName(),
			Local:     versionCell(s.Local),
			Registry:  versionCell(s.Registry),
			Upstream:  versionCell(s.Upstream),
			Candidate: s.Candidate,
		}
		if s.Decision != nil {
			row.Decision = string(s.Decision.Kind())
			if t := s.Decision.Target(); t != nil {
				row.Target = t.String()
			}
		}
		for _, err := range s.Errors {
			row.Errors = append(row.Errors, fmt.Sprintf("[%s] %v", core.KindOf(err), err))
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

func versionCell(r *core.Record) string {
	if r == nil {
		return ""
	}
	return r.RawVersion
}

// Summary counts rows per decision.
type Summary struct {
	Total      int            `json:"total" yaml:"total"`
	Candidates int            `json:"candidates" yaml:"candidates"`
	Errors     int            `json:"errors" yaml:"errors"`
	ByDecision map[string]int `json:"by_decision" yaml:"by_decision"`
}

func Summarize(rows []Row) Summary {
	s := Summary{Total: len(rows), ByDecision: make(map[string]int)}
	for _, r := range rows {
		s.ByDecision[r.Decision]++
		if r.Candidate {
			s.Candidates++
		}
		s.Errors += len(r.Errors)
	}
	return s
}

// Blocked reports the number of blocked packages.
func (s Summary) Blocked() int {
	return s.ByDecision[string(core.KindBlocked)]
}

// Write renders rows in the given format.
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, rows)
	case FormatYAML:
		return WriteYAML(w, rows)
	default:
		return WriteTable(w, rows)
	}
}

type document struct {
	Packages []Row   `json:"packages" yaml:"packages"`
	Summary  Summary `json:"summary" yaml:"summary"`
}

func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(document{Packages: rows, Summary: Summarize(rows)})
}

func WriteYAML(w io.Writer, rows []Row) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(document{Packages: rows, Summary: Summarize(rows)}); err != nil {
		return err
	}
	return enc.Close()
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	blockedStyle = cellStyle.Foreground(lipgloss.Color("1"))
	actionStyle  = cellStyle.Foreground(lipgloss.Color("2"))
)

// WriteTable renders a bordered table followed by a one-line summary.
func WriteTable(w io.Writer, rows []Row) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PACKAGE", "LOCAL", "REGISTRY", "UPSTREAM", "DECISION", "TARGET")
	for _, r := range rows {
		t.Row(r.Key, r.Local, r.Registry, r.Upstream, r.Decision, r.Target)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if col == 4 && row >= 0 && row < len(rows) {
			switch rows[row].Decision {
			case string(core.KindBlocked):
				return blockedStyle
			case string(core.KindNoAction):
				return cellStyle
			default:
				return actionStyle
			}
		}
		return cellStyle
	})

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}

	sum := Summarize(rows)
	kinds := make([]string, 0, len(sum.ByDecision))
	for k := range sum.ByDecision {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, sum.ByDecision[k]))
	}
	_, err := fmt.Fprintf(w, "%d packages: %s\n", sum.Total, strings.Join(parts, " "))
	if err != nil {
		return err
	}

	for _, r := range rows {
		for _, e := range r.Errors {
			if _, err := fmt.Fprintf(w, "  ! %s\n", e); err != nil {
				return err
			}
		}
	}
	return nil
}

// InstructionRow is the serialised form of a build instruction.
type InstructionRow struct {
	Key     string            `json:"key" yaml:"key"`
	Name    string            `json:"name" yaml:"name"`
	Action  string            `json:"action" yaml:"action"`
	Version string            `json:"version,omitempty" yaml:"version,omitempty"`
	Source  string            `json:"source,omitempty" yaml:"source,omitempty"`
	Depends []string          `json:"depends,omitempty" yaml:"depends,omitempty"`
	URLs    map[string]string `json:"urls,omitempty" yaml:"urls,omitempty"`
}

func BuildInstructions(insts []core.Instruction) []InstructionRow {
	out := make([]InstructionRow, 0, len(insts))
	for _, in := range insts {
		out = append(out, InstructionRow{
			Key:     string(in.Key),
			Name:    in.Name,
			Action:  string(in.Action),
			Version: in.Version,
			Source:  string(in.Source),
			Depends: in.Aux.Depends,
			URLs:    in.URLs,
		})
	}
	return out
}

// WriteInstructions renders instructions in the given format. The table
// format lists one instruction per line.
func WriteInstructions(w io.Writer, format Format, insts []core.Instruction) error {
	rows := BuildInstructions(insts)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PACKAGE", "ACTION", "VERSION", "SOURCE")
	for _, r := range rows {
		t.Row(r.Key, r.Action, r.Version, r.Source)
	}
	t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
