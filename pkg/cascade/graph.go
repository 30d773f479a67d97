package cascade

import (
	"fmt"
	"sort"
	"strings"

	"github.com/1qh/nexvex/pkg/models"
)

// Edge declares that rows of Table reference a parent through ForeignKey.
// An empty Parent means the parent is the organization itself and
// ForeignKey is normally orgId.
type Edge struct {
	Table      string `yaml:"table" json:"table"`
	ForeignKey string `yaml:"foreignKey" json:"foreignKey"`
	Parent     string `yaml:"parent,omitempty" json:"parent,omitempty"`
}

// OrgEdge returns the edge tying table directly to its organization
func OrgEdge(table string) Edge {
	return Edge{Table: table, ForeignKey: models.FieldOrgID}
}

func (e Edge) String() string {
	parent := e.Parent
	if parent == "" {
		parent = "organization"
	}
	return fmt.Sprintf("%s.%s -> %s", e.Table, e.ForeignKey, parent)
}

// Graph is a validated set of cascade edges
type Graph struct {
	edges    []Edge
	children map[string][]Edge // parent table ("" for organization) -> edges
	depth    map[string]int
	order    []string // deepest first
}

// NewGraph validates edges and computes the deletion order. Every Parent
// must itself be a table of the graph and parent links must not form a
// cycle. Duplicate edges are collapsed.
func NewGraph(edges []Edge) (*Graph, error) {
	g := &Graph{
		children: make(map[string][]Edge),
		depth:    make(map[string]int),
	}

	seen := make(map[Edge]bool, len(edges))
	tables := make(map[string]bool)
	for _, e := range edges {
		if e.Table == "" || e.ForeignKey == "" {
			return nil, fmt.Errorf("invalid cascade edge %q: table and foreign key are required", e.String())
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		g.edges = append(g.edges, e)
		tables[e.Table] = true
	}

	for _, e := range g.edges {
		if e.Parent != "" && !tables[e.Parent] {
			return nil, fmt.Errorf("cascade edge %s references unknown table %q", e, e.Parent)
		}
		g.children[e.Parent] = append(g.children[e.Parent], e)
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(tables))
	parents := make(map[string][]string)
	for _, e := range g.edges {
		parents[e.Table] = append(parents[e.Table], e.Parent)
	}

	// depth is the longest parent chain down from the organization
	var visit func(table string, path []string) error
	visit = func(table string, path []string) error {
		switch state[table] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("cascade graph has a cycle: %s", strings.Join(append(path, table), " -> "))
		}
		state[table] = visiting
		d := 0
		for _, p := range parents[table] {
			if p == "" {
				continue
			}
			if err := visit(p, append(path, table)); err != nil {
				return err
			}
			if g.depth[p]+1 > d {
				d = g.depth[p] + 1
			}
		}
		g.depth[table] = d
		state[table] = done
		return nil
	}

	names := make([]string, 0, len(tables))
	for t := range tables {
		names = append(names, t)
	}
	sort.Strings(names)
	for _, t := range names {
		if err := visit(t, nil); err != nil {
			return nil, err
		}
	}

	g.order = names
	sort.SliceStable(g.order, func(i, j int) bool {
		return g.depth[g.order[i]] > g.depth[g.order[j]]
	})
	return g, nil
}

// Edges returns the distinct edges of the graph
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Tables returns every table in deletion order, deepest dependents first
func (g *Graph) Tables() []string {
	return append([]string(nil), g.order...)
}

// Depth returns how many parent links separate table from the organization
func (g *Graph) Depth(table string) int {
	return g.depth[table]
}

// levels groups tables by depth, shallowest first
func (g *Graph) levels() [][]string {
	var out [][]string
	for i := len(g.order) - 1; i >= 0; i-- {
		t := g.order[i]
		d := g.depth[t]
		for len(out) <= d {
			out = append(out, nil)
		}
		out[d] = append(out[d], t)
	}
	return out
}
