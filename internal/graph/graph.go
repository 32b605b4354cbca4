// Package graph provides the table dependency graph for migration ordering.
package graph

import (
	"fmt"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/veridata/gopromote/internal/config"
)

// Node represents a migrated table in the dependency graph.
type Node struct {
	Name       string // Table name
	PrimaryKey string // PK column in this table
	Parent     string // Parent table name (empty for roots)
	ForeignKey string // FK column in this table pointing at the parent PK
}

// Graph represents the parent/child structure of the migrated tables.
// Nodes preserve config declaration order so iteration is reproducible.
type Graph struct {
	nodes    *orderedmap.OrderedMap[string, *Node]
	children map[string][]string
	parents  map[string][]string
}

// Build constructs the dependency graph from the schema configuration.
// It fails fast on duplicate tables, unknown parents, and cycles.
func Build(schema *config.SchemaConfig) (*Graph, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema configuration is nil")
	}
	if len(schema.Tables) == 0 {
		return nil, fmt.Errorf("schema has no tables")
	}

	g := &Graph{
		nodes:    orderedmap.NewOrderedMap[string, *Node](),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}

	for _, t := range schema.Tables {
		if t.Name == "" {
			return nil, fmt.Errorf("table with empty name in schema")
		}
		if g.HasNode(t.Name) {
			return nil, fmt.Errorf("duplicate table %q in schema", t.Name)
		}
		pk := t.PrimaryKey
		if pk == "" {
			pk = "id"
		}
		g.nodes.Set(t.Name, &Node{
			Name:       t.Name,
			PrimaryKey: pk,
			Parent:     t.Parent,
			ForeignKey: t.ForeignKey,
		})
	}

	for el := g.nodes.Front(); el != nil; el = el.Next() {
		n := el.Value
		if n.Parent == "" {
			continue
		}
		if !g.HasNode(n.Parent) {
			return nil, fmt.Errorf("table %q references unknown parent %q", n.Name, n.Parent)
		}
		if n.ForeignKey == "" {
			return nil, fmt.Errorf("table %q has a parent but no foreign key", n.Name)
		}
		g.children[n.Parent] = append(g.children[n.Parent], n.Name)
		g.parents[n.Name] = append(g.parents[n.Name], n.Parent)
	}

	if g.HasCycle() {
		return nil, fmt.Errorf("cycle detected in table dependencies")
	}

	return g, nil
}

// HasNode returns true if the graph contains the named table.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes.Get(name)
	return ok
}

// GetNode returns the node for a table, or nil if not present.
func (g *Graph) GetNode(name string) *Node {
	n, _ := g.nodes.Get(name)
	return n
}

// GetPK returns the primary key column for a table, defaulting to "id".
func (g *Graph) GetPK(table string) string {
	if n, ok := g.nodes.Get(table); ok {
		return n.PrimaryKey
	}
	return "id"
}

// GetChildren returns the direct children of a table.
func (g *Graph) GetChildren(parent string) []string {
	return g.children[parent]
}

// GetParents returns the direct parents of a table.
func (g *Graph) GetParents(child string) []string {
	return g.parents[child]
}

// AllTables returns all table names in declaration order.
func (g *Graph) AllTables() []string {
	out := make([]string, 0, g.nodes.Len())
	for el := g.nodes.Front(); el != nil; el = el.Next() {
		out = append(out, el.Key)
	}
	return out
}

// Roots returns tables with no parent, in declaration order.
func (g *Graph) Roots() []string {
	var roots []string
	for el := g.nodes.Front(); el != nil; el = el.Next() {
		if el.Value.Parent == "" {
			roots = append(roots, el.Key)
		}
	}
	return roots
}

// NodeCount returns the number of tables in the graph.
func (g *Graph) NodeCount() int {
	return g.nodes.Len()
}

// InDegree returns the number of parents of a table.
func (g *Graph) InDegree(name string) int {
	return len(g.parents[name])
}
