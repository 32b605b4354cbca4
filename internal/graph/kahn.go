package graph

import (
	"fmt"
	"sort"
)

// MigrationOrder returns the tables sorted parent-first using Kahn's
// algorithm. Ties are broken alphabetically so the order is identical
// across runs regardless of map iteration.
func (g *Graph) MigrationOrder() ([]string, error) {
	inDegree := make(map[string]int, g.nodes.Len())
	for el := g.nodes.Front(); el != nil; el = el.Next() {
		inDegree[el.Key] = g.InDegree(el.Key)
	}

	var ready []string
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, g.nodes.Len())
	for len(ready) > 0 {
		table := ready[0]
		ready = ready[1:]
		order = append(order, table)

		var unlocked []string
		for _, child := range g.children[table] {
			inDegree[child]--
			if inDegree[child] == 0 {
				unlocked = append(unlocked, child)
			}
		}
		sort.Strings(unlocked)
		ready = append(ready, unlocked...)
		sort.Strings(ready)
	}

	if len(order) != g.nodes.Len() {
		return nil, fmt.Errorf("cycle detected: only %d of %d tables could be ordered",
			len(order), g.nodes.Len())
	}

	return order, nil
}

// ReverseOrder returns the tables child-first, the order in which foreign
// key constraints can be dropped or rows deleted safely.
func (g *Graph) ReverseOrder() ([]string, error) {
	order, err := g.MigrationOrder()
	if err != nil {
		return nil, err
	}
	reversed := make([]string, len(order))
	for i, t := range order {
		reversed[len(order)-1-i] = t
	}
	return reversed, nil
}

// HasCycle reports whether the dependency graph contains a cycle.
func (g *Graph) HasCycle() bool {
	inDegree := make(map[string]int, g.nodes.Len())
	for el := g.nodes.Front(); el != nil; el = el.Next() {
		inDegree[el.Key] = g.InDegree(el.Key)
	}

	var ready []string
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	processed := 0
	for len(ready) > 0 {
		table := ready[0]
		ready = ready[1:]
		processed++
		for _, child := range g.children[table] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	return processed != g.nodes.Len()
}
