// Package dag models a build's component dependency graph for ahead-of-run
// validation. The runtime registry deliberately stays a flat map and treats
// unmet or dangling dependencies as permanently unclaimable; this package
// exists so operators can surface those conditions before a run starts.
package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/astralkiln/magnetar/internal/registry"
)

// ErrCycle is returned when the graph contains a dependency cycle.
var ErrCycle = errors.New("cycle detected")

// Finding kinds reported by Validate.
const (
	FindingDuplicate  = "duplicate"
	FindingSelfDep    = "self_dependency"
	FindingMissingRef = "missing_reference"
	FindingCycle      = "cycle"
)

// Finding describes one structural problem in a dependency graph.
type Finding struct {
	Kind      string
	Component string
	Detail    string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Component, f.Detail)
}

// Graph is a dependency graph built from component specs. Unlike a strict
// DAG it tolerates duplicates, self-loops, dangling references and cycles
// so that Validate can report them instead of failing construction.
type Graph struct {
	order []string
	nodes map[string]bool
	// deps maps a component to its declared dependencies, case-folded,
	// in declaration order.
	deps map[string][]string
	// duplicates records names declared more than once.
	duplicates []string
}

// FromSpecs builds a graph from registry construction input. Names and
// references are case-folded the same way the registry folds them.
func FromSpecs(specs []registry.Spec) *Graph {
	g := &Graph{
		nodes: make(map[string]bool, len(specs)),
		deps:  make(map[string][]string, len(specs)),
	}
	for _, s := range specs {
		key := strings.ToLower(s.Name)
		if g.nodes[key] {
			g.duplicates = append(g.duplicates, key)
			continue
		}
		g.nodes[key] = true
		g.order = append(g.order, key)
		for _, d := range s.Dependencies {
			g.deps[key] = append(g.deps[key], strings.ToLower(d))
		}
	}
	return g
}

// Len returns the number of distinct components in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

// Validate reports every structural problem in the graph: duplicate names,
// self-dependencies, references to non-existent components, and cycle
// members. An empty result means the graph is a well-formed DAG.
func (g *Graph) Validate() []Finding {
	var findings []Finding

	for _, dup := range g.duplicates {
		findings = append(findings, Finding{
			Kind:      FindingDuplicate,
			Component: dup,
			Detail:    "declared more than once",
		})
	}

	for _, id := range g.order {
		for _, dep := range g.deps[id] {
			if dep == id {
				findings = append(findings, Finding{
					Kind:      FindingSelfDep,
					Component: id,
					Detail:    "depends on itself",
				})
				continue
			}
			if !g.nodes[dep] {
				findings = append(findings, Finding{
					Kind:      FindingMissingRef,
					Component: id,
					Detail:    fmt.Sprintf("depends on unknown component %q", dep),
				})
			}
		}
	}

	for _, member := range g.cycleMembers() {
		findings = append(findings, Finding{
			Kind:      FindingCycle,
			Component: member,
			Detail:    "member of a dependency cycle",
		})
	}

	return findings
}

// Waves returns the components grouped into topological layers: wave 0 has
// no dependencies, wave n+1 depends only on earlier waves. Dangling
// references are ignored for layering. Returns ErrCycle if any components
// cannot be ordered.
func (g *Graph) Waves() ([][]string, error) {
	indegree, dependents := g.indegrees()

	current := g.zeroDegree(indegree)
	var waves [][]string
	placed := 0
	for len(current) > 0 {
		sort.Strings(current)
		waves = append(waves, current)
		placed += len(current)

		var next []string
		for _, id := range current {
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if placed != len(g.order) {
		return nil, fmt.Errorf("%w: %d of %d components could not be ordered",
			ErrCycle, len(g.order)-placed, len(g.order))
	}
	return waves, nil
}

// cycleMembers returns, sorted, every component that Kahn's algorithm
// cannot place: cycle participants plus anything downstream of one.
func (g *Graph) cycleMembers() []string {
	indegree, dependents := g.indegrees()

	queue := g.zeroDegree(indegree)
	removed := make(map[string]bool, len(g.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		removed[id] = true
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	var members []string
	for _, id := range g.order {
		if !removed[id] {
			members = append(members, id)
		}
	}
	sort.Strings(members)
	return members
}

// indegrees computes in-degree counts and reverse edges over resolvable,
// non-self dependencies only.
func (g *Graph) indegrees() (map[string]int, map[string][]string) {
	indegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string)
	for _, id := range g.order {
		for _, dep := range g.deps[id] {
			if !g.nodes[dep] || dep == id {
				continue
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}
	return indegree, dependents
}

// zeroDegree collects graph nodes with zero in-degree, in graph order.
func (g *Graph) zeroDegree(indegree map[string]int) []string {
	var out []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			out = append(out, id)
		}
	}
	return out
}
