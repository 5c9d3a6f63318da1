// Package registry holds the component dependency graph and per-component
// lifecycle state for a single build. It is pure data plus small read
// queries; all mutation happens through the engine, which owns the Build
// exclusively.
package registry

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a component.
type Status string

const (
	StatusPending  Status = "pending"
	StatusClaimed  Status = "claimed"
	StatusBuilding Status = "building"
	StatusReady    Status = "ready"
	StatusAuditing Status = "auditing"
	StatusMerged   Status = "merged"
	// StatusFailed is declared but unreached: retry exhaustion returns a
	// component to pending so it can be re-claimed indefinitely.
	StatusFailed Status = "failed"
)

// Spec is the construction input for one component: a display name and the
// names of components that must be merged before it is claimable.
type Spec struct {
	Name         string
	Dependencies []string
}

// Component is one buildable unit. Name keeps the casing supplied at
// construction; lookups and dependency references are case-folded.
// Assignee, ClaimedAt and LastProgressAt are set only while a claim is
// live; releasing a component clears all three.
type Component struct {
	Name           string
	Status         Status
	Dependencies   []string
	Assignee       string
	ClaimedAt      time.Time
	LastProgressAt time.Time
	ArtifactRef    string
	RetryCount     int
}

// Key returns the case-folded identifier used as the registry mapping key.
func (c *Component) Key() string {
	return strings.ToLower(c.Name)
}

// Build is the aggregate of all components under one build identifier.
// The component set is sealed at construction: components are never added
// or removed afterward, only their lifecycle fields change.
type Build struct {
	ID        string
	StartedAt time.Time

	order      []string
	components map[string]*Component
}

// NewBuild constructs a build from an ordered component list. Dependency
// references are case-folded; the first occurrence of a duplicated name
// wins (duplicate names are a caller error, not validated here).
func NewBuild(id string, specs []Spec) *Build {
	b := &Build{
		ID:         id,
		StartedAt:  time.Now(),
		components: make(map[string]*Component, len(specs)),
	}
	for _, s := range specs {
		key := strings.ToLower(s.Name)
		if _, exists := b.components[key]; exists {
			continue
		}
		deps := make([]string, 0, len(s.Dependencies))
		for _, d := range s.Dependencies {
			deps = append(deps, strings.ToLower(d))
		}
		b.components[key] = &Component{
			Name:         s.Name,
			Status:       StatusPending,
			Dependencies: deps,
		}
		b.order = append(b.order, key)
	}
	return b
}

// Component returns the component with the given name (case-insensitive),
// or nil if no such component exists.
func (b *Build) Component(name string) *Component {
	return b.components[strings.ToLower(name)]
}

// Components returns every component in registry order (insertion order
// from construction).
func (b *Build) Components() []*Component {
	out := make([]*Component, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.components[key])
	}
	return out
}

// Len returns the number of components in the build.
func (b *Build) Len() int {
	return len(b.order)
}

// UnmetDependencies returns the dependencies of the named component that
// are not yet merged, in declaration order. References to non-existent
// components count as unmet: a missing dependency keeps its dependent
// unclaimable rather than silently satisfying it.
func (b *Build) UnmetDependencies(name string) []string {
	c := b.Component(name)
	if c == nil {
		return nil
	}
	var unmet []string
	for _, dep := range c.Dependencies {
		d, ok := b.components[dep]
		if !ok || d.Status != StatusMerged {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// DependenciesSatisfied reports whether every dependency of the named
// component resolves to an existing, merged component.
func (b *Build) DependenciesSatisfied(name string) bool {
	c := b.Component(name)
	if c == nil {
		return false
	}
	return len(b.UnmetDependencies(name)) == 0
}

// Claimable returns every pending component whose dependencies are all
// merged, in registry order. The list is recomputed on every call so it
// always reflects the instant of the query.
func (b *Build) Claimable() []*Component {
	var out []*Component
	for _, key := range b.order {
		c := b.components[key]
		if c.Status == StatusPending && b.DependenciesSatisfied(key) {
			out = append(out, c)
		}
	}
	return out
}

// IsComplete reports whether every component in the build is merged.
func (b *Build) IsComplete() bool {
	for _, c := range b.components {
		if c.Status != StatusMerged {
			return false
		}
	}
	return true
}

// Snapshot returns value copies of every component in registry order, for
// observability and debugging. Mutating the copies has no effect on the
// build.
func (b *Build) Snapshot() []Component {
	out := make([]Component, 0, len(b.order))
	for _, key := range b.order {
		c := *b.components[key]
		c.Dependencies = append([]string(nil), c.Dependencies...)
		out = append(out, c)
	}
	return out
}
