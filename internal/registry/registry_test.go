package registry

import (
	"reflect"
	"testing"
)

// buildFrom constructs a build from (name, deps...) pairs.
func buildFrom(t *testing.T, specs ...Spec) *Build {
	t.Helper()
	return NewBuild("test-build", specs)
}

func TestNewBuildOrderAndFolding(t *testing.T) {
	t.Parallel()

	b := buildFrom(t,
		Spec{Name: "Codec"},
		Spec{Name: "Registry", Dependencies: []string{"CODEC"}},
		Spec{Name: "Engine", Dependencies: []string{"Codec", "Registry"}},
	)

	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}

	// Display casing is preserved, lookup is case-insensitive.
	c := b.Component("codec")
	if c == nil || c.Name != "Codec" {
		t.Fatalf("Component(codec) = %+v", c)
	}
	if b.Component("CODEC") != c {
		t.Error("lookup is not case-insensitive")
	}

	// Dependency references are case-folded.
	reg := b.Component("registry")
	if !reflect.DeepEqual(reg.Dependencies, []string{"codec"}) {
		t.Errorf("Dependencies = %v, want [codec]", reg.Dependencies)
	}

	// Insertion order survives.
	var names []string
	for _, c := range b.Components() {
		names = append(names, c.Name)
	}
	want := []string{"Codec", "Registry", "Engine"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Components() order = %v, want %v", names, want)
	}
}

func TestNewBuildDuplicateFirstWins(t *testing.T) {
	t.Parallel()

	b := buildFrom(t,
		Spec{Name: "codec", Dependencies: []string{"x"}},
		Spec{Name: "Codec"},
	)
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
	if deps := b.Component("codec").Dependencies; len(deps) != 1 {
		t.Errorf("first declaration should win, got deps %v", deps)
	}
}

func TestDependenciesSatisfied(t *testing.T) {
	t.Parallel()

	t.Run("no deps", func(t *testing.T) {
		t.Parallel()
		b := buildFrom(t, Spec{Name: "a"})
		if !b.DependenciesSatisfied("a") {
			t.Error("component without dependencies should be satisfied")
		}
	})

	t.Run("unmerged dep", func(t *testing.T) {
		t.Parallel()
		b := buildFrom(t, Spec{Name: "a"}, Spec{Name: "b", Dependencies: []string{"a"}})
		if b.DependenciesSatisfied("b") {
			t.Error("pending dependency should not satisfy")
		}
		b.Component("a").Status = StatusMerged
		if !b.DependenciesSatisfied("b") {
			t.Error("merged dependency should satisfy")
		}
	})

	t.Run("missing dep fails closed", func(t *testing.T) {
		t.Parallel()
		b := buildFrom(t, Spec{Name: "b", Dependencies: []string{"ghost"}})
		if b.DependenciesSatisfied("b") {
			t.Error("reference to a non-existent component must count as unsatisfied")
		}
		if unmet := b.UnmetDependencies("b"); !reflect.DeepEqual(unmet, []string{"ghost"}) {
			t.Errorf("UnmetDependencies = %v, want [ghost]", unmet)
		}
	})

	t.Run("unknown component", func(t *testing.T) {
		t.Parallel()
		b := buildFrom(t, Spec{Name: "a"})
		if b.DependenciesSatisfied("ghost") {
			t.Error("unknown component should not be satisfied")
		}
	})

	// Non-merged states of a dependency never satisfy, regardless of the
	// rest of the registry.
	t.Run("all non-merged states", func(t *testing.T) {
		t.Parallel()
		for _, st := range []Status{StatusPending, StatusClaimed, StatusBuilding, StatusReady, StatusAuditing, StatusFailed} {
			b := buildFrom(t, Spec{Name: "a"}, Spec{Name: "b", Dependencies: []string{"a"}})
			b.Component("a").Status = st
			if b.DependenciesSatisfied("b") {
				t.Errorf("dependency in state %s should not satisfy", st)
			}
		}
	})
}

func TestClaimable(t *testing.T) {
	t.Parallel()

	b := buildFrom(t,
		Spec{Name: "a"},
		Spec{Name: "b", Dependencies: []string{"a"}},
		Spec{Name: "c"},
	)

	names := func() []string {
		var out []string
		for _, c := range b.Claimable() {
			out = append(out, c.Name)
		}
		return out
	}

	if got := names(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("Claimable() = %v, want [a c]", got)
	}

	// Claimed components leave the list; b stays out while a is unmerged.
	b.Component("c").Status = StatusClaimed
	if got := names(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Claimable() = %v, want [a]", got)
	}

	// Claimable reflects the instant of the call, not a cached view.
	b.Component("a").Status = StatusMerged
	if got := names(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Claimable() after merge = %v, want [b]", got)
	}
}

func TestIsComplete(t *testing.T) {
	t.Parallel()

	b := buildFrom(t, Spec{Name: "a"}, Spec{Name: "b"})
	if b.IsComplete() {
		t.Error("fresh build should not be complete")
	}
	b.Component("a").Status = StatusMerged
	if b.IsComplete() {
		t.Error("partially merged build should not be complete")
	}
	b.Component("b").Status = StatusMerged
	if !b.IsComplete() {
		t.Error("all-merged build should be complete")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	t.Parallel()

	b := buildFrom(t, Spec{Name: "a", Dependencies: []string{"x"}})
	snap := b.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() len = %d, want 1", len(snap))
	}

	snap[0].Status = StatusMerged
	snap[0].Dependencies[0] = "mutated"

	if b.Component("a").Status != StatusPending {
		t.Error("mutating a snapshot changed the build's status")
	}
	if b.Component("a").Dependencies[0] != "x" {
		t.Error("mutating a snapshot changed the build's dependencies")
	}
}
