package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustUnit(t *testing.T, g *Graph, name string) *Unit {
	t.Helper()
	u, err := g.Load(name)
	require.NoError(t, err)
	return u
}

// TestDepInsert_InverseHoldsBothDirections covers spec.md §8 property 1:
// for every inserted edge (u, r, v), is_dep_with(u, r, v) and
// is_dep_with(v, inverse(r), u) both hold; after remove_unit(u) both return
// false.
func TestDepInsert_InverseHoldsBothDirections(t *testing.T) {
	g := New(nil)
	a := mustUnit(t, g, "a.service")
	b := mustUnit(t, g, "b.service")

	require.NoError(t, g.DepInsert(a, b, Requires, false, MaskUserFile))

	require.True(t, g.IsDepWith("a.service", Requires, "b.service"))
	require.True(t, g.IsDepWith("b.service", RequiredBy, "a.service"))

	g.RemoveUnit(a)

	require.False(t, g.IsDepWith("a.service", Requires, "b.service"))
	require.False(t, g.IsDepWith("b.service", RequiredBy, "a.service"))
}

// TestDepGetsAtom_ImpliesSomeRelation covers spec.md §8 property 2: for
// every atom a and every relation r with r -> a, is_dep_atom_with(u, a, v)
// implies is_dep_with(u, r', v) for at least one r' with r' -> a.
func TestDepGetsAtom_ImpliesSomeRelation(t *testing.T) {
	g := New(nil)
	a := mustUnit(t, g, "a.service")
	b := mustUnit(t, g, "b.service")

	require.NoError(t, g.DepInsert(a, b, BindsTo, false, MaskUserFile))

	require.True(t, g.IsDepAtomWith("a.service", PullInStart, "b.service"))

	found := false
	for _, rel := range RelationsForAtom(PullInStart) {
		if g.IsDepWith("a.service", rel, "b.service") {
			found = true
			break
		}
	}
	require.True(t, found)
}

func TestDepInsert_RejectsSelfLoop(t *testing.T) {
	g := New(nil)
	a := mustUnit(t, g, "a.service")
	err := g.DepInsert(a, a, Requires, false, MaskUserFile)
	require.Error(t, err)
}

func TestDepInsert_RejectsInvalidKindCombination(t *testing.T) {
	g := New(nil)
	dev := mustUnit(t, g, "dev.device")
	sock := mustUnit(t, g, "s.socket")
	err := g.DepInsert(dev, sock, Requires, false, MaskUserFile)
	require.Error(t, err)
}

func TestDepInsert_ReferencePairInserted(t *testing.T) {
	g := New(nil)
	a := mustUnit(t, g, "a.service")
	b := mustUnit(t, g, "b.service")
	require.NoError(t, g.DepInsert(a, b, Wants, true, MaskUserFile))

	require.True(t, g.IsDepWith("a.service", References, "b.service"))
	require.True(t, g.IsDepWith("b.service", ReferencedBy, "a.service"))
}

func TestLoadQueue_FIFO(t *testing.T) {
	g := New(nil)
	mustUnit(t, g, "a.service")
	mustUnit(t, g, "b.service")

	name, ok := g.PopLoadQueue()
	require.True(t, ok)
	require.Equal(t, "a.service", name)

	name, ok = g.PopLoadQueue()
	require.True(t, ok)
	require.Equal(t, "b.service", name)

	_, ok = g.PopLoadQueue()
	require.False(t, ok)
}

func TestMaterializeDefaultTargetDeps_InsertsAfterFromTarget(t *testing.T) {
	g := New(nil)
	svc := mustUnit(t, g, "a.service")
	svc.DefaultDependencies = true
	target, err := g.Load("multi-user.target")
	require.NoError(t, err)

	require.NoError(t, g.DepInsert(svc, target, Wants, false, MaskUserFile))
	g.MaterializeDefaultTargetDeps(svc)

	require.True(t, g.IsDepWith("multi-user.target", After, "a.service"))
}

func TestMaterializeDefaultTargetDeps_SkipsWhenBeforeExists(t *testing.T) {
	g := New(nil)
	svc := mustUnit(t, g, "a.service")
	svc.DefaultDependencies = true
	target, err := g.Load("multi-user.target")
	require.NoError(t, err)

	require.NoError(t, g.DepInsert(svc, target, Wants, false, MaskUserFile))
	require.NoError(t, g.DepInsert(target, svc, Before, false, MaskUserFile))
	g.MaterializeDefaultTargetDeps(svc)

	require.False(t, g.IsDepWith("multi-user.target", After, "a.service"))
}

func TestUnit_LoadStateInvariant(t *testing.T) {
	g := New(nil)
	u := mustUnit(t, g, "a.service")
	require.NoError(t, u.SetLoadState(Loaded))
	err := u.SetLoadState(NotFound)
	require.Error(t, err)
}

func TestUnit_MaskedNeverActive(t *testing.T) {
	g := New(nil)
	u := mustUnit(t, g, "a.service")
	require.NoError(t, u.SetLoadState(Masked))
	err := u.SetActiveState(Active)
	require.Error(t, err)
}
