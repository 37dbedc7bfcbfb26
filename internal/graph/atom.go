package graph

// Atom is a single-bit behavioral predicate over a dependency edge. Every
// runtime algorithm (job expansion, default-dependency materialization,
// isolate semantics) is written against atoms instead of relations, so a
// new relation kind only needs a new entry in relationAtoms, never a touch
// of the job engine or unit graph walkers (spec.md §3, §9).
type Atom uint32

const (
	PullInStart Atom = 1 << iota
	PullInStartIgnored
	PullInStop
	PullInStopIgnored
	PullInVerify
	PropagateStop
	PropagateStartFailure
	PropagateStopFailure
	PropagateRestart
	RetroActiveStopOnStart
	RetroActiveStartOnStop
	AddDefaultTargetDependencyQueue
	AtomAfter
	AtomBefore
	IgnoreOnIsolate
)

// relationAtoms maps each relation to the set of atoms it implies. Inverse
// relations (RequiredBy, WantedBy, ...) mostly carry no atoms of their own;
// walks against the edge direction go through the forward relation's atoms
// (see job.Engine.dependentsWithAtom).
var relationAtoms = map[Relation]Atom{
	Requires:   PullInStart | PropagateStop | PropagateStartFailure | AddDefaultTargetDependencyQueue,
	RequiredBy: 0,

	Requisite:   PullInVerify | PropagateStop,
	RequisiteOf: 0,

	Wants:    PullInStartIgnored | AddDefaultTargetDependencyQueue,
	WantedBy: 0,

	BindsTo: PullInStart | PropagateStop | PropagateStartFailure |
		PropagateStopFailure | RetroActiveStopOnStart | AddDefaultTargetDependencyQueue,
	BoundBy: 0,

	PartOf:     PropagateStop | PropagateStopFailure,
	ConsistsOf: 0,

	UpHolds:  PullInStartIgnored | RetroActiveStartOnStop | AddDefaultTargetDependencyQueue,
	UpHeldBy: 0,

	Before: AtomBefore,
	After:  AtomAfter,

	Conflicts:    PullInStop,
	ConflictedBy: PullInStopIgnored,

	Triggers:    0,
	TriggeredBy: 0,

	PropagatesReloadTo:   PropagateRestart,
	ReloadPropagatedFrom: 0,

	OnSuccess:   0,
	OnSuccessOf: 0,
	OnFailure:   0,
	OnFailureOf: 0,

	References:   0,
	ReferencedBy: 0,

	InSlice: 0,
	SliceOf: 0,

	JoinsNamespaceOf:    0,
	NamespaceOfJoinedBy: 0,

	PropagatesStopTo:   PropagateStop,
	StopPropagatedFrom: 0,

	AllowIsolate:   IgnoreOnIsolate,
	AllowIsolateOf: 0,
}

// AtomsOf returns the atom set implied by r. Relations with no behavioral
// bit (pure bookkeeping relations such as References) return 0.
func AtomsOf(r Relation) Atom {
	return relationAtoms[r]
}

// HasAtom reports whether r implies atom a.
func HasAtom(r Relation, a Atom) bool {
	return relationAtoms[r]&a != 0
}

// RelationsForAtom returns every relation whose AtomsOf includes a — the
// "each atom maps back to the relations it is implied by" side of spec.md
// §3, used by dep_gets_atom to union edges across all qualifying relations.
func RelationsForAtom(a Atom) []Relation {
	var out []Relation
	for r := Requires; r < relationCount; r++ {
		if relationAtoms[r]&a != 0 {
			out = append(out, r)
		}
	}
	return out
}
