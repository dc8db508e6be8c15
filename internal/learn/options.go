// Package learn implements the method-learning engine of spec.md §4.5–§4.8
// (components C9–C11): PartialHtnMethod construction by backward goal
// regression over a ground plan trace, subsumption-based domain
// reconciliation, and the top-level driver that walks a plan learning one
// method per explained task at a time.
package learn

// Options selects which learning-algorithm variants a run uses, mirroring
// the command-line switches a learning driver exposes.
type Options struct {
	// PartialGeneralization lets Regress accept the first plan position
	// at which termination succeeds, instead of requiring the regression
	// to reach the plan's initial state (index 0). It does not change how
	// variables are merged, and leftover remaining_precs literals become
	// method preconditions whether or not it is set.
	PartialGeneralization bool

	// OnlyTaskEffects sources an already-covering method instance's
	// contribution from its task descriptor's declared effects, instead
	// of diffing the before/after states it actually produced.
	OnlyTaskEffects bool

	// RequireNew rejects a plan position as a regression step unless it
	// contributes at least one still-open add-list or precondition
	// literal; without it, a non-contributing operator may still be
	// force-included to keep the chosen range tiling the plan.
	RequireNew bool

	// ForceOpsFirst tries the raw ground operator at a plan position
	// before any covering method instance ending there, biasing learned
	// methods toward primitive-heavy decompositions.
	ForceOpsFirst bool

	// DropUnneeded discards a freshly learned method that is structurally
	// identical (head, preconditions, subtasks) to one already present.
	DropUnneeded bool

	// SoundnessCheck re-derives the ending state by replaying a learned
	// method's own subtasks from the state it was learned from, and
	// rejects the method unless that state satisfies the task
	// descriptor's declared effects (boundary scenario S4).
	SoundnessCheck bool

	// NDCheckers generates one auxiliary alternative per numbered
	// "-NN" non-deterministic operator variant sharing a base task name.
	NDCheckers bool

	// QValues folds each learned method's observed cost into its rolling
	// Q-value average.
	QValues bool

	// HardSquelch caps the number of methods learned per distinct task
	// head in one run, once useful coverage has clearly been reached.
	HardSquelch int

	// VarLinkage rejects a method whose subtasks use a variable that
	// appears in neither its head nor its preconditions — such a variable
	// could never be bound when the method is invoked.
	VarLinkage bool

	// NoSubsumption skips the subsumption reconciliation pass entirely,
	// keeping every sound method learned even if redundant.
	NoSubsumption bool

	// RandomOrder is honored by callers that pre-shuffle the plan
	// positions or task list passed to Driver.Run themselves (e.g. with
	// math/rand); the driver always walks them in the order given.
	RandomOrder bool
}
