package learn

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"htnlearn/internal/domain"
	"htnlearn/internal/logic"
	"htnlearn/internal/plan"
	"htnlearn/internal/progress"
	"htnlearn/internal/schema"
)

// Driver runs the top-level learning loop of spec.md §4.8: for every
// plan position and every candidate task descriptor, seed a
// PartialMethod, regress it back across the plan, and — if it
// generalizes soundly and survives subsumption reconciliation — fold it
// into the domain so earlier positions can reuse it as a subtask.
type Driver struct {
	Arena   *logic.Arena
	Domain  *domain.Domain
	Options Options

	// Progress, if non-nil, receives one event per plan position and
	// per method learned. A nil Progress (the zero value) is a silent
	// no-op, so callers that don't care about run visibility can
	// simply omit it.
	Progress *progress.Bus

	learnedPerTask map[string]int
}

// NewDriver returns a driver over an already-populated domain (its
// Operators must be set; Methods may be pre-seeded with authored ones).
func NewDriver(arena *logic.Arena, d *domain.Domain, opts Options) *Driver {
	return &Driver{Arena: arena, Domain: d, Options: opts, learnedPerTask: map[string]int{}}
}

// seedResult is the read-only product of the per-task seed search: the
// candidate PartialMethods a task admits at a plan position, computed
// without touching the shared domain or annotated plan.
type seedResult struct {
	task *schema.HtnTaskDescr
	pms  []*PartialMethod
	err  error
}

// Run walks plan positions 1..len(p.Steps) in order (callers wanting
// Options.RandomOrder should pre-shuffle p and tasks themselves before
// calling Run) and attempts to learn one method per task descriptor at
// each position, returning the annotated plan and every method kept.
//
// At each position the per-task seed search (Seed, which only reads p
// and task — it never touches dr.Domain or ap) fans out across an
// errgroup bounded by runtime.GOMAXPROCS; the regress/verify/reconcile
// steps that follow all mutate shared state, so they run back in this
// goroutine once every task's seed search has returned.
func (dr *Driver) Run(p *plan.Plan, tasks []*schema.HtnTaskDescr) (*plan.AnnotatedPlan, []*schema.HtnMethod, error) {
	ap := plan.New(p)
	var learned []*schema.HtnMethod
	ctx := context.Background()

	for final := 1; final <= len(p.Steps); final++ {
		now := time.Now()
		dr.Progress.Publish(ctx, progress.Event{
			EventID:   progress.NewEventID("pos", now),
			RunID:     ap.RunID,
			Type:      progress.EventPositionStart,
			Timestamp: now,
			Domain:    dr.Domain.Name,
			Position:  final,
		})

		results := make([]seedResult, len(tasks))
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i, task := range tasks {
			i, task := i, task
			g.Go(func() error {
				pms, err := Seed(dr.Arena, task, p, final)
				results[i] = seedResult{task: task, pms: pms, err: err}
				return nil
			})
		}
		_ = g.Wait()

		for _, res := range results {
			if res.err != nil {
				return nil, nil, res.err
			}
			kept, err := dr.keepFromSeeds(ap, p, res.task, final, res.pms)
			if err != nil {
				return nil, nil, err
			}
			for _, m := range kept {
				methodTime := time.Now()
				dr.Progress.Publish(ctx, progress.Event{
					EventID:   progress.NewEventID("method", methodTime),
					RunID:     ap.RunID,
					Type:      progress.EventMethodLearned,
					Timestamp: methodTime,
					Domain:    dr.Domain.Name,
					TaskHead:  res.task.Head.Symbol,
					MethodID:  m.ID,
					Position:  final,
				})
			}
			learned = append(learned, kept...)
		}
	}

	if dr.Options.NDCheckers {
		for _, m := range GenerateNDCheckers(dr.Arena, dr.Domain) {
			if !dr.Options.NoSubsumption && !ReconcileWithDomain(dr.Arena, dr.Domain, m) {
				continue
			}
			dr.Domain.AddMethod(m)
			learned = append(learned, m)
		}
	}

	if dr.Domain.MethodIDs {
		dr.Domain.AssignMissingIDs()
	}

	runTime := time.Now()
	dr.Progress.Publish(ctx, progress.Event{
		EventID:   progress.NewEventID("run", runTime),
		RunID:     ap.RunID,
		Type:      progress.EventRunComplete,
		Timestamp: runTime,
		Domain:    dr.Domain.Name,
		Detail:    strconv.Itoa(len(learned)) + " methods learned",
	})

	return ap, learned, nil
}

// keepFromSeeds regresses every already-seeded PartialMethod for task at
// plan position final, keeping whichever survive every enabled filter.
// The seed search itself (Seed) has already run, possibly concurrently
// with other tasks' seed searches — everything from here on mutates
// dr.Domain and ap, so it always runs sequentially.
func (dr *Driver) keepFromSeeds(ap *plan.AnnotatedPlan, p *plan.Plan, task *schema.HtnTaskDescr, final int, pms []*PartialMethod) ([]*schema.HtnMethod, error) {
	if dr.Options.HardSquelch > 0 && dr.learnedPerTask[task.Head.Symbol] >= dr.Options.HardSquelch {
		return nil, nil
	}

	var kept []*schema.HtnMethod
	for _, pm := range pms {
		if dr.Options.HardSquelch > 0 && dr.learnedPerTask[task.Head.Symbol] >= dr.Options.HardSquelch {
			break
		}

		ok, err := pm.Regress(ap, p, dr.Options)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		m := pm.Emit()
		if m.IsTrivial() {
			continue
		}
		if dr.Options.VarLinkage && hasUnlinkedVar(m) {
			continue
		}
		if dr.Options.DropUnneeded && dr.hasStructuralDuplicate(m) {
			continue
		}
		if dr.Options.SoundnessCheck {
			sound, _, err := VerifyMethod(dr.Domain, m, pm.MasterSub, p.States[pm.InitStateIndex], pm.TaskDescr)
			if err != nil {
				return nil, err
			}
			if !sound {
				continue
			}
		}
		if !dr.Options.NoSubsumption && !ReconcileWithDomain(dr.Arena, dr.Domain, m) {
			continue
		}
		if dr.Options.QValues {
			m.UpdateQValue(float64(pm.TotalCost))
		}

		dr.Domain.AddMethod(m)
		dr.learnedPerTask[task.Head.Symbol]++
		kept = append(kept, m)

		ap.Record(plan.MethodInstance{
			Method:     m,
			Sub:        pm.MasterSub,
			Before:     p.States[pm.InitStateIndex],
			After:      p.States[final],
			TaskDescr:  task,
			Effects:    pm.TaskDescr.Effects,
			Cost:       pm.TotalCost,
			RangeStart: pm.InitStateIndex,
			RangeEnd:   final,
		})
	}
	return kept, nil
}

// hasUnlinkedVar reports a subtask variable that appears in neither the
// method's head nor its preconditions — nothing would ever bind such a
// variable when the method is applied forward, so it can never
// legitimately occur in a subtask argument.
func hasUnlinkedVar(m *schema.HtnMethod) bool {
	bound := map[*logic.Term]bool{}
	for _, a := range m.Head.Args {
		bound[a] = true
	}
	for _, v := range logic.Variables(m.Preconditions) {
		bound[v] = true
	}
	for _, s := range m.Subtasks {
		for _, v := range logic.Variables(s) {
			if !bound[v] {
				return true
			}
		}
	}
	return false
}

func (dr *Driver) hasStructuralDuplicate(m *schema.HtnMethod) bool {
	for _, existing := range dr.Domain.MethodsForTask(m.Head.Symbol) {
		if methodStructurallyEqual(existing, m) {
			return true
		}
	}
	return false
}

func methodStructurallyEqual(a, b *schema.HtnMethod) bool {
	if len(a.Subtasks) != len(b.Subtasks) {
		return false
	}
	for i := range a.Subtasks {
		if a.Subtasks[i].Symbol != b.Subtasks[i].Symbol || len(a.Subtasks[i].Args) != len(b.Subtasks[i].Args) {
			return false
		}
	}
	return logic.FormulaEqual(a.Preconditions, b.Preconditions)
}
