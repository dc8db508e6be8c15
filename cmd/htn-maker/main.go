// Command htn-maker runs the learning driver over a single ground plan
// trace read from a JSON file, the offline counterpart to POST /learn on
// htn-server: no HTTP round trip, just a file in and a list of learned
// methods out, the same "one binary, one job" shape as the teacher's many
// single-purpose cmd/* mains (cmd/bbc-news-ingestor, cmd/wiki-bootstrapper, ...).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"htnlearn/internal/config"
	"htnlearn/internal/domain"
	"htnlearn/internal/learn"
	"htnlearn/internal/logic"
	"htnlearn/internal/plan"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
	"htnlearn/internal/store"
)

// planFile is the on-disk shape htn-maker reads: a domain name, the
// ground operators/steps/states that make up the plan trace, and the
// task descriptors to learn methods for. Formula-bearing fields are
// s-expression text, the same wire convention internal/store and
// internal/httpapi use.
type planFile struct {
	Domain    string           `json:"domain"`
	Operators []operatorInput  `json:"operators"`
	Steps     []stepInput      `json:"steps"`
	States    []stateInput     `json:"states"`
	Tasks     []taskDescrInput `json:"tasks"`
}

type operatorInput struct {
	Name          string   `json:"name"`
	Params        []string `json:"params"`
	Preconditions string   `json:"preconditions"`
	Effects       string   `json:"effects"`
	Cost          int      `json:"cost"`
}

type stepInput struct {
	Operator string            `json:"operator"`
	Sub      map[string]string `json:"sub"`
}

type stateInput struct {
	Atoms []string `json:"atoms"`
}

type taskDescrInput struct {
	Head          string `json:"head"`
	Preconditions string `json:"preconditions"`
	Effects       string `json:"effects"`
}

func main() {
	if err := config.LoadEnvFile(); err != nil {
		log.Printf("note: could not load .env file: %v (continuing without it)", err)
	}

	var (
		configPath  = flag.String("config", "config.json", "path to configuration file")
		planPath    = flag.String("plan", "", "path to the plan-trace JSON file to learn from (required)")
		profilePath = flag.String("profile", "", "path to a learn.yaml mode-flag bundle (overrides the individual flags below)")
		redisAddr   = flag.String("redis", "", "Redis address to persist the learned domain to (empty: print to stdout only)")

		partialGeneralization = flag.Bool("partial-generalization", false, "allow partial_generalization methods")
		soundnessCheck        = flag.Bool("soundness-check", true, "re-verify each learned method against its source plan")
		ndCheckers            = flag.Bool("nd-checkers", false, "generate non-deterministic outcome checkers")
		qValues               = flag.Bool("q-values", false, "track a rolling Q-value per method")
		varLinkage            = flag.Bool("var-linkage", true, "reject methods with unconstrained free variables")
		dropUnneeded          = flag.Bool("drop-unneeded", true, "drop structurally duplicate methods")
		noSubsumption         = flag.Bool("no-subsumption", false, "skip subsumption reconciliation")
		hardSquelch           = flag.Int("hard-squelch", 0, "cap methods learned per task head (0: unlimited)")
	)
	flag.Parse()

	if *planPath == "" {
		log.Fatal("htn-maker: -plan is required")
	}

	cfg := config.Load(*configPath, 0)
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}

	opts := learn.Options{
		PartialGeneralization: *partialGeneralization,
		SoundnessCheck:        *soundnessCheck,
		NDCheckers:            *ndCheckers,
		QValues:               *qValues,
		VarLinkage:            *varLinkage,
		DropUnneeded:          *dropUnneeded,
		NoSubsumption:         *noSubsumption,
		HardSquelch:           *hardSquelch,
	}
	if *profilePath != "" {
		loaded, err := config.LoadLearnProfile(*profilePath)
		if err != nil {
			log.Fatalf("htn-maker: loading profile %s: %v", *profilePath, err)
		}
		opts = loaded
	}

	raw, err := os.ReadFile(*planPath)
	if err != nil {
		log.Fatalf("htn-maker: reading %s: %v", *planPath, err)
	}
	var pf planFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		log.Fatalf("htn-maker: parsing %s: %v", *planPath, err)
	}
	if pf.Domain == "" {
		log.Fatal("htn-maker: plan file must name a domain")
	}

	arena := logic.NewArena()
	d := domain.NewDomain(pf.Domain)
	d.MethodIDs = true
	if opts.QValues {
		d.QValues = true
	}

	for _, wo := range pf.Operators {
		op, err := parseOperator(arena, wo)
		if err != nil {
			log.Fatalf("htn-maker: operator %s: %v", wo.Name, err)
		}
		d.Operators = append(d.Operators, op)
	}

	groundPlan, err := parsePlan(arena, d, pf)
	if err != nil {
		log.Fatalf("htn-maker: plan: %v", err)
	}

	tasks := make([]*schema.HtnTaskDescr, len(pf.Tasks))
	for i, t := range pf.Tasks {
		td, err := parseTaskDescr(arena, t)
		if err != nil {
			log.Fatalf("htn-maker: task %s: %v", t.Head, err)
		}
		tasks[i] = td
	}

	driver := learn.NewDriver(arena, d, opts)
	ap, learned, err := driver.Run(groundPlan, tasks)
	if err != nil {
		log.Fatalf("htn-maker: learning failed: %v", err)
	}
	log.Printf("✅ [HTN-MAKER] run %s learned %d method(s) for domain %s", ap.RunID, len(learned), d.Name)

	if cfg.RedisAddr != "" {
		st := store.New(cfg.RedisAddr, 0*time.Second)
		ctx := context.Background()
		if err := st.SaveDomain(ctx, d); err != nil {
			log.Fatalf("htn-maker: saving domain: %v", err)
		}
		if err := st.SavePlan(ctx, d.Name, groundPlan); err != nil {
			log.Printf("⚠️ [HTN-MAKER] failed to persist plan trace: %v", err)
		}
		if d.QValues {
			if err := st.SaveQValues(ctx, d); err != nil {
				log.Printf("⚠️ [HTN-MAKER] failed to persist q-values: %v", err)
			}
		}
		log.Printf("✅ [HTN-MAKER] persisted domain %s to %s", d.Name, cfg.RedisAddr)
	}

	methods := make([]methodSummary, len(learned))
	for i, m := range learned {
		methods[i] = summarizeMethod(m)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	result := struct {
		RunID   string          `json:"run_id"`
		Domain  string          `json:"domain"`
		Learned []methodSummary `json:"learned"`
	}{RunID: ap.RunID, Domain: d.Name, Learned: methods}
	if err := enc.Encode(result); err != nil {
		log.Fatalf("htn-maker: encoding output: %v", err)
	}
}

type methodSummary struct {
	ID            string   `json:"id"`
	Head          string   `json:"head"`
	Preconditions string   `json:"preconditions"`
	Subtasks      []string `json:"subtasks"`
	QValue        float64  `json:"q_value"`
	QCount        int      `json:"q_count"`
}

func summarizeMethod(m *schema.HtnMethod) methodSummary {
	subtasks := make([]string, len(m.Subtasks))
	for i, s := range m.Subtasks {
		subtasks[i] = s.String()
	}
	return methodSummary{
		ID:            m.ID,
		Head:          m.Head.String(),
		Preconditions: m.Preconditions.String(),
		Subtasks:      subtasks,
		QValue:        m.QValue,
		QCount:        m.QCount,
	}
}

func parseOperator(arena *logic.Arena, in operatorInput) (*schema.Operator, error) {
	params := make([]*logic.Term, len(in.Params))
	for i, name := range in.Params {
		t, err := arena.Intern(name, "")
		if err != nil {
			return nil, err
		}
		params[i] = t
	}
	pre, err := logic.ParseConj(arena, in.Preconditions)
	if err != nil {
		return nil, err
	}
	eff, err := logic.ParseConj(arena, in.Effects)
	if err != nil {
		return nil, err
	}
	return &schema.Operator{Name: in.Name, Params: params, Preconditions: pre, Effects: eff, Cost: in.Cost}, nil
}

func parseState(arena *logic.Arena, in stateInput) (*state.State, error) {
	s := state.New(0)
	for _, text := range in.Atoms {
		p, err := logic.ParsePred(arena, text)
		if err != nil {
			return nil, err
		}
		if err := s.Add(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func parsePlan(arena *logic.Arena, d *domain.Domain, pf planFile) (*plan.Plan, error) {
	steps := make([]plan.Step, len(pf.Steps))
	for i, in := range pf.Steps {
		op := d.FindOperator(in.Operator)
		if op == nil {
			return nil, &unknownOperatorError{in.Operator}
		}
		sub := logic.NewSubstitution()
		for vName, tName := range in.Sub {
			v, err := arena.Intern(vName, "")
			if err != nil {
				return nil, err
			}
			t, err := arena.Intern(tName, "")
			if err != nil {
				return nil, err
			}
			if err := sub.Insert(v, t); err != nil {
				return nil, err
			}
		}
		steps[i] = plan.Step{Operator: op, Sub: sub}
	}
	states := make([]*state.State, len(pf.States))
	for i, in := range pf.States {
		s, err := parseState(arena, in)
		if err != nil {
			return nil, err
		}
		states[i] = s
	}
	return &plan.Plan{Steps: steps, States: states}, nil
}

func parseTaskDescr(arena *logic.Arena, in taskDescrInput) (*schema.HtnTaskDescr, error) {
	head, err := logic.ParsePred(arena, in.Head)
	if err != nil {
		return nil, err
	}
	pre, err := logic.ParseConj(arena, in.Preconditions)
	if err != nil {
		return nil, err
	}
	eff, err := logic.ParseConj(arena, in.Effects)
	if err != nil {
		return nil, err
	}
	return &schema.HtnTaskDescr{Head: head, Preconditions: pre, Effects: eff}, nil
}

type unknownOperatorError struct{ name string }

func (e *unknownOperatorError) Error() string { return "no operator named " + e.name + " in the plan's operator list" }
