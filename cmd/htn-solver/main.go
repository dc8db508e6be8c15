// Command htn-solver runs the reference decomposition planner (C12) over
// a domain and an initial problem read from a JSON file, printing the
// resulting ground plan and decomposition forest — the offline
// counterpart to POST /plan on htn-server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"htnlearn/internal/config"
	"htnlearn/internal/domain"
	"htnlearn/internal/htnplanner"
	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
	"htnlearn/internal/store"
)

// problemFile is the on-disk shape htn-solver reads. Operators/Methods
// are only consulted when -domain is empty; otherwise the domain named
// by -domain is loaded from the Redis store.
type problemFile struct {
	Operators []operatorInput `json:"operators"`
	Methods   []methodInput   `json:"methods"`
	Init      stateInput      `json:"init"`
	Tasks     []string        `json:"tasks"`
}

type operatorInput struct {
	Name          string   `json:"name"`
	Params        []string `json:"params"`
	Preconditions string   `json:"preconditions"`
	Effects       string   `json:"effects"`
	Cost          int      `json:"cost"`
}

type methodInput struct {
	ID            string   `json:"id"`
	Head          string   `json:"head"`
	Preconditions string   `json:"preconditions"`
	Subtasks      []string `json:"subtasks"`
}

type stateInput struct {
	Atoms []string `json:"atoms"`
}

func main() {
	if err := config.LoadEnvFile(); err != nil {
		log.Printf("note: could not load .env file: %v (continuing without it)", err)
	}

	var (
		configPath   = flag.String("config", "config.json", "path to configuration file")
		problemPath  = flag.String("problem", "", "path to the problem JSON file (required)")
		domainName   = flag.String("domain", "", "domain name to load from Redis (empty: build the domain from -problem's operators/methods instead)")
		redisAddr    = flag.String("redis", "", "Redis address to load a persisted domain from")
		breadthFirst = flag.Bool("bfs", false, "search breadth-first instead of depth-first")
		randomOrder  = flag.Bool("random-method-order", false, "try methods in random order instead of by ascending precondition count")
		maxDecomps   = flag.Int("max-decompositions", 0, "bound on decomposition steps (0: unbounded)")
		loopDetect   = flag.Bool("loop-detection", true, "maintain a visited set to avoid re-expanding equivalent partial solutions")
		keepLevel    = flag.Int("keep-level", 50, "discard visited entries more than this many levels behind the frontier")
		seed         = flag.Int64("seed", 1, "seed for -random-method-order")
	)
	flag.Parse()

	if *problemPath == "" {
		log.Fatal("htn-solver: -problem is required")
	}

	cfg := config.Load(*configPath, 0)
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}

	raw, err := os.ReadFile(*problemPath)
	if err != nil {
		log.Fatalf("htn-solver: reading %s: %v", *problemPath, err)
	}
	var pf problemFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		log.Fatalf("htn-solver: parsing %s: %v", *problemPath, err)
	}

	arena := logic.NewArena()
	var d *domain.Domain
	if *domainName != "" {
		if cfg.RedisAddr == "" {
			log.Fatal("htn-solver: -domain requires -redis (or a config file naming redis_addr)")
		}
		st := store.New(cfg.RedisAddr, 0*time.Second)
		d, err = st.LoadDomain(context.Background(), arena, *domainName)
		if err != nil {
			log.Fatalf("htn-solver: loading domain %s: %v", *domainName, err)
		}
	} else {
		d, err = buildDomain(arena, pf)
		if err != nil {
			log.Fatalf("htn-solver: building domain from %s: %v", *problemPath, err)
		}
	}

	init := state.New(0)
	for _, text := range pf.Init.Atoms {
		p, err := logic.ParsePred(arena, text)
		if err != nil {
			log.Fatalf("htn-solver: init atom %q: %v", text, err)
		}
		if err := init.Add(p); err != nil {
			log.Fatalf("htn-solver: init atom %q: %v", text, err)
		}
	}

	tasks := make([]*logic.Pred, len(pf.Tasks))
	for i, text := range pf.Tasks {
		p, err := logic.ParsePred(arena, text)
		if err != nil {
			log.Fatalf("htn-solver: task %q: %v", text, err)
		}
		tasks[i] = p
	}

	opts := htnplanner.Options{
		BreadthFirst:      *breadthFirst,
		RandomMethodOrder: *randomOrder,
		MaxDecompositions: *maxDecomps,
		LoopDetection:     *loopDetect,
		KeepLevel:         *keepLevel,
		Rand:              rand.New(rand.NewSource(*seed)),
	}

	solution, err := htnplanner.Solve(d, init, tasks, opts)
	if err != nil {
		log.Fatalf("❌ [HTN-SOLVER] no plan found for domain %s: %v", d.Name, err)
	}
	log.Printf("✅ [HTN-SOLVER] found a %d-step plan (%d decompositions)", len(solution.Applied), solution.Decompositions)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(buildSolutionView(d, solution)); err != nil {
		log.Fatalf("htn-solver: encoding solution: %v", err)
	}
}

type solutionOutput struct {
	Plan           []string        `json:"plan"`
	Decompositions int             `json:"decompositions"`
	Forest         []*decompView   `json:"forest"`
}

type decompView struct {
	MethodID   string        `json:"method_id,omitempty"`
	GroundHead string        `json:"ground_head"`
	IsLeaf     bool          `json:"is_leaf"`
	Children   []*decompView `json:"children,omitempty"`
}

func buildSolutionView(d *domain.Domain, s *domain.HtnSolution) solutionOutput {
	steps := make([]string, len(s.Applied))
	for i, step := range s.Applied {
		steps[i] = groundActionString(d, step)
	}
	forest := make([]*decompView, len(s.Forest))
	for i, part := range s.Forest {
		forest[i] = buildDecompView(part)
	}
	return solutionOutput{Plan: steps, Decompositions: s.Decompositions, Forest: forest}
}

func buildDecompView(part *domain.DecompPart) *decompView {
	v := &decompView{MethodID: part.MethodID, GroundHead: part.GroundHead.String(), IsLeaf: part.IsLeaf}
	v.Children = make([]*decompView, len(part.Children))
	for i, c := range part.Children {
		v.Children[i] = buildDecompView(c)
	}
	return v
}

func buildDomain(arena *logic.Arena, pf problemFile) (*domain.Domain, error) {
	d := domain.NewDomain("solver-problem")
	for _, in := range pf.Operators {
		op, err := parseOperator(arena, in)
		if err != nil {
			return nil, fmt.Errorf("operator %s: %w", in.Name, err)
		}
		d.Operators = append(d.Operators, op)
	}
	for _, in := range pf.Methods {
		m, err := parseMethod(arena, in)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", in.ID, err)
		}
		d.AddMethod(m)
	}
	return d, nil
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

func parseMethod(arena *logic.Arena, in methodInput) (*schema.HtnMethod, error) {
	head, err := logic.ParsePred(arena, in.Head)
	if err != nil {
		return nil, err
	}
	pre, err := logic.ParseConj(arena, in.Preconditions)
	if err != nil {
		return nil, err
	}
	subtasks := make([]*logic.Pred, len(in.Subtasks))
	for i, text := range in.Subtasks {
		p, err := logic.ParsePred(arena, text)
		if err != nil {
			return nil, err
		}
		subtasks[i] = p
	}
	m := schema.NewHtnMethod(head, pre, subtasks)
	m.ID = in.ID
	return m, nil
}

func groundActionString(d *domain.Domain, step domain.AppliedStep) string {
	if step.OperatorIndex < 0 || step.OperatorIndex >= len(d.Operators) {
		return "?op#" + strconv.Itoa(step.OperatorIndex)
	}
	op := d.Operators[step.OperatorIndex]
	args := make([]*logic.Term, len(op.Params))
	for i, p := range op.Params {
		if t, ok := step.Sub.Lookup(p); ok {
			args[i] = t
		} else {
			args[i] = p
		}
	}
	return logic.NewPred(op.Name, args...).String()
}
