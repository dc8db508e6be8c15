// Package httpapi exposes the learning engine over HTTP, the way
// hdn/api.go's APIServer exposes the teacher's planner: a gorilla/mux
// router, one handler per route, JSON request/response bodies.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"htnlearn/internal/domain"
	"htnlearn/internal/htnplanner"
	"htnlearn/internal/learn"
	"htnlearn/internal/logic"
	"htnlearn/internal/plan"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
	"htnlearn/internal/store"
)

// Server wires the Store-backed domain repository to a mux.Router.
type Server struct {
	router *mux.Router
	store  *store.Store
}

// New builds a Server over an already-constructed Store.
func New(st *store.Store) *Server {
	s := &Server{router: mux.NewRouter(), store: st}
	s.setupRoutes()
	return s
}

// Router returns the underlying http.Handler, for http.ListenAndServe.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/domains", s.handleListDomains).Methods("GET")
	s.router.HandleFunc("/domains/{name}", s.handleGetDomain).Methods("GET")
	s.router.HandleFunc("/domains/{name}", s.handleDeleteDomain).Methods("DELETE")
	s.router.HandleFunc("/domains/{name}/methods", s.handleListMethods).Methods("GET")

	s.router.HandleFunc("/learn", s.handleLearn).Methods("POST")
	s.router.HandleFunc("/plan", s.handlePlan).Methods("POST")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListDomainNames(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list domains: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"domains": names})
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	arena := logic.NewArena()
	d, err := s.store.LoadDomain(r.Context(), arena, name)
	if err != nil {
		http.Error(w, fmt.Sprintf("domain not found: %v", err), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, domainSummary(d))
}

func (s *Server) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.store.DeleteDomain(r.Context(), name); err != nil {
		http.Error(w, fmt.Sprintf("failed to delete domain: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "domain": name})
}

func (s *Server) handleListMethods(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	arena := logic.NewArena()
	d, err := s.store.LoadDomain(r.Context(), arena, name)
	if err != nil {
		http.Error(w, fmt.Sprintf("domain not found: %v", err), http.StatusNotFound)
		return
	}
	out := make([]methodView, len(d.Methods))
	for i, m := range d.Methods {
		out[i] = toMethodView(m)
	}
	writeJSON(w, http.StatusOK, map[string][]methodView{"methods": out})
}

// learnRequest names a domain to learn into and the ground plan/task
// descriptors to learn from, all S-expression encoded the same way
// internal/store persists formulas. Learning always starts from a fresh
// empty domain of that name; a domain already stored under the name is
// not loaded, and saving the result overwrites it.
type learnRequest struct {
	Domain  string             `json:"domain"`
	Options learnOptionsWire   `json:"options"`
	Plan    wirePlanRequest    `json:"plan"`
	Tasks   []taskDescrRequest `json:"tasks"`
}

type learnOptionsWire struct {
	PartialGeneralization bool `json:"partial_generalization"`
	SoundnessCheck        bool `json:"soundness_check"`
	NDCheckers            bool `json:"nd_checkers"`
	QValues               bool `json:"q_values"`
	NoSubsumption         bool `json:"no_subsumption"`
}

type wirePlanRequest struct {
	Operators []operatorRequest `json:"operators"`
	Steps     []stepRequest     `json:"steps"`
	States    []stateRequest    `json:"states"`
}

type operatorRequest struct {
	Name          string   `json:"name"`
	Params        []string `json:"params"`
	Preconditions string   `json:"preconditions"`
	Effects       string   `json:"effects"`
	Cost          int      `json:"cost"`
}

type stepRequest struct {
	Operator string            `json:"operator"`
	Sub      map[string]string `json:"sub"`
}

type stateRequest struct {
	Atoms []string `json:"atoms"`
}

type taskDescrRequest struct {
	Head          string `json:"head"`
	Preconditions string `json:"preconditions"`
	Effects       string `json:"effects"`
}

func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Domain == "" {
		http.Error(w, "domain name is required", http.StatusBadRequest)
		return
	}

	arena := logic.NewArena()
	d := domain.NewDomain(req.Domain)
	d.MethodIDs = true
	if req.Options.QValues {
		d.QValues = true
	}

	for _, wo := range req.Plan.Operators {
		op, err := parseOperatorRequest(arena, wo)
		if err != nil {
			http.Error(w, fmt.Sprintf("bad operator %s: %v", wo.Name, err), http.StatusBadRequest)
			return
		}
		d.Operators = append(d.Operators, op)
	}

	groundPlan, err := parsePlanRequest(arena, d, req.Plan)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad plan: %v", err), http.StatusBadRequest)
		return
	}

	tasks := make([]*schema.HtnTaskDescr, len(req.Tasks))
	for i, t := range req.Tasks {
		td, err := parseTaskDescrRequest(arena, t)
		if err != nil {
			http.Error(w, fmt.Sprintf("bad task %s: %v", t.Head, err), http.StatusBadRequest)
			return
		}
		tasks[i] = td
	}

	opts := learn.Options{
		PartialGeneralization: req.Options.PartialGeneralization,
		SoundnessCheck:        req.Options.SoundnessCheck,
		NDCheckers:            req.Options.NDCheckers,
		QValues:               req.Options.QValues,
		NoSubsumption:         req.Options.NoSubsumption,
	}

	driver := learn.NewDriver(arena, d, opts)
	ap, learned, err := driver.Run(groundPlan, tasks)
	if err != nil {
		http.Error(w, fmt.Sprintf("learning failed: %v", err), http.StatusUnprocessableEntity)
		return
	}

	if err := s.store.SaveDomain(r.Context(), d); err != nil {
		log.Printf("⚠️ [HTTPAPI] failed to persist domain %s after learning: %v", d.Name, err)
	}
	if err := s.store.SavePlan(r.Context(), d.Name, groundPlan); err != nil {
		log.Printf("⚠️ [HTTPAPI] failed to persist plan trace for %s: %v", d.Name, err)
	}
	if d.QValues {
		if err := s.store.SaveQValues(r.Context(), d); err != nil {
			log.Printf("⚠️ [HTTPAPI] failed to persist q-values for %s: %v", d.Name, err)
		}
	}

	out := make([]methodView, len(learned))
	for i, m := range learned {
		out[i] = toMethodView(m)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"domain": d.Name, "run_id": ap.RunID, "learned": out})
}

type planRequest struct {
	Domain string          `json:"domain"`
	Tasks  []string        `json:"tasks"`
	State  stateRequest    `json:"state"`
	Opts   planOptionsWire `json:"options"`
}

type planOptionsWire struct {
	BreadthFirst      bool `json:"breadth_first"`
	MaxDecompositions int  `json:"max_decompositions"`
	LoopDetection     bool `json:"loop_detection"`
	KeepLevel         int  `json:"keep_level"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Domain == "" {
		http.Error(w, "domain name is required", http.StatusBadRequest)
		return
	}

	arena := logic.NewArena()
	d, err := s.store.LoadDomain(r.Context(), arena, req.Domain)
	if err != nil {
		http.Error(w, fmt.Sprintf("domain not found: %v", err), http.StatusNotFound)
		return
	}

	init, err := parseStateRequest(arena, req.State)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad state: %v", err), http.StatusBadRequest)
		return
	}

	tasks := make([]*logic.Pred, len(req.Tasks))
	for i, text := range req.Tasks {
		p, err := logic.ParsePred(arena, text)
		if err != nil {
			http.Error(w, fmt.Sprintf("bad task %q: %v", text, err), http.StatusBadRequest)
			return
		}
		tasks[i] = p
	}

	sol, err := htnplanner.Solve(d, init, tasks, htnplanner.Options{
		BreadthFirst:      req.Opts.BreadthFirst,
		MaxDecompositions: req.Opts.MaxDecompositions,
		LoopDetection:     req.Opts.LoopDetection,
		KeepLevel:         req.Opts.KeepLevel,
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("no solution: %v", err), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decompositions": sol.Decompositions,
		"applied_steps":  len(sol.Applied),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func domainSummary(d *domain.Domain) map[string]interface{} {
	return map[string]interface{}{
		"name":           d.Name,
		"operator_count": len(d.Operators),
		"method_count":   len(d.Methods),
		"method_ids":     d.MethodIDs,
		"q_values":       d.QValues,
	}
}

type methodView struct {
	ID            string   `json:"id"`
	Head          string   `json:"head"`
	Preconditions string   `json:"preconditions"`
	Subtasks      []string `json:"subtasks"`
	QValue        float64  `json:"q_value"`
	QCount        int      `json:"q_count"`
}

func toMethodView(m *schema.HtnMethod) methodView {
	subtasks := make([]string, len(m.Subtasks))
	for i, s := range m.Subtasks {
		subtasks[i] = s.String()
	}
	return methodView{
		ID:            m.ID,
		Head:          m.Head.String(),
		Preconditions: m.Preconditions.String(),
		Subtasks:      subtasks,
		QValue:        m.QValue,
		QCount:        m.QCount,
	}
}

func parseOperatorRequest(arena *logic.Arena, req operatorRequest) (*schema.Operator, error) {
	params := make([]*logic.Term, len(req.Params))
	for i, name := range req.Params {
		t, err := arena.Intern(name, "")
		if err != nil {
			return nil, err
		}
		params[i] = t
	}
	pre, err := logic.ParseConj(arena, req.Preconditions)
	if err != nil {
		return nil, err
	}
	eff, err := logic.ParseConj(arena, req.Effects)
	if err != nil {
		return nil, err
	}
	return &schema.Operator{Name: req.Name, Params: params, Preconditions: pre, Effects: eff, Cost: req.Cost}, nil
}

func parseStateRequest(arena *logic.Arena, req stateRequest) (*state.State, error) {
	s := state.New(0)
	for _, text := range req.Atoms {
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

func parsePlanRequest(arena *logic.Arena, d *domain.Domain, req wirePlanRequest) (*plan.Plan, error) {
	steps := make([]plan.Step, len(req.Steps))
	for i, st := range req.Steps {
		op := d.FindOperator(st.Operator)
		if op == nil {
			return nil, fmt.Errorf("no operator named %s", st.Operator)
		}
		sub := logic.NewSubstitution()
		for vName, tName := range st.Sub {
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
	states := make([]*state.State, len(req.States))
	for i, st := range req.States {
		parsed, err := parseStateRequest(arena, st)
		if err != nil {
			return nil, err
		}
		states[i] = parsed
	}
	return &plan.Plan{Steps: steps, States: states}, nil
}

func parseTaskDescrRequest(arena *logic.Arena, req taskDescrRequest) (*schema.HtnTaskDescr, error) {
	head, err := logic.ParsePred(arena, req.Head)
	if err != nil {
		return nil, err
	}
	pre, err := logic.ParseConj(arena, req.Preconditions)
	if err != nil {
		return nil, err
	}
	eff, err := logic.ParseConj(arena, req.Effects)
	if err != nil {
		return nil, err
	}
	return &schema.HtnTaskDescr{Head: head, Preconditions: pre, Effects: eff}, nil
}
