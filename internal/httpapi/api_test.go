package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"htnlearn/internal/httpapi"
	"htnlearn/internal/store"
)

// newTestServer wires an httpapi.Server to an in-memory Redis, mirroring
// hdn/api_tools_test.go's newTestServer fixture.
func newTestServer(t *testing.T) (*httpapi.Server, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	st := store.New(mr.Addr(), 0)
	return httpapi.New(st), func() { mr.Close() }
}

func TestHealthEndpoint(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLearnThenListDomainsAndMethods(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	body := map[string]interface{}{
		"domain": "blocksworld",
		"options": map[string]bool{
			"soundness_check": true,
		},
		"plan": map[string]interface{}{
			"operators": []map[string]interface{}{
				{
					"name":          "!unstack",
					"params":        []string{"?x", "?y"},
					"preconditions": "(and (on ?x ?y) (clear ?x) (handempty))",
					"effects":       "(and (holding ?x) (clear ?y) (not (on ?x ?y)) (not (handempty)))",
					"cost":          1,
				},
				{
					"name":          "!stack",
					"params":        []string{"?x", "?y"},
					"preconditions": "(and (holding ?x) (clear ?y))",
					"effects":       "(and (on ?x ?y) (clear ?x) (handempty) (not (holding ?x)) (not (clear ?y)))",
					"cost":          1,
				},
			},
			"steps": []map[string]interface{}{
				{"operator": "!unstack", "sub": map[string]string{"?x": "a", "?y": "b"}},
				{"operator": "!stack", "sub": map[string]string{"?x": "a", "?y": "c"}},
			},
			"states": []map[string]interface{}{
				{"atoms": []string{"(on a b)", "(clear a)", "(clear c)", "(handempty)"}},
				{"atoms": []string{"(holding a)", "(clear b)", "(clear c)"}},
				{"atoms": []string{"(on a c)", "(clear a)", "(clear b)", "(handempty)"}},
			},
		},
		"tasks": []map[string]string{
			{
				"head":          "(move ?b ?from ?to)",
				"preconditions": "(and (on ?b ?from) (clear ?b) (clear ?to) (handempty))",
				"effects":       "(and (on ?b ?to) (clear ?from) (handempty) (not (on ?b ?from)))",
			},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest("POST", "/learn", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("learn: status=%d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/domains", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list domains: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var listed struct {
		Domains []string `json:"domains"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listed.Domains) != 1 || listed.Domains[0] != "blocksworld" {
		t.Fatalf("expected [blocksworld], got %v", listed.Domains)
	}

	req = httptest.NewRequest("GET", "/domains/blocksworld/methods", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list methods: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestGetUnknownDomainReturnsNotFound(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/domains/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
