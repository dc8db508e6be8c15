package store_test

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"htnlearn/internal/domain"
	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
	"htnlearn/internal/store"
)

func domainWithOneOperator(arena *logic.Arena, x *logic.Term) *domain.Domain {
	op := &schema.Operator{
		Name:          "!pick-up",
		Params:        []*logic.Term{x},
		Preconditions: logic.MustConj(logic.NewPred("clear", x)),
		Effects:       logic.MustConj(logic.NewPred("holding", x)),
		Cost:          1,
	}
	d := domain.NewDomain("test-domain")
	d.Operators = []*schema.Operator{op}
	return d
}

// newTestStore wires a Store to an in-memory Redis, the same miniredis
// fixture pattern hdn/api_tools_test.go uses for APIServer.
func newTestStore(t *testing.T) (*store.Store, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	return store.New(mr.Addr(), 0), func() { mr.Close() }
}

func TestSaveAndLoadDomainRoundTrip(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	arena := logic.NewArena()
	x := arena.Variable("?x")
	d := domainWithOneOperator(arena, x)

	if err := st.SaveDomain(ctx, d); err != nil {
		t.Fatalf("SaveDomain: %v", err)
	}

	exists, err := st.DomainExists(ctx, d.Name)
	if err != nil || !exists {
		t.Fatalf("expected domain to exist after save, err=%v exists=%v", err, exists)
	}

	arena2 := logic.NewArena()
	got, err := st.LoadDomain(ctx, arena2, d.Name)
	if err != nil {
		t.Fatalf("LoadDomain: %v", err)
	}
	if len(got.Operators) != 1 || got.Operators[0].Name != "!pick-up" {
		t.Fatalf("round-tripped domain missing its operator: %+v", got.Operators)
	}
}

func TestDeleteDomainRemovesIt(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	arena := logic.NewArena()
	x := arena.Variable("?x")
	d := domainWithOneOperator(arena, x)
	if err := st.SaveDomain(ctx, d); err != nil {
		t.Fatalf("SaveDomain: %v", err)
	}

	if err := st.DeleteDomain(ctx, d.Name); err != nil {
		t.Fatalf("DeleteDomain: %v", err)
	}
	exists, err := st.DomainExists(ctx, d.Name)
	if err != nil || exists {
		t.Fatalf("expected domain gone after delete, err=%v exists=%v", err, exists)
	}
}

func TestListDomainNames(t *testing.T) {
	st, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	arena := logic.NewArena()
	x := arena.Variable("?x")
	d := domainWithOneOperator(arena, x)
	d.Name = "blocksworld"
	if err := st.SaveDomain(ctx, d); err != nil {
		t.Fatalf("SaveDomain: %v", err)
	}

	names, err := st.ListDomainNames(ctx)
	if err != nil {
		t.Fatalf("ListDomainNames: %v", err)
	}
	if len(names) != 1 || names[0] != "blocksworld" {
		t.Fatalf("expected [blocksworld], got %v", names)
	}
}
