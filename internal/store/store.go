package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"htnlearn/internal/domain"
	"htnlearn/internal/herr"
	"htnlearn/internal/logic"
	"htnlearn/internal/plan"
)

// Store persists learned domains and plan traces to Redis, keyed exactly
// the way hdn/domain_manager.go keys DomainData: "domain:<name>:full" and,
// for plan traces this module adds, "plan:<id>:trace".
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New returns a Store talking to the Redis instance at addr. ttl of zero
// means keys never expire, matching DomainManager's own zero-TTL option.
func New(addr string, ttl time.Duration) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func domainKey(name string) string { return fmt.Sprintf("domain:%s:full", name) }
func planKey(id string) string     { return fmt.Sprintf("plan:%s:trace", id) }
func qvalueKey(name, methodID string) string {
	return fmt.Sprintf("domain:%s:method:%s:qvalue", name, methodID)
}

// SaveDomain marshals d's operators and methods and writes them under
// domain:<name>:full.
func (s *Store) SaveDomain(ctx context.Context, d *domain.Domain) error {
	data, err := json.Marshal(toWireDomain(d))
	if err != nil {
		return herr.Wrap(herr.DomainMismatch, "Store.SaveDomain", err)
	}
	if err := s.client.Set(ctx, domainKey(d.Name), data, s.ttl).Err(); err != nil {
		return herr.Wrap(herr.DomainMismatch, "Store.SaveDomain", err)
	}
	log.Printf("✅ [STORE] saved domain %s (%d operators, %d methods)", d.Name, len(d.Operators), len(d.Methods))
	return nil
}

// LoadDomain reads domain:<name>:full and reinterns every term into arena.
// Every load must use a fresh or otherwise-coherent Arena: terms from two
// separate LoadDomain calls against different Arenas are never pointer-equal
// even when they name the same constant.
func (s *Store) LoadDomain(ctx context.Context, arena *logic.Arena, name string) (*domain.Domain, error) {
	data, err := s.client.Get(ctx, domainKey(name)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, herr.New(herr.DomainMismatch, "Store.LoadDomain", "no domain named "+name)
		}
		return nil, herr.Wrap(herr.DomainMismatch, "Store.LoadDomain", err)
	}
	var w wireDomain
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, herr.Wrap(herr.DomainMismatch, "Store.LoadDomain", err)
	}
	d, err := fromWireDomain(arena, w)
	if err != nil {
		return nil, err
	}
	if err := s.loadQValues(ctx, d); err != nil {
		log.Printf("⚠️ [STORE] failed to load persisted q-values for domain %s: %v", name, err)
	}
	return d, nil
}

// DomainExists reports whether a domain by that name has been saved.
func (s *Store) DomainExists(ctx context.Context, name string) (bool, error) {
	n, err := s.client.Exists(ctx, domainKey(name)).Result()
	if err != nil {
		return false, herr.Wrap(herr.DomainMismatch, "Store.DomainExists", err)
	}
	return n > 0, nil
}

// DeleteDomain removes the domain blob and any q-values recorded for it.
func (s *Store) DeleteDomain(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, domainKey(name)).Err(); err != nil {
		return herr.Wrap(herr.DomainMismatch, "Store.DeleteDomain", err)
	}
	keys, err := s.client.Keys(ctx, fmt.Sprintf("domain:%s:method:*:qvalue", name)).Result()
	if err == nil {
		for _, k := range keys {
			s.client.Del(ctx, k)
		}
	}
	log.Printf("✅ [STORE] deleted domain %s", name)
	return nil
}

// ListDomainNames scans for every persisted domain key.
func (s *Store) ListDomainNames(ctx context.Context) ([]string, error) {
	keys, err := s.client.Keys(ctx, "domain:*:full").Result()
	if err != nil {
		return nil, herr.Wrap(herr.DomainMismatch, "Store.ListDomainNames", err)
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = trimDomainKey(k)
	}
	return names, nil
}

func trimDomainKey(key string) string {
	const prefix, suffix = "domain:", ":full"
	if len(key) > len(prefix)+len(suffix) {
		return key[len(prefix) : len(key)-len(suffix)]
	}
	return key
}

// SavePlan marshals a ground plan trace under plan:<id>:trace, the
// supplemented persistence surface SPEC_FULL.md §1 adds alongside the
// teacher's domain-only persistence model.
func (s *Store) SavePlan(ctx context.Context, id string, p *plan.Plan) error {
	data, err := json.Marshal(toWirePlan(p))
	if err != nil {
		return herr.Wrap(herr.DomainMismatch, "Store.SavePlan", err)
	}
	if err := s.client.Set(ctx, planKey(id), data, s.ttl).Err(); err != nil {
		return herr.Wrap(herr.DomainMismatch, "Store.SavePlan", err)
	}
	log.Printf("✅ [STORE] saved plan trace %s (%d steps)", id, len(p.Steps))
	return nil
}

// LoadPlan reads plan:<id>:trace back, resolving operators against d (the
// caller's responsibility to load the matching domain first).
func (s *Store) LoadPlan(ctx context.Context, arena *logic.Arena, d *domain.Domain, id string) (*plan.Plan, error) {
	data, err := s.client.Get(ctx, planKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, herr.New(herr.DomainMismatch, "Store.LoadPlan", "no plan trace with id "+id)
		}
		return nil, herr.Wrap(herr.DomainMismatch, "Store.LoadPlan", err)
	}
	var w wirePlan
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, herr.Wrap(herr.DomainMismatch, "Store.LoadPlan", err)
	}
	return fromWirePlan(arena, d, w)
}

// SaveQValues persists every method's rolling-average cost in d under its
// own key, so repeated htn-maker runs against the same domain accumulate
// Q-value statistics across process restarts (SPEC_FULL.md §3's supplement
// to the original's in-memory-only Q-value bookkeeping).
func (s *Store) SaveQValues(ctx context.Context, d *domain.Domain) error {
	for _, m := range d.Methods {
		if m.ID == "" || m.QCount == 0 {
			continue
		}
		payload, err := json.Marshal(struct {
			QValue float64 `json:"q_value"`
			QCount int     `json:"q_count"`
		}{m.QValue, m.QCount})
		if err != nil {
			return herr.Wrap(herr.DomainMismatch, "Store.SaveQValues", err)
		}
		if err := s.client.Set(ctx, qvalueKey(d.Name, m.ID), payload, s.ttl).Err(); err != nil {
			return herr.Wrap(herr.DomainMismatch, "Store.SaveQValues", err)
		}
	}
	return nil
}

// loadQValues restores persisted Q-values onto methods that already carry
// an id, called automatically at the end of LoadDomain.
func (s *Store) loadQValues(ctx context.Context, d *domain.Domain) error {
	for _, m := range d.Methods {
		if m.ID == "" {
			continue
		}
		data, err := s.client.Get(ctx, qvalueKey(d.Name, m.ID)).Result()
		if err != nil {
			continue // no persisted value yet; keep schema.QValueUnset
		}
		var persisted struct {
			QValue float64 `json:"q_value"`
			QCount int     `json:"q_count"`
		}
		if err := json.Unmarshal([]byte(data), &persisted); err != nil {
			continue
		}
		m.QValue = persisted.QValue
		m.QCount = persisted.QCount
	}
	return nil
}
