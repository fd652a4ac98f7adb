package application

import (
	"testing"

	"admission-gateway/middleware/admission/domain"
)

func snapshotWith(version int64, policies ...domain.Policy) *domain.Snapshot {
	return &domain.Snapshot{
		Set:     domain.PolicySet{Policies: policies},
		Version: version,
		Healthy: true,
	}
}

func TestResolver_ClientBeatsEndpointBeatsTier(t *testing.T) {
	snap := snapshotWith(1,
		domain.Policy{ID: "por-tier", Match: domain.MatchCriteria{Tier: "free"}, Limit: 100, WindowSeconds: 60},
		domain.Policy{ID: "por-endpoint", Match: domain.MatchCriteria{Endpoint: "/api/v1/pedidos"}, Limit: 500, WindowSeconds: 60},
		domain.Policy{ID: "por-cliente", Match: domain.MatchCriteria{ClientKey: "K1"}, Limit: 1000, WindowSeconds: 60},
	)
	r := NewResolver(0)

	d := domain.Descriptor{Endpoint: "/api/v1/pedidos", ClientKey: "K1", Tier: "free"}
	p, ok := r.Resolve(d, snap)
	if !ok || p.ID != "por-cliente" {
		t.Fatalf("expected client policy to win, got %q (ok=%v)", p.ID, ok)
	}

	// sem a chave casando, o endpoint assume
	d.ClientKey = "K2"
	p, ok = r.Resolve(d, snap)
	if !ok || p.ID != "por-endpoint" {
		t.Fatalf("expected endpoint policy, got %q (ok=%v)", p.ID, ok)
	}

	// sem endpoint nem chave, sobra o tier
	d.Endpoint = "/outra/rota"
	p, ok = r.Resolve(d, snap)
	if !ok || p.ID != "por-tier" {
		t.Fatalf("expected tier policy, got %q (ok=%v)", p.ID, ok)
	}
}

func TestResolver_CandidacyIsConjunctive(t *testing.T) {
	// os dois critérios precisam casar; um só não basta
	snap := snapshotWith(1,
		domain.Policy{ID: "combo", Match: domain.MatchCriteria{ClientKey: "K1", Endpoint: "/api/v1/pedidos"}, Limit: 10, WindowSeconds: 60},
	)
	r := NewResolver(0)

	if _, ok := r.Resolve(domain.Descriptor{ClientKey: "K1", Endpoint: "/outra"}, snap); ok {
		t.Fatalf("expected no candidate when endpoint does not match")
	}
	if _, ok := r.Resolve(domain.Descriptor{ClientKey: "K2", Endpoint: "/api/v1/pedidos"}, snap); ok {
		t.Fatalf("expected no candidate when client key does not match")
	}
	if p, ok := r.Resolve(domain.Descriptor{ClientKey: "K1", Endpoint: "/api/v1/pedidos"}, snap); !ok || p.ID != "combo" {
		t.Fatalf("expected combo policy when both match")
	}
}

func TestResolver_CombinedCriteriaOutscoreSingle(t *testing.T) {
	snap := snapshotWith(1,
		domain.Policy{ID: "so-cliente", Match: domain.MatchCriteria{ClientKey: "K1"}, Limit: 10, WindowSeconds: 60},
		domain.Policy{ID: "cliente-e-endpoint", Match: domain.MatchCriteria{ClientKey: "K1", Endpoint: "/api/v1/pedidos"}, Limit: 10, WindowSeconds: 60},
	)
	r := NewResolver(0)

	p, ok := r.Resolve(domain.Descriptor{ClientKey: "K1", Endpoint: "/api/v1/pedidos"}, snap)
	if !ok || p.ID != "cliente-e-endpoint" {
		t.Fatalf("expected more specific policy, got %q", p.ID)
	}
}

func TestScore_EndpointSpecificity(t *testing.T) {
	d := domain.Descriptor{Endpoint: "/api/v1/pedidos/42"}

	exact, ok := Score(domain.Policy{Match: domain.MatchCriteria{Endpoint: "/api/v1/pedidos/42"}}, d)
	if !ok {
		t.Fatalf("expected exact endpoint to match")
	}
	param, ok := Score(domain.Policy{Match: domain.MatchCriteria{Endpoint: "/api/v1/pedidos/:id"}}, d)
	if !ok {
		t.Fatalf("expected param endpoint to match")
	}
	twoParams, ok := Score(domain.Policy{Match: domain.MatchCriteria{Endpoint: "/api/:ver/pedidos/:id"}}, d)
	if !ok {
		t.Fatalf("expected two-param endpoint to match")
	}
	star, ok := Score(domain.Policy{Match: domain.MatchCriteria{Endpoint: "*"}}, d)
	if !ok {
		t.Fatalf("expected wildcard to match")
	}

	if !(exact > param && param > twoParams && twoParams > star) {
		t.Fatalf("expected exact > param > two-params > star, got %d %d %d %d", exact, param, twoParams, star)
	}
	if param-twoParams != 10 {
		t.Fatalf("expected 10-point penalty per parameter segment, got %d", param-twoParams)
	}
}

func TestScore_EndpointSegmentCountMustMatch(t *testing.T) {
	d := domain.Descriptor{Endpoint: "/api/v1/pedidos"}
	if _, ok := Score(domain.Policy{Match: domain.MatchCriteria{Endpoint: "/api/v1/pedidos/:id"}}, d); ok {
		t.Fatalf("expected pattern with extra segment not to match")
	}
}

func TestScore_NetworkSpecificity(t *testing.T) {
	d := domain.Descriptor{SourceAddress: "10.0.0.9"}

	exact, ok := Score(domain.Policy{Match: domain.MatchCriteria{Network: "10.0.0.9"}}, d)
	if !ok {
		t.Fatalf("expected exact address to match")
	}
	host, ok := Score(domain.Policy{Match: domain.MatchCriteria{Network: "10.0.0.9/32"}}, d)
	if !ok {
		t.Fatalf("expected /32 to match")
	}
	wide, ok := Score(domain.Policy{Match: domain.MatchCriteria{Network: "10.0.0.0/8"}}, d)
	if !ok {
		t.Fatalf("expected /8 to match")
	}
	narrow, ok := Score(domain.Policy{Match: domain.MatchCriteria{Network: "10.0.0.0/24"}}, d)
	if !ok {
		t.Fatalf("expected /24 to match")
	}

	if exact != host {
		t.Fatalf("expected /32 to tie with exact address, got %d vs %d", host, exact)
	}
	if !(narrow > wide) {
		t.Fatalf("expected longer prefix to score higher, got /24=%d /8=%d", narrow, wide)
	}

	if _, ok := Score(domain.Policy{Match: domain.MatchCriteria{Network: "192.168.0.0/16"}}, d); ok {
		t.Fatalf("expected non-containing cidr not to match")
	}
}

func TestScore_TierIsCaseInsensitive(t *testing.T) {
	p := domain.Policy{Match: domain.MatchCriteria{Tier: "Premium"}}
	if _, ok := Score(p, domain.Descriptor{Tier: "premium"}); !ok {
		t.Fatalf("expected tier match to ignore case")
	}
	if _, ok := Score(p, domain.Descriptor{Tier: "free"}); ok {
		t.Fatalf("expected different tier not to match")
	}
}

func TestScore_EmptyCriteriaNeverMatch(t *testing.T) {
	if _, ok := Score(domain.Policy{}, domain.Descriptor{ClientKey: "K1"}); ok {
		t.Fatalf("expected policy without criteria to be excluded")
	}
}

func TestResolver_TieBreaksByPriorityThenOrder(t *testing.T) {
	snap := snapshotWith(1,
		domain.Policy{ID: "baixa", Match: domain.MatchCriteria{Tier: "free"}, Limit: 10, WindowSeconds: 60, Priority: 1},
		domain.Policy{ID: "alta", Match: domain.MatchCriteria{Tier: "free"}, Limit: 10, WindowSeconds: 60, Priority: 9},
	)
	r := NewResolver(0)

	p, ok := r.Resolve(domain.Descriptor{ClientKey: "K1", Tier: "free"}, snap)
	if !ok || p.ID != "alta" {
		t.Fatalf("expected higher priority to win, got %q", p.ID)
	}

	// mesma pontuação e prioridade: vence quem foi declarada primeiro
	snap = snapshotWith(2,
		domain.Policy{ID: "primeira", Match: domain.MatchCriteria{Tier: "free"}, Limit: 10, WindowSeconds: 60, Priority: 5},
		domain.Policy{ID: "segunda", Match: domain.MatchCriteria{Tier: "free"}, Limit: 20, WindowSeconds: 60, Priority: 5},
	)
	p, ok = r.Resolve(domain.Descriptor{ClientKey: "K1", Tier: "free"}, snap)
	if !ok || p.ID != "primeira" {
		t.Fatalf("expected declaration order to break the tie, got %q", p.ID)
	}
}

func TestResolver_IsDeterministic(t *testing.T) {
	snap := snapshotWith(1,
		domain.Policy{ID: "a", Match: domain.MatchCriteria{Tier: "free"}, Limit: 10, WindowSeconds: 60},
		domain.Policy{ID: "b", Match: domain.MatchCriteria{Endpoint: "*"}, Limit: 20, WindowSeconds: 60},
	)
	r := NewResolver(8)
	d := domain.Descriptor{Endpoint: "/x", ClientKey: "K1", Tier: "free"}

	first, ok := r.Resolve(d, snap)
	if !ok {
		t.Fatalf("expected a winner")
	}
	for i := 0; i < 50; i++ {
		p, ok := r.Resolve(d, snap)
		if !ok || p.ID != first.ID {
			t.Fatalf("iteration %d: expected %q, got %q", i, first.ID, p.ID)
		}
	}
}

func TestResolver_CacheKeyedBySnapshotVersion(t *testing.T) {
	r := NewResolver(8)
	d := domain.Descriptor{ClientKey: "K1", Tier: "free"}

	v1 := snapshotWith(1, domain.Policy{ID: "velha", Match: domain.MatchCriteria{Tier: "free"}, Limit: 10, WindowSeconds: 60})
	if p, ok := r.Resolve(d, v1); !ok || p.ID != "velha" {
		t.Fatalf("expected policy from v1")
	}

	// versão nova: o cache da versão anterior não pode vazar
	v2 := snapshotWith(2, domain.Policy{ID: "nova", Match: domain.MatchCriteria{Tier: "free"}, Limit: 99, WindowSeconds: 60})
	if p, ok := r.Resolve(d, v2); !ok || p.ID != "nova" {
		t.Fatalf("expected policy from v2, got %q", p.ID)
	}
}

func TestResolver_NoCandidateCachesNegative(t *testing.T) {
	r := NewResolver(8)
	snap := snapshotWith(1, domain.Policy{ID: "p", Match: domain.MatchCriteria{ClientKey: "K9"}, Limit: 10, WindowSeconds: 60})
	d := domain.Descriptor{ClientKey: "K1"}

	for i := 0; i < 2; i++ {
		if _, ok := r.Resolve(d, snap); ok {
			t.Fatalf("iteration %d: expected no candidate", i)
		}
	}
}

func TestResolver_NilSnapshot(t *testing.T) {
	r := NewResolver(0)
	if _, ok := r.Resolve(domain.Descriptor{ClientKey: "K1"}, nil); ok {
		t.Fatalf("expected no candidate without a snapshot")
	}
}
