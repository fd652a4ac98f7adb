package infra

import (
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// fakeClock permite avançar o tempo manualmente nos testes.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func secondMinuteLimits(perSecond, perMinute int) domain.Limits {
	return domain.Limits{
		{Span: domain.SpanSecond, Window: time.Second, Limit: perSecond},
		{Span: domain.SpanMinute, Window: time.Minute, Limit: perMinute},
	}
}

func TestQuotaStore_AdmitsThenRejectsWithinSecond(t *testing.T) {
	clk := newFakeClock()
	s := NewQuotaStore(WithClock(clk.Now))
	limits := secondMinuteLimits(1, 30)

	d1 := s.CheckAndRecord("k", limits)
	if !d1.Admitted {
		t.Fatalf("expected first request admitted, got reason %q", d1.Reason)
	}

	// 10ms depois: a janela de 1s ainda está cheia
	clk.Advance(10 * time.Millisecond)
	d2 := s.CheckAndRecord("k", limits)
	if d2.Admitted {
		t.Fatalf("expected second request rejected")
	}
	if d2.LimitingSpan != domain.SpanSecond {
		t.Fatalf("expected limiting span %q, got %q", domain.SpanSecond, d2.LimitingSpan)
	}
	if d2.RetryAfter < 0 || d2.RetryAfter > time.Second {
		t.Fatalf("expected RetryAfter in [0,1s], got %s", d2.RetryAfter)
	}

	// depois da janela expirar, volta a caber
	clk.Advance(time.Second)
	d3 := s.CheckAndRecord("k", limits)
	if !d3.Admitted {
		t.Fatalf("expected request admitted after window expiry")
	}
}

func TestQuotaStore_ClientIsolation(t *testing.T) {
	clk := newFakeClock()
	s := NewQuotaStore(WithClock(clk.Now))
	limits := secondMinuteLimits(1, 30)

	if d := s.CheckAndRecord("k1", limits); !d.Admitted {
		t.Fatalf("expected k1 admitted")
	}
	// k1 cheio não pode consumir nada de k2
	if d := s.CheckAndRecord("k2", limits); !d.Admitted {
		t.Fatalf("expected k2 admitted despite k1 being full")
	}
	if d := s.CheckAndRecord("k1", limits); d.Admitted {
		t.Fatalf("expected k1 rejected on second request")
	}
}

func TestQuotaStore_SingleFullSpanBlocksDespiteSlack(t *testing.T) {
	clk := newFakeClock()
	s := NewQuotaStore(WithClock(clk.Now))
	// segundo com folga, minuto apertadíssimo
	limits := secondMinuteLimits(10, 1)

	if d := s.CheckAndRecord("k", limits); !d.Admitted {
		t.Fatalf("expected first request admitted")
	}
	clk.Advance(2 * time.Second)
	d := s.CheckAndRecord("k", limits)
	if d.Admitted {
		t.Fatalf("expected rejection: minute span is full even with second slack")
	}
	if d.LimitingSpan != domain.SpanMinute {
		t.Fatalf("expected limiting span %q, got %q", domain.SpanMinute, d.LimitingSpan)
	}
}

func TestQuotaStore_LimitingSpanIsMostRestrictive(t *testing.T) {
	clk := newFakeClock()
	s := NewQuotaStore(WithClock(clk.Now))
	limits := secondMinuteLimits(1, 1)

	if d := s.CheckAndRecord("k", limits); !d.Admitted {
		t.Fatalf("expected first request admitted")
	}
	clk.Advance(10 * time.Millisecond)
	d := s.CheckAndRecord("k", limits)
	if d.Admitted {
		t.Fatalf("expected rejection")
	}
	// as duas janelas estão violadas; a de minuto demora mais para abrir
	if d.LimitingSpan != domain.SpanMinute {
		t.Fatalf("expected most restrictive span %q, got %q", domain.SpanMinute, d.LimitingSpan)
	}
	if d.RetryAfter != time.Minute {
		t.Fatalf("expected RetryAfter=1m (ceil), got %s", d.RetryAfter)
	}
}

func TestQuotaStore_AdmissionCountsAgainstAllSpans(t *testing.T) {
	clk := newFakeClock()
	s := NewQuotaStore(WithClock(clk.Now))
	limits := secondMinuteLimits(5, 30)

	d := s.CheckAndRecord("k", limits)
	if !d.Admitted {
		t.Fatalf("expected admitted")
	}
	for _, span := range []string{domain.SpanSecond, domain.SpanMinute} {
		occ, ok := d.Occupancy[span]
		if !ok {
			t.Fatalf("expected occupancy for span %q", span)
		}
		if occ.Count != 1 {
			t.Fatalf("expected span %q count 1, got %d", span, occ.Count)
		}
	}
}

func TestQuotaStore_TightestSpanDefinesHeadline(t *testing.T) {
	clk := newFakeClock()
	s := NewQuotaStore(WithClock(clk.Now))
	limits := secondMinuteLimits(2, 30)

	d := s.CheckAndRecord("k", limits)
	if !d.Admitted {
		t.Fatalf("expected admitted")
	}
	// segundo: 1/2 (resta 1); minuto: 1/30 (restam 29) => manchete vem do segundo
	if d.Limit != 2 || d.Remaining != 1 {
		t.Fatalf("expected limit=2 remaining=1 from tightest span, got %d/%d", d.Limit, d.Remaining)
	}
	if d.ResetAt.Before(clk.Now()) {
		t.Fatalf("expected ResetAt >= now")
	}
}

func TestQuotaStore_MissingInputFailsClosed(t *testing.T) {
	s := NewQuotaStore()

	d := s.CheckAndRecord("", secondMinuteLimits(1, 1))
	if d.Admitted {
		t.Fatalf("expected missing key to fail closed")
	}
	if d.Reason == "" {
		t.Fatalf("expected an explanatory reason")
	}

	d = s.CheckAndRecord("k", nil)
	if d.Admitted {
		t.Fatalf("expected missing limits to fail closed")
	}
	if d.Reason == "" {
		t.Fatalf("expected an explanatory reason")
	}
}

func TestQuotaStore_CleanupRemovesIdleEmptyQuotas(t *testing.T) {
	clk := newFakeClock()
	s := NewQuotaStore(WithClock(clk.Now), WithIdleTTL(time.Second), WithCleanupEvery(0))
	limits := domain.Limits{{Span: domain.SpanSecond, Window: time.Second, Limit: 5}}

	s.CheckAndRecord("k", limits)
	if got := s.ActiveClients(); got != 1 {
		t.Fatalf("expected 1 active client, got %d", got)
	}

	// ocioso além do TTL e com a janela já vazia
	clk.Advance(3 * time.Second)
	s.Cleanup()
	if got := s.ActiveClients(); got != 0 {
		t.Fatalf("expected quota evicted, got %d active", got)
	}
}

func TestQuotaStore_CleanupKeepsQuotaWithLiveHistory(t *testing.T) {
	clk := newFakeClock()
	s := NewQuotaStore(WithClock(clk.Now), WithIdleTTL(time.Millisecond), WithCleanupEvery(0))
	limits := secondMinuteLimits(5, 30)

	s.CheckAndRecord("k", limits)

	// ocioso além do TTL, mas o evento ainda vive na janela de minuto
	clk.Advance(10 * time.Second)
	s.Cleanup()
	if got := s.ActiveClients(); got != 1 {
		t.Fatalf("expected quota with live history to survive, got %d active", got)
	}
}

func TestQuotaStore_SpanOccupancyAggregates(t *testing.T) {
	clk := newFakeClock()
	s := NewQuotaStore(WithClock(clk.Now))
	limits := secondMinuteLimits(5, 30)

	s.CheckAndRecord("k1", limits)
	s.CheckAndRecord("k2", limits)

	occ := s.SpanOccupancy()
	if occ[domain.SpanSecond] != 2 {
		t.Fatalf("expected 2 live events in second span, got %d", occ[domain.SpanSecond])
	}
	if occ[domain.SpanMinute] != 2 {
		t.Fatalf("expected 2 live events in minute span, got %d", occ[domain.SpanMinute])
	}
}

func TestQuotaStore_ConcurrentSameKeyNeverOveradmits(t *testing.T) {
	s := NewQuotaStore()
	limits := domain.Limits{{Span: domain.SpanMinute, Window: time.Minute, Limit: 10}}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d := s.CheckAndRecord("k", limits); d.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 10 {
		t.Fatalf("expected exactly 10 admissions under concurrency, got %d", admitted)
	}
}
