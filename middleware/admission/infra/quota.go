package infra

import (
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// clientQuota agrupa as janelas deslizantes de um único cliente.
//
// O mutex serializa check-then-append do mesmo cliente; clientes diferentes
// têm quotas (e locks) independentes.
type clientQuota struct {
	mu           sync.Mutex
	counters     map[string]*windowCounter
	lastActivity time.Time
}

func newClientQuota(now time.Time) *clientQuota {
	return &clientQuota{
		counters:     make(map[string]*windowCounter),
		lastActivity: now,
	}
}

// checkAndRecord aplica a regra de admissão multi-janela:
//
//   - cada janela configurada é limpa e checada (count < limit);
//   - só admite se TODAS tiverem vaga;
//   - admitindo, o timestamp é gravado em todas as janelas exatamente
//     uma vez (a requisição conta contra todas simultaneamente);
//   - bloqueando, LimitingSpan é a janela violada com o maior retry-after
//     (a restrição mais severa, não a primeira violada).
func (q *clientQuota) checkAndRecord(now time.Time, limits domain.Limits) domain.Decision {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.lastActivity = now

	counters := make([]*windowCounter, len(limits))
	for i, sl := range limits {
		wc, ok := q.counters[sl.Span]
		if !ok || wc.window != sl.Window {
			// janela nova (ou redefinida por reload): começa vazia
			wc = newWindowCounter(sl.Window)
			q.counters[sl.Span] = wc
		}
		wc.cleanup(now)
		counters[i] = wc
	}

	admitted := true
	limiting := ""
	var worstWait time.Duration
	for i, sl := range limits {
		if counters[i].count() >= sl.Limit {
			admitted = false
			wait := counters[i].retryAfter(now)
			if limiting == "" || wait > worstWait {
				limiting = sl.Span
				worstWait = wait
			}
		}
	}

	if admitted {
		for _, wc := range counters {
			wc.record(now)
		}
	}

	dec := domain.Decision{
		Admitted:  admitted,
		Occupancy: make(map[string]domain.SpanOccupancy, len(limits)),
		ResetAt:   now,
	}

	// a janela mais apertada (menor folga) define Limit/Remaining/ResetAt
	tightest := -1
	for i, sl := range limits {
		count := counters[i].count()
		remaining := sl.Limit - count
		if remaining < 0 {
			remaining = 0
		}
		dec.Occupancy[sl.Span] = domain.SpanOccupancy{Count: count, Limit: sl.Limit, Remaining: remaining}
		if tightest == -1 || remaining < dec.Remaining {
			tightest = i
			dec.Limit = sl.Limit
			dec.Remaining = remaining
			dec.ResetAt = counters[i].resetAt(now)
		}
	}

	if !admitted {
		dec.LimitingSpan = limiting
		dec.RetryAfter = ceilSeconds(worstWait)
	}
	return dec
}

// idleAndEmpty informa se a quota pode ser descartada: inativa além do TTL
// E sem nenhum evento vivo em nenhuma janela. Quota com histórico contável
// nunca é removida.
func (q *clientQuota) idleAndEmpty(now time.Time, idleTTL time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if now.Sub(q.lastActivity) <= idleTTL {
		return false
	}
	for _, wc := range q.counters {
		wc.cleanup(now)
		if wc.count() > 0 {
			return false
		}
	}
	return true
}

// occupancy soma os eventos vivos por span (para estatísticas).
func (q *clientQuota) occupancy(now time.Time, totals map[string]int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for span, wc := range q.counters {
		wc.cleanup(now)
		totals[span] += wc.count()
	}
}

// ceilSeconds arredonda para cima em segundos inteiros, nunca negativo.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return secs * time.Second
}
