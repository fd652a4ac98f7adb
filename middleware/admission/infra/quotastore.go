package infra

import (
	"strings"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// QuotaStore é o registro de quotas por cliente, com limpeza periódica
// das entradas ociosas.
//
// O lock do mapa protege só o acesso ao registro; a checagem em si usa o
// lock da quota do cliente, então clientes diferentes não se bloqueiam.
type QuotaStore struct {
	mu     sync.RWMutex
	quotas map[string]*clientQuota

	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type QuotaStoreOption func(*QuotaStore)

func WithIdleTTL(d time.Duration) QuotaStoreOption {
	return func(s *QuotaStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) QuotaStoreOption {
	return func(s *QuotaStore) { s.cleanupEvery = d }
}

// WithClock troca a fonte de tempo (testes).
func WithClock(now func() time.Time) QuotaStoreOption {
	return func(s *QuotaStore) { s.now = now }
}

func NewQuotaStore(opts ...QuotaStoreOption) *QuotaStore {
	s := &QuotaStore{
		quotas:       make(map[string]*clientQuota),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndRecord implementa domain.QuotaStore.
//
// Entrada inválida (chave ou limites ausentes) falha FECHADA: a resposta é
// "não admitido" com um motivo, nunca um panic — quem chama deve tratar
// como bloqueio, não como passe livre.
func (s *QuotaStore) CheckAndRecord(key string, limits domain.Limits) domain.Decision {
	if strings.TrimSpace(key) == "" {
		return domain.Decision{Admitted: false, Reason: "missing client key"}
	}
	if len(limits) == 0 {
		return domain.Decision{Admitted: false, Reason: "no limits configured"}
	}
	return s.getOrCreate(key).checkAndRecord(s.now(), limits)
}

func (s *QuotaStore) getOrCreate(key string) *clientQuota {
	s.mu.RLock()
	q, ok := s.quotas[key]
	s.mu.RUnlock()
	if ok {
		return q
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.quotas[key]; ok {
		return q
	}
	q = newClientQuota(s.now())
	s.quotas[key] = q
	return q
}

// Cleanup remove quotas ociosas além do TTL e com todas as janelas vazias.
func (s *QuotaStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, q := range s.quotas {
		if q.idleAndEmpty(now, s.idleTTL) {
			delete(s.quotas, key)
		}
	}
}

// ActiveClients conta as quotas vivas no registro.
func (s *QuotaStore) ActiveClients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.quotas)
}

// SpanOccupancy soma os eventos vivos de todos os clientes, por span.
func (s *QuotaStore) SpanOccupancy() map[string]int {
	now := s.now()

	s.mu.RLock()
	quotas := make([]*clientQuota, 0, len(s.quotas))
	for _, q := range s.quotas {
		quotas = append(quotas, q)
	}
	s.mu.RUnlock()

	totals := make(map[string]int)
	for _, q := range quotas {
		q.occupancy(now, totals)
	}
	return totals
}

// StartJanitor inicia uma goroutine que limpa quotas ociosas periodicamente.
// Pare cancelando o contexto.
func (s *QuotaStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
