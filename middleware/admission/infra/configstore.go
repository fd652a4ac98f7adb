package infra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"admission-gateway/middleware/admission/domain"
)

// ConfigStore guarda o snapshot corrente de policies e um histórico
// limitado de versões anteriores.
//
// O ponteiro corrente troca atomicamente: resoluções em voo enxergam
// sempre um snapshot inteiro, e um reload rejeitado não muda nada — o
// motor nunca pausa nem degrada durante um reload em andamento.
type ConfigStore struct {
	source   domain.Source
	validate domain.Validator

	maxVersions int
	now         func() time.Time

	current atomic.Pointer[domain.Snapshot]

	// mu protege o histórico e a atribuição de versão (commit);
	// leitores usam só o ponteiro atômico.
	mu          sync.Mutex
	history     []*domain.Snapshot
	lastVersion int64

	// reloads concorrentes são coalescidos: quem chega durante um apply
	// recebe o desfecho da operação em andamento, não inicia outra.
	group singleflight.Group

	// applyMu serializa reload e rollback entre si. Rollback NÃO coalesce
	// com reload: ele espera o apply em voo terminar e executa de fato.
	applyMu sync.Mutex
}

type ConfigStoreOption func(*ConfigStore)

// WithMaxVersions limita o tamanho do histórico (mínimo 1, padrão 10).
func WithMaxVersions(n int) ConfigStoreOption {
	return func(c *ConfigStore) { c.maxVersions = n }
}

// WithConfigClock troca a fonte de tempo (testes).
func WithConfigClock(now func() time.Time) ConfigStoreOption {
	return func(c *ConfigStore) { c.now = now }
}

func NewConfigStore(source domain.Source, validate domain.Validator, opts ...ConfigStoreOption) *ConfigStore {
	c := &ConfigStore{
		source:      source,
		validate:    validate,
		maxVersions: 10,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxVersions < 1 {
		c.maxVersions = 1
	}
	return c
}

// Current implementa domain.SnapshotProvider. Retorna nil antes do
// primeiro reload bem-sucedido.
func (c *ConfigStore) Current() *domain.Snapshot {
	return c.current.Load()
}

// Reload lê a fonte, valida e — só no sucesso — troca o snapshot.
//
// Chamadas concorrentes durante um apply são coalescidas em uma só;
// todo chamador recebe o desfecho da operação que rodou de fato.
func (c *ConfigStore) Reload(ctx context.Context) domain.ReloadResult {
	v, _, _ := c.group.Do("reload", func() (any, error) {
		c.applyMu.Lock()
		defer c.applyMu.Unlock()
		return c.applyFromSource(ctx), nil
	})
	return v.(domain.ReloadResult)
}

func (c *ConfigStore) applyFromSource(ctx context.Context) domain.ReloadResult {
	set, err := c.source.Read(ctx)
	if err != nil {
		return c.rejected(err)
	}
	if err := c.runValidator(set); err != nil {
		return c.rejected(err)
	}
	return c.commit(set)
}

// Rollback torna corrente uma versão do histórico, revalidando antes
// (um snapshot válido no passado pode não passar num validador mais novo)
// e persistindo o conjunto de volta na fonte.
//
// Rollback é progresso para frente: o alvo vira uma versão NOVA, o
// histórico só cresce.
//
// Diferente do Reload, rollbacks nunca são coalescidos com um apply em
// andamento: um rollback emitido durante um reload espera e executa depois,
// em vez de receber o desfecho do reload como se fosse o dele.
func (c *ConfigStore) Rollback(ctx context.Context, version int64) domain.ReloadResult {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	return c.applyRollback(ctx, version)
}

func (c *ConfigStore) applyRollback(ctx context.Context, version int64) domain.ReloadResult {
	target, err := c.findTarget(version)
	if err != nil {
		return c.rejected(err)
	}

	set := target.Set.Clone()
	if err := c.runValidator(&set); err != nil {
		return c.rejected(err)
	}
	if err := c.source.Write(ctx, &set); err != nil {
		return c.rejected(err)
	}
	return c.commit(&set)
}

func (c *ConfigStore) findTarget(version int64) (*domain.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if version == 0 {
		// sem versão explícita: a imediatamente anterior à corrente
		if len(c.history) < 2 {
			return nil, errors.New("no prior version to roll back to")
		}
		return c.history[len(c.history)-2], nil
	}
	for _, snap := range c.history {
		if snap.Version == version {
			return snap, nil
		}
	}
	return nil, &domain.InputError{Reason: "unknown version"}
}

// Validate roda o validador sobre um conjunto candidato sem aplicar nada
// (dry-run para a API administrativa).
func (c *ConfigStore) Validate(set *domain.PolicySet) error {
	return c.runValidator(set)
}

func (c *ConfigStore) runValidator(set *domain.PolicySet) error {
	if c.validate == nil {
		return nil
	}
	return c.validate(set)
}

func (c *ConfigStore) commit(set *domain.PolicySet) domain.ReloadResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current.Load()
	if cur != nil && cur.Set.Equal(set) {
		return domain.ReloadResult{Outcome: domain.ReloadUnchanged, Version: cur.Version}
	}

	c.lastVersion++
	snap := &domain.Snapshot{
		Set:       set.Clone(),
		Version:   c.lastVersion,
		AppliedAt: c.now(),
		Healthy:   true,
	}

	c.history = append(c.history, snap)
	if len(c.history) > c.maxVersions {
		c.history = c.history[len(c.history)-c.maxVersions:]
	}
	c.current.Store(snap)

	return domain.ReloadResult{Outcome: domain.ReloadApplied, Version: snap.Version}
}

func (c *ConfigStore) rejected(err error) domain.ReloadResult {
	res := domain.ReloadResult{Outcome: domain.ReloadRejected, Err: err}
	if cur := c.current.Load(); cur != nil {
		res.Version = cur.Version
	}
	return res
}

// VersionInfo resume uma entrada do histórico para a API administrativa.
type VersionInfo struct {
	Version   int64     `json:"version"`
	AppliedAt time.Time `json:"applied_at"`
	Policies  int       `json:"policies"`
	Current   bool      `json:"current"`
}

// Versions lista o histórico da versão mais antiga para a mais nova.
func (c *ConfigStore) Versions() []VersionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current.Load()
	out := make([]VersionInfo, 0, len(c.history))
	for _, snap := range c.history {
		out = append(out, VersionInfo{
			Version:   snap.Version,
			AppliedAt: snap.AppliedAt,
			Policies:  len(snap.Set.Policies),
			Current:   cur != nil && snap.Version == cur.Version,
		})
	}
	return out
}
