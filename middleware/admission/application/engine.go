package application

import (
	"admission-gateway/middleware/admission/domain"
)

// Engine é a fachada do controle de admissão: resolve a policy da
// requisição, monta os limites efetivos e pergunta ao QuotaStore se a
// requisição cabe.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Engine struct {
	Snapshots domain.SnapshotProvider
	Quotas    domain.QuotaStore
	Resolver  *Resolver
	// Fallback é o anteparo quando nem policy nem tier resolvem
	// (ex: configuração ainda não carregada). Nil = negar.
	Fallback domain.Limiter
}

// Admit decide a admissão de uma requisição.
//
// Caminhos de erro falham FECHADOS: descriptor sem chave de cliente é
// bloqueado com motivo, nunca liberado por omissão. Ausência de snapshot
// ou de limites cai no Fallback conservador (ou nega, sem Fallback).
func (e *Engine) Admit(d domain.Descriptor) domain.Decision {
	if e.Quotas == nil {
		// motor não plugado: não há o que aplicar
		return domain.Decision{Admitted: true}
	}
	if d.ClientKey == "" {
		return domain.Decision{Admitted: false, Reason: "missing client key"}
	}

	var snap *domain.Snapshot
	if e.Snapshots != nil {
		snap = e.Snapshots.Current()
	}

	var policy domain.Policy
	resolved := false
	if e.Resolver != nil {
		policy, resolved = e.Resolver.Resolve(d, snap)
	}

	var limits domain.Limits
	if snap != nil {
		limits, _ = snap.Set.EffectiveTierLimits(d.Tier)
	}
	if resolved {
		if len(limits) == 0 {
			limits = domain.Limits{{Span: domain.SpanName(policy.Window()), Window: policy.Window(), Limit: policy.Limit}}
		} else {
			limits = limits.WithOverride(policy.Window(), policy.Limit)
		}
	}

	if len(limits) == 0 {
		return e.failsafe()
	}

	dec := e.Quotas.CheckAndRecord(d.ClientKey, limits)
	if resolved {
		dec.PolicyID = policy.ID
	}
	return dec
}

func (e *Engine) failsafe() domain.Decision {
	if e.Fallback != nil && e.Fallback.Allow() {
		return domain.Decision{Admitted: true, Reason: "failsafe"}
	}
	return domain.Decision{Admitted: false, Reason: "no policy or tier resolved"}
}
