package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

// Metrics agrupa os contadores Prometheus do controle de admissão.
//
// Cardinalidade: os labels são decisão e span (conjuntos pequenos e
// fechados); chave de cliente e policy ficam de fora de propósito.
type Metrics struct {
	decisions *prometheus.CounterVec
	reloads   *prometheus.CounterVec
}

// NewMetrics registra os coletores no Registerer dado. Os gauges de
// clientes ativos e versão corrente leem direto dos stores.
func NewMetrics(reg prometheus.Registerer, quotas *infra.QuotaStore, store *infra.ConfigStore) *Metrics {
	m := &Metrics{
		decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "decisions_total",
			Help:      "Decisões de admissão por desfecho e janela limitante.",
		}, []string{"decision", "span"}),
		reloads: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "config_reloads_total",
			Help:      "Reloads de configuração por desfecho.",
		}, []string{"outcome"}),
	}

	if quotas != nil {
		promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "admission",
			Name:      "active_clients",
			Help:      "Quotas de cliente vivas no registro.",
		}, func() float64 { return float64(quotas.ActiveClients()) })
	}
	if store != nil {
		promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "admission",
			Name:      "config_version",
			Help:      "Versão do snapshot de policies corrente.",
		}, func() float64 {
			if snap := store.Current(); snap != nil {
				return float64(snap.Version)
			}
			return 0
		})
	}
	return m
}

func (m *Metrics) ObserveDecision(dec domain.Decision) {
	if m == nil {
		return
	}
	decision := "denied"
	if dec.Admitted {
		decision = "admitted"
	}
	m.decisions.WithLabelValues(decision, dec.LimitingSpan).Inc()
}

func (m *Metrics) ObserveReload(res domain.ReloadResult) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(string(res.Outcome)).Inc()
}
