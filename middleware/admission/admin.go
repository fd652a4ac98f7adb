package admission

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

// AdminAPI expõe as operações administrativas do motor: reload manual,
// histórico de versões, rollback, validação dry-run e estatísticas vivas.
//
// Nenhuma dessas operações mexe no caminho quente: reload/rollback passam
// pelo mesmo apply serializado do ConfigStore, e as consultas só leem.
type AdminAPI struct {
	Store  *infra.ConfigStore
	Quotas *infra.QuotaStore
}

// Router monta as rotas administrativas.
//
// Exponha em um listener separado do tráfego de clientes (veja cmd/gateway).
func (a AdminAPI) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/reload", a.handleReload)
	r.Post("/rollback", a.handleRollback)
	r.Get("/versions", a.handleVersions)
	r.Get("/policies", a.handlePolicies)
	r.Post("/validate", a.handleValidate)
	r.Get("/stats", a.handleStats)

	return r
}

type reloadResponse struct {
	Outcome string `json:"outcome"`
	Version int64  `json:"version"`
	Error   string `json:"error,omitempty"`
}

func (a AdminAPI) handleReload(w http.ResponseWriter, r *http.Request) {
	writeReloadResult(w, a.Store.Reload(r.Context()))
}

func (a AdminAPI) handleRollback(w http.ResponseWriter, r *http.Request) {
	var version int64
	if raw := r.URL.Query().Get("version"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid version"})
			return
		}
		version = v
	}
	writeReloadResult(w, a.Store.Rollback(r.Context(), version))
}

func (a AdminAPI) handleVersions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Store.Versions())
}

type policyResponse struct {
	ID        string `json:"id"`
	Endpoint  string `json:"endpoint,omitempty"`
	ClientKey string `json:"client_key,omitempty"`
	Network   string `json:"network,omitempty"`
	Tier      string `json:"tier,omitempty"`
	Limit     int    `json:"limit"`
	Window    int    `json:"window"`
	Priority  int    `json:"priority"`
}

func (a AdminAPI) handlePolicies(w http.ResponseWriter, _ *http.Request) {
	snap := a.Store.Current()
	if snap == nil {
		writeJSON(w, http.StatusOK, map[string]any{"version": 0, "policies": []policyResponse{}})
		return
	}
	policies := make([]policyResponse, 0, len(snap.Set.Policies))
	for _, p := range snap.Set.Policies {
		policies = append(policies, policyResponse{
			ID:        p.ID,
			Endpoint:  p.Match.Endpoint,
			ClientKey: p.Match.ClientKey,
			Network:   p.Match.Network,
			Tier:      p.Match.Tier,
			Limit:     p.Limit,
			Window:    p.WindowSeconds,
			Priority:  p.Priority,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":      snap.Version,
		"default_tier": snap.Set.DefaultTier,
		"policies":     policies,
	})
}

// handleValidate valida um conjunto candidato (YAML no corpo) sem aplicar.
func (a AdminAPI) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	set, err := infra.ParsePolicySet(body)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	if err := a.Store.Validate(set); err != nil {
		resp := map[string]any{"valid": false, "error": err.Error()}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			resp["issues"] = verr.Issues
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "policies": len(set.Policies)})
}

func (a AdminAPI) handleStats(w http.ResponseWriter, _ *http.Request) {
	var version int64
	if snap := a.Store.Current(); snap != nil {
		version = snap.Version
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":        version,
		"active_clients": a.Quotas.ActiveClients(),
		"span_occupancy": a.Quotas.SpanOccupancy(),
	})
}

func writeReloadResult(w http.ResponseWriter, res domain.ReloadResult) {
	resp := reloadResponse{Outcome: string(res.Outcome), Version: res.Version}
	status := http.StatusOK
	if res.Outcome == domain.ReloadRejected {
		status = http.StatusUnprocessableEntity
		if res.Err != nil {
			resp.Error = res.Err.Error()
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
