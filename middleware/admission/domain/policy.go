package domain

import (
	"sort"
	"strings"
	"time"
)

// MatchCriteria são os critérios de seleção de uma Policy. Todos opcionais,
// mas pelo menos um precisa estar presente.
//
// Critério ausente significa "tanto faz" (a policy não olha aquele campo).
// A exceção é o endpoint literal "*", que é um critério declarado e casa
// com qualquer endpoint.
type MatchCriteria struct {
	// Endpoint: caminho exato ("/api/v1/pedidos"), "*", ou padrão com
	// segmentos-parâmetro prefixados por ":" (ex: "/api/v1/pedidos/:id").
	Endpoint string
	// ClientKey: identidade exata do cliente (API key, usuário, IP).
	ClientKey string
	// Network: IP exato ("10.0.0.9") ou CIDR ("10.0.0.0/8").
	Network string
	// Tier: nome da classe de serviço, comparado sem case.
	Tier string
}

// Empty informa se nenhum critério foi declarado.
func (m MatchCriteria) Empty() bool {
	return m.Endpoint == "" && m.ClientKey == "" && m.Network == "" && m.Tier == ""
}

// Policy é uma regra de rate limit: critérios + capacidade + janela.
//
// Policies dentro de um snapshot são imutáveis; atualização cria um novo
// valor, nunca altera o existente.
type Policy struct {
	ID            string
	Match         MatchCriteria
	Limit         int
	WindowSeconds int
	// Priority desempata policies com a mesma pontuação (maior vence).
	Priority int
}

// Window retorna a janela da policy como duração.
func (p Policy) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

// PolicySet é a unidade de configuração que a fonte externa lê e grava:
// tiers com seus limites padrão + a lista ordenada de policies.
//
// A ordem de declaração das policies importa: ela é o desempate final
// do resolver.
type PolicySet struct {
	DefaultTier string
	Tiers       map[string]Limits
	Policies    []Policy
}

// TierLimits busca os limites padrão de um tier, sem case.
func (s *PolicySet) TierLimits(tier string) (Limits, bool) {
	if s == nil || len(s.Tiers) == 0 {
		return nil, false
	}
	want := strings.ToLower(strings.TrimSpace(tier))
	for name, limits := range s.Tiers {
		if strings.ToLower(name) == want {
			return limits, true
		}
	}
	return nil, false
}

// EffectiveTierLimits resolve os limites do tier do descriptor, caindo para
// o tier padrão quando o tier é desconhecido ou vazio.
func (s *PolicySet) EffectiveTierLimits(tier string) (Limits, bool) {
	if limits, ok := s.TierLimits(tier); ok {
		return limits, true
	}
	if s == nil || s.DefaultTier == "" {
		return nil, false
	}
	return s.TierLimits(s.DefaultTier)
}

// Clone devolve uma cópia profunda o suficiente para o copy-on-write do
// snapshot (slices e mapas novos; os valores internos são imutáveis).
func (s *PolicySet) Clone() PolicySet {
	if s == nil {
		return PolicySet{}
	}
	out := PolicySet{DefaultTier: s.DefaultTier}
	if s.Tiers != nil {
		out.Tiers = make(map[string]Limits, len(s.Tiers))
		for name, limits := range s.Tiers {
			cp := make(Limits, len(limits))
			copy(cp, limits)
			out.Tiers[name] = cp
		}
	}
	if s.Policies != nil {
		out.Policies = make([]Policy, len(s.Policies))
		copy(out.Policies, s.Policies)
	}
	return out
}

// Equal compara dois conjuntos campo a campo (usado para detectar reload
// sem mudança de conteúdo).
func (s *PolicySet) Equal(other *PolicySet) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.DefaultTier != other.DefaultTier || len(s.Tiers) != len(other.Tiers) || len(s.Policies) != len(other.Policies) {
		return false
	}
	for name, limits := range s.Tiers {
		theirs, ok := other.Tiers[name]
		if !ok || len(limits) != len(theirs) {
			return false
		}
		for i := range limits {
			if limits[i] != theirs[i] {
				return false
			}
		}
	}
	for i := range s.Policies {
		if s.Policies[i] != other.Policies[i] {
			return false
		}
	}
	return true
}

// TierNames lista os tiers em ordem estável (útil para serialização e logs).
func (s *PolicySet) TierNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Tiers))
	for name := range s.Tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
