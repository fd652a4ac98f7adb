package application

import (
	"net/netip"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"admission-gateway/middleware/admission/domain"
)

// Pontuação aditiva da hierarquia de critérios. Os valores preservam a
// ordem cliente > endpoint > rede > tier em qualquer combinação: um
// critério de nível superior sempre supera a soma de todos os inferiores.
const (
	scoreClientExact   = 10000
	scoreEndpointExact = 1000
	scoreEndpointParam = 500 // menos 10 por segmento-parâmetro
	scoreParamPenalty  = 10
	scoreEndpointAny   = 100
	scoreNetworkExact  = 332
	scoreNetworkCIDR   = 300 // mais o tamanho do prefixo; /32 empata com exato
	scoreTier          = 50
)

// Resolver escolhe, dentre as policies do snapshot, a que melhor casa
// com uma requisição.
//
// Determinístico: o mesmo par (descriptor, snapshot) resolve sempre para
// a mesma policy. Empates de pontuação caem para a maior Priority e, por
// fim, para a ordem de declaração no snapshot.
type Resolver struct {
	// cache por (versão do snapshot, descriptor): versão nova invalida
	// naturalmente, porque muda a chave
	cache *lru.Cache[resolveKey, int]
}

type resolveKey struct {
	version   int64
	endpoint  string
	clientKey string
	source    string
	tier      string
}

// NewResolver cria um resolver com cache LRU de decisões.
// cacheSize <= 0 desliga o cache.
func NewResolver(cacheSize int) *Resolver {
	r := &Resolver{}
	if cacheSize > 0 {
		// New só falha com tamanho <= 0
		r.cache, _ = lru.New[resolveKey, int](cacheSize)
	}
	return r
}

// Resolve devolve a policy vencedora, ou ok=false quando nenhuma é
// candidata. Nunca gera erro: sem candidata, quem chama aplica o
// fail-safe (tier padrão ou anteparo conservador).
func (r *Resolver) Resolve(d domain.Descriptor, snap *domain.Snapshot) (domain.Policy, bool) {
	if snap == nil || len(snap.Set.Policies) == 0 {
		return domain.Policy{}, false
	}

	key := resolveKey{
		version:   snap.Version,
		endpoint:  d.Endpoint,
		clientKey: d.ClientKey,
		source:    d.SourceAddress,
		tier:      d.Tier,
	}
	if r.cache != nil {
		if idx, ok := r.cache.Get(key); ok {
			if idx < 0 {
				return domain.Policy{}, false
			}
			if idx < len(snap.Set.Policies) {
				return snap.Set.Policies[idx], true
			}
		}
	}

	best := -1
	bestScore := 0
	bestPriority := 0
	for i, p := range snap.Set.Policies {
		score, ok := Score(p, d)
		if !ok {
			continue
		}
		if best == -1 || score > bestScore || (score == bestScore && p.Priority > bestPriority) {
			best = i
			bestScore = score
			bestPriority = p.Priority
		}
	}

	if r.cache != nil {
		r.cache.Add(key, best)
	}
	if best == -1 {
		return domain.Policy{}, false
	}
	return snap.Set.Policies[best], true
}

// Score calcula a pontuação de uma policy contra um descriptor.
//
// Candidatura é conjuntiva: TODO critério declarado precisa casar; um
// critério que não casa exclui a policy, não apenas reduz a pontuação.
// Critério ausente significa "tanto faz" — exceto o endpoint literal "*",
// que é um critério declarado casando com qualquer endpoint.
func Score(p domain.Policy, d domain.Descriptor) (int, bool) {
	m := p.Match
	if m.Empty() {
		return 0, false
	}

	score := 0
	if m.ClientKey != "" {
		if m.ClientKey != d.ClientKey {
			return 0, false
		}
		score += scoreClientExact
	}
	if m.Endpoint != "" {
		s, ok := scoreEndpoint(m.Endpoint, d.Endpoint)
		if !ok {
			return 0, false
		}
		score += s
	}
	if m.Network != "" {
		s, ok := scoreNetwork(m.Network, d.SourceAddress)
		if !ok {
			return 0, false
		}
		score += s
	}
	if m.Tier != "" {
		if !strings.EqualFold(m.Tier, d.Tier) {
			return 0, false
		}
		score += scoreTier
	}
	return score, true
}

func scoreEndpoint(pattern, endpoint string) (int, bool) {
	if pattern == endpoint {
		return scoreEndpointExact, true
	}
	if pattern == "*" {
		return scoreEndpointAny, true
	}
	if !strings.Contains(pattern, ":") {
		return 0, false
	}

	// padrão parametrizado: casa segmento a segmento, com o mesmo número
	// de segmentos; mais parâmetros = menos específico = pontuação menor
	pseg := strings.Split(strings.Trim(pattern, "/"), "/")
	eseg := strings.Split(strings.Trim(endpoint, "/"), "/")
	if len(pseg) != len(eseg) {
		return 0, false
	}
	params := 0
	for i := range pseg {
		if strings.HasPrefix(pseg[i], ":") {
			params++
			continue
		}
		if pseg[i] != eseg[i] {
			return 0, false
		}
	}
	return scoreEndpointParam - scoreParamPenalty*params, true
}

func scoreNetwork(network, source string) (int, bool) {
	addr, err := netip.ParseAddr(source)
	if err != nil {
		return 0, false
	}
	if strings.Contains(network, "/") {
		prefix, err := netip.ParsePrefix(network)
		if err != nil || !prefix.Contains(addr) {
			return 0, false
		}
		return scoreNetworkCIDR + prefix.Bits(), true
	}
	want, err := netip.ParseAddr(network)
	if err != nil || want != addr {
		return 0, false
	}
	return scoreNetworkExact, true
}
