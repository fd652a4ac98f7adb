package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"admission-gateway/middleware/admission/domain"
)

// FileSource lê e grava o conjunto de policies em um arquivo YAML.
//
// A gravação é feita em arquivo temporário + rename, então um leitor
// concorrente nunca enxerga uma configuração escrita pela metade.
type FileSource struct {
	path string
}

func NewFileSource(path string) (*FileSource, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	return &FileSource{path: absPath}, nil
}

// Location implementa domain.Source.
func (s *FileSource) Location() string { return s.path }

// Read implementa domain.Source.
func (s *FileSource) Read(_ context.Context) (*domain.PolicySet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &domain.ResourceError{Op: "read", Path: s.path, Err: err}
	}
	set, err := ParsePolicySet(data)
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Write implementa domain.Source (temporário + rename no mesmo diretório).
func (s *FileSource) Write(_ context.Context, set *domain.PolicySet) error {
	data, err := MarshalPolicySet(set)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".policies-*.yaml")
	if err != nil {
		return &domain.ResourceError{Op: "write", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &domain.ResourceError{Op: "write", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &domain.ResourceError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return &domain.ResourceError{Op: "write", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return &domain.ResourceError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// Formato do arquivo:
//
//	default_tier: free
//	tiers:
//	  free:    {second: 1, minute: 30, hour: 500, day: 5000}
//	  premium: {second: 20, minute: 600, hour: 10000, day: 100000}
//	policies:
//	  - id: vip-pedidos
//	    client_key: K1
//	    endpoint: /api/v1/pedidos
//	    network: 10.0.0.0/8
//	    tier: premium
//	    limit: 1000
//	    window: 60
//	    priority: 10
type yamlRoot struct {
	DefaultTier string                    `yaml:"default_tier,omitempty"`
	Tiers       map[string]map[string]int `yaml:"tiers,omitempty"`
	Policies    []yamlPolicy              `yaml:"policies"`
}

type yamlPolicy struct {
	ID        string `yaml:"id,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	ClientKey string `yaml:"client_key,omitempty"`
	Network   string `yaml:"network,omitempty"`
	Tier      string `yaml:"tier,omitempty"`
	Limit     int    `yaml:"limit"`
	Window    int    `yaml:"window"`
	Priority  int    `yaml:"priority,omitempty"`
}

var spanWindows = map[string]time.Duration{
	domain.SpanSecond: time.Second,
	domain.SpanMinute: time.Minute,
	domain.SpanHour:   time.Hour,
	domain.SpanDay:    24 * time.Hour,
}

// ordem canônica: da janela mais curta para a mais longa
var spanOrder = []string{domain.SpanSecond, domain.SpanMinute, domain.SpanHour, domain.SpanDay}

// ParsePolicySet converte o YAML bruto em um PolicySet.
// Registro sem id ganha um uuid determinístico derivado do conteúdo e da
// posição: duas leituras do mesmo arquivo produzem conjuntos iguais, então
// reload de conteúdo idêntico continua contando como "unchanged".
func ParsePolicySet(data []byte) (*domain.PolicySet, error) {
	var root yamlRoot
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &domain.InputError{Reason: "invalid yaml: " + err.Error()}
	}

	set := &domain.PolicySet{DefaultTier: root.DefaultTier}
	if len(root.Tiers) > 0 {
		set.Tiers = make(map[string]domain.Limits, len(root.Tiers))
		for name, spans := range root.Tiers {
			limits := make(domain.Limits, 0, len(spans))
			for _, span := range spanOrder {
				limit, ok := spans[span]
				if !ok {
					continue
				}
				limits = append(limits, domain.SpanLimit{Span: span, Window: spanWindows[span], Limit: limit})
			}
			for span := range spans {
				if _, ok := spanWindows[span]; !ok {
					return nil, &domain.InputError{Reason: fmt.Sprintf("tier %q: unknown span %q", name, span)}
				}
			}
			set.Tiers[name] = limits
		}
	}

	set.Policies = make([]domain.Policy, 0, len(root.Policies))
	for i, p := range root.Policies {
		id := p.ID
		if id == "" {
			id = derivedPolicyID(i, p)
		}
		set.Policies = append(set.Policies, domain.Policy{
			ID: id,
			Match: domain.MatchCriteria{
				Endpoint:  p.Endpoint,
				ClientKey: p.ClientKey,
				Network:   p.Network,
				Tier:      p.Tier,
			},
			Limit:         p.Limit,
			WindowSeconds: p.Window,
			Priority:      p.Priority,
		})
	}
	return set, nil
}

// derivedPolicyID gera um uuid v5 estável a partir do índice e dos campos
// do registro. Mudou o registro (ou a posição), muda o id.
func derivedPolicyID(idx int, p yamlPolicy) string {
	seed := fmt.Sprintf("%d|%s|%s|%s|%s|%d|%d|%d",
		idx, p.Endpoint, p.ClientKey, p.Network, p.Tier, p.Limit, p.Window, p.Priority)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// MarshalPolicySet serializa o conjunto de volta para YAML, preservando
// o mesmo conjunto de campos que o Parse lê (round-trip sem perda).
func MarshalPolicySet(set *domain.PolicySet) ([]byte, error) {
	root := yamlRoot{DefaultTier: set.DefaultTier}
	if len(set.Tiers) > 0 {
		root.Tiers = make(map[string]map[string]int, len(set.Tiers))
		for name, limits := range set.Tiers {
			spans := make(map[string]int, len(limits))
			for _, sl := range limits {
				spans[sl.Span] = sl.Limit
			}
			root.Tiers[name] = spans
		}
	}
	root.Policies = make([]yamlPolicy, 0, len(set.Policies))
	for _, p := range set.Policies {
		root.Policies = append(root.Policies, yamlPolicy{
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
	data, err := yaml.Marshal(root)
	if err != nil {
		return nil, &domain.InputError{Reason: "marshal yaml: " + err.Error()}
	}
	return data, nil
}
