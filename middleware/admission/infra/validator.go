package infra

import (
	"fmt"
	"net/netip"
	"strings"

	"admission-gateway/middleware/admission/domain"
)

const (
	minWindowSeconds = 1
	maxWindowSeconds = 86400
)

// ValidatePolicySet aplica as regras sintáticas e semânticas sobre um
// conjunto candidato. Qualquer problema rejeita o conjunto INTEIRO: o
// snapshot anterior continua em vigor até a configuração ser corrigida.
//
// Implementa domain.Validator.
func ValidatePolicySet(set *domain.PolicySet) error {
	if set == nil {
		return &domain.ValidationError{Issues: []string{"empty policy set"}}
	}

	var issues []string

	if set.DefaultTier != "" {
		if _, ok := set.TierLimits(set.DefaultTier); !ok {
			issues = append(issues, fmt.Sprintf("default_tier %q is not declared in tiers", set.DefaultTier))
		}
	}

	for _, name := range set.TierNames() {
		limits := set.Tiers[name]
		for _, sl := range limits {
			if sl.Limit < 0 {
				issues = append(issues, fmt.Sprintf("tier %q: span %q has negative limit %d", name, sl.Span, sl.Limit))
			}
			if sl.Window <= 0 {
				issues = append(issues, fmt.Sprintf("tier %q: span %q has non-positive window", name, sl.Span))
			}
		}
		// hierarquia: janela maior não pode ter capacidade menor que a
		// janela menor (ex: 100/minuto com 50/hora está invertido)
		for i := 1; i < len(limits); i++ {
			if limits[i].Window > limits[i-1].Window && limits[i].Limit < limits[i-1].Limit {
				issues = append(issues, fmt.Sprintf(
					"tier %q: inverted hierarchy, span %q (%d) below span %q (%d)",
					name, limits[i].Span, limits[i].Limit, limits[i-1].Span, limits[i-1].Limit))
			}
		}
	}

	seenIDs := make(map[string]bool, len(set.Policies))
	type collisionKey struct {
		match    domain.MatchCriteria
		priority int
	}
	seenMatch := make(map[collisionKey]string, len(set.Policies))

	for i, p := range set.Policies {
		where := fmt.Sprintf("policy %d (%s)", i, p.ID)

		if p.Match.Empty() {
			issues = append(issues, where+": at least one match criterion is required")
		}
		if p.Limit < 0 {
			issues = append(issues, fmt.Sprintf("%s: negative limit %d", where, p.Limit))
		}
		if p.WindowSeconds < minWindowSeconds || p.WindowSeconds > maxWindowSeconds {
			issues = append(issues, fmt.Sprintf("%s: window %d outside [%d,%d]", where, p.WindowSeconds, minWindowSeconds, maxWindowSeconds))
		}
		if p.Priority < 0 {
			issues = append(issues, fmt.Sprintf("%s: negative priority %d", where, p.Priority))
		}
		if p.Match.Network != "" {
			if err := validateNetwork(p.Match.Network); err != nil {
				issues = append(issues, fmt.Sprintf("%s: %v", where, err))
			}
		}
		if p.Match.Endpoint != "" {
			if err := validateEndpoint(p.Match.Endpoint); err != nil {
				issues = append(issues, fmt.Sprintf("%s: %v", where, err))
			}
		}

		if p.ID == "" {
			issues = append(issues, where+": missing id")
		} else if seenIDs[p.ID] {
			issues = append(issues, fmt.Sprintf("%s: duplicate id %q", where, p.ID))
		}
		seenIDs[p.ID] = true

		ck := collisionKey{match: p.Match, priority: p.Priority}
		if prev, ok := seenMatch[ck]; ok {
			issues = append(issues, fmt.Sprintf("%s: same criteria and priority as policy %q", where, prev))
		} else {
			seenMatch[ck] = p.ID
		}
	}

	if len(issues) > 0 {
		return &domain.ValidationError{Issues: issues}
	}
	return nil
}

func validateNetwork(network string) error {
	if strings.Contains(network, "/") {
		if _, err := netip.ParsePrefix(network); err != nil {
			return fmt.Errorf("invalid cidr %q", network)
		}
		return nil
	}
	if _, err := netip.ParseAddr(network); err != nil {
		return fmt.Errorf("invalid address %q", network)
	}
	return nil
}

func validateEndpoint(endpoint string) error {
	if endpoint == "*" {
		return nil
	}
	if !strings.HasPrefix(endpoint, "/") {
		return fmt.Errorf("endpoint %q must start with / or be *", endpoint)
	}
	for _, seg := range strings.Split(strings.Trim(endpoint, "/"), "/") {
		if seg == ":" {
			return fmt.Errorf("endpoint %q has an unnamed placeholder segment", endpoint)
		}
	}
	return nil
}
