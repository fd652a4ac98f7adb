package admission

import (
	"net"
	"net/http"
	"strings"

	"admission-gateway/middleware/admission/domain"
)

// DescriptorFunc extrai de uma requisição o que o motor precisa decidir.
type DescriptorFunc func(r *http.Request) domain.Descriptor

// DefaultDescriptorFunc monta um descriptor a partir de headers e do
// endereço remoto:
//
//   - chave do cliente: keyHeader, senão primeiro IP do X-Forwarded-For
//     (se confiável), senão o host do RemoteAddr
//   - endereço de origem: primeiro IP do X-Forwarded-For (se confiável),
//     senão o host do RemoteAddr
//   - tier: tierHeader (em geral injetado por quem autentica a API key)
func DefaultDescriptorFunc(keyHeader, tierHeader string, trustXFF bool) DescriptorFunc {
	return func(r *http.Request) domain.Descriptor {
		source := clientIP(r, trustXFF)

		key := ""
		if keyHeader != "" {
			key = strings.TrimSpace(r.Header.Get(keyHeader))
		}
		if key == "" {
			key = source
		}
		if key == "" {
			key = "unknown"
		}

		tier := ""
		if tierHeader != "" {
			tier = strings.TrimSpace(r.Header.Get(tierHeader))
		}

		return domain.Descriptor{
			Endpoint:      r.URL.Path,
			ClientKey:     key,
			SourceAddress: source,
			Tier:          tier,
		}
	}
}

func clientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				ip := strings.TrimSpace(parts[0])
				if ip != "" {
					return ip
				}
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
