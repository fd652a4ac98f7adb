package admission

import (
	"net/http"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
)

type Options struct {
	Engine             *application.Engine
	Stats              domain.StatsStore
	Metrics            *Metrics
	DescriptorFn       DescriptorFunc
	KeyHeader          string
	TierHeader         string
	TrustXForwardedFor bool
	RejectStatus       int
	// AddRateLimitHeaders liga os headers X-RateLimit-* nas respostas.
	// Retry-After é sempre emitido no bloqueio, independente desta opção.
	AddRateLimitHeaders bool
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.DescriptorFn == nil {
		opts.DescriptorFn = DefaultDescriptorFunc(opts.KeyHeader, opts.TierHeader, opts.TrustXForwardedFor)
	}
	if opts.Engine == nil {
		opts.Engine = &application.Engine{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := opts.DescriptorFn(r)

			dec := opts.Engine.Admit(d)

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:          d.ClientKey,
					Admitted:     dec.Admitted,
					PolicyID:     dec.PolicyID,
					LimitingSpan: dec.LimitingSpan,
					Method:       r.Method,
					Path:         r.URL.Path,
					At:           time.Now(),
				})
			}
			if opts.Metrics != nil {
				opts.Metrics.ObserveDecision(dec)
			}

			// Occupancy presente = alguma janela foi avaliada; limite 0 é
			// válido e também merece os headers
			if opts.AddRateLimitHeaders && dec.Occupancy != nil {
				w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				w.Header().Set("X-RateLimit-Reset", formatInt64(dec.ResetAt.Unix()))
			}

			if !dec.Admitted {
				w.Header().Set("Retry-After", formatInt(int(dec.RetryAfter.Seconds())))
				if dec.LimitingSpan != "" {
					w.Header().Set("X-RateLimit-Limiting-Span", dec.LimitingSpan)
				}
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
