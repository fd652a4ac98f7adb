package infra

import (
	"golang.org/x/time/rate"

	"admission-gateway/middleware/admission/domain"
)

// failsafe é o anteparo do motor quando nenhuma policy nem tier resolve:
// um token-bucket global conservador. Melhor deixar pingar um pouco de
// tráfego do que negar tudo quando a configuração está capenga.
type failsafe struct {
	lim *rate.Limiter
}

// NewFailsafe cria um limiter global de último recurso com rps/burst baixos.
func NewFailsafe(rps float64, burst int) domain.Limiter {
	return &failsafe{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (f *failsafe) Allow() bool { return f.lim.Allow() }
