package infra

import (
	"context"

	"admission-gateway/middleware/admission/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria o pool de vagas de admissão sobre um channel com
// capacidade `max` (o teto de requisições simultâneas no gateway).
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}
