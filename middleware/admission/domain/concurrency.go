package domain

import "context"

// SlotPool limita quantas requisições atravessam o gateway ao mesmo tempo.
// É o teto de concorrência em voo, ortogonal às janelas de taxa por
// cliente: uma requisição admitida pelo rate limit ainda precisa de vaga.
//
// A semântica é: Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
