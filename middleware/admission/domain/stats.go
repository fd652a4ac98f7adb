package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão de admissão.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings
// genéricas e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path/PolicyID sem
// controle pode explodir o número de séries/chaves em uma base como Redis).
type StatsEvent struct {
	Key      string
	Admitted bool

	// PolicyID e LimitingSpan vêm da Decision, quando presentes.
	PolicyID     string
	LimitingSpan string

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem armazenar em Redis, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
