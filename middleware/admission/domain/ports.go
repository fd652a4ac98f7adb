package domain

import "context"

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Observação: a implementação pode ser token-bucket, janela deslizante, etc.
// A camada de infra pode usar libs como golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// QuotaStore mantém as quotas por cliente e aplica a checagem multi-janela.
//
// A implementação deve serializar check-then-append por cliente (chamadas
// concorrentes para a MESMA chave não podem perder nem duplicar admissões)
// e não pode bloquear clientes diferentes entre si.
type QuotaStore interface {
	CheckAndRecord(key string, limits Limits) Decision
}

// SnapshotProvider entrega o snapshot corrente de policies.
//
// A troca do snapshot precisa ser atômica para os leitores; Current nunca
// bloqueia e nunca devolve um snapshot parcialmente aplicado.
type SnapshotProvider interface {
	Current() *Snapshot
}

// Source é a fonte externa de configuração (arquivo, banco, etc).
//
// Write precisa ser atômico do ponto de vista de um leitor concorrente:
// quem ler a fonte nunca vê um conjunto escrito pela metade.
// O conjunto precisa sobreviver a read → write → read sem perda de campo.
type Source interface {
	Read(ctx context.Context) (*PolicySet, error)
	Write(ctx context.Context, set *PolicySet) error
	// Location identifica a fonte para logs e erros (ex: caminho do arquivo).
	Location() string
}

// Validator valida um conjunto candidato antes de entrar em vigor.
// Retorna *ValidationError quando o conjunto é recusado.
type Validator func(*PolicySet) error
