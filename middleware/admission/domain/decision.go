package domain

import "time"

// Descriptor é a visão de uma requisição que o controle de admissão
// precisa enxergar. Produzido por requisição, consumido uma vez,
// nunca armazenado.
type Descriptor struct {
	Endpoint      string
	ClientKey     string
	SourceAddress string
	Tier          string
}

// SpanOccupancy é a ocupação de uma janela no momento da decisão.
type SpanOccupancy struct {
	Count     int
	Limit     int
	Remaining int
}

// Decision é o resultado de uma checagem de admissão.
//
// Limit/Remaining/ResetAt refletem a janela mais apertada (menor folga);
// Occupancy traz o quadro completo por span.
type Decision struct {
	Admitted bool
	// PolicyID identifica a policy resolvida, se houve uma.
	PolicyID string
	// LimitingSpan: no bloqueio, a janela violada com o maior tempo de
	// espera (a restrição mais severa, não a primeira violada).
	LimitingSpan string
	// RetryAfter recomenda quanto esperar antes de tentar de novo.
	// Zero quando admitido.
	RetryAfter time.Duration
	Limit      int
	Remaining  int
	ResetAt    time.Time
	Occupancy  map[string]SpanOccupancy
	// Reason explica bloqueios que não vieram de janela cheia
	// (ex: descriptor sem chave). Vazio no caminho normal.
	Reason string
}
