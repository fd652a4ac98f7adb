package domain

import (
	"strconv"
	"time"
)

// Nomes canônicos das janelas de tempo.
//
// Um limite pode usar uma janela fora dessas quatro (ex: 45s); nesse caso
// o span recebe um nome derivado da duração ("45s") e convive com os demais.
const (
	SpanSecond = "second"
	SpanMinute = "minute"
	SpanHour   = "hour"
	SpanDay    = "day"
)

// SpanLimit é a capacidade de uma janela deslizante: no máximo Limit
// eventos dentro de Window.
type SpanLimit struct {
	Span   string
	Window time.Duration
	Limit  int
}

// Limits é o conjunto de janelas aplicadas simultaneamente a um cliente,
// ordenado da janela mais curta para a mais longa.
//
// A admissão exige vaga em TODAS as janelas ao mesmo tempo; uma janela
// cheia bloqueia mesmo que as outras tenham folga.
type Limits []SpanLimit

// SpanName retorna o nome canônico para uma janela, ou a duração formatada
// quando não há nome canônico.
func SpanName(window time.Duration) string {
	switch window {
	case time.Second:
		return SpanSecond
	case time.Minute:
		return SpanMinute
	case time.Hour:
		return SpanHour
	case 24 * time.Hour:
		return SpanDay
	}
	if window%time.Second == 0 {
		return strconv.FormatInt(int64(window/time.Second), 10) + "s"
	}
	return window.String()
}

// WithOverride retorna uma cópia com o limite da janela `window` substituído
// (ou acrescentado, se nenhuma janela igual existir). O receptor não é alterado.
func (l Limits) WithOverride(window time.Duration, limit int) Limits {
	out := make(Limits, len(l), len(l)+1)
	copy(out, l)
	for i := range out {
		if out[i].Window == window {
			out[i].Limit = limit
			return out
		}
	}
	out = append(out, SpanLimit{Span: SpanName(window), Window: window, Limit: limit})
	return out
}
