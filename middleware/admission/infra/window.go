package infra

import "time"

// windowCounter guarda os timestamps dos eventos recentes dentro de uma
// janela fixa. Invariante: depois de um cleanup, todo timestamp retido
// satisfaz now - ts < window, e a fatia está ordenada do mais antigo
// para o mais novo.
type windowCounter struct {
	window time.Duration
	events []time.Time
}

func newWindowCounter(window time.Duration) *windowCounter {
	return &windowCounter{window: window}
}

// cleanup descarta os timestamps que já saíram da janela.
func (w *windowCounter) cleanup(now time.Time) {
	cut := 0
	for cut < len(w.events) && now.Sub(w.events[cut]) >= w.window {
		cut++
	}
	if cut > 0 {
		w.events = append(w.events[:0], w.events[cut:]...)
	}
}

func (w *windowCounter) count() int { return len(w.events) }

func (w *windowCounter) record(now time.Time) {
	w.events = append(w.events, now)
}

// resetAt informa quando o evento mais antigo sai da janela.
// Sem eventos, retorna o próprio now.
func (w *windowCounter) resetAt(now time.Time) time.Time {
	if len(w.events) == 0 {
		return now
	}
	return w.events[0].Add(w.window)
}

// retryAfter é quanto falta para abrir uma vaga nesta janela, nunca negativo.
func (w *windowCounter) retryAfter(now time.Time) time.Duration {
	if len(w.events) == 0 {
		return 0
	}
	d := w.events[0].Add(w.window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
