package domain

import "time"

// Snapshot é um conjunto de policies validado e versionado.
//
// Depois de criado, nunca é alterado: reload e rollback produzem um novo
// snapshot e trocam o ponteiro "corrente" atomicamente. Leitores em voo
// sempre enxergam um snapshot inteiro, velho ou novo, nunca uma mistura.
type Snapshot struct {
	Set       PolicySet
	Version   int64
	AppliedAt time.Time
	Healthy   bool
}

// ReloadOutcome é o desfecho de um reload/rollback.
type ReloadOutcome string

const (
	// ReloadApplied: conteúdo validado e snapshot novo comitado.
	ReloadApplied ReloadOutcome = "applied"
	// ReloadUnchanged: conteúdo idêntico ao corrente; versão não incrementa.
	ReloadUnchanged ReloadOutcome = "unchanged"
	// ReloadRejected: validação ou leitura falhou; snapshot anterior
	// permanece em vigor.
	ReloadRejected ReloadOutcome = "rejected"
)

// ReloadResult descreve o que aconteceu com um reload/rollback.
// Err só é preenchido quando Outcome == ReloadRejected.
type ReloadResult struct {
	Outcome ReloadOutcome
	Version int64
	Err     error
}
