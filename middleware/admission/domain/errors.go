package domain

import (
	"fmt"
	"strings"
)

// Taxonomia de erros do motor de admissão. Todos recuperáveis na borda:
// nenhum deles derruba o processo, e erro de configuração nunca afeta
// decisões em voo (o snapshot anterior continua valendo).

// InputError: descriptor ou registro malformado. Quando não dá para
// normalizar com segurança, o registro é descartado e a decisão falha
// fechada (tratada como bloqueio), nunca aberta.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return "input: " + e.Reason }

// ValidationError: um conjunto candidato de policies falhou nas regras
// sintáticas ou semânticas. O reload/rollback é rejeitado por inteiro.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Issues, "; ")
}

// ResourceError: a fonte externa não pôde ser lida ou gravada. O motor
// segue servindo do último snapshot bom.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
