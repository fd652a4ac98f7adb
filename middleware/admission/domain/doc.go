// Package domain define os contratos e tipos do controle de admissão,
// sem dependência de net/http e sem detalhes de infraestrutura.
package domain
