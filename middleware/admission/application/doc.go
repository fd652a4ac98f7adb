// Package application contém os casos de uso do controle de admissão
// (resolver a policy de uma requisição, decidir admitir/bloquear,
// adquirir vaga de concorrência) sem saber nada de net/http.
package application
