// Package infra contém as implementações concretas do controle de admissão:
// janelas deslizantes por cliente, fonte de policies em YAML, store de
// configuração com hot-reload/rollback, watcher de arquivo e persistência
// de estatísticas (memória/Redis).
package infra
