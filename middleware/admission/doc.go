// Package admission fornece adapters HTTP (net/http) para o controle de
// admissão do gateway: rate limit multi-janela por cliente, resolução de
// policy por hierarquia de critérios e configuração com hot-reload.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (resolver policy, decidir admitir/bloquear,
//     acquire/timeout) sem net/http
//   - infra: implementações concretas (janelas deslizantes, fonte YAML,
//     store de configuração, watcher, semáforo), detalhes de infraestrutura
//   - admission (este pacote): middlewares HTTP + extração do descriptor +
//     tradução para status/headers + API administrativa + métricas
//
// Fluxo no gateway:
//
//  1. Extrai o descriptor da requisição (endpoint, chave do cliente,
//     endereço de origem, tier)
//  2. Chama a camada application para resolver a policy e obter a decisão
//  3. Se bloqueado, responde 429 (rate limit) ou 503 (concorrência)
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o
// comportamento, como POLICY_FILE, POLICY_WATCH, ADMIN_ADDR e
// CONCURRENCY_MAX.
package admission
