// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência
// dos formulários do site (agendamento, vale-presente, contato e newsletter).
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela deslizante em memória/Redis, semáforo, estatísticas)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo por formulário:
//
//   1) Extrai a chave do cliente (IP/header/XFF); sem IP resolvido usa "unknown"
//   2) Chama a camada application para obter a decisão (antes de qualquer envio de e-mail)
//   3) Se bloqueado, responde 429 com Retry-After e mensagem legível no idioma do cliente
//   4) Se permitido, chama o handler do formulário
//
// O store em memória vale para uma instância só; com várias réplicas use o RedisWindowStore.
package ratelimit
