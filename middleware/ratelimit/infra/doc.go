// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: janela deslizante por chave em memória, com janitor e teto de chaves
//   - RedisWindowStore: a mesma janela em sorted sets do Redis (várias instâncias)
//   - MemoryStatsStore, RedisStatsStore, PrometheusStatsStore: estatísticas de decisão
//   - ChanPool: semáforo simples para limite de concorrência
package infra
