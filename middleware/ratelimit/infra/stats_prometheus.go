package infra

import (
	"context"

	"salon-web/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore conta decisões por scope e resultado.
//
// A chave (IP) fica de fora dos labels para não explodir a cardinalidade.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salon",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Number of rate limit decisions by form scope and outcome.",
	}, []string{"scope", "outcome"})

	if reg != nil {
		if err := reg.Register(decisions); err != nil {
			return nil, err
		}
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := "denied"
	if ev.Allowed {
		outcome = "allowed"
	}
	s.decisions.WithLabelValues(ev.Scope, outcome).Inc()
	return nil
}

// Decisions expõe o vetor para testes e composição.
func (s *PrometheusStatsStore) Decisions() *prometheus.CounterVec { return s.decisions }
