package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Key string

// UnknownKey é a chave sentinela usada quando não dá para identificar o cliente.
// Todos os clientes sem IP resolvido dividem o mesmo bucket.
const UnknownKey Key = "unknown"

// IsUnknown diz se a chave é a sentinela, com ou sem prefixo de scope ("contact:unknown").
func (k Key) IsUnknown() bool {
	return k == UnknownKey || strings.HasSuffix(string(k), ":"+string(UnknownKey))
}

// ErrInvalidConfiguration indica uma cota com MaxRequests ou Window não positivos.
// É erro de programação/configuração e deve aparecer no startup.
var ErrInvalidConfiguration = errors.New("ratelimit: invalid configuration")

// Quota define quantas ações são permitidas por chave dentro da janela.
type Quota struct {
	MaxRequests int
	Window      time.Duration
}

func (q Quota) Validate() error {
	if q.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be > 0, got %d", ErrInvalidConfiguration, q.MaxRequests)
	}
	if q.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0, got %s", ErrInvalidConfiguration, q.Window)
	}
	return nil
}

// Decision é o resultado de uma verificação de cota.
type Decision struct {
	Allowed bool
	// Remaining é quantas ações ainda cabem na janela atual (nunca negativo).
	Remaining int
	// ResetTime é o instante em que a ação mais antiga contada sai da janela.
	// Zero quando não há nenhuma ação registrada.
	ResetTime time.Time
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// WindowStore decide e registra ações por chave numa janela deslizante.
//
// CheckAndRecord é atômico por chave: a leitura, a decisão e o registro acontecem
// na mesma seção crítica. Quando a cota é inválida retorna ErrInvalidConfiguration
// sem alterar o estado.
type WindowStore interface {
	CheckAndRecord(ctx context.Context, key Key, q Quota) (Decision, error)
}
