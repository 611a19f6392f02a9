// Package notify entrega as submissões dos formulários para a equipe do salão:
// e-mail (SMTP), alerta no Telegram ou log, com fan-out e throttle de saída.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Message é o conteúdo já renderizado de uma submissão.
type Message struct {
	Subject string
	Body    string
	// ReplyTo é o e-mail do cliente, para a equipe responder direto.
	ReplyTo   string
	Reference string
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapta uma função comum para Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Multi envia para todos os canais. Só falha se todos falharem; falhas parciais
// são logadas.
type Multi struct {
	Notifiers []Notifier
	Logger    zerolog.Logger
}

func (m Multi) Notify(ctx context.Context, msg Message) error {
	if len(m.Notifiers) == 0 {
		return errors.New("notify: no notifier configured")
	}

	var errs []error
	for _, n := range m.Notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m.Notifiers) {
		return fmt.Errorf("notify: all channels failed: %w", errors.Join(errs...))
	}
	for _, err := range errs {
		m.Logger.Warn().Err(err).Str("reference", msg.Reference).Msg("notify: channel failed")
	}
	return nil
}
