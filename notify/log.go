package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier só escreve a mensagem no log. Usado em desenvolvimento, quando nem
// SMTP nem Telegram estão configurados.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, msg Message) error {
	n.Logger.Info().
		Str("reference", msg.Reference).
		Str("subject", msg.Subject).
		Str("reply_to", msg.ReplyTo).
		Str("body", msg.Body).
		Msg("notify: form submission")
	return nil
}
