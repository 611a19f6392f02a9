package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// limite de caracteres de uma mensagem de texto do Telegram
const telegramMaxText = 4096

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier avisa a equipe do salão em chats do Telegram.
type TelegramNotifier struct {
	bot     telegramSender
	chatIDs []int64
}

func NewTelegramNotifier(token string, chatIDs []int64) (*TelegramNotifier, error) {
	if len(chatIDs) == 0 {
		return nil, errors.New("telegram: at least one chat id is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	bot.Debug = false
	return newTelegramNotifier(bot, chatIDs), nil
}

func newTelegramNotifier(bot telegramSender, chatIDs []int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs}
}

func (n *TelegramNotifier) Notify(ctx context.Context, msg Message) error {
	text := msg.Subject + "\n\n" + msg.Body
	if r := []rune(text); len(r) > telegramMaxText {
		text = string(r[:telegramMaxText-1]) + "…"
	}

	var errs []error
	for _, id := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := tgbotapi.NewMessage(id, text)
		m.DisableWebPagePreview = true
		if _, err := n.bot.Send(m); err != nil {
			errs = append(errs, fmt.Errorf("telegram chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
