package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// mailSender é o pedaço do *mail.Client que o SMTPMailer usa.
type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer envia a submissão para a caixa do salão.
type SMTPMailer struct {
	cfg    SMTPConfig
	client mailSender
	now    func() time.Time
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp: host is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("smtp: from and to are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	m := &SMTPMailer{cfg: cfg, client: client, now: time.Now}
	// endereços inválidos aparecem no startup, não no primeiro formulário
	if _, err := m.build(Message{}); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SMTPMailer) Notify(ctx context.Context, msg Message) error {
	mm, err := m.build(msg)
	if err != nil {
		return fmt.Errorf("smtp build %s: %w", msg.Reference, err)
	}
	if err := m.client.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("smtp send %s: %w", msg.Reference, err)
	}
	return nil
}

// build monta a mensagem em quoted-printable: linhas longas ganham quebra suave
// e o texto do cliente pode ter \n ou \r\n.
func (m *SMTPMailer) build(msg Message) (*mail.Msg, error) {
	mm := mail.NewMsg(mail.WithEncoding(mail.EncodingQP), mail.WithCharset(mail.CharsetUTF8))
	if err := mm.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := mm.To(m.cfg.To...); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	if msg.ReplyTo != "" {
		// reply-to vem do formulário; se não for endereço válido a equipe responde pelo corpo
		_ = mm.ReplyTo(msg.ReplyTo)
	}
	mm.Subject(msg.Subject)
	mm.SetDateWithValue(m.now())
	if msg.Reference != "" {
		mm.SetGenHeader(mail.Header("X-Salon-Reference"), msg.Reference)
	}
	mm.SetBodyString(mail.TypeTextPlain, normalizeNewlines(msg.Body))
	return mm, nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
