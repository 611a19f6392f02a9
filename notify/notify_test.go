package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/quotedprintable"
	netmail "net/mail"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

var sample = Message{
	Subject:   "Novo agendamento: Manicure",
	Body:      "Nome: Ana\nE-mail: ana@example.com",
	ReplyTo:   "ana@example.com",
	Reference: "1790000000000000000",
}

func TestMulti_SucceedsWhenAnyChannelSucceeds(t *testing.T) {
	var buf bytes.Buffer
	ok := 0
	m := Multi{
		Notifiers: []Notifier{
			NotifierFunc(func(context.Context, Message) error { return errors.New("smtp down") }),
			NotifierFunc(func(context.Context, Message) error { ok++; return nil }),
		},
		Logger: zerolog.New(&buf),
	}

	if err := m.Notify(context.Background(), sample); err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if ok != 1 {
		t.Fatalf("expected second channel to be called")
	}
	if !strings.Contains(buf.String(), "smtp down") {
		t.Fatalf("expected partial failure to be logged, got %q", buf.String())
	}
}

func TestMulti_FailsWhenAllChannelsFail(t *testing.T) {
	fail := NotifierFunc(func(context.Context, Message) error { return errors.New("down") })
	m := Multi{Notifiers: []Notifier{fail, fail}}

	if err := m.Notify(context.Background(), sample); err == nil {
		t.Fatalf("expected error when every channel fails")
	}
	if err := (Multi{}).Notify(context.Background(), sample); err == nil {
		t.Fatalf("expected error with no channels")
	}
}

func TestLogNotifier_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: zerolog.New(&buf)}

	if err := n.Notify(context.Background(), sample); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"reference":"1790000000000000000"`) {
		t.Fatalf("expected reference in log, got %q", buf.String())
	}
}

func TestThrottled_WaitsForToken(t *testing.T) {
	calls := 0
	next := NotifierFunc(func(context.Context, Message) error { calls++; return nil })
	th := NewThrottled(next, 0.001, 1)

	if err := th.Notify(context.Background(), sample); err != nil {
		t.Fatalf("expected first send to use the burst, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := th.Notify(ctx, sample); err == nil {
		t.Fatalf("expected second send to fail waiting for a token")
	}
	if calls != 1 {
		t.Fatalf("expected one delivery, got %d", calls)
	}
}

type fakeMailSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeMailSender) DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

func newTestMailer(t *testing.T, sender mailSender) *SMTPMailer {
	t.Helper()
	m, err := NewSMTPMailer(SMTPConfig{
		Host:     "smtp.example.com",
		Username: "site",
		Password: "secret",
		From:     "site@salon.example",
		To:       []string{"recepcao@salon.example"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.client = sender
	m.now = func() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC) }
	return m
}

// rawMessage serializa a mensagem entregue ao sender, como sairia no DATA.
func rawMessage(t *testing.T, msg *mail.Msg) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("write message: %v", err)
	}
	return buf.String()
}

func TestSMTPMailer_BuildsMessage(t *testing.T) {
	sender := &fakeMailSender{}
	m := newTestMailer(t, sender)
	if m.cfg.Port != 587 {
		t.Fatalf("expected default port 587, got %d", m.cfg.Port)
	}

	if err := m.Notify(context.Background(), sample); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}

	parsed, err := netmail.ReadMessage(strings.NewReader(rawMessage(t, sender.sent[0])))
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	replyTo, err := netmail.ParseAddress(parsed.Header.Get("Reply-To"))
	if err != nil || replyTo.Address != "ana@example.com" {
		t.Fatalf("unexpected Reply-To %q (%v)", parsed.Header.Get("Reply-To"), err)
	}
	if got := parsed.Header.Get("X-Salon-Reference"); got != sample.Reference {
		t.Fatalf("unexpected reference header %q", got)
	}
	if got := parsed.Header.Get("Subject"); got != sample.Subject {
		t.Fatalf("unexpected subject %q", got)
	}
	body, err := io.ReadAll(quotedprintable.NewReader(parsed.Body))
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.Contains(normalizeNewlines(string(body)), sample.Body) {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSMTPMailer_LongBodyWithCRLFStaysValid(t *testing.T) {
	sender := &fakeMailSender{}
	m := newTestMailer(t, sender)

	long := sample
	long.Body = strings.Repeat("á", 2500) + "\r\nlinha dois\r\n" + strings.Repeat("b", 2486)
	if n := utf8.RuneCountInString(long.Body); n != 5000 {
		t.Fatalf("fixture should have 5000 runes, got %d", n)
	}
	if err := m.Notify(context.Background(), long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := rawMessage(t, sender.sent[0])
	if strings.Contains(raw, "\r\r") {
		t.Fatalf("message contains a doubled CR")
	}
	if strings.Count(raw, "\n") != strings.Count(raw, "\r\n") {
		t.Fatalf("message contains bare LF line endings")
	}
	for i, line := range strings.Split(raw, "\r\n") {
		if len(line) > 998 {
			t.Fatalf("line %d has %d octets", i+1, len(line))
		}
	}

	parsed, err := netmail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	if !strings.EqualFold(parsed.Header.Get("Content-Transfer-Encoding"), "quoted-printable") {
		t.Fatalf("expected quoted-printable, got %q", parsed.Header.Get("Content-Transfer-Encoding"))
	}
	body, err := io.ReadAll(quotedprintable.NewReader(parsed.Body))
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got := normalizeNewlines(string(body)); !strings.Contains(got, normalizeNewlines(long.Body)) {
		t.Fatalf("decoded body does not match the submission")
	}
}

func TestSMTPMailer_WrapsSendError(t *testing.T) {
	m := newTestMailer(t, &fakeMailSender{err: errors.New("421 busy")})
	err := m.Notify(context.Background(), sample)
	if err == nil || !strings.Contains(err.Error(), "421 busy") {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestSMTPMailer_HonorsCancelledContext(t *testing.T) {
	sender := &fakeMailSender{}
	m := newTestMailer(t, sender)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Notify(ctx, sample); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected nothing sent")
	}
}

func TestNewSMTPMailer_RequiresAddresses(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPConfig{Host: "h"}); err == nil {
		t.Fatalf("expected error without from/to")
	}
	if _, err := NewSMTPMailer(SMTPConfig{Host: "h", From: "not an address", To: []string{"d@e.f"}}); err == nil {
		t.Fatalf("expected error for invalid from")
	}
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	fail map[int64]bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	mc := c.(tgbotapi.MessageConfig)
	if b.fail[mc.ChatID] {
		return tgbotapi.Message{}, errors.New("chat not found")
	}
	b.sent = append(b.sent, mc)
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifier_SendsToEveryChat(t *testing.T) {
	bot := &fakeBot{fail: map[int64]bool{}}
	n := newTelegramNotifier(bot, []int64{10, 20})

	if err := n.Notify(context.Background(), sample); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(bot.sent))
	}
	if !strings.HasPrefix(bot.sent[0].Text, sample.Subject+"\n\n") {
		t.Fatalf("unexpected text: %q", bot.sent[0].Text)
	}
}

func TestTelegramNotifier_ReportsFailedChats(t *testing.T) {
	bot := &fakeBot{fail: map[int64]bool{20: true}}
	n := newTelegramNotifier(bot, []int64{10, 20})

	err := n.Notify(context.Background(), sample)
	if err == nil || !strings.Contains(err.Error(), "chat 20") {
		t.Fatalf("expected error for chat 20, got %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("expected the healthy chat to still receive, got %d", len(bot.sent))
	}
}

func TestTelegramNotifier_TruncatesLongText(t *testing.T) {
	bot := &fakeBot{}
	n := newTelegramNotifier(bot, []int64{1})

	long := sample
	long.Body = strings.Repeat("a", 5000)
	if err := n.Notify(context.Background(), long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len([]rune(bot.sent[0].Text)); got != telegramMaxText {
		t.Fatalf("expected %d runes, got %d", telegramMaxText, got)
	}
}
