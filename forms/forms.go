package forms

import (
	"fmt"
	"strings"
	"time"

	"salon-web/notify"

	"github.com/asaskevich/govalidator"
)

const phonePattern = `^\+?[0-9 ()\-]{6,20}$`

// submission é o contrato comum dos quatro formulários.
type submission interface {
	// validate devolve campo -> motivo; vazio quando está tudo certo.
	validate(today time.Time) map[string]string
	message(ref string) notify.Message
	trap() string
}

type Booking struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Service       string `json:"service"`
	PreferredDate string `json:"preferredDate"`
	PreferredTime string `json:"preferredTime"`
	Message       string `json:"message"`
	Website       string `json:"website"`
}

type Voucher struct {
	BuyerName     string  `json:"buyerName"`
	BuyerEmail    string  `json:"buyerEmail"`
	RecipientName string  `json:"recipientName"`
	Amount        float64 `json:"amount"`
	Delivery      string  `json:"delivery"`
	Address       string  `json:"address"`
	Message       string  `json:"message"`
	Website       string  `json:"website"`
}

type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Website string `json:"website"`
}

type Newsletter struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Website string `json:"website"`
}

// MaxVoucherAmount é o maior valor aceito para um vale-presente.
const MaxVoucherAmount = 5000

type fieldErrors map[string]string

func (f fieldErrors) required(field, v string) bool {
	if strings.TrimSpace(v) == "" {
		f[field] = "required"
		return false
	}
	return true
}

func (f fieldErrors) length(field, v string, max int) {
	if !govalidator.StringLength(v, "0", fmt.Sprint(max)) {
		f[field] = fmt.Sprintf("must be at most %d characters", max)
	}
}

func (f fieldErrors) email(field, v string) {
	if f.required(field, v) && !govalidator.IsEmail(strings.TrimSpace(v)) {
		f[field] = "invalid email"
	}
}

func (f fieldErrors) phone(field, v string, required bool) {
	if strings.TrimSpace(v) == "" {
		if required {
			f[field] = "required"
		}
		return
	}
	if !govalidator.Matches(strings.TrimSpace(v), phonePattern) {
		f[field] = "invalid phone"
	}
}

func (b *Booking) validate(today time.Time) map[string]string {
	f := fieldErrors{}
	if f.required("name", b.Name) {
		f.length("name", b.Name, 100)
	}
	f.email("email", b.Email)
	f.phone("phone", b.Phone, true)
	if f.required("service", b.Service) {
		f.length("service", b.Service, 100)
	}
	if f.required("preferredDate", b.PreferredDate) {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(b.PreferredDate))
		switch {
		case err != nil:
			f["preferredDate"] = "must be YYYY-MM-DD"
		case d.Before(truncateDay(today)):
			f["preferredDate"] = "must not be in the past"
		}
	}
	if v := strings.TrimSpace(b.PreferredTime); v != "" {
		if _, err := time.Parse("15:04", v); err != nil {
			f["preferredTime"] = "must be HH:MM"
		}
	}
	f.length("message", b.Message, 2000)
	return f
}

func (b *Booking) message(ref string) notify.Message {
	when := strings.TrimSpace(b.PreferredDate)
	if t := strings.TrimSpace(b.PreferredTime); t != "" {
		when += " " + t
	}
	return notify.Message{
		Subject:   fmt.Sprintf("Novo agendamento: %s - %s", clean(b.Service), clean(b.Name)),
		Body:      body(ref, "Nome", b.Name, "E-mail", b.Email, "Telefone", b.Phone, "Serviço", b.Service, "Data desejada", when, "Mensagem", b.Message),
		ReplyTo:   strings.TrimSpace(b.Email),
		Reference: ref,
	}
}

func (b *Booking) trap() string { return b.Website }

func (v *Voucher) validate(time.Time) map[string]string {
	f := fieldErrors{}
	if f.required("buyerName", v.BuyerName) {
		f.length("buyerName", v.BuyerName, 100)
	}
	f.email("buyerEmail", v.BuyerEmail)
	if f.required("recipientName", v.RecipientName) {
		f.length("recipientName", v.RecipientName, 100)
	}
	if v.Amount <= 0 || v.Amount > MaxVoucherAmount {
		f["amount"] = fmt.Sprintf("must be between 0 and %d", MaxVoucherAmount)
	}
	switch strings.ToLower(strings.TrimSpace(v.Delivery)) {
	case "email":
	case "post":
		f.required("address", v.Address)
	default:
		f["delivery"] = "must be email or post"
	}
	f.length("message", v.Message, 1000)
	return f
}

func (v *Voucher) message(ref string) notify.Message {
	return notify.Message{
		Subject: fmt.Sprintf("Pedido de vale-presente: R$ %.2f - %s", v.Amount, clean(v.BuyerName)),
		Body: body(ref,
			"Comprador", v.BuyerName, "E-mail", v.BuyerEmail, "Presenteado", v.RecipientName,
			"Valor", fmt.Sprintf("R$ %.2f", v.Amount), "Entrega", v.Delivery, "Endereço", v.Address,
			"Mensagem", v.Message),
		ReplyTo:   strings.TrimSpace(v.BuyerEmail),
		Reference: ref,
	}
}

func (v *Voucher) trap() string { return v.Website }

func (c *Contact) validate(time.Time) map[string]string {
	f := fieldErrors{}
	if f.required("name", c.Name) {
		f.length("name", c.Name, 100)
	}
	f.email("email", c.Email)
	f.phone("phone", c.Phone, false)
	if f.required("message", c.Message) {
		f.length("message", c.Message, 5000)
	}
	return f
}

func (c *Contact) message(ref string) notify.Message {
	return notify.Message{
		Subject:   fmt.Sprintf("Contato pelo site - %s", clean(c.Name)),
		Body:      body(ref, "Nome", c.Name, "E-mail", c.Email, "Telefone", c.Phone, "Mensagem", c.Message),
		ReplyTo:   strings.TrimSpace(c.Email),
		Reference: ref,
	}
}

func (c *Contact) trap() string { return c.Website }

func (n *Newsletter) validate(time.Time) map[string]string {
	f := fieldErrors{}
	f.email("email", n.Email)
	f.length("name", n.Name, 100)
	return f
}

func (n *Newsletter) message(ref string) notify.Message {
	return notify.Message{
		Subject:   fmt.Sprintf("Nova inscrição na newsletter - %s", clean(n.Email)),
		Body:      body(ref, "E-mail", n.Email, "Nome", n.Name),
		ReplyTo:   strings.TrimSpace(n.Email),
		Reference: ref,
	}
}

func (n *Newsletter) trap() string { return n.Website }

// body monta linhas "Rótulo: valor" a partir de pares, pulando valores vazios.
func body(ref string, pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		v := strings.TrimSpace(pairs[i+1])
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", pairs[i], v)
	}
	fmt.Fprintf(&b, "\nReferência: %s\n", ref)
	return b.String()
}

// clean tira quebras de linha de valores que vão para o assunto do e-mail.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
