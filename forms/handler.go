// Package forms implementa os endpoints dos formulários do site (agendamento,
// vale-presente, contato e newsletter). Cada submissão válida vira uma
// notify.Message com número de referência e é entregue à equipe do salão.
//
// O rate limit fica fora daqui: as rotas são embrulhadas pelo middleware de
// ratelimit antes de chegar nestes handlers.
package forms

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"salon-web/notify"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	notifier notify.Notifier
	ids      *snowflake.Node
	log      zerolog.Logger
	now      func() time.Time
}

type Option func(*Handler)

func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler cria os handlers. nodeID alimenta o gerador snowflake das referências
// e precisa ser único por instância.
func NewHandler(n notify.Notifier, nodeID int64, opts ...Option) (*Handler, error) {
	if n == nil {
		return nil, errors.New("forms: notifier is required")
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("forms: snowflake node %d: %w", nodeID, err)
	}
	h := &Handler{notifier: n, ids: node, log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Booking() http.Handler {
	return h.handle("booking", func() submission { return &Booking{} })
}

func (h *Handler) Voucher() http.Handler {
	return h.handle("voucher", func() submission { return &Voucher{} })
}

func (h *Handler) Contact() http.Handler {
	return h.handle("contact", func() submission { return &Contact{} })
}

func (h *Handler) Newsletter() http.Handler {
	return h.handle("newsletter", func() submission { return &Newsletter{} })
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type acceptedBody struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

func (h *Handler) handle(kind string, newSub func() submission) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := newSub()

		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(sub); err != nil {
			h.log.Debug().Err(err).Str("form", kind).Msg("forms: bad payload")
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_payload"})
			return
		}

		ref := h.ids.Generate().String()

		// honeypot preenchido: bot. Responde igual a um envio real e não entrega nada.
		if sub.trap() != "" {
			h.log.Info().Str("form", kind).Str("reference", ref).Msg("forms: honeypot triggered")
			writeJSON(w, http.StatusAccepted, acceptedBody{Status: "sent", Reference: ref})
			return
		}

		if fields := sub.validate(h.now()); len(fields) > 0 {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation", Fields: fields})
			return
		}

		if err := h.notifier.Notify(r.Context(), sub.message(ref)); err != nil {
			h.log.Error().Err(err).Str("form", kind).Str("reference", ref).Msg("forms: delivery failed")
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "delivery_failed"})
			return
		}

		h.log.Info().Str("form", kind).Str("reference", ref).Msg("forms: submission delivered")
		writeJSON(w, http.StatusAccepted, acceptedBody{Status: "sent", Reference: ref})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
