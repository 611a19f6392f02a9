// Package logger monta o zerolog usado pelo binário.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New devolve um logger no nível pedido. format "json" escreve JSON puro (produção);
// qualquer outro valor usa o console writer colorido.
func New(level, format string) zerolog.Logger {
	return newWithWriter(level, format, os.Stdout)
}

func newWithWriter(level, format string, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	w := out
	if strings.ToLower(format) != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
