package ratelimit

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/text/language"
)

// Idiomas das mensagens de espera; o primeiro é o padrão do site.
var supportedLanguages = []language.Tag{
	language.BrazilianPortuguese,
	language.English,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

var ptUnits = map[string]string{
	"second": "segundo",
	"minute": "minuto",
	"hour":   "hora",
}

func pickLanguage(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return supportedLanguages[0]
	}
	_, idx, _ := languageMatcher.Match(tags...)
	return supportedLanguages[idx]
}

// RetryMessage monta a mensagem "tente de novo em X" para o usuário final,
// no idioma mais próximo do Accept-Language.
func RetryMessage(acceptLanguage string, wait time.Duration) string {
	n, unit := waitUnit(wait)

	if pickLanguage(acceptLanguage) == language.English {
		if n != 1 {
			unit += "s"
		}
		return fmt.Sprintf("Too many requests. Please try again in %d %s.", n, unit)
	}

	word := ptUnits[unit]
	if n != 1 {
		word += "s"
	}
	return fmt.Sprintf("Muitas solicitações. Tente novamente em %d %s.", n, word)
}

// waitUnit escolhe a maior unidade legível, arredondando para cima.
func waitUnit(d time.Duration) (int, string) {
	switch {
	case d <= time.Minute:
		return max(1, int(math.Ceil(d.Seconds()))), "second"
	case d <= time.Hour:
		return int(math.Ceil(d.Minutes())), "minute"
	default:
		return int(math.Ceil(d.Hours())), "hour"
	}
}
