package pages

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/pitabwire/crmdesk/model"
)

// Placeholder is rendered for absent values.
const Placeholder = "—"

var (
	ruPrinter      = message.NewPrinter(language.Russian)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	statusClassBad = regexp.MustCompile(`[^0-9a-zа-я\-]`)
)

// FormatCurrency renders an amount with Russian digit grouping and the
// rouble sign.
func FormatCurrency(amount float64) string {
	return ruPrinter.Sprint(number.Decimal(amount, number.MaxFractionDigits(3))) + " ₽"
}

// FormatDate renders a timestamp as dd.mm.yyyy, or Placeholder when unknown.
func FormatDate(ts *model.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return Placeholder
	}
	return ts.Format("02.01.2006")
}

// StatusClass turns a status label into a CSS class suffix. An empty status
// maps to the active label.
func StatusClass(status string) string {
	if strings.TrimSpace(status) == "" {
		return "активен"
	}
	s := strings.ToLower(strings.TrimSpace(status))
	s = strings.ReplaceAll(s, "ё", "е")
	s = whitespaceRun.ReplaceAllString(s, "-")
	return statusClassBad.ReplaceAllString(s, "")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}
