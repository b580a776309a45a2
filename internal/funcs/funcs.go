// Package funcs holds helper functions exposed to the email templates.
package funcs

import (
	"fmt"
	"text/template"
	"time"

	"golang.org/x/text/currency"
)

var TemplateFuncs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC1123)
	},
	"formatNGN": FormatNGN,
}

// FormatNGN renders a kobo-free NGN amount with its currency symbol,
// shared by errHandler's manual-settlement alert fields and the audit
// worker's log lines.
func FormatNGN(amountNGN int64) string {
	unit, err := currency.ParseISO("NGN")
	if err != nil {
		return fmt.Sprintf("NGN %d", amountNGN)
	}
	return fmt.Sprintf("%v", currency.Symbol(unit.Amount(amountNGN)))
}
