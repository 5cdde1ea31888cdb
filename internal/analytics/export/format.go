package export

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const missing = "-"

var printer = message.NewPrinter(language.Indonesian)

// FormatTon renders tons with Indonesian separators, e.g. 1.234,56.
func FormatTon(d decimal.Decimal) string {
	return printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

// FormatPercent renders an attainment with one decimal place, or "-" when absent.
func FormatPercent(d *decimal.Decimal) string {
	if d == nil {
		return missing
	}
	return printer.Sprintf("%.1f%%", d.Round(1).InexactFloat64())
}

func tons(d decimal.Decimal) string {
	return d.StringFixed(3)
}

func optionalTons(d *decimal.Decimal) string {
	if d == nil {
		return missing
	}
	return tons(*d)
}

func percent(d *decimal.Decimal) string {
	if d == nil {
		return missing
	}
	return d.StringFixed(1)
}

func cellValue(d *decimal.Decimal) any {
	if d == nil {
		return missing
	}
	return d.InexactFloat64()
}
