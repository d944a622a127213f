// Package format renders numbers, money and addresses for display.
package format

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// Number formats an integer with thousands separators.
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// USD formats whole dollars, e.g. "$1,250,000".
func USD(n int64) string {
	if n < 0 {
		return "-$" + Number(-n)
	}
	return "$" + Number(n)
}

// Float formats f with the given number of decimals and thousands separators.
func Float(f float64, decimals int) string {
	return printer.Sprintf("%.*f", decimals, f)
}

// ShortAddress abbreviates a hex address to its first 6 and last 4 characters.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// Plural returns singular when n is 1 and plural otherwise.
func Plural(n int64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// Count formats n followed by the matching noun, e.g. "3 properties".
func Count(n int64, singular, plural string) string {
	return strings.Join([]string{Number(n), Plural(n, singular, plural)}, " ")
}
