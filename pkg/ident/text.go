package ident

import (
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Sanitize trims s and collapses every run of whitespace, including line
// breaks, into a single space.
func Sanitize(s string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

// FormatQuantity renders a quantity in kilograms for display. Quantities
// below one kilogram are shown in grams.
func FormatQuantity(kg float64) string {
	if kg <= 0 {
		return "0 kg"
	}
	if kg < 1 {
		return fmt.Sprintf("%.0f g", kg*1000)
	}
	return fmt.Sprintf("%.2f kg", kg)
}
