package services

import (
	"strings"
	"unicode"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/unicode/norm"
)

// NormalizeCity canonicalizes a city name for equality checks:
// lowercase, trimmed, NFKD-decomposed, letters and digits only.
// Two cities are the same place iff their normalized forms are equal.
func NormalizeCity(city string) string {
	if city == "" {
		return ""
	}
	city = norm.NFKD.String(strings.TrimSpace(strings.ToLower(city)))

	var b strings.Builder
	b.Grow(len(city))
	for _, r := range city {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CitiesMatch reports whether two free-text cities name the same place.
func CitiesMatch(a, b string) bool {
	return NormalizeCity(a) == NormalizeCity(b)
}

// CitySearchKey is the lenient key used by the public giveaway list.
// It transliterates to ASCII first so "Tromso" finds "Tromsø".
// Entry eligibility never uses it.
func CitySearchKey(city string) string {
	return NormalizeCity(unidecode.Unidecode(city))
}
