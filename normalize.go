package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	rePunct  = regexp.MustCompile(`[^\w\s$]`)
	reSpaces = regexp.MustCompile(`\s+`)
)

func stripAccents(s string) string {
	out, _, err := transform.String(accentStripper, s)
	if err != nil {
		return s
	}
	return out
}

// normText lowercases, strips accents and punctuation and collapses
// whitespace. All matching (aliases, keywords) happens on normalized text.
func normText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = stripAccents(s)
	s = rePunct.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func slugify(s string) string {
	s = normText(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "item"
	}
	return s
}

func clipWords(s string, maxWords int) string {
	words := strings.Fields(strings.TrimSpace(s))
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}

var (
	reDecimalPrice = regexp.MustCompile(`^(\d+)[.,](\d{2})$`)
	reNonDigit     = regexp.MustCompile(`[^\d]`)
)

// parsePriceCents accepts "$10000", "10000", "$ 10.000" and "5.00".
// A single separator followed by exactly two digits is a decimal part;
// any other dot/comma is a thousands separator.
func parsePriceCents(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "$", ""))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}
	if m := reDecimalPrice.FindStringSubmatch(s); m != nil {
		whole, err1 := strconv.ParseInt(m[1], 10, 64)
		frac, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return whole*100 + frac, true
	}
	digits := reNonDigit.ReplaceAllString(s, "")
	if digits == "" || len(digits) != len(s)-strings.Count(s, ".")-strings.Count(s, ",") {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n * 100, true
}

func formatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func firstNonEmpty(a, b string) string {
	a = strings.TrimSpace(a)
	if a != "" {
		return a
	}
	return strings.TrimSpace(b)
}
