package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  Hola!  ", "hola"},
		{"¿Milanesa, por favor?", "milanesa por favor"},
		{"CAFÉ con azúcar", "cafe con azucar"},
		{"dos   espacios", "dos espacios"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normText(tc.in), "input %q", tc.in)
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "sandwich_de_lomo", slugify("Sándwich de lomo"))
	assert.Equal(t, "item", slugify("   "))
}

func TestClipWords(t *testing.T) {
	assert.Equal(t, "a b c", clipWords("a b c d e", 3))
	assert.Equal(t, "a b", clipWords("  a   b  ", 5))
}

func TestParsePriceCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"5.00", 500, true},
		{"$5.00", 500, true},
		{"10000", 1000000, true},
		{"$ 10.000", 1000000, true},
		{"2,50", 250, true},
		{"gratis", 0, false},
		{"", 0, false},
		{"12 pesos", 0, false},
	}
	for _, tc := range cases {
		got, ok := parsePriceCents(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$10.00", formatMoney(1000))
	assert.Equal(t, "$0.50", formatMoney(50))
	assert.Equal(t, "-$1.25", formatMoney(-125))
}
