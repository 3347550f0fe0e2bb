package main

import (
	"regexp"
	"sort"
	"strconv"
)

var numberWords = map[string]int{
	"un": 1, "una": 1, "uno": 1,
	"dos": 2, "tres": 3, "cuatro": 4, "cinco": 5,
	"seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10,
}

// ItemMention is one recognized menu item in a message with its quantity.
type ItemMention struct {
	Key string
	Qty int
	pos int // byte offset of the alias in the normalized text
}

// AmbiguousMention is an alias that matched more than one catalog entry.
// It is surfaced to the customer, never resolved by guessing.
type AmbiguousMention struct {
	Token string
	Keys  []string
}

type ParsedItems struct {
	Mentions  []ItemMention
	Ambiguous []AmbiguousMention
}

func (p ParsedItems) Empty() bool {
	return len(p.Mentions) == 0 && len(p.Ambiguous) == 0
}

// aliasPattern matches an alias as whole words, tolerating a simple
// Spanish plural on the last word ("milanesa" matches "milanesas").
func aliasPattern(alias string) string {
	return regexp.QuoteMeta(alias) + `(?:s|es)?`
}

// qtyNear finds the quantity attached to one alias occurrence. Accepted
// forms, in order: "alias x2", "2 x alias", "2 alias", "dos alias".
// Quantities bind to the nearest following alias only, so a number meant
// for one item never leaks onto another mention in the same message.
func qtyNear(t, alias string) int {
	ea := aliasPattern(alias)
	if m := regexp.MustCompile(`\b` + ea + `\s*x\s*(\d+)\b`).FindStringSubmatch(t); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if m := regexp.MustCompile(`\b(\d+)\s*x\s*` + ea).FindStringSubmatch(t); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if m := regexp.MustCompile(`\b(\d+)\s+` + ea).FindStringSubmatch(t); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	for w, n := range numberWords {
		if regexp.MustCompile(`\b` + w + `\s+` + ea).MatchString(t) {
			return n
		}
	}
	return 1
}

// ParseItems scans a message for menu item mentions. For each item the
// longest matching alias wins, and each mention resolves its quantity
// independently (default 1). Aliases shared by several items come back as
// ambiguities instead of mentions.
func (c *Catalog) ParseItems(text string) ParsedItems {
	t := normText(text)
	var out ParsedItems
	matchedAlias := map[string]string{} // item key -> alias that matched

	for _, key := range c.keys {
		for _, alias := range c.matchers[key] {
			re := regexp.MustCompile(`\b` + aliasPattern(alias) + `\b`)
			if re.MatchString(t) {
				matchedAlias[key] = alias
				break
			}
		}
	}

	seenAmbiguous := map[string]bool{}
	for key, alias := range matchedAlias {
		if cands := c.Resolve(alias); len(cands) > 1 {
			if !seenAmbiguous[alias] {
				seenAmbiguous[alias] = true
				out.Ambiguous = append(out.Ambiguous, AmbiguousMention{Token: alias, Keys: cands})
			}
			continue
		}
		loc := regexp.MustCompile(`\b` + aliasPattern(alias) + `\b`).FindStringIndex(t)
		pos := 0
		if loc != nil {
			pos = loc[0]
		}
		out.Mentions = append(out.Mentions, ItemMention{
			Key: key,
			Qty: qtyNear(t, alias),
			pos: pos,
		})
	}

	// insertion order = order of appearance in the message
	sort.Slice(out.Mentions, func(i, j int) bool { return out.Mentions[i].pos < out.Mentions[j].pos })
	sort.Slice(out.Ambiguous, func(i, j int) bool { return out.Ambiguous[i].Token < out.Ambiguous[j].Token })
	return out
}
