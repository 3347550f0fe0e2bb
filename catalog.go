package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// CatalogLoadError is fatal at startup: a catalog that fails to load is a
// configuration problem, not something to recover per-message.
type CatalogLoadError struct {
	Source string // "menu" or "synonyms"
	Line   int
	Reason string
}

func (e *CatalogLoadError) Error() string {
	return fmt.Sprintf("catalog load (%s, line %d): %s", e.Source, e.Line, e.Reason)
}

type MenuItem struct {
	Key   string
	Name  string
	Price int64 // cents
}

// Catalog holds the menu and the alias index. Immutable after load; safe
// for concurrent reads across sessions.
type Catalog struct {
	items    map[string]MenuItem
	keys     []string            // menu display order
	aliases  map[string][]string // normalized alias -> candidate item keys
	matchers map[string][]string // item key -> normalized aliases, longest first
}

func LoadCatalog(menuPath, synonymsPath string) (*Catalog, error) {
	mf, err := os.Open(menuPath)
	if err != nil {
		return nil, fmt.Errorf("open menu: %w", err)
	}
	defer mf.Close()

	var sr io.Reader
	if synonymsPath != "" {
		sf, err := os.Open(synonymsPath)
		if err != nil {
			return nil, fmt.Errorf("open synonyms: %w", err)
		}
		defer sf.Close()
		sr = sf
	} else {
		sr = strings.NewReader("")
	}
	return ParseCatalog(mf, sr)
}

func ParseCatalog(menu, synonyms io.Reader) (*Catalog, error) {
	c := &Catalog{
		items:    map[string]MenuItem{},
		aliases:  map[string][]string{},
		matchers: map[string][]string{},
	}
	if err := c.parseMenu(menu); err != nil {
		return nil, err
	}
	if err := c.parseSynonyms(synonyms); err != nil {
		return nil, err
	}
	c.buildMatchers()
	return c, nil
}

// Menu format, one item per line: "DisplayName = price" or "DisplayName $price".
// Blank lines and #-comments are skipped. Anything else fails the load.
func (c *Catalog) parseMenu(r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var name, rawPrice string
		if i := strings.Index(line, "="); i >= 0 {
			name = strings.TrimSpace(line[:i])
			rawPrice = strings.TrimSpace(line[i+1:])
		} else if i := strings.LastIndex(line, "$"); i >= 0 {
			name = strings.TrimSpace(line[:i])
			rawPrice = strings.TrimSpace(line[i:])
		} else {
			return &CatalogLoadError{Source: "menu", Line: n, Reason: "missing price field"}
		}

		price, ok := parsePriceCents(rawPrice)
		if name == "" || !ok {
			return &CatalogLoadError{Source: "menu", Line: n, Reason: "malformed line: " + line}
		}

		key := slugify(name)
		if _, dup := c.items[key]; dup {
			return &CatalogLoadError{Source: "menu", Line: n, Reason: "duplicate item key: " + key}
		}
		c.items[key] = MenuItem{Key: key, Name: name, Price: price}
		c.keys = append(c.keys, key)
		c.addAlias(normText(name), key)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read menu: %w", err)
	}
	if len(c.items) == 0 {
		return &CatalogLoadError{Source: "menu", Line: n, Reason: "empty menu"}
	}
	return nil
}

// Synonyms format, one item per line: "key|alias1,alias2,...". An alias
// line referencing a key missing from the menu fails the load.
func (c *Catalog) parseSynonyms(r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, rhs, found := strings.Cut(line, "|")
		if !found {
			return &CatalogLoadError{Source: "synonyms", Line: n, Reason: "missing '|' separator: " + line}
		}
		key = strings.TrimSpace(key)
		if _, ok := c.items[key]; !ok {
			return &CatalogLoadError{Source: "synonyms", Line: n, Reason: "unknown item key: " + key}
		}
		for _, a := range strings.Split(rhs, ",") {
			if a = normText(a); a != "" {
				c.addAlias(a, key)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read synonyms: %w", err)
	}
	return nil
}

func (c *Catalog) addAlias(alias, key string) {
	for _, k := range c.aliases[alias] {
		if k == key {
			return
		}
	}
	c.aliases[alias] = append(c.aliases[alias], key)
}

// buildMatchers assembles, per item, the alias list used for scanning free
// text, longest first so "papas fritas" wins over "papas". Common spelling
// variants (sandwich/sanguche) are added for every alias.
func (c *Catalog) buildMatchers() {
	variants := func(a string) []string {
		out := []string{a}
		if strings.Contains(a, "sandwich") {
			out = append(out, strings.ReplaceAll(a, "sandwich", "sanguche"))
		}
		if strings.Contains(a, "sanguche") {
			out = append(out, strings.ReplaceAll(a, "sanguche", "sandwich"))
		}
		return out
	}

	perKey := map[string]map[string]bool{}
	for alias, keys := range c.aliases {
		for _, k := range keys {
			if perKey[k] == nil {
				perKey[k] = map[string]bool{}
			}
			for _, v := range variants(alias) {
				perKey[k][v] = true
			}
		}
	}
	for k, set := range perKey {
		list := make([]string, 0, len(set))
		for a := range set {
			list = append(list, a)
			if _, known := c.aliases[a]; !known {
				c.addAlias(a, k)
			}
		}
		sort.Slice(list, func(i, j int) bool {
			if len(list[i]) != len(list[j]) {
				return len(list[i]) > len(list[j])
			}
			return list[i] < list[j]
		})
		c.matchers[k] = list
	}
}

// Resolve maps a free-text token to zero or more catalog keys. Zero means
// "no item recognized"; more than one means the alias is ambiguous and the
// caller must surface the ambiguity instead of guessing.
func (c *Catalog) Resolve(token string) []string {
	t := normText(token)
	keys := c.aliases[t]
	if len(keys) == 0 {
		// tolerate a simple plural
		for _, singular := range []string{strings.TrimSuffix(t, "es"), strings.TrimSuffix(t, "s")} {
			if singular != t {
				if keys = c.aliases[singular]; len(keys) > 0 {
					break
				}
			}
		}
	}
	out := make([]string, len(keys))
	copy(out, keys)
	sort.Strings(out)
	return out
}

func (c *Catalog) Item(key string) (MenuItem, bool) {
	it, ok := c.items[key]
	return it, ok
}

// Items returns the menu in display order.
func (c *Catalog) Items() []MenuItem {
	out := make([]MenuItem, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.items[k])
	}
	return out
}

// -------- beverage heuristic --------

var beverageWords = []string{
	"coca", "cocacola", "coca cola", "gaseosa", "cola", "pepsi",
	"fanta", "sprite", "agua", "jugo", "bebida",
}

// HasBeverages reports whether any menu item looks like a drink, so the
// bot can answer "no beverages today" instead of ignoring the request.
func (c *Catalog) HasBeverages() bool {
	var joined strings.Builder
	for _, it := range c.items {
		joined.WriteString(normText(it.Name))
		joined.WriteString(" ")
	}
	all := joined.String()
	for _, w := range []string{"coca", "gaseosa", "agua", "bebida", "jugo", "pepsi", "sprite", "fanta"} {
		if strings.Contains(all, w) {
			return true
		}
	}
	return false
}

func MentionsBeverage(text string) bool {
	t := " " + normText(text) + " "
	for _, w := range beverageWords {
		if strings.Contains(t, " "+w+" ") {
			return true
		}
	}
	return false
}
