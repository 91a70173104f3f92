package normalize

import (
	"regexp"
	"strings"
	"sync"
)

// Terms dropped when reducing a manufacturer display name to its root
// token. They can appear anywhere in the name.
var removableTerms = map[string]struct{}{
	// corporate forms
	"inc": {}, "incorporated": {}, "corp": {}, "corporation": {}, "co": {},
	"company": {}, "llc": {}, "l.l.c": {}, "ltd": {}, "limited": {},
	"gmbh": {}, "s.a.": {}, "s.a": {}, "s.p.a.": {}, "spa": {}, "ag": {},
	"kg": {}, "nv": {}, "plc": {}, "pty": {}, "pte": {}, "sro": {},
	"s.r.o": {}, "srl": {}, "lp": {}, "llp": {}, "pc": {},
	// common descriptors
	"products": {}, "product": {}, "brands": {}, "brand": {}, "group": {},
	"international": {}, "industries": {}, "industry": {}, "mfg": {},
	"manufacturing": {}, "manufacturers": {}, "division": {}, "div": {},
	// geography / noise
	"usa": {}, "u.s.a": {}, "u.s.": {}, "us": {}, "america": {},
	"american": {}, "north": {}, "south": {}, "europe": {}, "european": {},
	"asia": {}, "pacific": {},
}

var (
	reNonAlnumRun = regexp.MustCompile(`[^0-9a-z]+`)
	reNonAlnum    = regexp.MustCompile(`[^0-9a-z]`)
	reAlnumRun    = regexp.MustCompile(`[0-9a-z]+`)
	reUnitStrip   = regexp.MustCompile(`[^a-z0-9\s]`)
	reWhitespace  = regexp.MustCompile(`\s+`)
)

// RootForm reduces a manufacturer display name to a single lowercase
// alphanumeric token: tokenize, drop removable terms, take the first
// surviving token. Falls back to the first alphanumeric run when every
// token is removable.
func RootForm(name string) string {
	if name == "" {
		return ""
	}
	lower := strings.ToLower(name)

	tokens := strings.Fields(reNonAlnumRun.ReplaceAllString(lower, " "))
	chosen := ""
	for _, token := range tokens {
		if _, removable := removableTerms[token]; removable {
			continue
		}
		chosen = token
		break
	}
	if chosen == "" {
		if run := reAlnumRun.FindString(lower); run != "" {
			chosen = run
		}
	}

	return reNonAlnum.ReplaceAllString(chosen, "")
}

// UnitForm reduces a unit-of-measure label to a bare lowercase token:
// strip punctuation, then strip whitespace entirely.
func UnitForm(unit string) string {
	if unit == "" {
		return ""
	}
	lower := strings.ToLower(strings.TrimSpace(unit))
	lower = reUnitStrip.ReplaceAllString(lower, "")
	return reWhitespace.ReplaceAllString(lower, "")
}

// Normalizer memoizes RootForm and UnitForm. The caches belong to the
// instance, so independent runs never share state.
type Normalizer struct {
	mu    sync.Mutex
	names map[string]string
	units map[string]string
}

func New() *Normalizer {
	return &Normalizer{
		names: map[string]string{},
		units: map[string]string{},
	}
}

func (n *Normalizer) Name(raw string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cached, ok := n.names[raw]; ok {
		return cached
	}
	root := RootForm(raw)
	n.names[raw] = root
	return root
}

func (n *Normalizer) Unit(raw string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cached, ok := n.units[raw]; ok {
		return cached
	}
	form := UnitForm(raw)
	n.units[raw] = form
	return form
}
