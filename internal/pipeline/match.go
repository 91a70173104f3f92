package pipeline

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"

	"gsadv/internal/config"
	"gsadv/internal/mapping"
	"gsadv/internal/normalize"
	"gsadv/internal/util"
)

// Synonym groups for unit-of-measure matching. Two normalized tokens
// match when they share a group.
var unitGroups = [][]string{
	{"each", "ea", "piece", "pc", "unit", "u", "pcs"},
	{"box", "bx", "case", "cs", "carton"},
	{"pack", "pk", "package", "pkg"},
	{"dozen", "dz", "12", "doz"},
	{"gross", "144", "gr"},
	{"ream", "rm", "500"},
	{"roll", "rl"},
	{"set", "st"},
	{"pair", "pr"},
	{"gallon", "gal", "g"},
	{"pound", "lb", "lbs", "#"},
	{"ounce", "oz"},
	{"inch", "in", `"`},
	{"foot", "ft", "'"},
	{"yard", "yd"},
	{"meter", "m"},
	{"centimeter", "cm"},
	{"millimeter", "mm"},
}

var unitGroupIndex = buildUnitGroupIndex()

func buildUnitGroupIndex() map[string]int {
	index := map[string]int{}
	for i, group := range unitGroups {
		for _, token := range group {
			index[token] = i
		}
	}
	return index
}

var (
	reTrailingSuffix = regexp.MustCompile(`\s+(inc|incorporated|corp|corporation|co|company|llc|ltd|limited|products|product|brands|brand)$`)
	reDashSpace      = regexp.MustCompile(`[-\s]+`)
)

// Matcher decides whether a scraped listing belongs to the target
// product. Manufacturer matching runs mapping-backed strategies first
// and falls back to direct comparison of normalized roots; unit
// matching goes through the synonym groups.
type Matcher struct {
	cfg     config.Config
	norm    *normalize.Normalizer
	mapping *mapping.Mapping
}

func NewMatcher(cfg config.Config, norm *normalize.Normalizer, m *mapping.Mapping) *Matcher {
	if m == nil {
		m = mapping.Empty()
	}
	return &Matcher{cfg: cfg, norm: norm, mapping: m}
}

func similarity(a, b string) float64 {
	return matchr.JaroWinkler(a, b, false)
}

func (m *Matcher) MatchesManufacturer(target, candidate string) bool {
	if strings.TrimSpace(target) == "" || strings.TrimSpace(candidate) == "" {
		return false
	}

	candidateAlnum := util.AlnumLower(candidate)
	normCandidate := m.norm.Name(candidate)

	// Strategy 1: curated mapping keyed by the exact original name.
	root, haveRoot := m.mapping.Root(target)
	if haveRoot {
		if candidateAlnum != "" && strings.Contains(candidateAlnum, root) {
			return true
		}
		if normCandidate != "" {
			if strings.Contains(normCandidate, root) {
				return true
			}
			if similarity(root, normCandidate) >= m.cfg.MatchThreshold {
				return true
			}
		}
		// Containment of the full original name, with trailing
		// corporate suffixes stripped. Catches names whose root
		// token lost a distinguishing part.
		targetClean := reDashSpace.ReplaceAllString(reTrailingSuffix.ReplaceAllString(strings.ToLower(target), ""), " ")
		candidateClean := reDashSpace.ReplaceAllString(strings.ToLower(candidate), " ")
		if targetClean != "" && strings.Contains(candidateClean, targetClean) {
			return true
		}
	}

	// Strategy 2: mapping keyed by the normalized original.
	if !haveRoot {
		if root, ok := m.mapping.RootByNormalized(m.norm.Name(target)); ok {
			if candidateAlnum != "" && strings.Contains(candidateAlnum, root) {
				return true
			}
			if normCandidate != "" && strings.Contains(normCandidate, root) {
				return true
			}
		}
	}

	// Strategy 3: direct comparison of normalized roots.
	normTarget := m.norm.Name(target)
	if normTarget == "" || normCandidate == "" {
		return false
	}
	if len(normTarget) >= 3 && len(normCandidate) >= 3 {
		if strings.Contains(normCandidate, normTarget) || strings.Contains(normTarget, normCandidate) {
			return true
		}
	}
	required := m.cfg.MatchThreshold
	if len(normTarget) < 4 || len(normCandidate) < 4 {
		required = m.cfg.ShortMatchThreshold
	}
	if normTarget == normCandidate && len(normTarget) <= 2 {
		// Both collapsed to the same near-empty token, which says
		// nothing about the actual names.
		return false
	}
	return similarity(normTarget, normCandidate) >= required
}

func (m *Matcher) MatchesUnit(target, candidate string) bool {
	if strings.TrimSpace(target) == "" || strings.TrimSpace(candidate) == "" {
		return false
	}

	normTarget := m.norm.Unit(target)
	normCandidate := m.norm.Unit(candidate)
	if normTarget == "" || normCandidate == "" {
		return false
	}
	if normTarget == normCandidate {
		return true
	}

	if gi, ok := unitGroupIndex[normTarget]; ok {
		if gj, ok := unitGroupIndex[normCandidate]; ok && gi == gj {
			return true
		}
	}

	return similarity(normTarget, normCandidate) >= m.cfg.UnitThreshold
}
