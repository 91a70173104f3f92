package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"gsadv/internal/util"
)

// Pattern lists are ordered most-specific first; the first pattern
// that yields a usable value wins. A miss on every pattern is a normal
// absent-field result, never an error.

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s*([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)([\d,]+\.\d{2})\s*EA`),
	regexp.MustCompile(`(?i)([\d,]+\.\d{2})\s*USD`),
	regexp.MustCompile(`(?i)price[:\s]*\$?\s*([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)unit[:\s]*\$?\s*([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)each[:\s]*\$?\s*([\d,]+\.?\d*)`),
}

var contractorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)contractor[:\s]*\n([^\n]+?)(?:\n|contract#|includes)`),
	regexp.MustCompile(`(?i)contractor[:\s]*([^\n]+?)(?:\n|contract#|includes|$)`),
	regexp.MustCompile(`(?i)vendor[:\s]*([^\n]+?)(?:\n|contract#|includes|$)`),
	regexp.MustCompile(`(?i)supplier[:\s]*([^\n]+?)(?:\n|contract#|includes|$)`),
	regexp.MustCompile(`(?i)company[:\s]*([^\n]+?)(?:\n|contract#|includes|$)`),
	regexp.MustCompile(`(?i)distributor[:\s]*([^\n]+?)(?:\n|contract#|includes|$)`),
}

var contractPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)contract#:\s*([a-z0-9-]+)`),
	regexp.MustCompile(`(?i)contract\s*number[:\s#]*([a-z0-9-]+)`),
	regexp.MustCompile(`(?i)gsa\s*contract[:\s#]*([a-z0-9-]+)`),
	regexp.MustCompile(`(?i)gsa[:\s#]*([a-z0-9-]+)`),
	regexp.MustCompile(`(?i)contract[:\s#]*([a-z0-9-]+)`),
}

// Words the loose contract patterns tend to capture from prose.
var contractStopWords = map[string]struct{}{
	"OR": {}, "AND": {}, "THE": {}, "TO": {}, "OF": {}, "IN": {}, "ON": {}, "AT": {}, "BY": {}, "FOR": {},
}

var manufacturerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmfr[:\s]*([a-z0-9\s&.,®-]+)`),
	regexp.MustCompile(`(?i)\bmanufacturer[:\s]*([a-z0-9\s&.,®-]+)`),
	regexp.MustCompile(`(?i)\bmfg[:\s]*([a-z0-9\s&.,®-]+)`),
	regexp.MustCompile(`(?i)\bbrand[:\s]*([a-z0-9\s&.,®-]+)`),
}

var unitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\$\s*[\d,]+\.?\d*\s*([a-z]+)`),
	regexp.MustCompile(`(?i)([a-z]+)\s*from`),
	regexp.MustCompile(`(?i)unit[:\s]*([a-z0-9]+)`),
	regexp.MustCompile(`(?i)uom[:\s]*([a-z0-9]+)`),
	regexp.MustCompile(`(?i)per[:\s]*([a-z0-9]+)`),
	regexp.MustCompile(`(?i)each[:\s]*([a-z0-9]+)`),
}

var sinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Schedule/SIN[:\s]+([A-Z0-9]+)/([A-Z0-9]+)`),
	regexp.MustCompile(`(?i)Schedule/SIN[:\s]+([A-Z0-9]+)`),
	regexp.MustCompile(`(?i)\bSIN[:\s]+([A-Z0-9]+)/([A-Z0-9]+)`),
	regexp.MustCompile(`(?i)\bSIN[:\s]+([A-Z0-9]+)`),
}

var reBareSIN = regexp.MustCompile(`(?i)^[A-Z0-9]+$`)

var (
	reTrailingContract = regexp.MustCompile(`(?i)\s+contract\s*$`)
	reTrailingIncludes = regexp.MustCompile(`(?i)\s+includes\s*$`)
	reSuffixInc        = regexp.MustCompile(`\s+[Ii]nc\.?\s*$`)
	reSuffixLLC        = regexp.MustCompile(`(?i)\s+llc\s*$`)
	reSuffixCorp       = regexp.MustCompile(`\s+[Cc]orp\.?\s*$`)
	reSuffixCo         = regexp.MustCompile(`\s+[Cc]o\.?\s*$`)
)

func ExtractPrice(text string) *float64 {
	for _, pattern := range pricePatterns {
		for _, groups := range pattern.FindAllStringSubmatch(text, -1) {
			raw := strings.TrimSpace(strings.ReplaceAll(groups[1], ",", ""))
			price, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			return util.FloatPtr(price)
		}
	}
	return nil
}

func ExtractContractor(text string) *string {
	for _, pattern := range contractorPatterns {
		groups := pattern.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		contractor := util.CollapseSpaces(groups[1])
		contractor = reTrailingContract.ReplaceAllString(contractor, "")
		contractor = reTrailingIncludes.ReplaceAllString(contractor, "")
		contractor = strings.Trim(contractor, " ,;")
		if contractor == "" {
			continue
		}
		contractor = util.TitleCase(contractor)
		contractor = reSuffixInc.ReplaceAllString(contractor, " Inc.")
		contractor = reSuffixLLC.ReplaceAllString(contractor, " LLC")
		contractor = reSuffixCorp.ReplaceAllString(contractor, " Corp.")
		contractor = reSuffixCo.ReplaceAllString(contractor, " Co.")
		return util.StringPtr(contractor)
	}
	return nil
}

func ExtractContract(text string) *string {
	for _, pattern := range contractPatterns {
		for _, groups := range pattern.FindAllStringSubmatch(text, -1) {
			contract := strings.ToUpper(strings.TrimSpace(groups[1]))
			if contract == "" {
				continue
			}
			if _, stop := contractStopWords[contract]; stop {
				continue
			}
			return util.StringPtr(contract)
		}
	}
	return nil
}

// ExtractManufacturer returns the manufacturer as displayed on the
// card. Preference order: mfr > manufacturer > mfg > brand.
func ExtractManufacturer(text string) *string {
	for _, pattern := range manufacturerPatterns {
		groups := pattern.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		value := util.CollapseSpaces(groups[1])
		if value == "" {
			continue
		}
		return util.StringPtr(value)
	}
	return nil
}

func ExtractUnit(text string) *string {
	for _, pattern := range unitPatterns {
		groups := pattern.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		unit := strings.ToUpper(strings.TrimSpace(groups[1]))
		if unit == "" {
			continue
		}
		return util.StringPtr(unit)
	}
	return nil
}

// ExtractSIN scans rendered page text for a Schedule/SIN marker. When
// a pattern captures "MAS/332510C" the segment after the slash is the
// SIN.
func ExtractSIN(text string) *string {
	for _, pattern := range sinPatterns {
		groups := pattern.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		var sin string
		if len(groups) >= 3 && groups[2] != "" {
			sin = groups[2]
		} else {
			sin = groups[1]
			if idx := strings.LastIndex(sin, "/"); idx >= 0 {
				sin = sin[idx+1:]
			}
		}
		sin = strings.ToUpper(strings.TrimSpace(sin))
		if sin != "" {
			return util.StringPtr(sin)
		}
	}
	return nil
}

// ExtractSINFromHTML is the table-level fallback: find a row whose
// text mentions schedule/sin and split its slash-bearing cell.
func ExtractSINFromHTML(html string) *string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var found *string
	doc.Find("table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		rowText := strings.ToLower(row.Text())
		if !strings.Contains(rowText, "schedule/sin") && !strings.Contains(rowText, "schedule sin") {
			return true
		}
		row.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			cellText := strings.TrimSpace(cell.Text())
			if !strings.Contains(cellText, "/") {
				return true
			}
			parts := strings.Split(cellText, "/")
			sin := strings.TrimSpace(parts[len(parts)-1])
			if sin == "" || !reBareSIN.MatchString(sin) {
				return true
			}
			sin = strings.ToUpper(sin)
			found = &sin
			return false
		})
		return found == nil
	})
	return found
}
