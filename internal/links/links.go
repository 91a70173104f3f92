package links

import (
	"net/url"
	"regexp"
	"strings"

	"gsadv/internal/workbook"
)

const productDetailBase = "https://www.gsaadvantage.gov/advantage/ws/catalog/product_detail"

const DirectLinkColumn = "GSA Direct Product Link"

// Search links embed the item number as q=7:1<ITEM>; the item runs to
// the next query separator.
var reItemNumber = regexp.MustCompile(`q=7:1([^&]+)`)

func ItemNumberFromSearchLink(link string) string {
	groups := reItemNumber.FindStringSubmatch(link)
	if groups == nil {
		return ""
	}
	return strings.TrimSpace(groups[1])
}

// DirectProductLink builds the product_detail URL. Any missing
// component yields an empty string rather than a half-built link.
func DirectProductLink(itemNumber, mfrName, contractNumber string) string {
	if itemNumber == "" || mfrName == "" || contractNumber == "" {
		return ""
	}
	params := url.Values{}
	params.Set("itemNumber", itemNumber)
	params.Set("mfrName", mfrName)
	params.Set("contractNumber", contractNumber)
	return productDetailBase + "?" + params.Encode()
}

// Generate fills the direct-link column for every row, overwriting any
// previous contents. Returns how many rows produced a usable link.
func Generate(t *workbook.Table, linksCol, mfrCol, contractCol string) int {
	t.EnsureColumn(DirectLinkColumn)

	generated := 0
	for i := 0; i < t.Len(); i++ {
		item := ItemNumberFromSearchLink(t.Get(i, linksCol))

		mfr := strings.TrimSpace(t.Get(i, mfrCol))
		contract := strings.TrimSpace(t.Get(i, contractCol))
		if strings.EqualFold(mfr, "nan") {
			mfr = ""
		}
		if strings.EqualFold(contract, "nan") {
			contract = ""
		}

		link := DirectProductLink(item, mfr, contract)
		t.Set(i, DirectLinkColumn, link)
		if link != "" {
			generated++
		}
	}
	return generated
}
