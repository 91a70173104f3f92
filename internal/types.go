package internal

// SINNotFound marks a row whose detail pages were reached but never
// yielded a SIN. Once written, the row is skipped on every later run.
const SINNotFound = "SIN not found"

type RowStatus string

const (
	RowMatched  RowStatus = "MATCHED"
	RowPartial  RowStatus = "PARTIAL"
	RowNotFound RowStatus = "NOT_FOUND"
	RowSkipped  RowStatus = "SKIPPED"
	RowFailed   RowStatus = "FAILED"
)

// ProductRow is the per-row input view the processor works from.
type ProductRow struct {
	Index        int
	Item         string
	Manufacturer string
	Unit         string
	SearchURL    string
}

// CandidateCard is one listing scraped from a search-results page.
type CandidateCard struct {
	Text      string `json:"text"`
	DetailURL string `json:"detailUrl"`
}

// DetailPage is a loaded product-detail page: rendered body text plus
// the raw HTML for table-level fallbacks.
type DetailPage struct {
	Text string
	HTML string
}

// MatchFields holds whatever a matched card yielded. Nil means the
// field was absent on the page, which is normal.
type MatchFields struct {
	Price      *float64
	Contractor *string
	Contract   *string
	SIN        *string
}

type RowOutcome struct {
	Index      int
	Item       string
	Status     RowStatus
	Matches    int
	Error      *string
	DurationMs int64
}

// RunCheckpoint is the cursor the processor advances and flushes with
// every workbook save.
type RunCheckpoint struct {
	Cursor   int
	Matched  int
	Partial  int
	NotFound int
	Skipped  int
	Failed   int
	Dirty    bool
}
