package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gsadv/internal"
	"gsadv/internal/config"
	"gsadv/internal/storage"
	"gsadv/internal/util"
	"gsadv/internal/workbook"
)

const (
	ModePrices = "prices"
	ModeSINs   = "sins"
)

// QuotaPolicy is what "done" means for a row: how many output slots
// exist, how many must be filled, whether a permanent sentinel marks
// exhausted rows, and whether each match needs a detail-page visit.
type QuotaPolicy struct {
	Mode        string
	Slots       int
	Required    int
	Sentinel    string
	NeedsDetail bool
}

func PricePolicy(cfg config.Config) QuotaPolicy {
	return QuotaPolicy{Mode: ModePrices, Slots: cfg.PriceSlots, Required: cfg.PriceSlots}
}

func SINPolicy(cfg config.Config) QuotaPolicy {
	return QuotaPolicy{Mode: ModeSINs, Slots: cfg.SINSlots, Required: cfg.SINRequired, Sentinel: internal.SINNotFound, NeedsDetail: true}
}

func (p QuotaPolicy) SlotColumns(slot int) []string {
	if p.Mode == ModeSINs {
		return []string{fmt.Sprintf("SIN%d", slot)}
	}
	return []string{
		fmt.Sprintf("GSA Price %d", slot),
		fmt.Sprintf("GSA Contractor %d", slot),
		fmt.Sprintf("GSA Contract %d", slot),
	}
}

// Browser is the candidate-fetch collaborator. browser.Session is the
// real one; tests use a fake.
type Browser interface {
	LoadSearchResults(ctx context.Context, url string) ([]internal.CandidateCard, error)
	LoadMore(ctx context.Context) ([]internal.CandidateCard, error)
	LoadDetailPage(ctx context.Context, url string) (internal.DetailPage, error)
	Healthy() bool
	Restart() error
}

// Saver persists the table; workbook.Workbook is the real one.
type Saver interface {
	Save(t *workbook.Table) error
}

// RowRange is inclusive on both ends. End < 0 means the last row.
type RowRange struct {
	Start int
	End   int
}

type inputColumns struct {
	item         string
	manufacturer string
	unit         string
	links        string
}

func resolveInputColumns(t *workbook.Table) (inputColumns, error) {
	var cols inputColumns
	var ok bool
	if cols.item, ok = t.FindColumn("item number"); !ok {
		return cols, fmt.Errorf("required column not found: item number")
	}
	if cols.manufacturer, ok = t.FindColumn("manufacturer"); !ok {
		return cols, fmt.Errorf("required column not found: manufacturer")
	}
	if cols.unit, ok = t.FindColumn("unit of measure"); !ok {
		return cols, fmt.Errorf("required column not found: unit of measure")
	}
	if cols.links, ok = t.FindColumn("links"); !ok {
		return cols, fmt.Errorf("required column not found: links")
	}
	return cols, nil
}

// Text a results page renders in its header/toolbar area; cards whose
// text is only this are not products.
var headerCardMarkers = []string{
	"name contract number price",
	"contractor name",
	"price low to high",
	"view as grid",
	"sort by",
	"filter by",
}

func isHeaderCard(lowerText string) bool {
	for _, marker := range headerCardMarkers {
		if strings.Contains(lowerText, marker) {
			return true
		}
	}
	return false
}

// Processor walks a row range sequentially: skip complete rows, fetch
// and match candidate cards for the rest, write results into empty
// slots only, and flush the workbook on a fixed cadence so a crash
// never loses more than one checkpoint interval of work.
type Processor struct {
	cfg     config.Config
	log     *zap.Logger
	table   *workbook.Table
	saver   Saver
	db      *storage.DB
	browser Browser
	matcher *Matcher
	policy  QuotaPolicy

	cols       inputColumns
	checkpoint internal.RunCheckpoint
	runID      int64
}

func NewProcessor(cfg config.Config, log *zap.Logger, table *workbook.Table, saver Saver, db *storage.DB, browser Browser, matcher *Matcher, policy QuotaPolicy) *Processor {
	return &Processor{
		cfg:     cfg,
		log:     log,
		table:   table,
		saver:   saver,
		db:      db,
		browser: browser,
		matcher: matcher,
		policy:  policy,
	}
}

func (p *Processor) Run(ctx context.Context, rng RowRange) (internal.RunCheckpoint, error) {
	cols, err := resolveInputColumns(p.table)
	if err != nil {
		return p.checkpoint, err
	}
	p.cols = cols
	for slot := 1; slot <= p.policy.Slots; slot++ {
		for _, col := range p.policy.SlotColumns(slot) {
			p.table.EnsureColumn(col)
		}
	}

	start := rng.Start
	if start < 0 {
		start = 0
	}
	end := rng.End
	if end < 0 || end >= p.table.Len() {
		end = p.table.Len() - 1
	}

	runStart := time.Now()
	if p.db != nil {
		runID, err := p.db.BeginRun(traceID(), p.policy.Mode, start, end)
		if err != nil {
			p.log.Warn("run journal unavailable", zap.Error(err))
		} else {
			p.runID = runID
		}
	}

	processedSinceFlush := 0
	processedSinceRestart := 0
	for i := start; i <= end; i++ {
		select {
		case <-ctx.Done():
			p.checkpoint.Cursor = i
			if err := p.flush(); err != nil {
				p.log.Error("checkpoint flush on cancel failed", zap.Error(err))
			}
			p.finishRun(runStart)
			return p.checkpoint, ctx.Err()
		default:
		}

		p.checkpoint.Cursor = i
		row := p.rowAt(i)

		if p.rowComplete(i) {
			p.checkpoint.Skipped++
			p.journal(internal.RowOutcome{Index: i, Item: row.Item, Status: internal.RowSkipped})
			continue
		}
		if strings.TrimSpace(row.SearchURL) == "" {
			p.checkpoint.Skipped++
			p.journal(internal.RowOutcome{Index: i, Item: row.Item, Status: internal.RowSkipped})
			continue
		}

		outcome := p.processRow(ctx, row)
		if outcome.Status == internal.RowFailed && ctx.Err() == nil {
			// A crashed session poisons every later fetch. If the tab
			// still answers, the failure was page-level: retry on the
			// live session. Otherwise bring up a fresh browser first.
			if p.browser.Healthy() {
				outcome = p.processRow(ctx, row)
			} else if err := p.browser.Restart(); err != nil {
				p.log.Error("browser restart failed", zap.Error(err))
			} else {
				processedSinceRestart = 0
				outcome = p.processRow(ctx, row)
			}
		}

		p.tally(outcome)
		p.journal(outcome)
		p.log.Info("row processed",
			zap.Int("row", i),
			zap.String("item", row.Item),
			zap.String("status", string(outcome.Status)),
			zap.Int("matches", outcome.Matches),
			zap.Int64("durationMs", outcome.DurationMs),
		)

		processedSinceFlush++
		processedSinceRestart++
		if processedSinceFlush >= p.cfg.CheckpointEvery {
			if err := p.flush(); err != nil {
				p.log.Error("checkpoint flush failed", zap.Error(err))
			} else {
				processedSinceFlush = 0
			}
		}
		if processedSinceRestart >= p.cfg.SessionMaxRows {
			if err := p.browser.Restart(); err != nil {
				p.log.Error("browser restart failed", zap.Error(err))
			}
			processedSinceRestart = 0
		}
		if i < end {
			if err := sleepCtx(ctx, time.Duration(p.cfg.RowDelayMs)*time.Millisecond); err != nil {
				p.checkpoint.Cursor = i + 1
				if flushErr := p.flush(); flushErr != nil {
					p.log.Error("checkpoint flush on cancel failed", zap.Error(flushErr))
				}
				p.finishRun(runStart)
				return p.checkpoint, err
			}
		}
	}

	p.checkpoint.Cursor = end + 1
	if err := p.flush(); err != nil {
		p.finishRun(runStart)
		return p.checkpoint, err
	}
	p.finishRun(runStart)
	return p.checkpoint, nil
}

func (p *Processor) rowAt(i int) internal.ProductRow {
	return internal.ProductRow{
		Index:        i,
		Item:         strings.TrimSpace(p.table.Get(i, p.cols.item)),
		Manufacturer: strings.TrimSpace(p.table.Get(i, p.cols.manufacturer)),
		Unit:         strings.TrimSpace(p.table.Get(i, p.cols.unit)),
		SearchURL:    strings.TrimSpace(p.table.Get(i, p.cols.links)),
	}
}

func (p *Processor) rowComplete(i int) bool {
	filled := 0
	for slot := 1; slot <= p.policy.Slots; slot++ {
		cols := p.policy.SlotColumns(slot)
		if p.policy.Sentinel != "" {
			for _, col := range cols {
				if strings.EqualFold(strings.TrimSpace(p.table.Get(i, col)), p.policy.Sentinel) {
					return true
				}
			}
		}
		if !p.slotEmpty(i, slot) {
			filled++
		}
	}
	return filled >= p.policy.Required
}

func (p *Processor) slotEmpty(i, slot int) bool {
	for _, col := range p.policy.SlotColumns(slot) {
		if !p.table.IsEmptyCell(i, col) {
			return false
		}
	}
	return true
}

func (p *Processor) filledSlots(i int) int {
	filled := 0
	for slot := 1; slot <= p.policy.Slots; slot++ {
		if !p.slotEmpty(i, slot) {
			filled++
		}
	}
	return filled
}

func (p *Processor) processRow(ctx context.Context, row internal.ProductRow) internal.RowOutcome {
	start := time.Now()
	outcome := internal.RowOutcome{Index: row.Index, Item: row.Item}
	defer func() { outcome.DurationMs = time.Since(start).Milliseconds() }()

	cards, err := p.browser.LoadSearchResults(ctx, row.SearchURL)
	if err != nil {
		outcome.Status = internal.RowFailed
		outcome.Error = util.StringPtr(err.Error())
		return outcome
	}

	needed := p.policy.Required - p.filledSlots(row.Index)
	matches := 0
	rounds := 0
	for len(cards) > 0 {
		for _, card := range cards {
			if needed <= 0 {
				break
			}
			accepted, fields := p.evaluateCard(ctx, row, card)
			if !accepted {
				continue
			}
			if p.writeSlot(row.Index, fields) {
				needed--
				matches++
			}
		}
		if needed <= 0 || rounds >= p.cfg.ScrollRounds {
			break
		}
		rounds++
		more, err := p.browser.LoadMore(ctx)
		if err != nil {
			p.log.Debug("load more failed", zap.Int("row", row.Index), zap.Error(err))
			break
		}
		if len(more) == 0 {
			break
		}
		cards = more
	}

	outcome.Matches = matches
	filled := p.filledSlots(row.Index)
	switch {
	case filled >= p.policy.Required:
		outcome.Status = internal.RowMatched
	case filled > 0:
		outcome.Status = internal.RowPartial
	default:
		outcome.Status = internal.RowNotFound
	}
	// Candidates are exhausted here, so slots still empty will never
	// fill; the sentinel keeps later runs from re-fetching the row.
	if outcome.Status != internal.RowMatched && p.policy.Sentinel != "" {
		for slot := 1; slot <= p.policy.Slots; slot++ {
			for _, col := range p.policy.SlotColumns(slot) {
				if p.table.IsEmptyCell(row.Index, col) {
					p.table.Set(row.Index, col, p.policy.Sentinel)
				}
			}
		}
		p.checkpoint.Dirty = true
	}
	return outcome
}

func (p *Processor) evaluateCard(ctx context.Context, row internal.ProductRow, card internal.CandidateCard) (bool, internal.MatchFields) {
	text := strings.ToLower(card.Text)
	if strings.TrimSpace(text) == "" || isHeaderCard(text) {
		return false, internal.MatchFields{}
	}

	mfr := ExtractManufacturer(text)
	if mfr == nil || !p.matcher.MatchesManufacturer(row.Manufacturer, *mfr) {
		return false, internal.MatchFields{}
	}
	unit := ExtractUnit(text)
	if unit == nil || !p.matcher.MatchesUnit(row.Unit, *unit) {
		return false, internal.MatchFields{}
	}

	if p.policy.NeedsDetail {
		if card.DetailURL == "" {
			return false, internal.MatchFields{}
		}
		page, err := p.browser.LoadDetailPage(ctx, card.DetailURL)
		if err != nil {
			p.log.Debug("detail page failed", zap.Int("row", row.Index), zap.String("url", card.DetailURL), zap.Error(err))
			return false, internal.MatchFields{}
		}
		sin := ExtractSIN(page.Text)
		if sin == nil {
			sin = ExtractSINFromHTML(page.HTML)
		}
		if sin == nil {
			return false, internal.MatchFields{}
		}
		return true, internal.MatchFields{SIN: sin}
	}

	fields := internal.MatchFields{
		Price:      ExtractPrice(text),
		Contractor: ExtractContractor(text),
		Contract:   ExtractContract(text),
	}
	// A card with neither price nor contractor carries nothing worth
	// a slot.
	if fields.Price == nil && fields.Contractor == nil {
		return false, internal.MatchFields{}
	}
	return true, fields
}

// writeSlot puts the fields into the first fully empty slot. Occupied
// cells are never overwritten; duplicate SINs are dropped.
func (p *Processor) writeSlot(row int, fields internal.MatchFields) bool {
	if fields.SIN != nil {
		for slot := 1; slot <= p.policy.Slots; slot++ {
			for _, col := range p.policy.SlotColumns(slot) {
				if strings.EqualFold(strings.TrimSpace(p.table.Get(row, col)), *fields.SIN) {
					return false
				}
			}
		}
	}

	for slot := 1; slot <= p.policy.Slots; slot++ {
		if !p.slotEmpty(row, slot) {
			continue
		}
		cols := p.policy.SlotColumns(slot)
		if p.policy.Mode == ModeSINs {
			p.table.Set(row, cols[0], *fields.SIN)
		} else {
			if fields.Price != nil {
				p.table.Set(row, cols[0], strconv.FormatFloat(*fields.Price, 'f', 2, 64))
			}
			if fields.Contractor != nil {
				p.table.Set(row, cols[1], *fields.Contractor)
			}
			if fields.Contract != nil {
				p.table.Set(row, cols[2], *fields.Contract)
			}
		}
		p.checkpoint.Dirty = true
		return true
	}
	return false
}

func (p *Processor) tally(outcome internal.RowOutcome) {
	switch outcome.Status {
	case internal.RowMatched:
		p.checkpoint.Matched++
	case internal.RowPartial:
		p.checkpoint.Partial++
	case internal.RowNotFound:
		p.checkpoint.NotFound++
	case internal.RowSkipped:
		p.checkpoint.Skipped++
	case internal.RowFailed:
		p.checkpoint.Failed++
	}
}

func (p *Processor) flush() error {
	if p.checkpoint.Dirty {
		if err := p.saver.Save(p.table); err != nil {
			return fmt.Errorf("checkpoint save: %w", err)
		}
		p.checkpoint.Dirty = false
	}
	if p.db != nil {
		if err := p.db.SetMetadata("cursor:"+p.policy.Mode, strconv.Itoa(p.checkpoint.Cursor)); err != nil {
			p.log.Warn("cursor update failed", zap.Error(err))
		}
	}
	return nil
}

func (p *Processor) journal(outcome internal.RowOutcome) {
	if p.db == nil || p.runID == 0 {
		return
	}
	if err := p.db.InsertRowOutcome(p.runID, outcome); err != nil {
		p.log.Warn("row journal failed", zap.Error(err))
	}
}

func (p *Processor) finishRun(runStart time.Time) {
	if p.db == nil || p.runID == 0 {
		return
	}
	if err := p.db.FinishRun(p.runID, p.checkpoint, time.Since(runStart).Milliseconds()); err != nil {
		p.log.Warn("run journal close failed", zap.Error(err))
	}
}

// MissingRows lists rows whose output slots are all still empty, for
// the diagnostics report.
func MissingRows(t *workbook.Table, policy QuotaPolicy) []int {
	missing := []int{}
	for i := 0; i < t.Len(); i++ {
		empty := true
		for slot := 1; slot <= policy.Slots; slot++ {
			for _, col := range policy.SlotColumns(slot) {
				if t.HasColumn(col) && !t.IsEmptyCell(i, col) {
					empty = false
				}
			}
		}
		if empty {
			missing = append(missing, i)
		}
	}
	return missing
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
