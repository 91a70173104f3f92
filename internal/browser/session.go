package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"gsadv/internal"
	"gsadv/internal/config"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Card selectors in preference order; the first one that matches
// anything wins.
const collectCardsScript = `(() => {
	const selectors = ['.productViewControl', 'app-ux-product-display-inline', '.product-item', '.result-item', '.product'];
	let nodes = [];
	for (const sel of selectors) {
		nodes = Array.from(document.querySelectorAll(sel));
		if (nodes.length > 0) break;
	}
	return JSON.stringify(nodes.map(node => {
		const anchor = node.querySelector('a[href*="product_detail"]') || node.querySelector('a[href]');
		return { text: node.innerText || '', detailUrl: anchor ? anchor.href : '' };
	}));
})()`

const scrollBottomScript = `window.scrollTo(0, document.body.scrollHeight);`

// Session drives one headless Chrome tab. It is not safe for
// concurrent use; the row processor is strictly sequential.
type Session struct {
	cfg   config.Config
	log   *zap.Logger
	pacer *Pacer

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	cardCount int
}

func NewSession(cfg config.Config, log *zap.Logger) (*Session, error) {
	s := &Session{
		cfg:   cfg,
		log:   log,
		pacer: NewPacer(time.Duration(cfg.FetchDelayMs) * time.Millisecond),
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) start() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)
	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	s.tabCtx, s.tabCancel = chromedp.NewContext(s.allocCtx)

	// Launch the browser now so a broken environment fails fast.
	ctx, cancel := context.WithTimeout(s.tabCtx, time.Duration(s.cfg.PageTimeoutMs)*time.Millisecond)
	defer cancel()
	if err := chromedp.Run(ctx); err != nil {
		s.Close()
		return fmt.Errorf("start browser: %w", err)
	}
	return nil
}

func (s *Session) Close() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// Restart tears the whole browser down and brings up a fresh one. The
// processor calls this on crashes and on the periodic recycle.
func (s *Session) Restart() error {
	s.log.Info("restarting browser session")
	s.Close()
	s.cardCount = 0
	return s.start()
}

func (s *Session) Healthy() bool {
	ctx, cancel := context.WithTimeout(s.tabCtx, 5*time.Second)
	defer cancel()
	var title string
	return chromedp.Run(ctx, chromedp.Title(&title)) == nil
}

func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.tabCtx, time.Duration(s.cfg.PageTimeoutMs)*time.Millisecond)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// retry runs fn up to attempts+1 times, stopping on the first success
// or once the context is done.
func retry(ctx context.Context, attempts int, fn func() error) error {
	var lastErr error
	for i := 0; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (s *Session) LoadSearchResults(ctx context.Context, url string) ([]internal.CandidateCard, error) {
	var cards []internal.CandidateCard
	err := retry(ctx, s.cfg.FetchRetries, func() error {
		if err := s.pacer.Wait(ctx); err != nil {
			return err
		}
		loaded, err := s.fetchSearch(ctx, url)
		if err != nil {
			s.log.Debug("search page attempt failed", zap.String("url", url), zap.Error(err))
			return err
		}
		cards = loaded
		return nil
	})
	return cards, err
}

func (s *Session) fetchSearch(ctx context.Context, url string) ([]internal.CandidateCard, error) {
	runCtx, cancel := s.opContext(ctx)
	defer cancel()

	var raw string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Duration(s.cfg.SettleWaitMs)*time.Millisecond),
		chromedp.Evaluate(collectCardsScript, &raw),
	)
	if err != nil {
		return nil, fmt.Errorf("load search results: %w", err)
	}

	cards, err := parseCards(raw)
	if err != nil {
		return nil, err
	}
	s.cardCount = len(cards)
	s.log.Debug("search results loaded", zap.String("url", url), zap.Int("cards", len(cards)))
	return cards, nil
}

// LoadMore scrolls to the bottom to trigger lazy loading and returns
// only the cards that appeared since the last collection.
func (s *Session) LoadMore(ctx context.Context) ([]internal.CandidateCard, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	runCtx, cancel := s.opContext(ctx)
	defer cancel()

	var raw string
	err := chromedp.Run(runCtx,
		chromedp.Evaluate(scrollBottomScript, nil),
		chromedp.Sleep(time.Duration(s.cfg.SettleWaitMs)*time.Millisecond),
		chromedp.Evaluate(collectCardsScript, &raw),
	)
	if err != nil {
		return nil, fmt.Errorf("load more results: %w", err)
	}

	cards, err := parseCards(raw)
	if err != nil {
		return nil, err
	}
	seen := s.cardCount
	s.cardCount = len(cards)
	if seen >= len(cards) {
		return nil, nil
	}
	return cards[seen:], nil
}

func (s *Session) LoadDetailPage(ctx context.Context, url string) (internal.DetailPage, error) {
	var page internal.DetailPage
	err := retry(ctx, s.cfg.FetchRetries, func() error {
		if err := s.pacer.Wait(ctx); err != nil {
			return err
		}
		loaded, err := s.fetchDetail(ctx, url)
		if err != nil {
			s.log.Debug("detail page attempt failed", zap.String("url", url), zap.Error(err))
			return err
		}
		page = loaded
		return nil
	})
	return page, err
}

func (s *Session) fetchDetail(ctx context.Context, url string) (internal.DetailPage, error) {
	runCtx, cancel := s.opContext(ctx)
	defer cancel()

	settle := time.Duration(s.cfg.SettleWaitMs) * time.Millisecond
	var text, html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		// Walk the page so lazy sections render before we read it.
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 3);`, nil),
		chromedp.Sleep(settle/2),
		chromedp.Evaluate(scrollBottomScript, nil),
		chromedp.Sleep(settle/2),
		chromedp.Evaluate(`window.scrollTo(0, 0);`, nil),
		chromedp.Evaluate(`document.body.innerText`, &text),
		chromedp.Evaluate(`document.documentElement.outerHTML`, &html),
	)
	if err != nil {
		return internal.DetailPage{}, fmt.Errorf("load detail page: %w", err)
	}

	if len(text) < s.cfg.MinDetailChars {
		return internal.DetailPage{}, fmt.Errorf("detail page too thin: %d chars", len(text))
	}
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "schedule") && !strings.Contains(lower, "sin") {
		return internal.DetailPage{}, fmt.Errorf("detail page has no schedule content")
	}
	return internal.DetailPage{Text: text, HTML: html}, nil
}

func parseCards(raw string) ([]internal.CandidateCard, error) {
	var cards []internal.CandidateCard
	if err := json.Unmarshal([]byte(raw), &cards); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}
	return cards, nil
}
