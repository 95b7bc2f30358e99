// Package scraper obtains raw forecast rows from third-party forecast pages by
// driving an automated browser session.
//
// Every call to Extract owns one exclusive browser session from launch to
// teardown. Sessions are never pooled or shared, and Close runs on every exit
// path. Readiness is established through three gates (DOM content, full load,
// content selector), each with its own timeout. The page HTML is then frozen
// and handed to a list of Schema variants, tried in order, which turn markup
// into types.RawRow values.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonboulle/clockwork"

	"surfcast/internal/types"
)

// Extractor obtains ordered raw rows for a URL. Implementations report
// failures as *types.ExtractionError and never retry internally.
type Extractor interface {
	Extract(ctx context.Context, url, region string) ([]types.RawRow, error)
}

// Session is one exclusive browser context. All waits honor ctx deadlines.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitDOMContent(ctx context.Context) error
	WaitLoad(ctx context.Context) error
	WaitVisible(ctx context.Context, selector string) error
	Count(ctx context.Context, selector string) (int, error)
	StopLoading(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Config tunes the readiness gates and late-data handling.
type Config struct {
	// GateTimeout bounds each readiness gate separately.
	GateTimeout time.Duration
	// MinRows is the row count below which the extractor waits LateDataWait
	// once more before reading the page.
	MinRows      int
	LateDataWait time.Duration
	// DiagnosticsTimeout bounds the best-effort failure capture.
	DiagnosticsTimeout time.Duration
}

// DefaultConfig returns 15s gates and a 5-row minimum with a 3s late wait.
func DefaultConfig() Config {
	return Config{
		GateTimeout:        15 * time.Second,
		MinRows:            5,
		LateDataWait:       3 * time.Second,
		DiagnosticsTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.GateTimeout <= 0 {
		c.GateTimeout = d.GateTimeout
	}
	if c.MinRows < 0 {
		c.MinRows = 0
	}
	if c.LateDataWait < 0 {
		c.LateDataWait = 0
	}
	if c.DiagnosticsTimeout <= 0 {
		c.DiagnosticsTimeout = d.DiagnosticsTimeout
	}
	return c
}

// BrowserExtractor implements Extractor for one source on top of a Launcher.
type BrowserExtractor struct {
	source      types.SourceID
	launcher    Launcher
	schemas     []Schema
	cfg         Config
	diagnostics Diagnostics
	clock       clockwork.Clock
	logger      *slog.Logger
}

// BrowserExtractorOption customizes a BrowserExtractor.
type BrowserExtractorOption func(*BrowserExtractor)

// WithDiagnostics archives a screenshot and HTML snapshot on failure.
func WithDiagnostics(d Diagnostics) BrowserExtractorOption {
	return func(e *BrowserExtractor) { e.diagnostics = d }
}

// WithClock overrides the clock used for the late-data wait.
func WithClock(c clockwork.Clock) BrowserExtractorOption {
	return func(e *BrowserExtractor) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) BrowserExtractorOption {
	return func(e *BrowserExtractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewBrowserExtractor creates an extractor that tries schemas in order.
func NewBrowserExtractor(source types.SourceID, launcher Launcher, cfg Config, schemas []Schema, opts ...BrowserExtractorOption) *BrowserExtractor {
	e := &BrowserExtractor{
		source:   source,
		launcher: launcher,
		schemas:  schemas,
		cfg:      cfg.withDefaults(),
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Source returns the source this extractor serves.
func (e *BrowserExtractor) Source() types.SourceID {
	return e.source
}

// Extract runs one full browser session against url.
//
// Once the session is launched it runs to completion or gate timeout; caller
// cancellation is not propagated into the browser.
func (e *BrowserExtractor) Extract(ctx context.Context, url, region string) (rows []types.RawRow, err error) {
	start := e.clock.Now()
	log := e.logger.With("source", string(e.source), "region", region, "url", url)

	sess, err := e.launcher.Launch(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, types.NewExtractionError(e.source, types.ReasonTimeout, url, fmt.Errorf("launch browser: %w", err))
	}
	if err != nil {
		// A browser that cannot start is our fault, not the source's.
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	defer func() {
		if err != nil {
			var extErr *types.ExtractionError
			if errors.As(err, &extErr) {
				e.captureDiagnostics(ctx, sess, url, region, extErr.Reason)
			}
		}
		if cerr := sess.Close(); cerr != nil {
			log.WarnContext(ctx, "failed to close browser session", "error", cerr)
		}
	}()

	if err := e.gate(ctx, func(gctx context.Context) error {
		if err := sess.Navigate(gctx, url); err != nil {
			return err
		}
		return sess.WaitDOMContent(gctx)
	}); err != nil {
		return nil, e.gateFailure(url, "dom-content", err)
	}

	if err := e.gate(ctx, sess.WaitLoad); err != nil {
		return nil, e.gateFailure(url, "load", err)
	}

	readySelector := e.readySelector()
	if err := e.gate(ctx, func(gctx context.Context) error {
		return sess.WaitVisible(gctx, readySelector)
	}); err != nil {
		if e.pageIsBlocked(ctx, sess) {
			return nil, types.NewExtractionError(e.source, types.ReasonBlocked, url, err)
		}
		return nil, e.gateFailure(url, "content-selector", err)
	}

	count, err := e.rowCount(ctx, sess)
	if err != nil {
		return nil, e.gateFailure(url, "row-count", err)
	}
	if count < e.cfg.MinRows && e.cfg.LateDataWait > 0 {
		log.InfoContext(ctx, "few rows rendered, waiting for late data",
			"rows", count,
			"min_rows", e.cfg.MinRows,
			"wait", e.cfg.LateDataWait.String(),
		)
		e.clock.Sleep(e.cfg.LateDataWait)
		if count, err = e.rowCount(ctx, sess); err != nil {
			return nil, e.gateFailure(url, "row-count", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, e.cfg.GateTimeout)
	if err := sess.StopLoading(stopCtx); err != nil {
		log.WarnContext(ctx, "failed to stop page activity", "error", err)
	}
	cancel()

	htmlCtx, cancel := context.WithTimeout(ctx, e.cfg.GateTimeout)
	html, err := sess.HTML(htmlCtx)
	cancel()
	if err != nil {
		return nil, e.gateFailure(url, "snapshot", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, types.NewExtractionError(e.source, types.ReasonParseError, url, fmt.Errorf("parse html: %w", err))
	}
	if IsBlockPage(doc) {
		return nil, types.NewExtractionError(e.source, types.ReasonBlocked, url, errors.New("bot wall detected"))
	}

	rows, schema, err := e.parse(doc)
	if err != nil {
		reason := types.ReasonParseError
		if count == 0 {
			reason = types.ReasonSelectorNotFound
		}
		return nil, types.NewExtractionError(e.source, reason, url, err)
	}

	log.InfoContext(ctx, "forecast rows extracted",
		"schema", schema,
		"rows", len(rows),
		"duration_ms", e.clock.Since(start).Milliseconds(),
	)
	return rows, nil
}

// gate runs fn under its own timeout.
func (e *BrowserExtractor) gate(ctx context.Context, fn func(context.Context) error) error {
	gctx, cancel := context.WithTimeout(ctx, e.cfg.GateTimeout)
	defer cancel()
	return fn(gctx)
}

func (e *BrowserExtractor) gateFailure(url, gate string, err error) *types.ExtractionError {
	reason := types.ReasonParseError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = types.ReasonTimeout
	case errors.Is(err, ErrNavigationBlocked):
		reason = types.ReasonBlocked
	case errors.Is(err, ErrNavigationFailed):
		reason = types.ReasonTimeout
	}
	return types.NewExtractionError(e.source, reason, url, fmt.Errorf("%s gate: %w", gate, err))
}

// readySelector is the union of every schema's content selector, so the
// visibility gate passes for whichever layout the page serves.
func (e *BrowserExtractor) readySelector() string {
	sels := make([]string, 0, len(e.schemas))
	for _, s := range e.schemas {
		sels = append(sels, s.ReadySelector())
	}
	return strings.Join(sels, ", ")
}

func (e *BrowserExtractor) rowCount(ctx context.Context, sess Session) (int, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.GateTimeout)
	defer cancel()

	total := 0
	for _, s := range e.schemas {
		n, err := sess.Count(cctx, s.RowSelector())
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// parse tries every schema in order and returns the first non-empty result.
func (e *BrowserExtractor) parse(doc *goquery.Document) ([]types.RawRow, string, error) {
	var errs []error
	for _, s := range e.schemas {
		rows, err := s.Parse(doc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if len(rows) > 0 {
			return rows, s.Name(), nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), ErrNoRows))
	}
	if len(errs) == 0 {
		return nil, "", errors.New("no schemas configured")
	}
	return nil, "", errors.Join(errs...)
}

func (e *BrowserExtractor) pageIsBlocked(ctx context.Context, sess Session) bool {
	hctx, cancel := context.WithTimeout(ctx, e.cfg.DiagnosticsTimeout)
	defer cancel()

	html, err := sess.HTML(hctx)
	if err != nil {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return IsBlockPage(doc)
}

func (e *BrowserExtractor) captureDiagnostics(ctx context.Context, sess Session, url, region string, reason types.ExtractionReason) {
	if e.diagnostics == nil {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, e.cfg.DiagnosticsTimeout)
	defer cancel()

	c := Capture{
		Source: e.source,
		Region: region,
		URL:    url,
		Reason: reason,
		At:     e.clock.Now().UTC(),
	}
	if shot, err := sess.Screenshot(dctx); err == nil {
		c.Screenshot = shot
	}
	if html, err := sess.HTML(dctx); err == nil {
		c.HTML = html
	}
	if len(c.Screenshot) == 0 && c.HTML == "" {
		return
	}
	if err := e.diagnostics.Capture(dctx, c); err != nil {
		e.logger.WarnContext(ctx, "failed to store extraction diagnostics",
			"source", string(e.source),
			"region", region,
			"error", err,
		)
	}
}
