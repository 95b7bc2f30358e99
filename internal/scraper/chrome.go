package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

var (
	// ErrNavigationFailed is a network-level navigation error.
	ErrNavigationFailed = errors.New("navigation failed")
	// ErrNavigationBlocked is a navigation refused by the remote side.
	ErrNavigationBlocked = errors.New("navigation blocked")
)

// stealthScript runs before any page script and hides the usual automation
// fingerprints.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
window.chrome = window.chrome || {runtime: {}};
const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
if (originalQuery) {
  window.navigator.permissions.query = (p) =>
    p && p.name === 'notifications'
      ? Promise.resolve({state: Notification.permission})
      : originalQuery(p);
}
`

// LaunchOptions configures ChromeLauncher.
type LaunchOptions struct {
	Headless       bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	// BlockedResourceTypes are failed before they reach the network.
	BlockedResourceTypes []network.ResourceType
	// BlockedScriptHosts are URL substrings of third-party scripts to drop.
	BlockedScriptHosts []string
	LaunchTimeout      time.Duration
	PollInterval       time.Duration
}

// DefaultLaunchOptions returns a desktop Chrome profile that blocks images,
// media, fonts, stylesheets and common analytics scripts.
func DefaultLaunchOptions() LaunchOptions {
	return LaunchOptions{
		Headless:       true,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ViewportWidth:  1366,
		ViewportHeight: 768,
		BlockedResourceTypes: []network.ResourceType{
			network.ResourceTypeImage,
			network.ResourceTypeMedia,
			network.ResourceTypeFont,
			network.ResourceTypeStylesheet,
		},
		BlockedScriptHosts: []string{
			"googletagmanager.com",
			"google-analytics.com",
			"doubleclick.net",
			"facebook.net",
			"hotjar.com",
			"adservice.google",
		},
		LaunchTimeout: 30 * time.Second,
		PollInterval:  100 * time.Millisecond,
	}
}

// ChromeLauncher starts one isolated headless Chrome per session.
type ChromeLauncher struct {
	opts   LaunchOptions
	logger *slog.Logger
}

// NewChromeLauncher creates a launcher. Zero option fields take the defaults.
func NewChromeLauncher(opts LaunchOptions, logger *slog.Logger) *ChromeLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultLaunchOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = d.UserAgent
	}
	if opts.ViewportWidth <= 0 || opts.ViewportHeight <= 0 {
		opts.ViewportWidth, opts.ViewportHeight = d.ViewportWidth, d.ViewportHeight
	}
	if opts.BlockedResourceTypes == nil {
		opts.BlockedResourceTypes = d.BlockedResourceTypes
	}
	if opts.BlockedScriptHosts == nil {
		opts.BlockedScriptHosts = d.BlockedScriptHosts
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = d.LaunchTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = d.PollInterval
	}
	return &ChromeLauncher{opts: opts, logger: logger}
}

// Launch starts a browser process with a single tab, installs the stealth
// script and enables request interception.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(l.opts.UserAgent),
		chromedp.WindowSize(l.opts.ViewportWidth, l.opts.ViewportHeight),
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "en-US"),
	)
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		l.logger.Debug(fmt.Sprintf(format, args...))
	}))

	s := &chromeSession{
		tabCtx:       tabCtx,
		tabCancel:    tabCancel,
		allocCancel:  allocCancel,
		opts:         l.opts,
		pollInterval: l.opts.PollInterval,
		logger:       l.logger,
	}
	chromedp.ListenTarget(tabCtx, s.onTargetEvent)

	// The first Run owns the browser lifetime, so it cannot carry a deadline.
	// A watchdog tears the browser down if startup hangs.
	watchdog := time.AfterFunc(l.opts.LaunchTimeout, tabCancel)
	err := chromedp.Run(tabCtx,
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	)
	fired := !watchdog.Stop()
	if err != nil {
		s.Close()
		if fired {
			return nil, fmt.Errorf("start chrome: no response within %s: %w", l.opts.LaunchTimeout, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	tabCtx       context.Context
	tabCancel    context.CancelFunc
	allocCancel  context.CancelFunc
	opts         LaunchOptions
	pollInterval time.Duration
	logger       *slog.Logger
	closeOnce    sync.Once
}

func (s *chromeSession) onTargetEvent(ev any) {
	e, ok := ev.(*fetch.EventRequestPaused)
	if !ok {
		return
	}
	go func() {
		c := chromedp.FromContext(s.tabCtx)
		if c == nil || c.Target == nil {
			return
		}
		ctx := cdp.WithExecutor(s.tabCtx, c.Target)

		url := ""
		if e.Request != nil {
			url = e.Request.URL
		}
		if s.shouldBlock(e.ResourceType, url) {
			_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
			return
		}
		_ = fetch.ContinueRequest(e.RequestID).Do(ctx)
	}()
}

func (s *chromeSession) shouldBlock(rt network.ResourceType, url string) bool {
	if slices.Contains(s.opts.BlockedResourceTypes, rt) {
		return true
	}
	if rt == network.ResourceTypeScript {
		for _, host := range s.opts.BlockedScriptHosts {
			if strings.Contains(url, host) {
				return true
			}
		}
	}
	return false
}

// run executes actions on the tab, bounded by ctx's deadline and cancellation.
// Per-call contexts derived from the tab context only abort the action, never
// the tab itself.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
			return err
		}
		if res.ErrorText == "" {
			return nil
		}
		if strings.Contains(res.ErrorText, "BLOCKED") || strings.Contains(res.ErrorText, "ACCESS_DENIED") {
			return fmt.Errorf("%w: %s", ErrNavigationBlocked, res.ErrorText)
		}
		return fmt.Errorf("%w: %s", ErrNavigationFailed, res.ErrorText)
	}))
}

func (s *chromeSession) WaitDOMContent(ctx context.Context) error {
	return s.waitReadyState(ctx, "interactive", "complete")
}

func (s *chromeSession) WaitLoad(ctx context.Context) error {
	return s.waitReadyState(ctx, "complete")
}

func (s *chromeSession) waitReadyState(ctx context.Context, states ...string) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		var state string
		err := s.run(ctx, chromedp.Evaluate(`document.readyState`, &state))
		if err == nil && slices.Contains(states, state) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromeSession) Count(ctx context.Context, selector string) (int, error) {
	var n int
	expr := "document.querySelectorAll(" + strconv.Quote(selector) + ").length"
	if err := s.run(ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *chromeSession) StopLoading(ctx context.Context) error {
	return s.run(ctx, page.StopLoading())
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close shuts the browser down gracefully, then releases the allocator. It is
// safe to call more than once.
func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.tabCtx)
		s.tabCancel()
		s.allocCancel()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}
