package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// RodSource renders JavaScript-paginated pages in headless Chromium via Rod.
// Pagination is driven by clicking the next-page control.
type RodSource struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	cfg      *config.SourceConfig
	logger   *slog.Logger
	pageNum  int
}

// NewRodSource launches a browser, opens cfg.URL and waits for it to settle.
func NewRodSource(ctx context.Context, cfg *config.SourceConfig, logger *slog.Logger) (*RodSource, error) {
	s := &RodSource{
		cfg:     cfg,
		logger:  logger.With("component", "rod_source"),
		pageNum: 1,
	}

	launchURL, err := s.launchBrowser()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	s.browser = browser

	var page *rod.Page
	if cfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.page = page

	if cfg.UserAgent != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent})
		if err != nil {
			s.logger.Warn("failed to set user agent", "error", err)
		}
	}

	start := time.Now()
	if err := page.Timeout(cfg.RequestTimeout).Navigate(cfg.URL); err != nil {
		_ = s.Close()
		return nil, &types.FetchError{URL: cfg.URL, Err: err, Retryable: true}
	}
	s.settle(ctx)

	s.logger.Info("browser source ready",
		"url", cfg.URL,
		"headless", cfg.Headless,
		"stealth", cfg.Stealth,
		"duration", time.Since(start),
	)
	return s, nil
}

// launchBrowser starts a Chromium instance with appropriate flags.
func (s *RodSource) launchBrowser() (string, error) {
	l := launcher.New().
		Headless(s.cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled")
	s.launcher = l

	return l.Launch()
}

func (s *RodSource) Name() string { return "rod" }

// Find returns the outer HTML of every element matching selector on the rendered page.
func (s *RodSource) Find(ctx context.Context, selector string) ([]types.RawFragment, error) {
	if s.page == nil {
		return nil, types.ErrSourceClosed
	}
	p := s.page.Context(ctx)

	var els rod.Elements
	var err error
	if IsXPath(selector) {
		els, err = p.ElementsX(selector)
	} else {
		els, err = p.Elements(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", selector, err)
	}

	frags := make([]types.RawFragment, 0, len(els))
	for _, el := range els {
		h, err := el.HTML()
		if err != nil {
			return nil, fmt.Errorf("render %q: %w", selector, err)
		}
		frags = append(frags, types.RawFragment(h))
	}
	return frags, nil
}

// AdvancePage clicks the next-page control and waits for the new page to
// render. It reports false when the control is absent or disabled.
func (s *RodSource) AdvancePage(ctx context.Context) (bool, error) {
	if s.page == nil {
		return false, types.ErrSourceClosed
	}
	if s.cfg.NextSelector == "" {
		return false, nil
	}
	p := s.page.Context(ctx)

	var has bool
	var next *rod.Element
	var err error
	if IsXPath(s.cfg.NextSelector) {
		has, next, err = p.HasX(s.cfg.NextSelector)
	} else {
		has, next, err = p.Has(s.cfg.NextSelector)
	}
	if err != nil {
		return false, fmt.Errorf("look up next control: %w", err)
	}
	if !has {
		s.logger.Info("no more pages", "last_page", s.pageNum)
		return false, nil
	}
	if disabled(next) {
		s.logger.Info("next control disabled", "last_page", s.pageNum)
		return false, nil
	}

	if err := next.ScrollIntoView(); err != nil {
		s.logger.Debug("scroll to next control failed", "error", err)
	}
	if err := next.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("click next control: %w", err)
	}

	s.settle(ctx)
	s.pageNum++
	return true, nil
}

// settle waits for the DOM to stop changing and for review elements to appear.
func (s *RodSource) settle(ctx context.Context) {
	p := s.page.Context(ctx).Timeout(s.cfg.RequestTimeout)
	if err := p.WaitStable(s.cfg.WaitStable); err != nil {
		s.logger.Warn("page stability timeout, continuing", "page", s.pageNum, "error", err)
	}

	sel := s.cfg.ReviewSelector
	if sel == "" {
		return
	}
	var err error
	if IsXPath(sel) {
		_, err = p.ElementX(sel)
	} else {
		_, err = p.Element(sel)
	}
	if err != nil {
		s.logger.Warn("review elements did not appear", "selector", sel, "page", s.pageNum, "error", err)
	}
}

func disabled(el *rod.Element) bool {
	if attr, err := el.Attribute("disabled"); err == nil && attr != nil {
		return true
	}
	if attr, err := el.Attribute("aria-disabled"); err == nil && attr != nil && *attr == "true" {
		return true
	}
	if attr, err := el.Attribute("class"); err == nil && attr != nil {
		return hasClass(*attr, "disabled")
	}
	return false
}

// Close shuts down the browser, stops the Chromium process and removes its
// profile directory. It is safe to call more than once.
func (s *RodSource) Close() error {
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
		s.launcher = nil
	}
	return err
}
