package sniffer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"mediasniff/internal/domain"
	"mediasniff/internal/intake"
)

// ErrNoBrowser is returned when no control URL is configured and no local
// Chromium could be found.
var ErrNoBrowser = errors.New("rod browser dependency not found")

// ErrNotRunning is returned by Open before Run has connected to a browser.
var ErrNotRunning = errors.New("sniffer is not running")

// mediaSourcesJS lists the sources of every media element on the page,
// including <source> children.
const mediaSourcesJS = `() => {
	const out = [];
	document.querySelectorAll('video, audio').forEach((el) => {
		const src = el.currentSrc || el.src;
		if (src) out.push(src);
		el.querySelectorAll('source').forEach((s) => {
			if (s.src) out.push(s.src);
		});
	});
	return out;
}`

// Options controls how the sniffer reaches the browser.
type Options struct {
	// ControlURL of an already running browser. Either a DevTools websocket
	// URL or an http host:port. Empty means launch a local browser.
	ControlURL string
	// Bin overrides the browser executable used when launching.
	Bin      string
	Headless bool
	// StartURLs are opened in new tabs once connected.
	StartURLs []string
	// DOMScanInterval is how often each tab's media elements are read.
	// Zero disables DOM scanning.
	DOMScanInterval time.Duration
}

// RodSniffer implements Sniffer using the rod library.
type RodSniffer struct {
	opts Options
	log  logrus.FieldLogger
	tabs *tabTable

	mu      sync.Mutex
	browser *rod.Browser
	runCtx  context.Context
	sink    intake.Sink
}

// NewRodSniffer creates a new sniffer. Nothing is launched until Run.
func NewRodSniffer(opts Options, logger logrus.FieldLogger) *RodSniffer {
	return &RodSniffer{
		opts: opts,
		log:  logger.WithField("component", "sniffer"),
		tabs: newTabTable(),
	}
}

// Run connects to the browser, attaches to every page target and streams
// events into sink. It blocks until ctx is cancelled.
func (s *RodSniffer) Run(ctx context.Context, sink intake.Sink) error {
	conn, err := s.connect()
	if err != nil {
		return err
	}
	browser := conn.Context(ctx)

	// Close must still work after ctx is done, so keep the unbound handle.
	s.mu.Lock()
	s.browser = conn
	s.runCtx = ctx
	s.sink = sink
	s.mu.Unlock()

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(browser); err != nil {
		s.log.WithError(err).Error("Failed to enable target discovery")
		return fmt.Errorf("failed to enable target discovery: %w", err)
	}

	wait := browser.EachEvent(
		func(e *proto.TargetTargetCreated) {
			if isPage(e.TargetInfo) {
				go s.attach(e.TargetInfo.TargetID, e.TargetInfo.URL)
			}
		},
		func(e *proto.TargetTargetInfoChanged) {
			if isPage(e.TargetInfo) {
				s.tabs.setURL(e.TargetInfo.TargetID, e.TargetInfo.URL)
			}
		},
		func(e *proto.TargetTargetDestroyed) {
			s.detach(e.TargetID)
		},
	)

	pages, err := browser.Pages()
	if err != nil {
		s.log.WithError(err).Warn("Failed to list existing pages")
	}
	for _, p := range pages {
		go s.attach(p.TargetID, "")
	}

	for _, u := range s.opts.StartURLs {
		id, err := s.Open(ctx, u)
		if err != nil {
			s.log.WithError(err).WithField("url", u).Warn("Failed to open start URL")
			continue
		}
		s.log.WithFields(logrus.Fields{"tab_id": id, "url": u}).Info("Opened start URL")
	}

	s.log.Info("Sniffer is watching the browser")
	wait()

	s.tabs.removeAll()
	s.log.Info("Sniffer stopped")
	return nil
}

// connect launches or connects to a browser.
func (s *RodSniffer) connect() (*rod.Browser, error) {
	controlURL, err := s.controlURL()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		s.log.WithError(err).Error("Failed to connect to rod browser")
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	s.log.WithField("control_url", controlURL).Info("Connected to browser")
	return browser, nil
}

func (s *RodSniffer) controlURL() (string, error) {
	if s.opts.ControlURL != "" {
		u, err := launcher.ResolveURL(s.opts.ControlURL)
		if err != nil {
			return "", fmt.Errorf("failed to resolve control url %s: %w", s.opts.ControlURL, err)
		}
		return u, nil
	}

	path := s.opts.Bin
	if path == "" {
		found, exists := launcher.LookPath()
		if !exists {
			s.log.Error("Cannot find browser executable for rod")
			return "", ErrNoBrowser
		}
		path = found
	}

	u, err := launcher.New().Bin(path).Headless(s.opts.Headless).Launch()
	if err != nil {
		s.log.WithError(err).Error("Failed to launch browser")
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}
	return u, nil
}

// Open creates a blank tab, starts watching it and only then navigates, so
// the first requests of the page are observed too.
func (s *RodSniffer) Open(ctx context.Context, url string) (domain.TabID, error) {
	s.mu.Lock()
	browser := s.browser
	s.mu.Unlock()
	if browser == nil {
		return domain.NoTab, ErrNotRunning
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return domain.NoTab, fmt.Errorf("failed to create page: %w", err)
	}

	st := s.attach(page.TargetID, url)
	select {
	case <-st.ready:
	case <-ctx.Done():
		return domain.NoTab, ctx.Err()
	}

	if err := page.Context(ctx).Navigate(url); err != nil {
		return st.id, fmt.Errorf("failed to navigate tab %d to %s: %w", st.id, url, err)
	}
	return st.id, nil
}

// Tabs lists the watched tabs ordered by id.
func (s *RodSniffer) Tabs() []domain.Tab {
	return s.tabs.list()
}

// Close closes the browser.
func (s *RodSniffer) Close() error {
	s.mu.Lock()
	browser := s.browser
	s.browser = nil
	s.mu.Unlock()

	if browser == nil {
		return nil
	}
	s.log.Info("Closing rod browser instance")
	if err := browser.Close(); err != nil {
		s.log.WithError(err).Error("Error closing rod browser instance")
		return err
	}
	return nil
}

// attach registers target and starts streaming its events. Calling it again
// for a known target returns the existing state.
func (s *RodSniffer) attach(target proto.TargetTargetID, url string) *tabState {
	s.mu.Lock()
	browser, runCtx := s.browser, s.runCtx
	s.mu.Unlock()

	st, created := s.tabs.register(runCtx, target, url)
	if !created {
		return st
	}
	defer close(st.ready)

	log := s.log.WithFields(logrus.Fields{"tab_id": st.id, "target_id": target})
	if browser == nil {
		log.Warn("Browser closed before tab could be attached")
		return st
	}

	page, err := browser.PageFromTarget(target)
	if err != nil {
		log.WithError(err).Warn("Failed to attach to page")
		// Most likely the target closed before we got to it.
		s.tabs.remove(target)
		return st
	}
	page = page.Context(st.ctx)

	wait := page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request == nil {
				return
			}
			s.submit(domain.RequestStarted{Tab: s.tabs.lookup(target), URL: e.Request.URL})
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil {
				return
			}
			s.submit(domain.HeadersReceived{
				Tab:     s.tabs.lookup(target),
				URL:     e.Response.URL,
				Headers: headersFromCDP(e.Response.Headers),
			})
		},
	)
	go wait()

	if s.opts.DOMScanInterval > 0 {
		go s.scanDOM(st.ctx, page, target)
	}

	log.Info("Watching tab")
	return st
}

// detach forgets target and reports the closed tab.
func (s *RodSniffer) detach(target proto.TargetTargetID) {
	id, ok := s.tabs.remove(target)
	if !ok {
		return
	}
	s.log.WithField("tab_id", id).Info("Tab closed")
	s.submit(domain.TabClosed{Tab: id})
}

// scanDOM periodically reports media element sources found in the page.
func (s *RodSniffer) scanDOM(ctx context.Context, page *rod.Page, target proto.TargetTargetID) {
	ticker := time.NewTicker(s.opts.DOMScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := page.Eval(mediaSourcesJS)
			if err != nil || res == nil {
				continue
			}
			var links []string
			for _, v := range res.Value.Arr() {
				if src := v.Str(); src != "" {
					links = append(links, src)
				}
			}
			if len(links) > 0 {
				s.submit(domain.PageMedia{Tab: s.tabs.lookup(target), Links: links})
			}
		}
	}
}

func (s *RodSniffer) submit(ev domain.Event) {
	s.mu.Lock()
	sink, ctx := s.sink, s.runCtx
	s.mu.Unlock()

	if sink == nil {
		return
	}
	if err := sink.Submit(ctx, ev); err != nil {
		s.log.WithError(err).Debug("Dropped event")
	}
}

func isPage(info *proto.TargetTargetInfo) bool {
	return info != nil && string(info.Type) == "page"
}

// headersFromCDP flattens CDP response headers, sorted by name.
func headersFromCDP(h proto.NetworkHeaders) []domain.Header {
	headers := make([]domain.Header, 0, len(h))
	for name, value := range h {
		headers = append(headers, domain.Header{Name: name, Value: value.Str()})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Name < headers[j].Name })
	return headers
}
