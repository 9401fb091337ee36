package sniffer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediasniff/internal/domain"
)

// recordingSink keeps every submitted event.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) Submit(ctx context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// sawLink reports whether a network or DOM event for tab carried a URL with
// the given suffix.
func (r *recordingSink) sawLink(tab domain.TabID, suffix string) (network, dom bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		switch e := ev.(type) {
		case domain.RequestStarted:
			if e.Tab == tab && strings.HasSuffix(e.URL, suffix) {
				network = true
			}
		case domain.PageMedia:
			if e.Tab != tab {
				continue
			}
			for _, l := range e.Links {
				if strings.HasSuffix(l, suffix) {
					dom = true
				}
			}
		}
	}
	return network, dom
}

func TestRodSniffer_ObservesPageMedia(t *testing.T) {
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no local browser for rod")
	}

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><video src="/clip.mp4" preload="auto"></video></body></html>`)
		case "/clip.mp4":
			w.Header().Set("Content-Type", "video/mp4")
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer site.Close()

	s := NewRodSniffer(Options{
		Bin:             bin,
		Headless:        true,
		DOMScanInterval: 50 * time.Millisecond,
	}, testLogger())
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx, sink) }()
	defer func() {
		assert.NoError(t, s.Close())
		cancel()
		select {
		case err := <-runErr:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("sniffer did not stop")
		}
	}()

	tabID := domain.NoTab
	var openErr error
	require.Eventually(t, func() bool {
		tabID, openErr = s.Open(ctx, site.URL+"/")
		return !errors.Is(openErr, ErrNotRunning)
	}, 30*time.Second, 100*time.Millisecond)
	require.NoError(t, openErr)
	require.True(t, tabID.Valid())

	assert.Eventually(t, func() bool {
		for _, tab := range s.Tabs() {
			if tab.ID == tabID {
				return true
			}
		}
		return false
	}, 10*time.Second, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		network, _ := sink.sawLink(tabID, "/clip.mp4")
		return network
	}, 15*time.Second, 50*time.Millisecond, "the video request should be reported")

	assert.Eventually(t, func() bool {
		_, dom := sink.sawLink(tabID, "/clip.mp4")
		return dom
	}, 15*time.Second, 50*time.Millisecond, "the DOM scan should report the video source")
}
