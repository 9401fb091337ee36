package sniffer

import (
	"context"
	"sort"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"mediasniff/internal/domain"
)

// tabState is the bookkeeping for one attached page target.
type tabState struct {
	id     domain.TabID
	url    string
	ctx    context.Context
	cancel context.CancelFunc
	// ready is closed once network events are being streamed.
	ready chan struct{}
}

// tabTable maps CDP target ids to the integer ids handed out to callers.
// Ids are never reused within a process.
type tabTable struct {
	mu       sync.Mutex
	next     domain.TabID
	byTarget map[proto.TargetTargetID]*tabState
}

func newTabTable() *tabTable {
	return &tabTable{byTarget: make(map[proto.TargetTargetID]*tabState)}
}

// register returns the state for target, creating it when needed. created
// reports whether this call made it; the creator is responsible for closing
// ready.
func (t *tabTable) register(parent context.Context, target proto.TargetTargetID, url string) (st *tabState, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.byTarget[target]; ok {
		if url != "" {
			st.url = url
		}
		return st, false
	}

	ctx, cancel := context.WithCancel(parent)
	st = &tabState{
		id:     t.next,
		url:    url,
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
	}
	t.next++
	t.byTarget[target] = st
	return st, true
}

// lookup returns the tab id of target, or domain.NoTab once it is gone.
func (t *tabTable) lookup(target proto.TargetTargetID) domain.TabID {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.byTarget[target]; ok {
		return st.id
	}
	return domain.NoTab
}

func (t *tabTable) setURL(target proto.TargetTargetID, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.byTarget[target]; ok {
		st.url = url
	}
}

// remove forgets target and cancels its context.
func (t *tabTable) remove(target proto.TargetTargetID) (domain.TabID, bool) {
	t.mu.Lock()
	st, ok := t.byTarget[target]
	delete(t.byTarget, target)
	t.mu.Unlock()

	if !ok {
		return domain.NoTab, false
	}
	st.cancel()
	return st.id, true
}

func (t *tabTable) list() []domain.Tab {
	t.mu.Lock()
	tabs := make([]domain.Tab, 0, len(t.byTarget))
	for _, st := range t.byTarget {
		tabs = append(tabs, domain.Tab{ID: st.id, URL: st.url})
	}
	t.mu.Unlock()

	sort.Slice(tabs, func(i, j int) bool { return tabs[i].ID < tabs[j].ID })
	return tabs
}

// removeAll forgets every target.
func (t *tabTable) removeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for target, st := range t.byTarget {
		st.cancel()
		delete(t.byTarget, target)
	}
}
