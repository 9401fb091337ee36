package storage

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"mediasniff/internal/domain"
)

// linkSet is an insertion-ordered set of URLs.
type linkSet struct {
	order []string
	seen  map[string]struct{}
}

func newLinkSet() *linkSet {
	return &linkSet{seen: make(map[string]struct{})}
}

func (s *linkSet) add(url string) bool {
	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	s.order = append(s.order, url)
	return true
}

// MemoryRegistry implements Registry with a map guarded by a single mutex.
type MemoryRegistry struct {
	mu   sync.Mutex
	tabs map[domain.TabID]*linkSet
	log  logrus.FieldLogger
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry(logger logrus.FieldLogger) *MemoryRegistry {
	return &MemoryRegistry{
		tabs: make(map[domain.TabID]*linkSet),
		log:  logger.WithField("component", "registry"),
	}
}

func (r *MemoryRegistry) Record(_ context.Context, tabID domain.TabID, url string) error {
	if !tabID.Valid() || url == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.tabs[tabID]
	if !ok {
		set = newLinkSet()
		r.tabs[tabID] = set
	}
	if set.add(url) {
		r.log.WithFields(logrus.Fields{
			"tab_id": tabID,
			"url":    url,
		}).Debug("Recorded media link")
	}
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, tabID domain.TabID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.tabs[tabID]
	if !ok {
		return []string{}, nil
	}
	links := make([]string, len(set.order))
	copy(links, set.order)
	return links, nil
}

func (r *MemoryRegistry) Clear(_ context.Context, tabID domain.TabID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tabs[tabID]; !ok {
		return false, nil
	}
	delete(r.tabs, tabID)
	return true, nil
}

func (r *MemoryRegistry) Evict(_ context.Context, tabID domain.TabID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tabs[tabID]; ok {
		delete(r.tabs, tabID)
		r.log.WithField("tab_id", tabID).Info("Cleaned up data for closed tab")
	}
	return nil
}

// Close is a no-op; the registry lives only in memory.
func (r *MemoryRegistry) Close() error { return nil }
