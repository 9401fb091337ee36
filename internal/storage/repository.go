package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"mediasniff/internal/domain"
)

// Registry keeps the set of media URLs discovered for each tab.
// Implementations must be safe for concurrent use; invalid input is ignored
// rather than reported.
type Registry interface {
	// Record adds url to the tab's set. Negative tab ids and empty URLs are
	// dropped silently, and recording a known URL again is a no-op.
	Record(ctx context.Context, tabID domain.TabID, url string) error

	// Get returns the tab's URLs in the order they were first recorded.
	// An unknown tab yields an empty slice.
	Get(ctx context.Context, tabID domain.TabID) ([]string, error)

	// Clear removes the tab's entry and reports whether there was one.
	Clear(ctx context.Context, tabID domain.TabID) (bool, error)

	// Evict removes the tab's entry if present. It is used when a tab closes.
	Evict(ctx context.Context, tabID domain.TabID) error

	// Close releases backend resources.
	Close() error
}

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// New builds the registry for the named backend.
func New(backend string, logger logrus.FieldLogger) (Registry, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryRegistry(logger), nil
	case BackendBadger:
		return NewBadgerRegistry(logger)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", backend)
	}
}
