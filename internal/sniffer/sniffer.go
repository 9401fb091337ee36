package sniffer

import (
	"context"

	"mediasniff/internal/domain"
	"mediasniff/internal/intake"
)

// Sniffer watches browser tabs and reports what it sees to an intake sink.
type Sniffer interface {
	// Run attaches to the browser and streams events into sink until ctx is
	// cancelled.
	Run(ctx context.Context, sink intake.Sink) error

	// Tabs lists the tabs currently being watched.
	Tabs() []domain.Tab

	// Open loads url in a new watched tab.
	Open(ctx context.Context, url string) (domain.TabID, error)

	// Close releases the browser.
	Close() error
}
