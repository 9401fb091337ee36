// Package query serves the getLinks / clearLinks protocol used by
// presentation layers.
package query

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"mediasniff/internal/domain"
	"mediasniff/internal/intake"
	"mediasniff/internal/storage"
)

// Queue is the dispatch loop the service runs on. Reads and clears are run
// through it so they see every event submitted before them.
type Queue interface {
	intake.Sink
	Do(ctx context.Context, tabID domain.TabID, fn intake.QueryFunc) error
}

// Service answers protocol messages against the registry owned by a Queue.
type Service struct {
	queue Queue
	log   logrus.FieldLogger
}

// NewService creates a query service.
func NewService(queue Queue, logger logrus.FieldLogger) *Service {
	return &Service{
		queue: queue,
		log:   logger.WithField("component", "query"),
	}
}

// GetLinks returns the links recorded for tabID.
func (s *Service) GetLinks(ctx context.Context, tabID domain.TabID) (LinksResponse, error) {
	var links []string
	err := s.queue.Do(ctx, tabID, func(ctx context.Context, reg storage.Registry) error {
		var err error
		links, err = reg.Get(ctx, tabID)
		return err
	})
	if err != nil {
		return LinksResponse{Links: []string{}}, fmt.Errorf("get links for tab %d: %w", tabID, err)
	}
	return LinksResponse{Links: links}, nil
}

// ClearLinks drops the links recorded for tabID.
func (s *Service) ClearLinks(ctx context.Context, tabID domain.TabID) (ClearResponse, error) {
	var ok bool
	err := s.queue.Do(ctx, tabID, func(ctx context.Context, reg storage.Registry) error {
		var err error
		ok, err = reg.Clear(ctx, tabID)
		return err
	})
	if err != nil {
		return ClearResponse{}, fmt.Errorf("clear links for tab %d: %w", tabID, err)
	}
	s.log.WithFields(logrus.Fields{
		"tab_id":  tabID,
		"success": ok,
	}).Debug("Cleared links")
	return ClearResponse{Success: ok}, nil
}

// AddLinks queues media links discovered in a page.
func (s *Service) AddLinks(ctx context.Context, tabID domain.TabID, links []string) error {
	if !tabID.Valid() || len(links) == 0 {
		return nil
	}
	if err := s.queue.Submit(ctx, domain.PageMedia{Tab: tabID, Links: links}); err != nil {
		return fmt.Errorf("add links for tab %d: %w", tabID, err)
	}
	return nil
}

// Dispatch runs msg. handled is false for actions the service does not know;
// resp is nil for actions that need no reply.
func (s *Service) Dispatch(ctx context.Context, msg Message) (resp any, handled bool, err error) {
	switch msg.Action {
	case ActionGetLinks:
		r, err := s.GetLinks(ctx, msg.TabID)
		return r, true, err
	case ActionClearLinks:
		r, err := s.ClearLinks(ctx, msg.TabID)
		return r, true, err
	case ActionAddLinks:
		return nil, true, s.AddLinks(ctx, msg.TabID, msg.Links)
	default:
		s.log.WithField("action", msg.Action).Debug("Ignoring unknown action")
		return nil, false, nil
	}
}

// Handle decodes raw and dispatches it. Malformed input is reported as not
// handled rather than as an error.
func (s *Service) Handle(ctx context.Context, raw []byte) (resp any, handled bool, err error) {
	msg, ok := Decode(raw)
	if !ok {
		s.log.Debug("Ignoring malformed message")
		return nil, false, nil
	}
	return s.Dispatch(ctx, msg)
}
