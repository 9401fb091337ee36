// Package api exposes the query protocol over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"mediasniff/internal/domain"
	"mediasniff/internal/query"
)

const maxMessageBytes = 1 << 20

// TabLister reports the tabs currently being watched.
type TabLister interface {
	Tabs() []domain.Tab
}

// Server serves the query API.
type Server struct {
	svc  *query.Service
	tabs TabLister
	log  logrus.FieldLogger
}

// NewServer creates a server. tabs may be nil, in which case /tabs is empty.
func NewServer(svc *query.Service, tabs TabLister, logger logrus.FieldLogger) *Server {
	return &Server{
		svc:  svc,
		tabs: tabs,
		log:  logger.WithField("component", "api"),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/messages", s.handleMessage)
	r.Get("/tabs", s.handleTabs)
	r.Get("/tabs/{tabID}/links", s.handleGetLinks)
	r.Delete("/tabs/{tabID}/links", s.handleClearLinks)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		s.log.Info("HTTP API stopped")
		return nil
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "message too large")
		return
	}

	resp, handled, err := s.svc.Handle(r.Context(), body)
	switch {
	case err != nil:
		s.log.WithError(err).Error("Failed to handle message")
		s.writeError(w, r, http.StatusInternalServerError, "internal error")
	case !handled:
		s.writeError(w, r, http.StatusBadRequest, "unhandled message")
	case resp == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeJSON(w, r, http.StatusOK, resp)
	}
}

func (s *Server) handleTabs(w http.ResponseWriter, r *http.Request) {
	tabs := []domain.Tab{}
	if s.tabs != nil {
		tabs = s.tabs.Tabs()
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"tabs": tabs})
}

func (s *Server) handleGetLinks(w http.ResponseWriter, r *http.Request) {
	tabID, ok := s.tabParam(w, r)
	if !ok {
		return
	}
	resp, err := s.svc.GetLinks(r.Context(), tabID)
	if err != nil {
		s.log.WithError(err).Error("Failed to get links")
		s.writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleClearLinks(w http.ResponseWriter, r *http.Request) {
	tabID, ok := s.tabParam(w, r)
	if !ok {
		return
	}
	resp, err := s.svc.ClearLinks(r.Context(), tabID)
	if err != nil {
		s.log.WithError(err).Error("Failed to clear links")
		s.writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) tabParam(w http.ResponseWriter, r *http.Request) (domain.TabID, bool) {
	raw := chi.URLParam(r, "tabID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid tab id")
		return domain.NoTab, false
	}
	return domain.TabID(id), true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, map[string]string{"error": msg})
}

// writeJSON encodes v. A client that went away is not an error worth more
// than a debug line.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Debug("Dropped response")
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}
