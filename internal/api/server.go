// Package api exposes the engine's start/stop/status surface and the filter selection over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"transfer-sniper/internal/filters"
	"transfer-sniper/internal/settings"
	"transfer-sniper/internal/sniper"
)

// Controller is the engine surface the API drives.
type Controller interface {
	Start(ctx context.Context) bool
	Stop() bool
	Snapshot() sniper.Snapshot
	Settings() settings.Settings
	UpdateSettings(s settings.Settings)
}

// FilterCatalog lists saved filters and edits the selection.
type FilterCatalog interface {
	List() []filters.Filter
	IsSelected(id string) bool
	Select(id string) error
	Deselect(id string)
	Get(id string) (filters.Filter, bool)
	SaveSelection(ctx context.Context) error
}

// SettingsSaver persists settings accepted over the API.
type SettingsSaver interface {
	Save(ctx context.Context, s settings.Settings) error
}

// Server serves the control API.
type Server struct {
	base     context.Context
	engine   Controller
	filters  FilterCatalog
	settings SettingsSaver
	logger   zerolog.Logger
}

// New constructs a Server. Runs started over HTTP are bound to base, not to the request.
// saver may be nil, in which case settings changes are applied but not persisted.
func New(base context.Context, engine Controller, catalog FilterCatalog, saver SettingsSaver, logger zerolog.Logger) *Server {
	return &Server{
		base:     base,
		engine:   engine,
		filters:  catalog,
		settings: saver,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Post("/start", s.handleStart)
	r.Post("/stop", s.handleStop)
	r.Get("/status", s.handleStatus)

	r.Get("/settings", s.handleGetSettings)
	r.Put("/settings", s.handlePutSettings)

	r.Get("/filters", s.handleListFilters)
	r.Put("/filters/{id}/selection", s.handleSelect)
	r.Delete("/filters/{id}/selection", s.handleDeselect)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("control api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve control api: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown control api: %w", err)
		}
		return nil
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

type statusResponse struct {
	sniper.Snapshot
	NextDelaySeconds float64 `json:"nextDelaySeconds"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Start(s.base) {
		writeError(w, http.StatusConflict, "sniper not started")
		return
	}
	s.writeStatus(w, http.StatusAccepted)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Stop() {
		writeError(w, http.StatusConflict, "sniper already stopped")
		return
	}
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) writeStatus(w http.ResponseWriter, code int) {
	snap := s.engine.Snapshot()
	writeJSON(w, code, statusResponse{Snapshot: snap, NextDelaySeconds: snap.NextDelay.Seconds()})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Settings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	next, err := settings.Merge(s.engine.Settings(), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if s.settings != nil {
		if err := s.settings.Save(r.Context(), next); err != nil {
			s.logger.Error().Err(err).Msg("persist settings")
			writeError(w, http.StatusInternalServerError, "persist settings")
			return
		}
	}
	s.engine.UpdateSettings(next)
	writeJSON(w, http.StatusOK, s.engine.Settings())
}

type filterView struct {
	filters.Filter
	Label    string `json:"label,omitempty"`
	Selected bool   `json:"selected"`
}

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	list := s.filters.List()
	out := make([]filterView, 0, len(list))
	for _, f := range list {
		out = append(out, filterView{Filter: f, Label: f.Reference.Label(), Selected: s.filters.IsSelected(f.ID)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.filters.Select(id); err != nil {
		if errors.Is(err, filters.ErrNotFound) {
			writeError(w, http.StatusNotFound, "filter not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistSelection(w, r)
}

func (s *Server) handleDeselect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.filters.Get(id); !ok {
		writeError(w, http.StatusNotFound, "filter not found")
		return
	}
	s.filters.Deselect(id)
	s.persistSelection(w, r)
}

func (s *Server) persistSelection(w http.ResponseWriter, r *http.Request) {
	if err := s.filters.SaveSelection(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("persist selection")
		writeError(w, http.StatusInternalServerError, "persist selection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
