package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
	"github.com/devricklin/feishu-relay/internal/biz/repo"
)

// GateStatus is the read side of the schedule gate
type GateStatus interface {
	IsActive() bool
	Window() domain.ScheduleWindow
	NextEvents() (start, end time.Time, ok bool)
}

// SettingsSource returns the active relay rule set
type SettingsSource interface {
	Settings() domain.RelaySettings
}

// Server provides the operational HTTP API
type Server struct {
	gate        GateStatus
	settings    SettingsSource
	mappings    repo.MappingRepo
	assets      repo.AssetRepo
	sourceChats int
	started     time.Time

	server *http.Server
	addr   string
	log    zerolog.Logger
}

// NewServer creates a new API server
func NewServer(
	addr string,
	gate GateStatus,
	settings SettingsSource,
	mappings repo.MappingRepo,
	assets repo.AssetRepo,
	sourceChats int,
	log zerolog.Logger,
) *Server {
	return &Server{
		gate:        gate,
		settings:    settings,
		mappings:    mappings,
		assets:      assets,
		sourceChats: sourceChats,
		started:     time.Now(),
		addr:        addr,
		log:         log.With().Str("component", "api").Logger(),
	}
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(s.log))
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	return r
}

// Start serves until Stop is called. An empty address disables the API.
func (s *Server) Start() error {
	if s.addr == "" {
		s.log.Info().Msg("API disabled")
		return nil
	}
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info().Str("addr", s.addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Check represents the status of a health check
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"` // "ok" or "degraded"
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	healthy := true

	start := time.Now()
	if _, err := s.mappings.Count(ctx); err != nil {
		checks["store"] = Check{Status: "fail", Message: err.Error()}
		healthy = false
	} else {
		checks["store"] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ScheduleStatus describes the schedule window
type ScheduleStatus struct {
	Enabled          bool       `json:"enabled"`
	Window           string     `json:"window"`
	NextActivation   *time.Time `json:"next_activation,omitempty"`
	NextDeactivation *time.Time `json:"next_deactivation,omitempty"`
}

// StatusResponse mirrors the relay's operational state
type StatusResponse struct {
	Active              bool           `json:"active"`
	Schedule            ScheduleStatus `json:"schedule"`
	SourceChats         int            `json:"source_chats"`
	DestinationChats    int            `json:"destination_chats"`
	BlockedWords        int            `json:"blocked_words"`
	Replacements        int            `json:"replacements"`
	StickerReplacements int            `json:"sticker_replacements"`
	ImageReplacements   int            `json:"image_replacements"`
	TextOnly            bool           `json:"text_only"`
	Mappings            int64          `json:"mappings"`
	MediaAssets         int            `json:"media_assets"`
	Uptime              string         `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	settings := s.settings.Settings()
	window := s.gate.Window()

	resp := StatusResponse{
		Active: s.gate.IsActive(),
		Schedule: ScheduleStatus{
			Enabled: window.Enabled,
			Window:  window.String(),
		},
		SourceChats:         s.sourceChats,
		DestinationChats:    len(settings.Destinations),
		BlockedWords:        len(settings.Filter.BlockedWords),
		Replacements:        len(settings.Filter.Replacements),
		StickerReplacements: len(settings.Media.StickerReplacements),
		ImageReplacements:   len(settings.Media.ImageReplacements),
		TextOnly:            settings.TextOnly,
		Mappings:            -1,
		MediaAssets:         -1,
		Uptime:              time.Since(s.started).Truncate(time.Second).String(),
	}
	if start, end, ok := s.gate.NextEvents(); ok {
		resp.Schedule.NextActivation = &start
		resp.Schedule.NextDeactivation = &end
	}

	if n, err := s.mappings.Count(r.Context()); err == nil {
		resp.Mappings = n
	} else {
		s.log.Warn().Err(err).Msg("Failed to count mappings")
	}
	if n, err := s.assets.Count(); err == nil {
		resp.MediaAssets = n
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
