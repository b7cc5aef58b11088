package http

import (
	"net/http"

	"github.com/Wyydra/huddle/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Options are the per-connection limits and HTTP settings of the relay
// surface. Zero values take the defaults below.
type Options struct {
	MaxMessageBytes   int
	MessagesPerSecond float64
	MessageBurst      int
	SendBuffer        int
	AllowedOrigins    []string
	Version           string
}

func (o Options) withDefaults() Options {
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = 50
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 100
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	return o
}

type Handler struct {
	Router *service.Router

	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(router *service.Router, opts Options) *Handler {
	h := &Handler{
		Router: router,
		opts:   opts.withDefaults(),
	}
	h.upgrader = h.newUpgrader()
	return h
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.Health)
	r.Get("/presence", h.Presence)
	r.Get("/ws", h.ServeWS)

	return r
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Version     string `json:"version"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Connections: h.Router.Count(),
		Version:     h.opts.Version,
	})
}

// Presence dumps the current presence table for operators.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Router.Presence())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
