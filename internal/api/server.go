package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"gametools/internal/config"
	"gametools/internal/event"
	"gametools/internal/gamewin"
	"gametools/internal/logger"
	"gametools/internal/overlay"
)

// Server exposes the running tool over HTTP: loop status, live events,
// configuration, and the overlay element editor.
type Server struct {
	router     *mux.Router
	events     *event.Manager
	configMgr  *config.Manager
	overlayMgr *overlay.Manager
	backend    gamewin.Backend // may be nil when running headless
	upgrader   websocket.Upgrader
}

// NewServer wires the API routes. backend may be nil.
func NewServer(events *event.Manager, configMgr *config.Manager, overlayMgr *overlay.Manager, backend gamewin.Backend) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		events:     events,
		configMgr:  configMgr,
		overlayMgr: overlayMgr,
		backend:    backend,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, no cross-origin concerns
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	api.HandleFunc("/events", s.handleGetEvents).Methods("GET")
	api.HandleFunc("/events/stream", s.handleEventStream)

	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	api.HandleFunc("/overlay/elements", s.handleGetElements).Methods("GET")
	api.HandleFunc("/overlay/elements/{id}", s.handleUpdateElement).Methods("PUT")

	api.HandleFunc("/window", s.handleGetWindow).Methods("GET")
}

// Handler returns the routed handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start starts the HTTP server.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logger.WithComponent("api").Info().Str("addr", addr).Msg("API server listening")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"ticks":       s.events.Ticks(),
		"live_events": s.events.LiveCount(),
		"state":       fmt.Sprintf("%T", s.events.CurrentState()),
		"window_open": false,
	}
	if s.backend != nil {
		status["backend"] = s.backend.Name()
		status["window_open"] = s.backend.IsOpen()
	}
	writeJSON(w, status)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.events.Snapshot())
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	notices := s.events.Subscribe()
	defer s.events.Unsubscribe(notices)

	for notice := range notices {
		if err := conn.WriteJSON(notice); err != nil {
			return
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configMgr.Get()
	writeJSON(w, cfg)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.configMgr.Update(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "success"})
}

type elementInfo struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handleGetElements(w http.ResponseWriter, r *http.Request) {
	elements := s.overlayMgr.All()
	infos := make([]elementInfo, 0, len(elements))
	for _, el := range elements {
		x, y := el.Position()
		infos = append(infos, elementInfo{
			ID:      el.ID(),
			Type:    el.Type(),
			X:       x,
			Y:       y,
			Enabled: el.IsEnabled(),
		})
	}
	writeJSON(w, infos)
}

func (s *Server) handleUpdateElement(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		X       *int  `json:"x"`
		Y       *int  `json:"y"`
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	el, ok := s.overlayMgr.Get(id)
	if !ok {
		http.Error(w, "element not found", http.StatusNotFound)
		return
	}

	if req.X != nil || req.Y != nil {
		x, y := el.Position()
		if req.X != nil {
			x = *req.X
		}
		if req.Y != nil {
			y = *req.Y
		}
		if err := s.overlayMgr.Move(id, x, y); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if req.Enabled != nil {
		if err := s.overlayMgr.SetElementEnabled(id, *req.Enabled); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, map[string]string{"status": "success"})
}

func (s *Server) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		http.Error(w, "no window backend", http.StatusNotFound)
		return
	}
	if !s.backend.IsOpen() {
		http.Error(w, "game window not open", http.StatusNotFound)
		return
	}

	bounds, err := s.backend.Bounds()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	focused, err := s.backend.HasFocus()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"bounds":  bounds,
		"focused": focused,
	})
}
