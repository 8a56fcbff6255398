package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/externos/hubd/internal/config"
	"github.com/externos/hubd/internal/display"
	"github.com/externos/hubd/internal/logger"
	"github.com/externos/hubd/internal/network"
	"github.com/externos/hubd/internal/window"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Windows is the window tracker surface the API uses
type Windows interface {
	Windows() []window.TrackedWindow
	Activate(ctx context.Context, id string) error
	Subscribe() chan window.Event
	Unsubscribe(ch chan window.Event)
}

// Wifi is the network controller surface the API uses
type Wifi interface {
	Networks() []network.WifiNetwork
	Scan(ctx context.Context) ([]network.WifiNetwork, error)
	ActiveConnections(ctx context.Context) ([]network.ActiveConnection, error)
	Connect(ctx context.Context, ssid, password string) error
	Disconnect(ctx context.Context) error
	Subscribe() chan network.Event
	Unsubscribe(ch chan network.Event)
}

// Displays is the xrandr surface the API uses
type Displays interface {
	Outputs(ctx context.Context) ([]display.Output, error)
	SetBrightness(ctx context.Context, name string, level float64) (float64, error)
}

// Icons looks up extracted PNG icons by process id
type Icons interface {
	Get(pid int) ([]byte, bool)
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	configMgr *config.Manager
	windows   Windows
	wifi      Wifi
	displays  Displays
	icons     Icons
	hub       *Hub
	upgrader  websocket.Upgrader
	http      *http.Server
}

// NewServer creates a new API server. Any component except configMgr may
// be nil; its routes then answer 503.
func NewServer(configMgr *config.Manager, windows Windows, wifi Wifi, displays Displays, icons Icons) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		configMgr: configMgr,
		windows:   windows,
		wifi:      wifi,
		displays:  displays,
		icons:     icons,
		hub:       NewHub(32),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // The shell UI is served from file://
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Windows
	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")
	api.HandleFunc("/windows/{id}/activate", s.handleActivateWindow).Methods("POST")
	api.HandleFunc("/icons/{pid:[0-9]+}", s.handleGetIcon).Methods("GET")

	// Wi-Fi
	api.HandleFunc("/wifi/networks", s.handleGetNetworks).Methods("GET")
	api.HandleFunc("/wifi/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/wifi/active", s.handleGetActive).Methods("GET")
	api.HandleFunc("/wifi/connect", s.handleConnect).Methods("POST")
	api.HandleFunc("/wifi/disconnect", s.handleDisconnect).Methods("POST")

	// Displays
	api.HandleFunc("/displays", s.handleGetDisplays).Methods("GET")
	api.HandleFunc("/displays/{name}/brightness", s.handleSetBrightness).Methods("PUT")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	// Events
	api.HandleFunc("/events", s.handleEvents)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Hub returns the event hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens on port until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.WithComponent("api").Info().Str("addr", addr).Msg("Starting server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and disconnects event clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Run forwards tracker and controller events to the hub until ctx is done
func (s *Server) Run(ctx context.Context) {
	s.Forward(ctx)()
}

// Forward subscribes to tracker and controller events and relays them to
// the hub until ctx is done. It returns once subscribed; the returned func
// waits for the relays to exit.
func (s *Server) Forward(ctx context.Context) (wait func()) {
	wg := &conc.WaitGroup{}

	if s.windows != nil {
		events := s.windows.Subscribe()
		wg.Go(func() {
			defer s.windows.Unsubscribe(events)
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					s.publish(string(ev.Kind), ev.Window)
				}
			}
		})
	}

	if s.wifi != nil {
		events := s.wifi.Subscribe()
		wg.Go(func() {
			defer s.wifi.Unsubscribe(events)
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					s.publish(string(ev.Kind), ev)
				}
			}
		})
	}

	return wg.Wait
}

func (s *Server) publish(kind string, payload interface{}) {
	if err := s.hub.Publish(kind, payload); err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("Failed to publish event")
	}
}

// enableCORS adds CORS headers
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

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errUnavailable = errors.New("component not available")

// HTTP Handlers

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	if s.windows == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.windows.Windows())
}

func (s *Server) handleActivateWindow(w http.ResponseWriter, r *http.Request) {
	if s.windows == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}
	id := mux.Vars(r)["id"]

	err := s.windows.Activate(r.Context(), id)
	switch {
	case errors.Is(err, window.ErrUnknownWindow):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func (s *Server) handleGetIcon(w http.ResponseWriter, r *http.Request) {
	if s.icons == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}
	pid, err := strconv.Atoi(mux.Vars(r)["pid"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	png, ok := s.icons.Get(pid)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(png)
}

func (s *Server) handleGetNetworks(w http.ResponseWriter, r *http.Request) {
	if s.wifi == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.wifi.Networks())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.wifi == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}
	networks, err := s.wifi.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, networks)
}

func (s *Server) handleGetActive(w http.ResponseWriter, r *http.Request) {
	if s.wifi == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}
	active, err := s.wifi.ActiveConnections(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if s.wifi == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	var req struct {
		SSID     string `json:"ssid"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SSID == "" {
		writeError(w, http.StatusBadRequest, errors.New("ssid is required"))
		return
	}

	if err := s.wifi.Connect(r.Context(), req.SSID, req.Password); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected", "ssid": req.SSID})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if s.wifi == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	err := s.wifi.Disconnect(r.Context())
	switch {
	case errors.Is(err, network.ErrNotConnected):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
	}
}

func (s *Server) handleGetDisplays(w http.ResponseWriter, r *http.Request) {
	if s.displays == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}
	outputs, err := s.displays.Outputs(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, outputs)
}

func (s *Server) handleSetBrightness(w http.ResponseWriter, r *http.Request) {
	if s.displays == nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable)
		return
	}
	name := mux.Vars(r)["name"]

	var req struct {
		Level *float64 `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Level == nil {
		writeError(w, http.StatusBadRequest, errors.New("level is required"))
		return
	}

	applied, err := s.displays.SetBrightness(r.Context(), name, *req.Level)
	switch {
	case errors.Is(err, display.ErrUnknownOutput):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"output": name, "brightness": applied})
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configMgr.Get()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.configMgr.Update(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"clients": s.hub.Clients(),
	})
}

// handleEvents upgrades to a websocket, sends a snapshot envelope and then
// streams every published event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	events := s.hub.register()
	defer s.hub.unregister(events)

	snapshot := map[string]interface{}{}
	if s.windows != nil {
		snapshot["windows"] = s.windows.Windows()
	}
	if s.wifi != nil {
		snapshot["networks"] = s.wifi.Networks()
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(newEnvelope("snapshot", snapshot)); err != nil {
		log.Debug().Err(err).Msg("WebSocket write error")
		return
	}

	// The reader only drains control frames and notices a closed peer
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
