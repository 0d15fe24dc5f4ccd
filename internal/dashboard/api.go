package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	csvFilename  = "market_stress_data.csv"
	writeTimeout = 5 * time.Second
)

// APIServer provides an HTTP interface for the stress engine.
type APIServer struct {
	server   *http.Server
	router   *mux.Router
	engine   *Engine
	metrics  http.Handler
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewAPIServer creates a new APIServer listening on port. metricsHandler
// serves /metrics and may be nil.
func NewAPIServer(engine *Engine, port int, metricsHandler http.Handler, logger *zap.Logger) *APIServer {
	s := &APIServer{
		router:  mux.NewRouter(),
		engine:  engine,
		metrics: metricsHandler,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("api-server"),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *APIServer) setupRoutes() {
	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/frame", s.frameHandler).Methods(http.MethodGet)
	api.HandleFunc("/rows", s.rowsHandler).Methods(http.MethodGet)
	api.HandleFunc("/export.csv", s.exportHandler).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.streamHandler)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// Handler returns the router, for tests and embedding.
func (s *APIServer) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := struct {
		UUID       string   `json:"uuid"`
		Name       string   `json:"name"`
		Detectors  []string `json:"detectors"`
		StartTime  string   `json:"start_time"`
		Uptime     string   `json:"uptime"`
		Cycles     int      `json:"cycles"`
		Rows       int      `json:"rows"`
		ModelState string   `json:"model_state"`
	}{
		UUID:       s.engine.UUID,
		Name:       s.engine.Name,
		Detectors:  s.engine.Detectors(),
		StartTime:  s.engine.StartTime.Format(time.RFC3339),
		Uptime:     time.Since(s.engine.StartTime).Round(time.Second).String(),
		ModelState: TrainingStatus,
	}
	if f := s.engine.Latest(); f != nil {
		status.Cycles = f.Cycle
		status.Rows = f.Rows
		status.ModelState = f.ModelState
	}
	s.writeJSON(w, status)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) frameHandler(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.latestFrame(w)
	if !ok {
		return
	}
	s.writeJSON(w, frame)
}

func (s *APIServer) rowsHandler(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.latestFrame(w)
	if !ok {
		return
	}
	s.writeJSON(w, frame.Annotated())
}

func (s *APIServer) exportHandler(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.latestFrame(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", csvFilename))
	if err := frame.WriteCSV(w); err != nil {
		s.logger.Error("Failed to write CSV export", zap.Error(err))
	}
}

// streamHandler pushes every published frame to a websocket client until it
// disconnects or the engine stops.
func (s *APIServer) streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	frames, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	// The read loop only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if f := s.engine.Latest(); f != nil {
		if err := s.writeFrame(conn, f); err != nil {
			return
		}
	}
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "engine stopped"),
					time.Now().Add(writeTimeout))
				return
			}
			if err := s.writeFrame(conn, f); err != nil {
				s.logger.Debug("Stream client write failed", zap.Error(err))
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *APIServer) writeFrame(conn *websocket.Conn, f *Frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(f)
}

func (s *APIServer) latestFrame(w http.ResponseWriter) (*Frame, bool) {
	frame := s.engine.Latest()
	if frame == nil {
		http.Error(w, "no frame published yet", http.StatusServiceUnavailable)
		return nil, false
	}
	return frame, true
}

func (s *APIServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
