package liveserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var (
	websocketActiveConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "basket_swap_websocket_active_connections",
		Help: "Current number of active progress stream connections",
	}, []string{"endpoint"})

	websocketRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_swap_websocket_rejected_total",
		Help: "Total number of rejected progress stream connections",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(websocketActiveConnections)
	prometheus.MustRegister(websocketRejectedTotal)
}

// Server serves the progress stream. GET /ws?run=<id> narrows a connection to one run.
type Server struct {
	hub            *Hub
	srv            *http.Server
	logger         Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
	mu             sync.Mutex

	maxConnections int
	connSemaphore  chan struct{}

	rateLimitEnabled bool
	ipLimiters       sync.Map // map[string]*rate.Limiter
	rateLimit        rate.Limit
	rateBurst        int

	production         bool
	allowMissingOrigin bool
}

func NewServer(hub *Hub, logger Logger, allowedOrigins []string) *Server {
	s := &Server{
		hub:              hub,
		logger:           logger,
		allowedOrigins:   allowedOrigins,
		maxConnections:   1000,
		connSemaphore:    make(chan struct{}, 1000),
		rateLimitEnabled: true,
		rateLimit:        10.0,
		rateBurst:        20,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the stream routes: /ws and /health
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleStream)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start serves handler (Handler() when nil) on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string, handler http.Handler) error {
	if handler == nil {
		handler = s.Handler()
	}

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("Starting progress stream", "addr", addr)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	}
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return nil
	}
	if s.logger != nil {
		s.logger.Info("Stopping progress stream")
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, reason string, status int) {
	if s.logger != nil {
		s.logger.Warn("Rejected stream connection", "reason", reason, "remote_addr", r.RemoteAddr)
	}
	websocketRejectedTotal.WithLabelValues(reason).Inc()
	http.Error(w, http.StatusText(status), status)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID != "" && !runIDPattern.MatchString(runID) {
		s.reject(w, r, rejectBadRun, http.StatusBadRequest)
		return
	}

	// Limits apply before the upgrade allocates anything
	release, reason := s.admit(r)
	if reason != "" {
		status := http.StatusServiceUnavailable
		if reason == rejectRateLimit {
			status = http.StatusTooManyRequests
		}
		s.reject(w, r, reason, status)
		return
	}
	defer release()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("WebSocket upgrade failed", "error", err)
		}
		return
	}

	client := NewRunClient(uuid.New().String(), runID)
	s.hub.Register(client)
	if s.logger != nil {
		s.logger.Info("Stream client connected", "client_id", client.id, "run_id", runID, "remote_addr", r.RemoteAddr)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump(conn, client)
	}()
	go func() {
		defer wg.Done()
		s.readPump(conn, client)
	}()
	wg.Wait()
	conn.Close()

	if s.logger != nil {
		s.logger.Info("Stream client disconnected", "client_id", client.id)
	}
}

func (s *Server) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// unblocks readPump
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.GetSendChan():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				if s.logger != nil {
					s.logger.Warn("Write error", "client_id", client.id, "error", err)
				}
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

// readPump only services control frames; clients never send data
func (s *Server) readPump(conn *websocket.Conn, client *Client) {
	defer s.hub.Unregister(client)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && s.logger != nil {
				s.logger.Warn("Read error", "client_id", client.id, "error", err)
			}
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
		"time":    time.Now().Unix(),
	})
}

func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

// SetProduction rejects wildcard origins when prod is true
func (s *Server) SetProduction(prod bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.production = prod
}

// SetAllowMissingOrigin admits non-browser clients that send no Origin header
func (s *Server) SetAllowMissingOrigin(allow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowMissingOrigin = allow
}

func (s *Server) SetMaxConnections(max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxConnections = max
	s.connSemaphore = make(chan struct{}, max)
}

// SetRateLimit replaces the per-IP connection rate. Existing limiters are discarded.
func (s *Server) SetRateLimit(limit float64, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimit = rate.Limit(limit)
	s.rateBurst = burst
	s.ipLimiters.Range(func(k, _ any) bool {
		s.ipLimiters.Delete(k)
		return true
	})
}
