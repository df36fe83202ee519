package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
	"github.com/tradeworks/equity-screener/internal/storage"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

var (
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "screener_ws_connections_active",
		Help: "Number of active WebSocket connections",
	})

	wsConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_ws_connections_total",
		Help: "Total number of WebSocket connections accepted",
	})

	wsSignalsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_ws_signals_broadcast_total",
		Help: "Total number of signals broadcast to WebSocket clients",
	})

	wsMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screener_ws_messages_sent_total",
		Help: "Total number of messages written to WebSocket clients",
	})
)

// HubStats tracks live feed statistics
type HubStats struct {
	mu                sync.RWMutex
	TotalConnections  int64     `json:"total_connections"`
	ActiveConnections int       `json:"active_connections"`
	SignalsBroadcast  int64     `json:"signals_broadcast"`
	MessagesSent      int64     `json:"messages_sent"`
	LastBroadcast     time.Time `json:"last_broadcast"`
}

// Hub bridges the Redis signal channel to WebSocket clients. Accepted
// decisions published by the screener are fanned out to every connection
// subscribed to the decision's symbol.
type Hub struct {
	registry *ConnectionRegistry
	redis    storage.RedisClient
	auth     *AuthManager
	channel  string
	cfg      config.APIConfig

	upgrader websocket.Upgrader
	stats    HubStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewHub creates a new WebSocket hub consuming from the given signal channel
func NewHub(redis storage.RedisClient, auth *AuthManager, channel string, cfg config.APIConfig) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry: NewConnectionRegistry(),
		redis:    redis,
		auth:     auth,
		channel:  channel,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS is handled by middleware
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the signal channel and begins serving connections
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return nil
	}

	msgCh, err := h.redis.Subscribe(h.ctx, h.channel)
	if err != nil {
		return err
	}

	h.running = true

	h.wg.Add(2)
	go h.consumeSignals(msgCh)
	go h.monitorConnections()

	logger.Info("WebSocket hub started",
		logger.String("channel", h.channel),
	)
	return nil
}

// Stop closes all connections and stops the hub
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()

	// No broadcasts are in flight past this point
	for _, conn := range h.registry.GetAll() {
		conn.Close()
		h.registry.Remove(conn.ID)
	}

	logger.Info("WebSocket hub stopped")
}

// consumeSignals reads decisions off the Redis channel and broadcasts them
func (h *Hub) consumeSignals(msgCh <-chan storage.PubSubMessage) {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				logger.Warn("Signal channel closed, stopping broadcast loop")
				return
			}

			var decision models.SignalDecision
			if err := json.Unmarshal([]byte(msg.Message), &decision); err != nil {
				logger.Error("Failed to decode published signal",
					logger.String("channel", msg.Channel),
					logger.ErrorField(err),
				)
				continue
			}

			h.broadcastSignal(&decision)
		}
	}
}

// broadcastSignal fans a decision out to every subscribed connection
func (h *Hub) broadcastSignal(decision *models.SignalDecision) {
	conns := h.registry.GetAll()

	sent := 0
	for _, conn := range conns {
		if !conn.ShouldReceiveSignal(decision) {
			continue
		}
		if err := conn.SendSignal(decision); err != nil {
			logger.Debug("Failed to queue signal for connection",
				logger.String("connection_id", conn.ID),
				logger.ErrorField(err),
			)
			continue
		}
		sent++
	}

	wsSignalsBroadcast.Inc()

	h.stats.mu.Lock()
	h.stats.SignalsBroadcast++
	h.stats.MessagesSent += int64(sent)
	h.stats.LastBroadcast = time.Now()
	h.stats.mu.Unlock()

	logger.Debug("Signal broadcast",
		logger.String("symbol", decision.Symbol),
		logger.String("signal_type", string(decision.Type)),
		logger.Int("recipients", sent),
	)
}

// ServeWS upgrades an HTTP request to a WebSocket connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	// Token can come from the query string or the Authorization header
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); header != "" {
			if extracted, err := h.auth.ExtractTokenFromHeader(header); err == nil {
				token = extracted
			}
		}
	}

	userID, err := h.auth.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket authentication failed",
			logger.String("remote_addr", r.RemoteAddr),
			logger.ErrorField(err),
		)
		respondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed",
			logger.String("remote_addr", r.RemoteAddr),
			logger.ErrorField(err),
		)
		return
	}

	conn := NewConnection(uuid.New().String(), userID, ws)
	h.registry.Add(conn)

	wsConnectionsTotal.Inc()
	wsConnectionsActive.Set(float64(h.registry.Count()))

	h.stats.mu.Lock()
	h.stats.TotalConnections++
	h.stats.ActiveConnections = h.registry.Count()
	h.stats.mu.Unlock()

	logger.Info("WebSocket client connected",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", userID),
		logger.Int("active_connections", h.registry.Count()),
	)

	go h.writePump(conn)
	go h.readPump(conn)
}

// removeConnection unregisters and closes a connection
func (h *Hub) removeConnection(conn *Connection) {
	if _, ok := h.registry.Get(conn.ID); !ok {
		return
	}

	h.registry.Remove(conn.ID)
	conn.Close()

	wsConnectionsActive.Set(float64(h.registry.Count()))

	h.stats.mu.Lock()
	h.stats.ActiveConnections = h.registry.Count()
	h.stats.mu.Unlock()

	logger.Info("WebSocket client disconnected",
		logger.String("connection_id", conn.ID),
		logger.Int("active_connections", h.registry.Count()),
	)
}

// writePump pumps queued messages to the WebSocket connection
func (h *Hub) writePump(conn *Connection) {
	pingTicker := time.NewTicker(h.cfg.WSPingInterval)
	defer func() {
		pingTicker.Stop()
		h.removeConnection(conn)
	}()

	for {
		select {
		case <-h.ctx.Done():
			return

		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.cfg.WSWriteTimeout))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("WebSocket write failed",
					logger.String("connection_id", conn.ID),
					logger.ErrorField(err),
				)
				return
			}
			wsMessagesSent.Inc()

		case <-pingTicker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.cfg.WSWriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client messages from the WebSocket connection
func (h *Hub) readPump(conn *Connection) {
	defer h.removeConnection(conn)

	pongWait := h.cfg.WSPingInterval * 2
	conn.Conn.SetReadLimit(1024)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read failed",
					logger.String("connection_id", conn.ID),
					logger.ErrorField(err),
				)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.SendError("invalid_json", "failed to parse message")
			continue
		}

		if err := conn.HandleClientMessage(&msg); err != nil {
			logger.Debug("Failed to handle client message",
				logger.String("connection_id", conn.ID),
				logger.String("type", msg.Type),
				logger.ErrorField(err),
			)
		}
	}
}

// monitorConnections closes connections whose clients stopped answering pings
func (h *Hub) monitorConnections() {
	defer h.wg.Done()

	interval := h.cfg.WSPingInterval
	staleAfter := interval * 3

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			for _, conn := range h.registry.GetAll() {
				if time.Since(conn.GetLastPong()) > staleAfter {
					logger.Info("Closing stale WebSocket connection",
						logger.String("connection_id", conn.ID),
						logger.Time("last_pong", conn.GetLastPong()),
					)
					h.removeConnection(conn)
				}
			}
		}
	}
}

// GetStats returns a snapshot of hub statistics
func (h *Hub) GetStats() HubStats {
	h.stats.mu.RLock()
	defer h.stats.mu.RUnlock()

	return HubStats{
		TotalConnections:  h.stats.TotalConnections,
		ActiveConnections: h.registry.Count(),
		SignalsBroadcast:  h.stats.SignalsBroadcast,
		MessagesSent:      h.stats.MessagesSent,
		LastBroadcast:     h.stats.LastBroadcast,
	}
}
