package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradeworks/equity-screener/internal/models"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

// MessageType represents the type of WebSocket client message
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"
)

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type    string   `json:"type"`
	Symbol  string   `json:"symbol,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
}

// ServerMessage represents a message to the client
type ServerMessage struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Connection represents one WebSocket client of the live signal feed
type Connection struct {
	ID            string
	UserID        string
	Conn          *websocket.Conn
	Send          chan []byte
	Subscriptions map[string]bool // symbol -> subscribed

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	lastPong  time.Time
	createdAt time.Time
}

// NewConnection creates a new WebSocket connection
func NewConnection(id string, userID string, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:            id,
		UserID:        userID,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
		createdAt:     time.Now(),
		lastPong:      time.Now(),
	}
}

// Subscribe subscribes to signals for a symbol
func (c *Connection) Subscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Subscriptions[symbol] = true
}

// Unsubscribe unsubscribes from signals for a symbol
func (c *Connection) Unsubscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Subscriptions, symbol)
}

// IsSubscribed checks if the connection is subscribed to a symbol
func (c *Connection) IsSubscribed(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[symbol]
}

// ShouldReceiveSignal checks if the connection should receive a
// decision. A connection with no subscriptions receives everything.
func (c *Connection) ShouldReceiveSignal(decision *models.SignalDecision) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.Subscriptions) == 0 {
		return true
	}

	return c.Subscriptions[decision.Symbol]
}

// UpdateLastPong updates the last pong time
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Close closes the connection. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.Send)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// WriteJSON writes a JSON message to the connection
func (c *Connection) WriteJSON(v interface{}) error {
	c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.Conn.WriteJSON(v)
}

// SendSignal queues a decision for delivery. Messages are dropped when
// the client cannot keep up.
func (c *Connection) SendSignal(decision *models.SignalDecision) error {
	message := ServerMessage{
		Type: "signal",
		Data: decision,
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-time.After(1 * time.Second):
		logger.Warn("Failed to send signal, channel full",
			logger.String("connection_id", c.ID),
			logger.String("user_id", c.UserID),
		)
		return nil // Drop message if channel is full
	}
}

// SendError sends an error message to the client
func (c *Connection) SendError(code string, message string) error {
	errorMsg := ServerMessage{
		Type:    "error",
		Code:    code,
		Message: message,
	}

	data, err := json.Marshal(errorMsg)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		// Drop error message if channel is full
		return nil
	}
}

// SendSuccess sends a success acknowledgement to the client
func (c *Connection) SendSuccess(action string, data interface{}) error {
	message := ServerMessage{
		Type: "success",
		Data: map[string]interface{}{
			"action": action,
			"data":   data,
		},
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- payload:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return nil
	}
}

// SendPong sends a pong message to the client
func (c *Connection) SendPong() error {
	message := ServerMessage{
		Type: "pong",
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- payload:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return nil
	}
}

// HandleClientMessage handles a message from the client
func (c *Connection) HandleClientMessage(msg *ClientMessage) error {
	switch MessageType(msg.Type) {
	case MessageTypeSubscribe:
		if msg.Symbol != "" {
			c.Subscribe(msg.Symbol)
			logger.Debug("Client subscribed to symbol",
				logger.String("connection_id", c.ID),
				logger.String("symbol", msg.Symbol),
			)
			return c.SendSuccess("subscribed", map[string]string{"symbol": msg.Symbol})
		} else if len(msg.Symbols) > 0 {
			for _, symbol := range msg.Symbols {
				c.Subscribe(symbol)
			}
			logger.Debug("Client subscribed to symbols",
				logger.String("connection_id", c.ID),
				logger.Int("count", len(msg.Symbols)),
			)
			return c.SendSuccess("subscribed", map[string]interface{}{"symbols": msg.Symbols})
		}
		return c.SendError("invalid_request", "symbol or symbols field required")

	case MessageTypeUnsubscribe:
		if msg.Symbol != "" {
			c.Unsubscribe(msg.Symbol)
			return c.SendSuccess("unsubscribed", map[string]string{"symbol": msg.Symbol})
		} else if len(msg.Symbols) > 0 {
			for _, symbol := range msg.Symbols {
				c.Unsubscribe(symbol)
			}
			return c.SendSuccess("unsubscribed", map[string]interface{}{"symbols": msg.Symbols})
		}
		return c.SendError("invalid_request", "symbol or symbols field required")

	case MessageTypePing:
		return c.SendPong()

	default:
		return c.SendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}
