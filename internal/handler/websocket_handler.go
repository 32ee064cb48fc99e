// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"escpos-service/internal/events"
	"escpos-service/internal/model"
	"escpos-service/internal/utils"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsWriteWait  = 10 * time.Second
)

// instructionStream is what /ws/instructions sends by default
var instructionStream = []model.EventType{
	model.EventSessionStarted,
	model.EventInstructionDecoded,
	model.EventDecoderFailed,
	model.EventCaptureCompleted,
}

// WebSocketHandler streams live decoder events to WebSocket clients
type WebSocketHandler struct {
	upgrader     websocket.Upgrader
	connections  *ConnectionManager
	bus          *events.EventBus
	subscription *events.Subscription
	logger       *utils.ServiceLogger
	done         chan struct{}
	closeOnce    sync.Once
}

// NewWebSocketHandler creates a WebSocket handler fed by the event bus.
// Origins are checked against allowedOrigins; "*" allows any.
func NewWebSocketHandler(bus *events.EventBus, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	handler := &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		connections:  NewConnectionManager(),
		bus:          bus,
		subscription: bus.Subscribe(),
		logger:       utils.NewServiceLogger(logger, "websocket-handler"),
		done:         make(chan struct{}),
	}

	go handler.pump()

	return handler
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/instructions", h.HandleInstructionStream)
	router.GET("/events", h.HandleEventStream)
}

// HandleInstructionStream streams decoded instructions as they leave the
// decoder. ?session_id= narrows the stream to one print job.
func (h *WebSocketHandler) HandleInstructionStream(c *gin.Context) {
	h.serve(c, "instructions", instructionStream)
}

// HandleEventStream streams every event, or the types listed in ?types=
func (h *WebSocketHandler) HandleEventStream(c *gin.Context) {
	var types []model.EventType
	for _, t := range strings.Split(c.Query("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, model.EventType(strings.ToUpper(t)))
		}
	}
	h.serve(c, "events", types)
}

func (h *WebSocketHandler) serve(c *gin.Context, stream string, topics []model.EventType) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Stream:      stream,
		SessionID:   c.Query("session_id"),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}
	client.Subscribe(topics...)

	h.connections.Register(client)
	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("stream", stream),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)

	h.sendMessage(client, &WebSocketMessage{
		Type: "connected",
		Data: map[string]interface{}{
			"client_id": client.ID,
			"stream":    stream,
			"topics":    client.Topics(),
		},
		Timestamp: time.Now(),
	})
}

// pump forwards bus events to connected clients until Close
func (h *WebSocketHandler) pump() {
	for {
		select {
		case event, ok := <-h.subscription.C:
			if !ok {
				return
			}
			h.broadcast(event)
		case <-h.done:
			return
		}
	}
}

func (h *WebSocketHandler) broadcast(event model.Event) {
	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      "event",
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	if dropped := h.connections.Broadcast(event, messageBytes); dropped > 0 {
		h.logger.Warn("Client send channel full during broadcast",
			zap.Int("dropped", dropped),
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadLimit(4096)
	client.Connection.SetReadDeadline(time.Now().Add(wsPongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe", "unsubscribe":
		types := eventTypes(message.Data)
		if len(types) == 0 {
			h.sendError(client, "event_types is required")
			return
		}
		if message.Type == "subscribe" {
			client.Subscribe(types...)
		} else {
			client.Unsubscribe(types...)
		}
		h.sendMessage(client, &WebSocketMessage{
			Type:      message.Type + "d",
			Data:      map[string]interface{}{"topics": client.Topics()},
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, "unknown message type: "+message.Type)
	}
}

func eventTypes(data interface{}) []model.EventType {
	m, ok := data.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := m["event_types"].([]interface{})
	if !ok {
		return nil
	}
	var types []model.EventType
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			types = append(types, model.EventType(strings.ToUpper(s)))
		}
	}
	return types
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !client.enqueue(messageBytes) {
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
	})
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}

// Close stops streaming and disconnects every client
func (h *WebSocketHandler) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.bus.Unsubscribe(h.subscription)
		h.connections.Stop()
	})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.TrimRight(o, "/")] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowAll || origin == "" {
			return true
		}
		if set[strings.TrimRight(origin, "/")] {
			return true
		}
		// Same-origin requests are always allowed.
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
