package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/storefront/internal/model"
	"github.com/vyrodovalexey/storefront/internal/store"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var errItemNotFound = errors.New("item not found")

// WebSocketOptions tunes the real-time channel.
type WebSocketOptions struct {
	// EventRate is the number of client events accepted per second per
	// connection. Zero disables limiting.
	EventRate float64
	// EventBurst is the limiter bucket size.
	EventBurst int
	// SendQueue is the number of frames buffered per client before the
	// client is considered too slow and disconnected.
	SendQueue int
}

// DefaultWebSocketOptions returns the options used when none are configured.
func DefaultWebSocketOptions() WebSocketOptions {
	return WebSocketOptions{
		EventRate:  10,
		EventBurst: 20,
		SendQueue:  16,
	}
}

// wsClient is one connected subscriber.
type wsClient struct {
	conn    *websocket.Conn
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
}

// WebSocketHandler keeps every connected client's view of the item
// collection in sync with the store. It pushes the full collection on
// connect and after every committed item mutation, whatever transport
// caused it.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	items    store.ItemStore
	logger   *zap.Logger
	opts     WebSocketOptions

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	pumps       sync.WaitGroup
	unsubscribe func()
	closeOnce   sync.Once
}

// NewWebSocketHandler creates a WebSocketHandler subscribed to the item store.
func NewWebSocketHandler(items store.ItemStore, logger *zap.Logger, opts WebSocketOptions) *WebSocketHandler {
	if opts.SendQueue < 1 {
		opts.SendQueue = DefaultWebSocketOptions().SendQueue
	}
	if opts.EventRate > 0 && opts.EventBurst < 1 {
		opts.EventBurst = 1
	}

	h := &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		items:   items,
		logger:  logger,
		opts:    opts,
		clients: make(map[*wsClient]struct{}),
	}
	h.unsubscribe = items.Subscribe(h.onItemsChanged)

	return h
}

// RegisterRoutes registers the WebSocket routes with the router.
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

// HandleWebSocket upgrades the connection, queues the current item
// collection for the new client and starts its pumps.
//
//nolint:contextcheck // intentional: WebSocket connections outlive the HTTP request context
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	// The request context ends when this handler returns; the connection
	// lives until either side closes it.
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsClient{
		conn:    conn,
		send:    make(chan []byte, h.opts.SendQueue),
		ctx:     ctx,
		cancel:  cancel,
		limiter: h.newLimiter(),
	}

	// Registering under the store's read lock orders the initial snapshot
	// before any broadcast of a later mutation.
	var initErr error
	h.items.View(func(items []model.Item, _ uint64) {
		msg, err := model.NewItemsUpdatedMessage(items)
		if err != nil {
			initErr = err
			return
		}

		h.mu.Lock()
		h.clients[c] = struct{}{}
		h.mu.Unlock()

		c.send <- msg
	})
	if initErr != nil {
		h.logger.Error("failed to encode initial snapshot", zap.Error(initErr))
		cancel()
		_ = conn.Close()
		return
	}

	wsClients.Inc()
	h.logger.Info("websocket client connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	h.pumps.Add(1)
	go h.writePump(c)
	go h.readPump(c)
}

// onItemsChanged runs under the store's write lock for every committed
// change. It must not block.
func (h *WebSocketHandler) onItemsChanged(change store.Change[model.Item]) {
	msg, err := model.NewItemsUpdatedMessage(change.Snapshot)
	if err != nil {
		h.logger.Error("failed to encode items update", zap.Error(err))
		return
	}

	delivered := h.broadcast(msg)
	wsBroadcastsTotal.Inc()

	h.logger.Debug("items update broadcast",
		zap.String("kind", string(change.Kind)),
		zap.Uint64("version", change.Version),
		zap.Int("items", len(change.Snapshot)),
		zap.Int("clients", delivered),
	)
}

// broadcast queues msg for every client without blocking. Clients whose
// queue is full are disconnected. It returns the number of clients reached.
func (h *WebSocketHandler) broadcast(msg []byte) int {
	var slow []*wsClient
	delivered := 0

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", zap.String("remote_addr", c.conn.RemoteAddr().String()))
		wsDroppedClientsTotal.Inc()
		h.removeClient(c)
	}

	return delivered
}

// readPump handles incoming events from the WebSocket connection.
func (h *WebSocketHandler) readPump(c *wsClient) {
	defer func() {
		h.removeClient(c)
		if err := c.conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		h.handleEvent(c, data)
	}
}

// handleEvent dispatches one client event. Failures are reported to the
// sender only; nothing is broadcast for a rejected event.
func (h *WebSocketHandler) handleEvent(c *wsClient, data []byte) {
	if c.limiter != nil && !c.limiter.Allow() {
		wsEventsTotal.WithLabelValues("any", "rate_limited").Inc()
		h.reply(c, model.NewErrorMessage("rate limit exceeded"))
		return
	}

	var msg model.WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		wsEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		h.reply(c, model.NewErrorMessage("malformed message"))
		return
	}

	var err error
	switch msg.Event {
	case model.WSEventCreateItem:
		err = h.createItem(c, msg.Data)
	case model.WSEventDeleteItem:
		err = h.deleteItem(c, msg.Data)
	default:
		wsEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		h.reply(c, model.NewErrorMessage(fmt.Sprintf("unknown event %q", msg.Event)))
		return
	}

	if err != nil {
		wsEventsTotal.WithLabelValues(msg.Event, "rejected").Inc()
		h.logger.Warn("websocket event rejected", zap.String("event", msg.Event), zap.Error(err))
		reason := err.Error()
		if errors.Is(err, store.ErrNotLoaded) {
			reason = errLoading
		}
		h.reply(c, model.NewErrorMessage(reason))
		return
	}
	wsEventsTotal.WithLabelValues(msg.Event, "accepted").Inc()
}

func (h *WebSocketHandler) createItem(c *wsClient, data json.RawMessage) error {
	input, err := model.DecodeItemInput(data)
	if err != nil {
		return err
	}
	if err := input.Validate(); err != nil {
		return err
	}

	item, err := h.items.Create(c.ctx, input.Fields())
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}

	h.logger.Info("item created over websocket", zap.Int("id", item.ID))
	return nil
}

func (h *WebSocketHandler) deleteItem(c *wsClient, data json.RawMessage) error {
	var id int
	if err := json.Unmarshal(data, &id); err != nil || id < 1 {
		return &model.ValidationError{Field: "data", Reason: "must be a positive integer id"}
	}

	removed, err := h.items.Delete(c.ctx, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if !removed {
		return errItemNotFound
	}

	h.logger.Info("item deleted over websocket", zap.Int("id", id))
	return nil
}

// reply queues a frame for a single client, dropping it if the queue is full.
func (h *WebSocketHandler) reply(c *wsClient, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Debug("reply dropped, send queue full")
	}
}

// writePump drains the client's send queue and keeps the connection alive.
func (h *WebSocketHandler) writePump(c *wsClient) {
	pingTicker := time.NewTicker(pingPeriod)

	defer func() {
		pingTicker.Stop()
		h.removeClient(c)
		if err := c.conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		h.pumps.Done()
	}()

	for {
		select {
		case <-c.ctx.Done():
			h.sendCloseMessage(c.conn)
			return
		case msg := <-c.send:
			if err := h.sendFrame(c.conn, msg); err != nil {
				h.logger.Debug("failed to send frame", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := h.sendPing(c.conn); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// sendFrame writes a text frame to the connection.
func (h *WebSocketHandler) sendFrame(conn *websocket.Conn, msg []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// sendPing sends a ping message to the connection.
func (h *WebSocketHandler) sendPing(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// sendCloseMessage sends a close message to the connection.
func (h *WebSocketHandler) sendCloseMessage(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline for close", zap.Error(err))
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

// removeClient unregisters a client and stops its pumps. Safe to call
// more than once.
func (h *WebSocketHandler) removeClient(c *wsClient) {
	h.mu.Lock()
	_, exists := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	c.cancel()

	if exists {
		wsClients.Dec()
		h.logger.Info("websocket client disconnected", zap.String("remote_addr", c.conn.RemoteAddr().String()))
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAllConnections stops broadcasting, closes every connection and
// waits for the write pumps to exit.
func (h *WebSocketHandler) CloseAllConnections() {
	h.closeOnce.Do(h.unsubscribe)

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.cancel()
	}

	h.pumps.Wait()
	h.logger.Info("all websocket connections closed")
}

func (h *WebSocketHandler) newLimiter() *rate.Limiter {
	if h.opts.EventRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(h.opts.EventRate), h.opts.EventBurst)
}
