// Package websocket implements the session protocol: token-authenticated
// WebSocket connections, presence broadcasts and the JSON frame loop.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/real-rm/golog"

	"github.com/real-rm/privchat/internal/auth"
	"github.com/real-rm/privchat/internal/chat"
	"github.com/real-rm/privchat/internal/constants"
	chaterrors "github.com/real-rm/privchat/internal/errors"
	"github.com/real-rm/privchat/internal/message"
	"github.com/real-rm/privchat/internal/metrics"
	"github.com/real-rm/privchat/internal/ratelimit"
	"github.com/real-rm/privchat/internal/registry"
	"github.com/real-rm/privchat/internal/storage"
	"github.com/real-rm/privchat/internal/util"
)

var (
	// upgrader configures the WebSocket upgrade
	// SECURITY: In production, this service MUST be deployed behind a reverse
	// proxy that terminates TLS, ensuring all connections use WSS.
	// The CheckOrigin function is configured per-handler instance.
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	// Connection lifecycle timeouts
	pongWait   = constants.PongWait
	pingPeriod = constants.PingPeriod
	writeWait  = constants.WriteWait
)

// Connection represents an active WebSocket connection for one identity
type Connection struct {
	// conn is the underlying WebSocket connection
	conn *websocket.Conn

	// Email is the authenticated identity from the access token
	Email string

	// send is a buffered channel for outbound frames
	send chan []byte

	// closing indicates the connection is being torn down.
	// Set before tearing down to prevent sends into a dead connection.
	closing atomic.Bool

	closeOnce sync.Once

	// mu protects writes of close control frames
	mu sync.Mutex
}

// NewConnection creates a Connection without an underlying socket.
// This is primarily used in tests.
func NewConnection(email string) *Connection {
	return &Connection{
		Email: email,
		send:  make(chan []byte, constants.SendChannelBuffer),
	}
}

// Send enqueues a payload for delivery without blocking.
// Returns false if the connection is closing or the buffer is full.
func (c *Connection) Send(data []byte) bool {
	if c.closing.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close tears the connection down with a close code and reason. Safe to call
// more than once; only the first call writes the close frame.
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason))
			c.conn.Close()
		}
	})
}

// ReceiveForTest returns the send channel as a receive channel so tests can
// observe frames queued for this connection.
func (c *Connection) ReceiveForTest() <-chan []byte {
	return c.send
}

// UserLookup resolves an authenticated identity to its stored account.
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*storage.UserDocument, error)
}

// MessageService is the subset of the chat service the frame loop needs.
type MessageService interface {
	Save(ctx context.Context, sender, receiver, content string) (*chat.Message, error)
	MarkRead(ctx context.Context, sender, receiver string) (int64, error)
}

// Handler manages WebSocket upgrades and the per-connection frame loop
type Handler struct {
	tokens         *auth.TokenService
	store          UserLookup
	chat           MessageService
	registry       *registry.Registry
	frameLimiter   *ratelimit.Limiter
	logger         *golog.Logger
	allowedOrigins map[string]bool
	maxFrameSize   int64
	mu             sync.RWMutex
}

// NewHandler creates a new WebSocket handler
func NewHandler(tokens *auth.TokenService, store UserLookup, chatSvc MessageService,
	reg *registry.Registry, frameLimiter *ratelimit.Limiter, logger *golog.Logger, maxFrameSize int64) *Handler {
	if maxFrameSize <= 0 {
		maxFrameSize = constants.DefaultMaxFrameSize
	}
	return &Handler{
		tokens:         tokens,
		store:          store,
		chat:           chatSvc,
		registry:       reg,
		frameLimiter:   frameLimiter,
		logger:         logger.WithGroup("websocket"),
		allowedOrigins: make(map[string]bool),
		maxFrameSize:   maxFrameSize,
	}
}

// SetAllowedOrigins configures the allowed origins for WebSocket connections.
// If no origins are set, all origins are allowed (development mode).
func (h *Handler) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.allowedOrigins = make(map[string]bool)
	for _, origin := range origins {
		h.allowedOrigins[origin] = true
	}

	h.logger.Info("Configured allowed origins",
		"count", len(origins),
		"origins", origins)
}

// checkOrigin validates the origin of a WebSocket upgrade request
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.allowedOrigins) == 0 {
		return true
	}

	if h.allowedOrigins[origin] {
		return true
	}

	h.logger.Warn("Origin not allowed", "origin", origin)
	return false
}

// HandleWebSocket upgrades the HTTP request and runs the session protocol.
// Authentication happens after the upgrade so the client receives a proper
// policy-violation close code rather than a bare HTTP error. Every
// authentication failure closes with the same code and reason so callers
// cannot probe which check failed.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Token travels in the query parameter; the Authorization header is
	// accepted as an alternative for non-browser clients.
	token := r.URL.Query().Get("token")
	if token == "" {
		if t, err := util.ExtractBearerToken(r.Header.Get(constants.HeaderAuthorization)); err == nil {
			token = t
		}
	}

	localUpgrader := upgrader
	localUpgrader.CheckOrigin = h.checkOrigin

	conn, err := localUpgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogError(h.logger, "websocket", "upgrade connection", err)
		return
	}

	email, authErr := h.authenticate(token)
	if authErr != nil {
		h.logger.Warn("WebSocket authentication failed", "error", authErr)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, constants.CloseReasonUnauthorized))
		conn.Close()
		return
	}

	conn.SetReadLimit(h.maxFrameSize)

	connection := &Connection{
		conn:  conn,
		Email: email,
		send:  make(chan []byte, constants.SendChannelBuffer),
	}

	h.registry.Register(email, connection,
		websocket.CloseNormalClosure, constants.CloseReasonSuperseded)
	metrics.WebSocketConnections.Inc()

	h.logger.Info("WebSocket connection established", "user", email)

	h.broadcastPresence(email, true)

	util.SafeGo(h.logger, "readPump", func() { connection.readPump(h) })
	util.SafeGo(h.logger, "writePump", func() { connection.writePump() })
}

// authenticate resolves a token to a confirmed user identity. Missing token,
// bad token, unknown user and unconfirmed user all return an error the caller
// reports identically.
func (h *Handler) authenticate(token string) (string, error) {
	if token == "" {
		return "", auth.ErrInvalidToken
	}

	email, err := h.tokens.VerifyAccess(token)
	if err != nil {
		return "", auth.ErrInvalidToken
	}

	ctx, cancel := util.NewTimeoutContext(constants.DefaultContextTimeout)
	defer cancel()

	user, err := h.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", auth.ErrInvalidToken
	}
	if !user.IsEmailConfirmed {
		return "", auth.ErrInvalidToken
	}

	return email, nil
}

// broadcastPresence tells every other connection about an identity's status
func (h *Handler) broadcastPresence(email string, online bool) {
	payload, err := util.MarshalJSON(message.NewUserStatus(email, online))
	if err != nil {
		util.LogError(h.logger, "websocket", "marshal presence frame", err, "user", email)
		return
	}
	h.registry.BroadcastExcept(email, payload)
	metrics.PresenceBroadcasts.Inc()
}

// sendFrame marshals a frame onto this connection's send channel
func (c *Connection) sendFrame(h *Handler, f *message.Frame) {
	data, err := util.MarshalJSON(f)
	if err != nil {
		util.LogError(h.logger, "websocket", "marshal frame", err, "user", c.Email)
		return
	}
	if !c.Send(data) {
		h.logger.Warn("Failed to queue frame, channel full or closing",
			"user", c.Email, "frame_type", f.Type)
	}
}

// sendError sends a typed error frame to this connection
func (c *Connection) sendError(h *Handler, chatErr *chaterrors.ChatError) {
	metrics.MessageErrors.Inc()
	c.sendFrame(h, message.NewError(chatErr.ToErrorInfo()))
}

// readPump reads frames from the WebSocket connection and dispatches them.
// On any exit the registry entry is removed (only if still ours) and the
// offline status is broadcast.
func (c *Connection) readPump(h *Handler) {
	defer func() {
		removed := h.registry.Unregister(c.Email, c)
		metrics.WebSocketConnections.Dec()
		c.Close(websocket.CloseNormalClosure, "")

		// A superseded connection no longer owns the registry entry; its
		// teardown must not announce the user offline.
		if removed {
			h.broadcastPresence(c.Email, false)
		}

		h.logger.Info("WebSocket connection closed", "user", c.Email)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				h.logger.Warn("WebSocket frame size limit exceeded",
					"user", c.Email, "limit", h.maxFrameSize)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				util.LogError(h.logger, "websocket", "handle unexpected close", err, "user", c.Email)
			}
			break
		}

		metrics.MessagesReceived.Inc()

		if !h.frameLimiter.Allow(c.Email) {
			retryAfter := h.frameLimiter.GetRetryAfter(c.Email)
			metrics.RateLimitRejections.WithLabelValues("websocket").Inc()
			c.sendError(h, chaterrors.ErrTooManyRequests(retryAfter))
			continue
		}

		frame, err := message.Parse(raw)
		if err != nil {
			h.logger.Warn("Failed to parse frame", "user", c.Email, "error", err)
			c.sendError(h, chaterrors.ErrInvalidMessageFormat("malformed JSON", err))
			continue
		}

		if !frame.Known() {
			h.logger.Debug("Ignoring unknown frame type",
				"user", c.Email, "frame_type", frame.Type)
			continue
		}

		if err := frame.ValidateInbound(); err != nil {
			c.sendError(h, chaterrors.ErrInvalidMessageFormat(err.Error(), err))
			continue
		}

		h.dispatch(c, frame)
	}
}

// dispatch routes one validated inbound frame
func (h *Handler) dispatch(c *Connection, frame *message.Frame) {
	switch frame.Type {
	case message.TypeMessage:
		h.handleMessage(c, frame)
	case message.TypeTyping:
		h.handleTyping(c, frame)
	case message.TypeRead:
		h.handleRead(c, frame)
	case message.TypePing:
		c.sendFrame(h, message.NewPong())
	}
}

// handleMessage persists an outbound chat message and delivers it
func (h *Handler) handleMessage(c *Connection, frame *message.Frame) {
	ctx, cancel := util.NewTimeoutContext(constants.MessageSaveTimeout)
	defer cancel()
	ctx = util.NewContextWithTraceID(ctx)

	saved, err := h.chat.Save(ctx, c.Email, frame.Receiver, frame.Content)
	if err != nil {
		switch {
		case errors.Is(err, message.ErrContentTooLong):
			c.sendError(h, chaterrors.ErrMessageTooLong(len([]rune(frame.Content)), constants.MaxMessageLength))
		case errors.Is(err, message.ErrEmptyContent):
			c.sendError(h, chaterrors.ErrEmptyMessage())
		default:
			util.LogError(h.logger, "websocket", "save message", err,
				"user", c.Email, "receiver", frame.Receiver,
				"trace_id", util.TraceIDFromContext(ctx))
			c.sendError(h, chaterrors.ErrDatabaseError(err))
		}
		return
	}

	// Deliver to the receiver if connected; an offline receiver reads the
	// message from history later.
	deliver := &message.Frame{
		Type:      message.TypeMessage,
		ID:        saved.ID,
		Sender:    saved.Sender,
		Receiver:  saved.Receiver,
		Content:   saved.Content,
		Timestamp: saved.Timestamp,
		IsRead:    false,
	}
	if payload, err := util.MarshalJSON(deliver); err == nil {
		h.registry.SendTo(frame.Receiver, payload)
	}

	// Acknowledge to the sender
	c.sendFrame(h, &message.Frame{
		Type:      message.TypeMessageSent,
		ID:        saved.ID,
		Receiver:  saved.Receiver,
		Content:   saved.Content,
		Timestamp: saved.Timestamp,
	})
}

// handleTyping forwards a typing indicator to the receiver if connected.
// Nothing is persisted and the sender gets no acknowledgment.
func (h *Handler) handleTyping(c *Connection, frame *message.Frame) {
	forward := &message.Frame{
		Type:     message.TypeTyping,
		Sender:   c.Email,
		Receiver: frame.Receiver,
		IsTyping: frame.IsTyping,
	}
	payload, err := util.MarshalJSON(forward)
	if err != nil {
		return
	}
	h.registry.SendTo(frame.Receiver, payload)
}

// handleRead marks messages from the named sender as read and notifies them
func (h *Handler) handleRead(c *Connection, frame *message.Frame) {
	ctx, cancel := util.NewTimeoutContext(constants.MarkReadTimeout)
	defer cancel()
	ctx = util.NewContextWithTraceID(ctx)

	if _, err := h.chat.MarkRead(ctx, frame.Sender, c.Email); err != nil {
		util.LogError(h.logger, "websocket", "mark messages read", err,
			"user", c.Email, "sender", frame.Sender,
			"trace_id", util.TraceIDFromContext(ctx))
		c.sendError(h, chaterrors.ErrDatabaseError(err))
		return
	}

	if payload, err := util.MarshalJSON(message.NewReadReceipt(c.Email)); err == nil {
		h.registry.SendTo(frame.Sender, payload)
	}
}

// writePump writes frames from the send channel and emits periodic pings
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close(websocket.CloseNormalClosure, "")
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Shutdown gracefully closes all active WebSocket connections
func (h *Handler) Shutdown() {
	h.ShutdownWithContext(context.Background())
}

// ShutdownWithContext closes every connection with a going-away code. The
// context bounds how long the handler waits for the registry to drain.
func (h *Handler) ShutdownWithContext(ctx context.Context) error {
	h.logger.Info("Shutting down WebSocket handler, closing all connections",
		"connections", h.registry.Count())

	h.registry.CloseAll(websocket.CloseGoingAway, constants.CloseReasonShutdown)

	// Read pumps observe the closed sockets and finish their teardown.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if h.registry.Count() == 0 {
			h.logger.Info("All WebSocket connections closed gracefully")
			return nil
		}
		select {
		case <-ctx.Done():
			h.logger.Warn("Shutdown deadline exceeded, forcing closure",
				"remaining_connections", h.registry.Count())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
