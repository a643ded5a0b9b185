package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/real-rm/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/real-rm/privchat/internal/auth"
	"github.com/real-rm/privchat/internal/chat"
	chaterrors "github.com/real-rm/privchat/internal/errors"
	"github.com/real-rm/privchat/internal/message"
	"github.com/real-rm/privchat/internal/ratelimit"
	"github.com/real-rm/privchat/internal/registry"
	"github.com/real-rm/privchat/internal/storage"
)

const handlerTestSecret = "test-secret-key-with-enough-length-123456"

// getTestLogger creates a logger for testing
func getTestLogger(t *testing.T) *golog.Logger {
	logger, err := golog.InitLog(golog.LogConfig{
		Dir:            t.TempDir(),
		Level:          "error",
		StandardOutput: false,
	})
	require.NoError(t, err)
	return logger
}

// fakeUserStore serves confirmed and unconfirmed accounts from a map
type fakeUserStore struct {
	users map[string]*storage.UserDocument
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*storage.UserDocument, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, storage.ErrUserNotFound
}

// fakeChatService records calls and answers from canned results
type fakeChatService struct {
	mu        sync.Mutex
	saved     []*chat.Message
	saveErr   error
	markCalls [][2]string
}

func (f *fakeChatService) Save(_ context.Context, sender, receiver, content string) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	msg := &chat.Message{
		ID:        "msg-1",
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	f.saved = append(f.saved, msg)
	return msg, nil
}

func (f *fakeChatService) MarkRead(_ context.Context, sender, receiver string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, [2]string{sender, receiver})
	return 1, nil
}

type handlerFixture struct {
	handler *Handler
	tokens  *auth.TokenService
	store   *fakeUserStore
	chat    *fakeChatService
	server  *httptest.Server
}

func newHandlerFixture(t *testing.T, frameLimit int) *handlerFixture {
	logger := getTestLogger(t)
	tokens := auth.NewTokenService(handlerTestSecret, time.Hour, 24*time.Hour)
	store := &fakeUserStore{users: map[string]*storage.UserDocument{
		"alice@example.com": {Email: "alice@example.com", IsEmailConfirmed: true},
		"bob@example.com":   {Email: "bob@example.com", IsEmailConfirmed: true},
		"carol@example.com": {Email: "carol@example.com", IsEmailConfirmed: false},
	}}
	chatSvc := &fakeChatService{}
	reg := registry.New(logger)
	limiter := ratelimit.NewLimiter(time.Minute, frameLimit)

	h := NewHandler(tokens, store, chatSvc, reg, limiter, logger, 0)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	return &handlerFixture{handler: h, tokens: tokens, store: store, chat: chatSvc, server: srv}
}

func (fx *handlerFixture) dial(t *testing.T, email string) *websocket.Conn {
	token, err := fx.tokens.IssueAccess(email)
	require.NoError(t, err)
	return fx.dialToken(t, token)
}

func (fx *handlerFixture) dialToken(t *testing.T, token string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads and decodes the next frame with a bounded wait
func readFrame(t *testing.T, conn *websocket.Conn) *message.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f message.Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return &f
}

// readCloseCode reads until the connection closes and returns the close error
func readCloseCode(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	return closeErr
}

func TestHandler_AuthFailuresCloseUniformly(t *testing.T) {
	fx := newHandlerFixture(t, 100)

	refreshToken, err := fx.tokens.IssueRefresh("alice@example.com")
	require.NoError(t, err)
	unknownToken, err := fx.tokens.IssueAccess("nobody@example.com")
	require.NoError(t, err)
	unconfirmedToken, err := fx.tokens.IssueAccess("carol@example.com")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"MissingToken", ""},
		{"GarbageToken", "not-a-jwt"},
		{"RefreshTokenRejected", refreshToken},
		{"UnknownUser", unknownToken},
		{"UnconfirmedUser", unconfirmedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := fx.dialToken(t, tt.token)
			closeErr := readCloseCode(t, conn)
			assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
			assert.Equal(t, "authentication required", closeErr.Text)
		})
	}
}

func TestHandler_PingPong(t *testing.T) {
	fx := newHandlerFixture(t, 100)
	conn := fx.dial(t, "alice@example.com")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	frame := readFrame(t, conn)
	assert.Equal(t, message.TypePong, frame.Type)
}

func TestHandler_MessageRoundTrip(t *testing.T) {
	fx := newHandlerFixture(t, 100)

	alice := fx.dial(t, "alice@example.com")
	bob := fx.dial(t, "bob@example.com")

	// Alice sees Bob come online
	status := readFrame(t, alice)
	require.Equal(t, message.TypeUserStatus, status.Type)
	assert.Equal(t, "bob@example.com", status.Email)
	require.NotNil(t, status.Online)
	assert.True(t, *status.Online)

	require.NoError(t, alice.WriteJSON(map[string]string{
		"type":     "message",
		"receiver": "bob@example.com",
		"content":  "hello bob",
	}))

	delivered := readFrame(t, bob)
	assert.Equal(t, message.TypeMessage, delivered.Type)
	assert.Equal(t, "alice@example.com", delivered.Sender)
	assert.Equal(t, "bob@example.com", delivered.Receiver)
	assert.Equal(t, "hello bob", delivered.Content)
	assert.Equal(t, "msg-1", delivered.ID)
	assert.False(t, delivered.IsRead)

	ack := readFrame(t, alice)
	assert.Equal(t, message.TypeMessageSent, ack.Type)
	assert.Equal(t, "bob@example.com", ack.Receiver)
	assert.Equal(t, "msg-1", ack.ID)

	fx.chat.mu.Lock()
	defer fx.chat.mu.Unlock()
	require.Len(t, fx.chat.saved, 1)
	assert.Equal(t, "alice@example.com", fx.chat.saved[0].Sender)
}

func TestHandler_ReadReceipt(t *testing.T) {
	fx := newHandlerFixture(t, 100)

	alice := fx.dial(t, "alice@example.com")
	bob := fx.dial(t, "bob@example.com")

	// Drain Bob's online status from Alice's stream
	readFrame(t, alice)

	// Bob marks Alice's messages as read
	require.NoError(t, bob.WriteJSON(map[string]string{
		"type":   "read",
		"sender": "alice@example.com",
	}))

	receipt := readFrame(t, alice)
	assert.Equal(t, message.TypeReadReceipt, receipt.Type)
	assert.Equal(t, "bob@example.com", receipt.Reader)

	fx.chat.mu.Lock()
	defer fx.chat.mu.Unlock()
	require.Len(t, fx.chat.markCalls, 1)
	assert.Equal(t, [2]string{"alice@example.com", "bob@example.com"}, fx.chat.markCalls[0])
}

func TestHandler_TypingForwarded(t *testing.T) {
	fx := newHandlerFixture(t, 100)

	alice := fx.dial(t, "alice@example.com")
	bob := fx.dial(t, "bob@example.com")
	readFrame(t, alice)

	require.NoError(t, alice.WriteJSON(map[string]interface{}{
		"type":      "typing",
		"receiver":  "bob@example.com",
		"is_typing": true,
	}))

	typing := readFrame(t, bob)
	assert.Equal(t, message.TypeTyping, typing.Type)
	assert.Equal(t, "alice@example.com", typing.Sender)
	assert.True(t, typing.IsTyping)
}

func TestHandler_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	fx := newHandlerFixture(t, 100)
	conn := fx.dial(t, "alice@example.com")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	errFrame := readFrame(t, conn)
	require.Equal(t, message.TypeError, errFrame.Type)
	require.NotNil(t, errFrame.Error)
	assert.Equal(t, string(chaterrors.ErrCodeInvalidFormat), errFrame.Error.Code)

	// The connection survives the bad frame
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, message.TypePong, readFrame(t, conn).Type)
}

func TestHandler_UnknownFrameTypeIgnored(t *testing.T) {
	fx := newHandlerFixture(t, 100)
	conn := fx.dial(t, "alice@example.com")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "jazz"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	// The unknown frame produced no reply; the next frame read is the pong
	assert.Equal(t, message.TypePong, readFrame(t, conn).Type)
}

func TestHandler_SaveFailureSendsErrorFrame(t *testing.T) {
	fx := newHandlerFixture(t, 100)
	fx.chat.saveErr = message.ErrContentTooLong
	conn := fx.dial(t, "alice@example.com")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":     "message",
		"receiver": "bob@example.com",
		"content":  "too long",
	}))

	errFrame := readFrame(t, conn)
	require.Equal(t, message.TypeError, errFrame.Type)
	require.NotNil(t, errFrame.Error)
	assert.Equal(t, string(chaterrors.ErrCodeMessageTooLong), errFrame.Error.Code)
}

func TestHandler_MissingReceiverRejected(t *testing.T) {
	fx := newHandlerFixture(t, 100)
	conn := fx.dial(t, "alice@example.com")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":    "message",
		"content": "to nobody",
	}))

	errFrame := readFrame(t, conn)
	require.Equal(t, message.TypeError, errFrame.Type)
	require.NotNil(t, errFrame.Error)
	assert.Equal(t, string(chaterrors.ErrCodeInvalidFormat), errFrame.Error.Code)

	fx.chat.mu.Lock()
	defer fx.chat.mu.Unlock()
	assert.Empty(t, fx.chat.saved)
}

func TestHandler_FrameRateLimit(t *testing.T) {
	fx := newHandlerFixture(t, 1)
	conn := fx.dial(t, "alice@example.com")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, message.TypePong, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	errFrame := readFrame(t, conn)
	require.Equal(t, message.TypeError, errFrame.Type)
	require.NotNil(t, errFrame.Error)
	assert.Equal(t, string(chaterrors.ErrCodeTooManyRequests), errFrame.Error.Code)
	assert.Greater(t, errFrame.Error.RetryAfter, 0)
}

func TestHandler_SupersededConnection(t *testing.T) {
	fx := newHandlerFixture(t, 100)

	bob := fx.dial(t, "bob@example.com")
	first := fx.dial(t, "alice@example.com")
	readFrame(t, bob) // alice online

	second := fx.dial(t, "alice@example.com")

	closeErr := readCloseCode(t, first)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "superseded by new connection", closeErr.Text)

	// The old connection's teardown does not announce alice offline. Bob's
	// next frame is the fresh online status from the second registration.
	status := readFrame(t, bob)
	require.Equal(t, message.TypeUserStatus, status.Type)
	assert.Equal(t, "alice@example.com", status.Email)
	require.NotNil(t, status.Online)
	assert.True(t, *status.Online)

	// The successor connection remains live
	require.NoError(t, second.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, message.TypePong, readFrame(t, second).Type)
}

func TestHandler_DisconnectBroadcastsOffline(t *testing.T) {
	fx := newHandlerFixture(t, 100)

	alice := fx.dial(t, "alice@example.com")
	bob := fx.dial(t, "bob@example.com")
	readFrame(t, alice) // bob online

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	bob.Close()

	status := readFrame(t, alice)
	require.Equal(t, message.TypeUserStatus, status.Type)
	assert.Equal(t, "bob@example.com", status.Email)
	require.NotNil(t, status.Online)
	assert.False(t, *status.Online)
}

func TestHandler_OriginRejected(t *testing.T) {
	fx := newHandlerFixture(t, 100)
	fx.handler.SetAllowedOrigins([]string{"https://app.example.com"})

	token, err := fx.tokens.IssueAccess("alice@example.com")
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "?token=" + token

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}
