// Package constants provides centralized constant definitions for the privchat application.
// This eliminates magic numbers and strings throughout the codebase.
package constants

import "time"

// HTTP Status Codes
const (
	StatusOK                 = 200
	StatusTooManyRequests    = 429
	StatusServiceUnavailable = 503
)

// Timeouts for various operations
const (
	DefaultContextTimeout = 10 * time.Second // Standard database operations
	LongContextTimeout    = 30 * time.Second // Complex queries and aggregations
	MongoIndexTimeout     = 30 * time.Second // MongoDB index creation
	MessageSaveTimeout    = 5 * time.Second  // Persisting chat messages
	MarkReadTimeout       = 5 * time.Second  // Read receipt updates
	HealthCheckTimeout    = 2 * time.Second  // Health check operations
)

// Sizes and Limits
const (
	DefaultMaxFrameSize   = 65536 // 64KB cap on inbound WebSocket frames
	MaxMessageLength      = 5000  // Maximum chat message content length in characters
	DefaultHistoryLimit   = 50    // Default number of messages returned by history
	MaxHistoryLimit       = 100   // Maximum messages per history query (performance cap)
	DefaultUserPageLimit  = 50    // Default page size for user listing
	MaxUserPageLimit      = 200   // Maximum page size for user listing
	DefaultRateLimit      = 100   // Default API requests per minute per client
	DefaultAuthRateLimit  = 5     // Auth attempts per minute per client
	DefaultWSRateLimit    = 1000  // WebSocket frames per minute per connection
	PublicEndpointRate    = 60    // Requests per minute for public endpoints (healthz, readyz, metrics)
	MaxRetryAttempts      = 3     // Maximum retry attempts for transient errors
	SendChannelBuffer     = 256   // Outbound frame buffer per connection
	RefreshTokenIDEntropy = 32    // Random bytes backing a refresh token identifier
)

// HTTP Server Timeouts (for standalone server mode)
const (
	HTTPReadTimeout  = 15 * time.Second  // Maximum time to read the entire request
	HTTPWriteTimeout = 30 * time.Second  // Maximum time to write the response
	HTTPIdleTimeout  = 120 * time.Second // Maximum time to keep idle connections alive
	ShutdownTimeout  = 30 * time.Second  // Grace period for draining on SIGTERM
)

// Durations for background operations
const (
	DefaultRateWindow      = 1 * time.Minute // Rate limiting window
	DefaultCleanupInterval = 5 * time.Minute // Cleanup goroutine interval
	TokenSweepInterval     = 1 * time.Hour   // Expired refresh token sweep interval
	InitialRetryDelay      = 100 * time.Millisecond
	MaxRetryDelay          = 2 * time.Second
	RetryMultiplier        = 2.0
)

// WebSocket connection timing
const (
	WriteWait  = 10 * time.Second // Time allowed to write a frame to the peer
	PongWait   = 60 * time.Second // Time allowed to read the next pong from the peer
	PingPeriod = (PongWait * 9) / 10
)

// Token lifetimes
const (
	DefaultAccessTokenTTL  = 60 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Token type claim values
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Default Configuration Values
const (
	DefaultMongoURI   = "mongodb://localhost:27017"
	DefaultDatabase   = "privchat"
	DefaultPort       = 8080
	DefaultLogLevel   = "info"
	DefaultLogDir     = "logs"
	DefaultPathPrefix = "/privchat" // Default HTTP path prefix for all routes
)

// MongoDB Collection Names
const (
	CollectionUsers         = "users"
	CollectionMessages      = "messages"
	CollectionConversations = "conversations"
	CollectionRefreshTokens = "refresh_tokens"
)

// HTTP Headers
const (
	HeaderAuthorization = "Authorization"
	HeaderRetryAfter    = "Retry-After"
	BearerPrefix        = "Bearer "
	BearerPrefixLength  = 7
)

// ErrMsgRateLimitExceeded is the client-facing 429 message
const ErrMsgRateLimitExceeded = "Too many requests. Please try again later."

// WebSocket close reasons
const (
	CloseReasonSuperseded   = "superseded by new connection"
	CloseReasonUnauthorized = "authentication required"
	CloseReasonShutdown     = "server shutting down"
)

// MongoDB Field Names (BSON tags)
const (
	MongoFieldEmail         = "email"
	MongoFieldUsername      = "username"
	MongoFieldSender        = "sender_email"
	MongoFieldReceiver      = "receiver_email"
	MongoFieldTimestamp     = "timestamp"
	MongoFieldIsRead        = "is_read"
	MongoFieldRoomID        = "room_id"
	MongoFieldParticipants  = "participants"
	MongoFieldLastMessage   = "last_message"
	MongoFieldCreatedAt     = "created_at"
	MongoFieldUpdatedAt     = "updated_at"
	MongoFieldExpiresAt     = "expires_at"
	MongoFieldIsRevoked     = "is_revoked"
	MongoFieldRevokedAt     = "revoked_at"
	MongoFieldRefreshToken  = "refresh_token"
	MongoFieldUserEmail     = "user_email"
	MongoFieldConfirmed     = "is_email_confirmed"
	MongoFieldConfirmToken  = "email_confirmation_token"
)

// MongoDB Index Names
const (
	IndexUserEmail        = "idx_user_email"
	IndexUserUsername     = "idx_user_username"
	IndexMessageRoom      = "idx_message_conversation"
	IndexMessageUnread    = "idx_message_unread"
	IndexMessageTimestamp = "idx_message_timestamp"
	IndexRoomID           = "idx_room_id"
	IndexRoomParticipants = "idx_room_participants"
	IndexRoomUpdatedAt    = "idx_room_updated_at"
	IndexRefreshToken     = "idx_refresh_token"
	IndexRefreshExpiry    = "idx_refresh_expiry"
)

// Weak Secrets for validation (security check)
var WeakSecrets = []string{
	"secret", "test", "test123", "password", "admin",
	"changeme", "default", "example", "demo", "12345",
	"placeholder",
}

// Minimum Security Requirements
const (
	MinJWTSecretLength = 32 // Minimum length for JWT secret (256 bits)
	MinPasswordLength  = 8  // Minimum password length
)

// Retry After Calculation
const (
	MillisecondsPerSecond = 1000
	MinRetryAfterSeconds  = 1 // Minimum retry-after value in seconds
)

// Network configuration defaults
const (
	DefaultTrustedProxies         = "10.0.0.0/8,172.16.0.0/12,192.168.0.0/16"
	DefaultMetricsAllowedNetworks = "10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8"
)

// RoomSeparator joins the sorted participant pair into a room identifier.
const RoomSeparator = "_"

// ContextKeyIdentity is the gin context key holding the authenticated
// caller's email, set by the bearer token middleware.
const ContextKeyIdentity = "identity"
