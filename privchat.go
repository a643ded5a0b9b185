// Package privchat provides the main service registration for the private
// messaging backend. It integrates with gomain by implementing a Register
// function that sets up the authentication, chat and WebSocket endpoints.
package privchat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/real-rm/goconfig"
	"github.com/real-rm/golog"
	"github.com/real-rm/gomongo"

	"github.com/real-rm/privchat/internal/auth"
	"github.com/real-rm/privchat/internal/chat"
	"github.com/real-rm/privchat/internal/config"
	"github.com/real-rm/privchat/internal/constants"
	"github.com/real-rm/privchat/internal/httperrors"
	"github.com/real-rm/privchat/internal/metrics"
	"github.com/real-rm/privchat/internal/ratelimit"
	"github.com/real-rm/privchat/internal/registry"
	"github.com/real-rm/privchat/internal/storage"
	"github.com/real-rm/privchat/internal/util"
	"github.com/real-rm/privchat/internal/websocket"
)

var (
	// Global references for graceful shutdown
	globalWSHandler  *websocket.Handler
	globalRefreshMgr *auth.RefreshManager
	globalLimiters   []*ratelimit.Limiter
	globalLogger     *golog.Logger
	shutdownMu       sync.Mutex
)

// Register registers the privchat service with the gomain router.
// This function is called by gomain during service initialization.
//
// Parameters:
//   - r: Gin router for registering HTTP and WebSocket endpoints
//   - cfgAcc: Configuration accessor for loading service settings
//   - logger: Logger for structured logging
//   - mongo: MongoDB client for data persistence
//
// Returns:
//   - error: Any error that occurred during registration
func Register(r *gin.Engine, cfgAcc *goconfig.ConfigAccessor, logger *golog.Logger, mongo *gomongo.Mongo) error {
	pcLogger := logger.WithGroup("privchat")
	pcLogger.Info("Initializing privchat service")

	// Configuration priority: environment variable > config file > default.
	// config.Load reads the environment; file values fill in anything the
	// environment left unset. This allows Kubernetes secrets to override
	// config.toml values.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	overlayFileConfig(cfg, cfgAcc)

	if containsPlaceholder(cfg.Auth.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains placeholder value, set a real secret before deploying")
	}
	if err := cfg.Validate(); err != nil {
		pcLogger.Error("Configuration validation failed", "error", err)
		return err
	}

	// Create storage layer
	store := storage.NewStore(mongo, cfg.Database.Database, pcLogger)
	store.SetRetryPolicy(cfg.Database.RetryAttempts, cfg.Database.RetryDelay, cfg.Database.RetryMaxDelay)

	// Ensure MongoDB indexes are created for optimal query performance
	indexCtx, indexCancel := util.NewTimeoutContext(cfg.Database.ConnectTimeout)
	defer indexCancel()
	if err := store.EnsureIndexes(indexCtx); err != nil {
		pcLogger.Warn("Failed to create MongoDB indexes", "error", err)
		// Don't fail startup - indexes can be created manually if needed
	}

	// Create core services
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	refreshMgr := auth.NewRefreshManager(tokens, store, pcLogger)
	chatService := chat.NewService(store, pcLogger)
	connRegistry := registry.New(pcLogger)

	// Per-class rate limiters. Each class has its own window state so a
	// burst against one class never delays callers of another.
	authLimiter := ratelimit.NewLimiter(cfg.Server.RateWindow, cfg.Server.AuthRateLimit)
	apiLimiter := ratelimit.NewLimiter(cfg.Server.RateWindow, cfg.Server.RateLimit)
	wsLimiter := ratelimit.NewLimiter(cfg.Server.RateWindow, cfg.Server.WSRateLimit)
	publicLimiter := ratelimit.NewLimiter(constants.DefaultRateWindow, constants.PublicEndpointRate)

	pcLogger.Info("Rate limiters configured",
		"auth_limit", cfg.Server.AuthRateLimit,
		"api_limit", cfg.Server.RateLimit,
		"ws_limit", cfg.Server.WSRateLimit,
		"window", cfg.Server.RateWindow)

	// Create WebSocket handler
	wsHandler := websocket.NewHandler(tokens, store, chatService, connRegistry, wsLimiter, pcLogger, cfg.Server.MaxFrameSize)

	// Configure allowed origins for WebSocket connections.
	// SECURITY: When no origins are configured, ALL origins are accepted.
	// This is acceptable only in development. In production, always configure
	// ALLOWED_ORIGINS to prevent cross-site WebSocket hijacking.
	if len(cfg.Server.AllowedOrigins) > 0 {
		for _, origin := range cfg.Server.AllowedOrigins {
			if containsPlaceholder(origin) {
				return fmt.Errorf("ALLOWED_ORIGINS contains placeholder value %q, set actual origins before deploying", origin)
			}
		}
		wsHandler.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	} else {
		pcLogger.Warn("No allowed origins configured, allowing all origins (development mode)")
	}

	// Start background goroutines only after all validation is complete,
	// so we don't leak goroutines if Register() returns an error.
	limiters := []*ratelimit.Limiter{authLimiter, apiLimiter, wsLimiter, publicLimiter}
	for _, l := range limiters {
		l.StartCleanup()
	}
	refreshMgr.StartSweep()

	// Store global references for graceful shutdown.
	// Stop any previously-registered instances to prevent goroutine leaks
	// when Register() is called multiple times (tests, hot-reload).
	shutdownMu.Lock()
	for _, l := range globalLimiters {
		l.StopCleanup()
	}
	if globalRefreshMgr != nil {
		globalRefreshMgr.StopSweep()
	}
	if globalWSHandler != nil {
		_ = globalWSHandler.ShutdownWithContext(context.Background())
	}
	globalWSHandler = wsHandler
	globalRefreshMgr = refreshMgr
	globalLimiters = limiters
	globalLogger = pcLogger
	shutdownMu.Unlock()

	// Configure CORS middleware from the same origin allowlist used for
	// WebSocket upgrades.
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsConfig := cors.Config{
			AllowOrigins:     cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}
		r.Use(cors.New(corsConfig))

		pcLogger.Info("CORS middleware configured",
			"allowed_origins", cfg.Server.AllowedOrigins,
			"allow_credentials", true)
	} else {
		pcLogger.Warn("No CORS origins configured, CORS middleware not enabled")
	}

	// Configure trusted proxies to prevent X-Forwarded-For spoofing.
	// c.ClientIP() will only trust X-Forwarded-For from these networks.
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			pcLogger.Warn("Failed to set trusted proxies", "error", err)
		} else {
			pcLogger.Info("Trusted proxies configured", "proxies", cfg.Server.TrustedProxies)
		}
	}

	// Apply security headers middleware
	r.Use(securityHeadersMiddleware())

	// Apply metrics middleware to record HTTP request duration
	r.Use(metricsMiddleware())

	pathPrefix := cfg.Server.PathPrefix
	pcLogger.Info("Using HTTP path prefix", "prefix", pathPrefix)

	// Register routes
	chatGroup := r.Group(pathPrefix)
	{
		// Authentication endpoints have the tightest per-IP budget since
		// they are the favorite target of credential stuffing.
		authGroup := chatGroup.Group("/auth")
		authGroup.Use(rateLimitMiddleware(authLimiter, "auth", pcLogger))
		{
			authGroup.POST("/register", handleRegister(store, pcLogger))
			authGroup.GET("/confirm", handleConfirm(store, pcLogger))
			authGroup.POST("/login", handleLogin(store, refreshMgr, pcLogger))
			authGroup.POST("/refresh", handleRefresh(refreshMgr, pcLogger))
			authGroup.POST("/logout", bearerAuthMiddleware(tokens, pcLogger), handleLogout(refreshMgr, pcLogger))
		}

		// Chat endpoints require a valid access token
		apiGroup := chatGroup.Group("/chat")
		apiGroup.Use(bearerAuthMiddleware(tokens, pcLogger))
		apiGroup.Use(rateLimitMiddleware(apiLimiter, "api", pcLogger))
		{
			apiGroup.GET("/history/:email", handleHistory(chatService, pcLogger))
			apiGroup.GET("/rooms", handleRooms(chatService, pcLogger))
			apiGroup.GET("/users", handleListUsers(chatService, pcLogger))
			apiGroup.GET("/unread-count", handleUnreadCount(chatService, pcLogger))
			apiGroup.POST("/mark-read/:email", handleMarkRead(chatService, pcLogger))
		}

		// WebSocket endpoint. Token authentication happens after the
		// upgrade so that rejections carry a proper close code.
		chatGroup.GET("/ws", func(c *gin.Context) {
			wsHandler.HandleWebSocket(c.Writer, c.Request)
		})

		// Health check endpoints (rate limited to prevent abuse)
		chatGroup.GET("/healthz", rateLimitMiddleware(publicLimiter, "public", pcLogger), handleHealthCheck)
		chatGroup.GET("/readyz", rateLimitMiddleware(publicLimiter, "public", pcLogger), handleReadyCheck(store, pcLogger))
	}

	// Prometheus metrics endpoint, under prefix, restricted to configured networks
	metricsAllowedStr := os.Getenv("METRICS_ALLOWED_NETWORKS")
	if metricsAllowedStr == "" {
		metricsAllowedStr, _ = cfgAcc.ConfigStringWithDefault("privchat.metrics_allowed_networks", constants.DefaultMetricsAllowedNetworks)
	}
	metricsNets := parseNetworks(metricsAllowedStr, pcLogger)
	chatGroup.GET("/metrics/prometheus",
		metricsNetworkMiddleware(metricsNets, pcLogger),
		rateLimitMiddleware(publicLimiter, "public", pcLogger),
		gin.WrapH(promhttp.Handler()),
	)

	// Warn if MongoDB URI appears to have no authentication
	if cfg.Database.URI != "" && !strings.Contains(cfg.Database.URI, "@") {
		pcLogger.Warn("MongoDB URI does not contain authentication credentials, ensure auth is configured for production")
	}

	pcLogger.Info("Privchat service registered successfully",
		"websocket_endpoint", pathPrefix+"/ws",
		"auth_endpoints", pathPrefix+"/auth/*",
		"chat_endpoints", pathPrefix+"/chat/*",
		"health_endpoints", pathPrefix+"/healthz, "+pathPrefix+"/readyz",
		"metrics_endpoint", pathPrefix+"/metrics/prometheus",
	)

	return nil
}

// overlayFileConfig fills in configuration values from the config file for
// settings whose environment variable was not set.
func overlayFileConfig(cfg *config.Config, cfgAcc *goconfig.ConfigAccessor) {
	if cfgAcc == nil {
		return
	}
	cfg.Auth.JWTSecret = fileString(cfgAcc, "JWT_SECRET", "privchat.jwt_secret", cfg.Auth.JWTSecret)
	cfg.Server.PathPrefix = fileString(cfgAcc, "PRIVCHAT_PATH_PREFIX", "privchat.path_prefix", cfg.Server.PathPrefix)
	cfg.Database.Database = fileString(cfgAcc, "MONGO_DATABASE", "privchat.database", cfg.Database.Database)
	cfg.Server.RateLimit = fileInt(cfgAcc, "RATE_LIMIT", "privchat.rate_limit", cfg.Server.RateLimit)
	cfg.Server.AuthRateLimit = fileInt(cfgAcc, "AUTH_RATE_LIMIT", "privchat.auth_rate_limit", cfg.Server.AuthRateLimit)
	cfg.Server.WSRateLimit = fileInt(cfgAcc, "WS_RATE_LIMIT", "privchat.ws_rate_limit", cfg.Server.WSRateLimit)
	cfg.Server.RateWindow = fileDuration(cfgAcc, "RATE_WINDOW", "privchat.rate_window", cfg.Server.RateWindow)
	cfg.Auth.AccessTokenTTL = fileDuration(cfgAcc, "ACCESS_TOKEN_TTL", "privchat.access_token_ttl", cfg.Auth.AccessTokenTTL)
	cfg.Auth.RefreshTokenTTL = fileDuration(cfgAcc, "REFRESH_TOKEN_TTL", "privchat.refresh_token_ttl", cfg.Auth.RefreshTokenTTL)
	cfg.Server.MaxFrameSize = int64(fileInt(cfgAcc, "MAX_FRAME_SIZE", "privchat.max_frame_size", int(cfg.Server.MaxFrameSize)))

	if os.Getenv("ALLOWED_ORIGINS") == "" {
		if origins, err := cfgAcc.ConfigStringWithDefault("privchat.allowed_origins", ""); err == nil && origins != "" {
			cfg.Server.AllowedOrigins = splitAndTrim(origins)
		}
	}
	if os.Getenv("TRUSTED_PROXIES") == "" {
		if proxies, err := cfgAcc.ConfigStringWithDefault("privchat.trusted_proxies", ""); err == nil && proxies != "" {
			cfg.Server.TrustedProxies = splitAndTrim(proxies)
		}
	}
}

func fileString(cfgAcc *goconfig.ConfigAccessor, envKey, fileKey, current string) string {
	if os.Getenv(envKey) != "" {
		return current
	}
	v, err := cfgAcc.ConfigStringWithDefault(fileKey, current)
	if err != nil {
		return current
	}
	return v
}

func fileInt(cfgAcc *goconfig.ConfigAccessor, envKey, fileKey string, current int) int {
	if os.Getenv(envKey) != "" {
		return current
	}
	v, err := cfgAcc.ConfigIntWithDefault(fileKey, current)
	if err != nil {
		return current
	}
	return v
}

func fileDuration(cfgAcc *goconfig.ConfigAccessor, envKey, fileKey string, current time.Duration) time.Duration {
	if os.Getenv(envKey) != "" {
		return current
	}
	s, err := cfgAcc.ConfigStringWithDefault(fileKey, current.String())
	if err != nil {
		return current
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return current
	}
	return d
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// securityHeadersMiddleware adds standard HTTP security headers to all responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Next()
	}
}

// metricsMiddleware records HTTP request duration for Prometheus monitoring
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.HTTPRequestDuration.With(prometheus.Labels{
			"route":  c.FullPath(),
			"status": strconv.Itoa(c.Writer.Status()),
		}).Observe(time.Since(start).Seconds())
	}
}

// rateLimitMiddleware creates a Gin middleware that enforces the given
// limiter per client IP. Each traffic class carries its own limiter so
// contention never crosses classes.
func rateLimitMiddleware(limiter *ratelimit.Limiter, class string, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Use Gin's ClientIP() which respects trusted proxies to prevent
		// X-Forwarded-For spoofing
		clientIP := c.ClientIP()

		if !limiter.Allow(clientIP) {
			retryAfter := limiter.GetRetryAfter(clientIP)

			logger.Warn("Rate limit exceeded",
				"class", class,
				"client_ip", clientIP,
				"endpoint", c.Request.URL.Path,
				"retry_after_ms", retryAfter)
			metrics.RateLimitRejections.WithLabelValues(class).Inc()

			// Convert milliseconds to seconds with ceiling to avoid 0
			retryAfterSeconds := (retryAfter + constants.MillisecondsPerSecond - 1) / constants.MillisecondsPerSecond
			if retryAfterSeconds < constants.MinRetryAfterSeconds {
				retryAfterSeconds = constants.MinRetryAfterSeconds
			}
			c.Header(constants.HeaderRetryAfter, fmt.Sprintf("%d", retryAfterSeconds))

			c.JSON(constants.StatusTooManyRequests, gin.H{
				"error":          "rate_limit_exceeded",
				"message":        constants.ErrMsgRateLimitExceeded,
				"retry_after_ms": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// bearerAuthMiddleware creates a Gin middleware that validates the access
// token from the Authorization header and stores the caller's identity in
// the request context.
func bearerAuthMiddleware(tokens *auth.TokenService, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token, err := util.ExtractBearerToken(authHeader)
		if err != nil {
			httperrors.RespondUnauthorized(c, httperrors.MsgInvalidAuthHeader)
			c.Abort()
			return
		}

		email, err := tokens.VerifyAccess(token)
		if err != nil {
			// Log detailed error server-side, send generic error to client
			logger.Warn("Token validation failed",
				"error", err,
				"component", "auth")
			httperrors.RespondInvalidToken(c)
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyIdentity, email)
		c.Next()
	}
}

// identityFromContext returns the authenticated caller's email stored by
// bearerAuthMiddleware.
func identityFromContext(c *gin.Context) (string, bool) {
	v, exists := c.Get(constants.ContextKeyIdentity)
	if !exists {
		return "", false
	}
	email, ok := v.(string)
	if !ok || email == "" {
		return "", false
	}
	return email, true
}

type registerRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Telephone string `json:"telephone"`
}

// handleRegister returns a handler that creates a new unconfirmed account.
func handleRegister(store *storage.Store, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperrors.RespondBadRequest(c, "username, email and password are required")
			return
		}

		if err := util.ValidateEmail(req.Email); err != nil {
			httperrors.RespondBadRequest(c, "invalid email address")
			return
		}
		if err := util.ValidateMinLength(req.Password, constants.MinPasswordLength, "password"); err != nil {
			httperrors.RespondBadRequest(c, fmt.Sprintf("password must be at least %d characters", constants.MinPasswordLength))
			return
		}

		hashed, err := auth.HashPassword(req.Password)
		if err != nil {
			util.LogError(logger, "http", "hash password", err)
			httperrors.RespondInternalError(c)
			return
		}

		confirmationToken := uuid.NewString()
		user := &storage.UserDocument{
			Username:               req.Username,
			Email:                  strings.ToLower(strings.TrimSpace(req.Email)),
			Password:               hashed,
			Telephone:              req.Telephone,
			IsEmailConfirmed:       false,
			EmailConfirmationToken: confirmationToken,
			CreatedAt:              time.Now().UTC(),
		}

		ctx, cancel := storage.NewDefaultContext()
		defer cancel()
		if err := store.CreateUser(ctx, user); err != nil {
			if errors.Is(err, storage.ErrDuplicateUser) {
				httperrors.RespondConflict(c, "an account with this email or username already exists")
				return
			}
			util.LogError(logger, "http", "create user", err, "email", user.Email)
			httperrors.RespondInternalError(c)
			return
		}

		logger.Info("User registered", "email", user.Email, "username", user.Username)

		// The confirmation token is returned in the response body; no
		// outbound mail transport is wired in this deployment.
		c.JSON(http.StatusCreated, gin.H{
			"email":              user.Email,
			"username":           user.Username,
			"confirmation_token": confirmationToken,
		})
	}
}

// handleConfirm returns a handler that confirms an account by its
// confirmation token.
func handleConfirm(store *storage.Store, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			httperrors.RespondBadRequest(c, "confirmation token is required")
			return
		}

		ctx, cancel := storage.NewDefaultContext()
		defer cancel()
		email, err := store.ConfirmUserByToken(ctx, token)
		if err != nil {
			if errors.Is(err, storage.ErrTokenNotFound) {
				httperrors.RespondNotFound(c, "invalid or already used confirmation token")
				return
			}
			util.LogError(logger, "http", "confirm user", err)
			httperrors.RespondInternalError(c)
			return
		}

		logger.Info("User email confirmed", "email", email)
		c.JSON(constants.StatusOK, gin.H{
			"email":              email,
			"is_email_confirmed": true,
		})
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin returns a handler that verifies credentials and issues a
// token pair. An unconfirmed account is rejected with a distinct outcome
// so the client can prompt for email confirmation instead of retrying the
// password.
func handleLogin(store *storage.Store, refreshMgr *auth.RefreshManager, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperrors.RespondBadRequest(c, "email and password are required")
			return
		}

		ctx, cancel := storage.NewDefaultContext()
		defer cancel()

		user, err := store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				httperrors.RespondInvalidCredentials(c)
				return
			}
			util.LogError(logger, "http", "get user", err)
			httperrors.RespondInternalError(c)
			return
		}

		if !auth.CheckPassword(user.Password, req.Password) {
			logger.Warn("Login failed", "email", user.Email, "reason", "bad_password")
			httperrors.RespondInvalidCredentials(c)
			return
		}

		if !user.IsEmailConfirmed {
			logger.Warn("Login rejected", "email", user.Email, "reason", "unconfirmed")
			httperrors.RespondConfirmationRequired(c)
			return
		}

		pair, err := refreshMgr.IssuePair(ctx, user.Email)
		if err != nil {
			util.LogError(logger, "http", "issue token pair", err, "email", user.Email)
			httperrors.RespondInternalError(c)
			return
		}

		logger.Info("User logged in", "email", user.Email)
		c.JSON(constants.StatusOK, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"token_type":    "Bearer",
		})
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// handleRefresh returns a handler that rotates a refresh token. The old
// token is revoked and a fresh pair issued; a replayed or otherwise
// invalid token yields the same generic rejection.
func handleRefresh(refreshMgr *auth.RefreshManager, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperrors.RespondBadRequest(c, "refresh_token is required")
			return
		}

		ctx, cancel := storage.NewDefaultContext()
		defer cancel()

		pair, err := refreshMgr.Rotate(ctx, req.RefreshToken)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				httperrors.RespondInvalidToken(c)
				return
			}
			util.LogError(logger, "http", "rotate refresh token", err)
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(constants.StatusOK, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"token_type":    "Bearer",
		})
	}
}

// handleLogout returns a handler that revokes every active refresh token
// for the authenticated caller.
func handleLogout(refreshMgr *auth.RefreshManager, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, ok := identityFromContext(c)
		if !ok {
			httperrors.RespondUnauthorized(c, "")
			return
		}

		ctx, cancel := storage.NewDefaultContext()
		defer cancel()

		revoked, err := refreshMgr.RevokeAll(ctx, email)
		if err != nil {
			util.LogError(logger, "http", "revoke refresh tokens", err, "email", email)
			httperrors.RespondInternalError(c)
			return
		}

		logger.Info("User logged out", "email", email, "tokens_revoked", revoked)
		c.JSON(constants.StatusOK, gin.H{
			"revoked": revoked,
		})
	}
}

// handleHistory returns a handler that lists the conversation between the
// caller and the given peer, oldest first.
func handleHistory(chatService *chat.Service, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, ok := identityFromContext(c)
		if !ok {
			httperrors.RespondUnauthorized(c, "")
			return
		}

		peer := c.Param("email")
		if peer == "" {
			httperrors.RespondBadRequest(c, "peer email is required")
			return
		}

		limit := 0
		if limitStr := c.Query("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil {
				httperrors.RespondBadRequest(c, "limit must be an integer")
				return
			}
			limit = parsed
		}

		ctx, cancel := storage.NewDefaultContext()
		defer cancel()

		messages, err := chatService.History(ctx, email, peer, limit)
		if err != nil {
			util.LogError(logger, "http", "list history", err, "user", email, "peer", peer)
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(constants.StatusOK, gin.H{
			"room_id":  chat.RoomID(email, peer),
			"messages": messages,
			"count":    len(messages),
		})
	}
}

// handleRooms returns a handler that lists the caller's conversations,
// most recently active first.
func handleRooms(chatService *chat.Service, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, ok := identityFromContext(c)
		if !ok {
			httperrors.RespondUnauthorized(c, "")
			return
		}

		ctx, cancel := storage.NewDefaultContext()
		defer cancel()

		rooms, err := chatService.RoomsFor(ctx, email)
		if err != nil {
			util.LogError(logger, "http", "list rooms", err, "user", email)
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(constants.StatusOK, gin.H{
			"rooms": rooms,
			"count": len(rooms),
		})
	}
}

// handleListUsers returns a handler that lists registered users with
// pagination, excluding the caller.
func handleListUsers(chatService *chat.Service, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, ok := identityFromContext(c)
		if !ok {
			httperrors.RespondUnauthorized(c, "")
			return
		}

		limit := constants.DefaultUserPageLimit
		if limitStr := c.Query("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil {
				httperrors.RespondBadRequest(c, "limit must be an integer")
				return
			}
			limit = parsed
		}

		offset := 0
		if offsetStr := c.Query("offset"); offsetStr != "" {
			parsed, err := strconv.Atoi(offsetStr)
			if err != nil || parsed < 0 {
				httperrors.RespondBadRequest(c, "offset must be a non-negative integer")
				return
			}
			offset = parsed
		}

		ctx, cancel := storage.NewDefaultContext()
		defer cancel()

		users, err := chatService.ListUsers(ctx, email, limit, offset)
		if err != nil {
			util.LogError(logger, "http", "list users", err, "user", email)
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(constants.StatusOK, gin.H{
			"users":  users,
			"count":  len(users),
			"offset": offset,
		})
	}
}

// handleUnreadCount returns a handler that counts the caller's unread
// messages across all conversations.
func handleUnreadCount(chatService *chat.Service, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, ok := identityFromContext(c)
		if !ok {
			httperrors.RespondUnauthorized(c, "")
			return
		}

		ctx, cancel := storage.NewDefaultContext()
		defer cancel()

		count, err := chatService.UnreadCount(ctx, email)
		if err != nil {
			util.LogError(logger, "http", "count unread", err, "user", email)
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(constants.StatusOK, gin.H{
			"unread_count": count,
		})
	}
}

// handleMarkRead returns a handler that marks all messages from the given
// sender to the caller as read. Marking an empty conversation is not an
// error.
func handleMarkRead(chatService *chat.Service, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, ok := identityFromContext(c)
		if !ok {
			httperrors.RespondUnauthorized(c, "")
			return
		}

		sender := c.Param("email")
		if sender == "" {
			httperrors.RespondBadRequest(c, "sender email is required")
			return
		}

		ctx, cancel := storage.NewDefaultContext()
		defer cancel()

		modified, err := chatService.MarkRead(ctx, sender, email)
		if err != nil {
			util.LogError(logger, "http", "mark read", err, "user", email, "sender", sender)
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(constants.StatusOK, gin.H{
			"marked_read": modified,
		})
	}
}

// handleHealthCheck is the liveness probe endpoint. If we can respond,
// the process is alive.
func handleHealthCheck(c *gin.Context) {
	c.JSON(constants.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReadyCheck returns a handler for the readiness probe endpoint.
// It verifies that the storage layer can reach MongoDB.
func handleReadyCheck(store *storage.Store, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := make(map[string]interface{})
		allReady := true

		ctx, cancel := util.NewTimeoutContext(constants.HealthCheckTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logger.Warn("MongoDB health check failed",
				"error", err,
				"component", "health")
			checks["mongodb"] = map[string]interface{}{
				"status": "not ready",
				"reason": "Database connectivity check failed",
			}
			allReady = false
		} else {
			checks["mongodb"] = map[string]interface{}{
				"status": "ready",
			}
		}

		status := "ready"
		statusCode := constants.StatusOK
		if !allReady {
			status = "not ready"
			statusCode = constants.StatusServiceUnavailable
		}

		c.JSON(statusCode, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
	}
}

// Shutdown gracefully shuts down the privchat service.
// It stops background goroutines and closes all active WebSocket
// connections. This function should be called when the application
// receives a SIGTERM or SIGINT signal. It respects the context deadline
// and will force shutdown if the deadline is exceeded.
func Shutdown(ctx context.Context) error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()

	if globalLogger != nil {
		globalLogger.Info("Starting graceful shutdown of privchat service")
	}

	for _, l := range globalLimiters {
		l.StopCleanup()
	}

	if globalRefreshMgr != nil {
		globalRefreshMgr.StopSweep()
	}

	if globalWSHandler != nil {
		if err := globalWSHandler.ShutdownWithContext(ctx); err != nil {
			if globalLogger != nil {
				globalLogger.Warn("WebSocket handler shutdown error", "error", err)
			}
			return err
		}
	}

	if globalLogger != nil {
		globalLogger.Info("Privchat service shutdown complete")
		// Note: Logger.Close() should be called by gomain, not here
	}

	return nil
}

// parseNetworks parses a comma-separated list of CIDR network strings.
func parseNetworks(networksStr string, logger *golog.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range strings.Split(networksStr, ",") {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("Invalid CIDR in metrics_allowed_networks", "cidr", cidr, "error", err)
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}

// metricsNetworkMiddleware restricts access to the metrics endpoint to configured networks.
func metricsNetworkMiddleware(allowedNets []*net.IPNet, logger *golog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// If no networks configured, allow all (development mode)
		if len(allowedNets) == 0 {
			c.Next()
			return
		}

		clientIP := net.ParseIP(c.ClientIP())
		if clientIP == nil {
			logger.Warn("Could not parse client IP for metrics access", "ip", c.ClientIP())
			httperrors.RespondForbidden(c)
			c.Abort()
			return
		}

		for _, ipNet := range allowedNets {
			if ipNet.Contains(clientIP) {
				c.Next()
				return
			}
		}

		logger.Warn("Metrics access denied from unauthorized network",
			"client_ip", c.ClientIP(),
			"component", "metrics")
		httperrors.RespondForbidden(c)
		c.Abort()
	}
}

// containsPlaceholder checks if a configuration value still contains
// a deployment placeholder that should have been replaced.
func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	return strings.Contains(upper, "REPLACE_WITH") ||
		strings.Contains(upper, "PLACEHOLDER") ||
		strings.Contains(upper, "CHANGE-ME") ||
		strings.Contains(upper, "CHANGE_ME") ||
		strings.Contains(upper, "YOUR-")
}
