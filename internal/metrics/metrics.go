// Package metrics provides Prometheus metrics collection for the privchat application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocketConnections tracks the current number of active WebSocket connections
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "privchat_websocket_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// ConnectionsSuperseded tracks connections closed because the same identity reconnected
	ConnectionsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privchat_connections_superseded_total",
		Help: "Total number of connections closed by a newer connection for the same user",
	})

	// MessagesReceived tracks the total number of frames received from clients
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privchat_messages_received_total",
		Help: "Total number of frames received from clients",
	})

	// MessagesSent tracks the total number of frames sent to clients
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privchat_messages_sent_total",
		Help: "Total number of frames sent to clients",
	})

	// MessagesPersisted tracks the total number of chat messages stored
	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privchat_messages_persisted_total",
		Help: "Total number of chat messages persisted",
	})

	// MessageErrors tracks the total number of message processing errors
	MessageErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privchat_message_errors_total",
		Help: "Total number of message processing errors",
	})

	// PresenceBroadcasts tracks the total number of user_status broadcasts
	PresenceBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privchat_presence_broadcasts_total",
		Help: "Total number of presence status broadcasts",
	})

	// ReadReceipts tracks the total number of mark-read operations
	ReadReceipts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privchat_read_receipts_total",
		Help: "Total number of read receipt operations",
	})

	// TokensIssued tracks issued tokens by kind (access, refresh)
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "privchat_tokens_issued_total",
		Help: "Total number of tokens issued by kind",
	}, []string{"kind"})

	// TokenRotations tracks refresh token rotation outcomes
	TokenRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "privchat_token_rotations_total",
		Help: "Total number of refresh token rotations by outcome",
	}, []string{"outcome"})

	// TokensRevoked tracks the total number of refresh tokens revoked
	TokensRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privchat_tokens_revoked_total",
		Help: "Total number of refresh tokens revoked",
	})

	// RateLimitRejections tracks rate limit rejections by traffic class
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "privchat_rate_limit_rejections_total",
		Help: "Total number of rate limited requests by traffic class",
	}, []string{"class"})

	// MongoOperationDuration tracks the latency of storage operations
	MongoOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "privchat_mongo_operation_duration_seconds",
		Help:    "Latency of MongoDB operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// HTTPRequestDuration tracks the latency of HTTP requests by route and status
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "privchat_http_request_duration_seconds",
		Help:    "Latency of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)
