// Package storage manages persistence for users, messages, conversations and
// refresh tokens in MongoDB using gomongo.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/real-rm/golog"
	"github.com/real-rm/gomongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/real-rm/privchat/internal/constants"
	"github.com/real-rm/privchat/internal/metrics"
	"github.com/real-rm/privchat/internal/util"
)

var (
	// ErrUserNotFound is returned when no user matches the query
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateUser is returned when email or username is already taken
	ErrDuplicateUser = errors.New("email or username already registered")
	// ErrTokenNotFound is returned when no refresh token record matches
	ErrTokenNotFound = errors.New("refresh token record not found")
	// ErrInvalidArgument is returned when a required argument is empty
	ErrInvalidArgument = errors.New("invalid argument")
)

// retryConfig holds configuration for MongoDB retry logic
type retryConfig struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

// defaultRetryConfig provides default retry configuration
var defaultRetryConfig = retryConfig{
	maxAttempts:  constants.MaxRetryAttempts,
	initialDelay: constants.InitialRetryDelay,
	maxDelay:     constants.MaxRetryDelay,
	multiplier:   constants.RetryMultiplier,
}

// Store manages chat persistence in MongoDB using gomongo
type Store struct {
	mongo         *gomongo.Mongo
	users         *gomongo.MongoCollection
	messages      *gomongo.MongoCollection
	conversations *gomongo.MongoCollection
	refreshTokens *gomongo.MongoCollection
	logger        *golog.Logger
	retry         retryConfig
}

// UserDocument represents a user account stored in MongoDB
type UserDocument struct {
	ID                     primitive.ObjectID `bson:"_id,omitempty"`
	Username               string             `bson:"username"`
	Email                  string             `bson:"email"`
	Password               string             `bson:"password"`
	Telephone              string             `bson:"telephone,omitempty"`
	IsEmailConfirmed       bool               `bson:"is_email_confirmed"`
	EmailConfirmationToken string             `bson:"email_confirmation_token,omitempty"`
	CreatedAt              time.Time          `bson:"created_at"`
}

// MessageDocument represents a chat message stored in MongoDB
type MessageDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	SenderEmail   string             `bson:"sender_email"`
	ReceiverEmail string             `bson:"receiver_email"`
	Content       string             `bson:"content"`
	Timestamp     time.Time          `bson:"timestamp"`
	IsRead        bool               `bson:"is_read"`
}

// ConversationDocument represents a one-to-one conversation aggregate
type ConversationDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	RoomID       string             `bson:"room_id"`
	Participants []string           `bson:"participants"`
	LastMessage  string             `bson:"last_message"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

// RefreshTokenDocument represents a durable refresh token record
type RefreshTokenDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	TokenID      string             `bson:"token_id"`
	UserEmail    string             `bson:"user_email"`
	RefreshToken string             `bson:"refresh_token"`
	CreatedAt    time.Time          `bson:"created_at"`
	ExpiresAt    time.Time          `bson:"expires_at"`
	IsRevoked    bool               `bson:"is_revoked"`
	RevokedAt    *time.Time         `bson:"revoked_at,omitempty"`
}

// NewStore creates a new storage service using gomongo
// mongo: gomongo.Mongo instance (from gomongo.InitMongoDB)
// dbName: database name
// logger: golog.Logger instance for logging
func NewStore(mongo *gomongo.Mongo, dbName string, logger *golog.Logger) *Store {
	return &Store{
		mongo:         mongo,
		users:         mongo.Coll(dbName, constants.CollectionUsers),
		messages:      mongo.Coll(dbName, constants.CollectionMessages),
		conversations: mongo.Coll(dbName, constants.CollectionConversations),
		refreshTokens: mongo.Coll(dbName, constants.CollectionRefreshTokens),
		logger:        logger,
		retry:         defaultRetryConfig,
	}
}

// SetRetryPolicy overrides the transient-error retry policy. Non-positive
// values keep the corresponding default.
func (s *Store) SetRetryPolicy(maxAttempts int, initialDelay, maxDelay time.Duration) {
	if maxAttempts > 0 {
		s.retry.maxAttempts = maxAttempts
	}
	if initialDelay > 0 {
		s.retry.initialDelay = initialDelay
	}
	if maxDelay > 0 {
		s.retry.maxDelay = maxDelay
	}
}

// isRetryableError checks if an error is retryable (transient)
// Returns true for network errors and transient MongoDB errors
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()

	// Network errors
	if containsAny(errStr, []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"i/o timeout",
		"EOF",
	}) {
		return true
	}

	// MongoDB specific transient errors
	if containsAny(errStr, []string{
		"server selection timeout",
		"no reachable servers",
		"connection pool",
		"socket",
	}) {
		return true
	}

	return false
}

// containsAny checks if a string contains any of the given substrings
func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// EnsureIndexes creates the indexes for all collections.
// This should be called during application initialization.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: constants.MongoFieldEmail, Value: 1}},
			Options: options.Index().SetName(constants.IndexUserEmail).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: constants.MongoFieldUsername, Value: 1}},
			Options: options.Index().SetName(constants.IndexUserUsername).SetUnique(true),
		},
	}

	messageIndexes := []mongo.IndexModel{
		{
			// Conversation lookups: both directions of a pair plus recency
			Keys: bson.D{
				{Key: constants.MongoFieldSender, Value: 1},
				{Key: constants.MongoFieldReceiver, Value: 1},
				{Key: constants.MongoFieldTimestamp, Value: -1},
			},
			Options: options.Index().SetName(constants.IndexMessageRoom),
		},
		{
			// Unread counts per receiver
			Keys: bson.D{
				{Key: constants.MongoFieldReceiver, Value: 1},
				{Key: constants.MongoFieldIsRead, Value: 1},
			},
			Options: options.Index().SetName(constants.IndexMessageUnread),
		},
		{
			Keys:    bson.D{{Key: constants.MongoFieldTimestamp, Value: -1}},
			Options: options.Index().SetName(constants.IndexMessageTimestamp),
		},
	}

	conversationIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: constants.MongoFieldRoomID, Value: 1}},
			Options: options.Index().SetName(constants.IndexRoomID).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: constants.MongoFieldParticipants, Value: 1}},
			Options: options.Index().SetName(constants.IndexRoomParticipants),
		},
		{
			Keys:    bson.D{{Key: constants.MongoFieldUpdatedAt, Value: -1}},
			Options: options.Index().SetName(constants.IndexRoomUpdatedAt),
		},
	}

	refreshTokenIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: constants.MongoFieldRefreshToken, Value: 1},
				{Key: constants.MongoFieldUserEmail, Value: 1},
			},
			Options: options.Index().SetName(constants.IndexRefreshToken),
		},
		{
			Keys:    bson.D{{Key: constants.MongoFieldExpiresAt, Value: 1}},
			Options: options.Index().SetName(constants.IndexRefreshExpiry),
		},
	}

	if _, err := s.users.CreateIndexes(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	if _, err := s.messages.CreateIndexes(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	if _, err := s.conversations.CreateIndexes(ctx, conversationIndexes); err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}
	if _, err := s.refreshTokens.CreateIndexes(ctx, refreshTokenIndexes); err != nil {
		return fmt.Errorf("failed to create refresh token indexes: %w", err)
	}

	s.logger.Info("MongoDB indexes created successfully",
		"collections", []string{
			constants.CollectionUsers,
			constants.CollectionMessages,
			constants.CollectionConversations,
			constants.CollectionRefreshTokens,
		},
	)

	return nil
}

// Ping verifies storage connectivity. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.users.Ping(ctx)
}

// --- Users ---

// CreateUser inserts a new user account. A duplicate email or username
// surfaces as ErrDuplicateUser via the unique indexes.
func (s *Store) CreateUser(ctx context.Context, user *UserDocument) error {
	if user == nil || user.Email == "" {
		return ErrInvalidArgument
	}

	start := time.Now()
	defer func() {
		metrics.MongoOperationDuration.With(prometheus.Labels{"operation": "create_user"}).Observe(time.Since(start).Seconds())
	}()

	user.CreatedAt = time.Now().UTC()

	err := s.retryOperation(ctx, "CreateUser", func() error {
		_, err := s.users.InsertOne(ctx, user)
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByEmail fetches a single user account by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*UserDocument, error) {
	if email == "" {
		return nil, ErrInvalidArgument
	}

	var doc UserDocument
	filter := bson.M{constants.MongoFieldEmail: email}

	err := s.retryOperation(ctx, "GetUserByEmail", func() error {
		result := s.users.FindOne(ctx, filter)
		return result.Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &doc, nil
}

// ConfirmUserByToken marks the account holding the confirmation token as
// confirmed and clears the token. Returns ErrUserNotFound for unknown tokens.
func (s *Store) ConfirmUserByToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidArgument
	}

	filter := bson.M{constants.MongoFieldConfirmToken: token}
	update := bson.M{
		"$set":   bson.M{constants.MongoFieldConfirmed: true},
		"$unset": bson.M{constants.MongoFieldConfirmToken: ""},
	}

	findOpts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc UserDocument
	err := s.retryOperation(ctx, "ConfirmUserByToken", func() error {
		return s.users.FindOneAndUpdate(ctx, filter, update, findOpts).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to confirm user: %w", err)
	}

	return doc.Email, nil
}

// ListUsers returns users excluding the given identity, paginated, with the
// password and confirmation token projected away.
func (s *Store) ListUsers(ctx context.Context, excluding string, limit, offset int) ([]*UserDocument, error) {
	if limit <= 0 || limit > constants.MaxUserPageLimit {
		limit = constants.DefaultUserPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	filter := bson.M{constants.MongoFieldEmail: bson.M{"$ne": excluding}}
	queryOpts := gomongo.QueryOptions{
		Sort:  bson.D{{Key: constants.MongoFieldUsername, Value: 1}},
		Limit: int64(limit),
		Skip:  int64(offset),
	}

	cursor, err := s.users.Find(ctx, filter, queryOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := make([]*UserDocument, 0)
	for cursor.Next(ctx) {
		var doc UserDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user document: %w", err)
		}
		// Credentials never leave the storage boundary on list queries
		doc.Password = ""
		doc.EmailConfirmationToken = ""
		users = append(users, &doc)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return users, nil
}

// --- Messages ---

// InsertMessage persists a chat message and returns its assigned ID.
// The timestamp is assigned here, never taken from the client.
func (s *Store) InsertMessage(ctx context.Context, sender, receiver, content string) (*MessageDocument, error) {
	if sender == "" || receiver == "" {
		return nil, ErrInvalidArgument
	}

	start := time.Now()
	defer func() {
		metrics.MongoOperationDuration.With(prometheus.Labels{"operation": "insert_message"}).Observe(time.Since(start).Seconds())
	}()

	doc := &MessageDocument{
		ID:            primitive.NewObjectID(),
		SenderEmail:   sender,
		ReceiverEmail: receiver,
		Content:       content,
		Timestamp:     time.Now().UTC(),
		IsRead:        false,
	}

	err := s.retryOperation(ctx, "InsertMessage", func() error {
		_, err := s.messages.InsertOne(ctx, doc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	metrics.MessagesPersisted.Inc()
	return doc, nil
}

// ListMessagesBetween returns up to limit messages exchanged between the two
// identities, newest first. Callers reverse for chronological display.
func (s *Store) ListMessagesBetween(ctx context.Context, a, b string, limit int) ([]*MessageDocument, error) {
	if a == "" || b == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > constants.MaxHistoryLimit {
		limit = constants.DefaultHistoryLimit
	}

	filter := bson.M{
		"$or": bson.A{
			bson.M{constants.MongoFieldSender: a, constants.MongoFieldReceiver: b},
			bson.M{constants.MongoFieldSender: b, constants.MongoFieldReceiver: a},
		},
	}
	queryOpts := gomongo.QueryOptions{
		Sort:  bson.D{{Key: constants.MongoFieldTimestamp, Value: -1}},
		Limit: int64(limit),
	}

	cursor, err := s.messages.Find(ctx, filter, queryOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*MessageDocument, 0)
	for cursor.Next(ctx) {
		var doc MessageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message document: %w", err)
		}
		messages = append(messages, &doc)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return messages, nil
}

// MarkMessagesRead flips is_read on all unread messages flowing
// sender -> receiver. Idempotent; returns the number actually modified.
func (s *Store) MarkMessagesRead(ctx context.Context, sender, receiver string) (int64, error) {
	if sender == "" || receiver == "" {
		return 0, ErrInvalidArgument
	}

	start := time.Now()
	defer func() {
		metrics.MongoOperationDuration.With(prometheus.Labels{"operation": "mark_read"}).Observe(time.Since(start).Seconds())
	}()

	filter := bson.M{
		constants.MongoFieldSender:   sender,
		constants.MongoFieldReceiver: receiver,
		constants.MongoFieldIsRead:   false,
	}
	update := bson.M{"$set": bson.M{constants.MongoFieldIsRead: true}}

	var result *mongo.UpdateResult
	err := s.retryOperation(ctx, "MarkMessagesRead", func() error {
		var opErr error
		result, opErr = s.messages.UpdateMany(ctx, filter, update)
		return opErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}

	return result.ModifiedCount, nil
}

// CountUnread returns the number of unread messages addressed to the identity
func (s *Store) CountUnread(ctx context.Context, receiver string) (int64, error) {
	if receiver == "" {
		return 0, ErrInvalidArgument
	}

	filter := bson.M{
		constants.MongoFieldReceiver: receiver,
		constants.MongoFieldIsRead:   false,
	}

	var count int64
	err := s.retryOperation(ctx, "CountUnread", func() error {
		var opErr error
		count, opErr = s.messages.CountDocuments(ctx, filter)
		return opErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}

	return count, nil
}

// --- Conversations ---

// UpsertConversation refreshes the conversation aggregate for a room in a
// single conditional write. created_at is set only when the document is first
// created; last_message and updated_at move on every call.
func (s *Store) UpsertConversation(ctx context.Context, roomID string, participants []string, lastMessage string) error {
	if roomID == "" || len(participants) != 2 {
		return ErrInvalidArgument
	}

	now := time.Now().UTC()
	filter := bson.M{constants.MongoFieldRoomID: roomID}
	update := bson.M{
		"$set": bson.M{
			constants.MongoFieldParticipants: participants,
			constants.MongoFieldLastMessage:  lastMessage,
			constants.MongoFieldUpdatedAt:    now,
		},
		"$setOnInsert": bson.M{
			constants.MongoFieldCreatedAt: now,
		},
	}

	err := s.retryOperation(ctx, "UpsertConversation", func() error {
		_, opErr := s.conversations.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		return opErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	return nil
}

// ListConversations returns all conversations the identity participates in,
// most recently active first.
func (s *Store) ListConversations(ctx context.Context, identity string) ([]*ConversationDocument, error) {
	if identity == "" {
		return nil, ErrInvalidArgument
	}

	filter := bson.M{constants.MongoFieldParticipants: identity}
	queryOpts := gomongo.QueryOptions{
		Sort: bson.D{{Key: constants.MongoFieldUpdatedAt, Value: -1}},
	}

	cursor, err := s.conversations.Find(ctx, filter, queryOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	rooms := make([]*ConversationDocument, 0)
	for cursor.Next(ctx) {
		var doc ConversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode conversation document: %w", err)
		}
		rooms = append(rooms, &doc)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return rooms, nil
}

// --- Refresh tokens ---

// InsertRefreshToken persists a refresh token record
func (s *Store) InsertRefreshToken(ctx context.Context, doc *RefreshTokenDocument) error {
	if doc == nil || doc.TokenID == "" || doc.UserEmail == "" {
		return ErrInvalidArgument
	}

	err := s.retryOperation(ctx, "InsertRefreshToken", func() error {
		_, opErr := s.refreshTokens.InsertOne(ctx, doc)
		return opErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}

	return nil
}

// FindRefreshToken looks up the record for a token/identity pair
func (s *Store) FindRefreshToken(ctx context.Context, token, userEmail string) (*RefreshTokenDocument, error) {
	if token == "" || userEmail == "" {
		return nil, ErrInvalidArgument
	}

	filter := bson.M{
		constants.MongoFieldRefreshToken: token,
		constants.MongoFieldUserEmail:    userEmail,
	}

	var doc RefreshTokenDocument
	err := s.retryOperation(ctx, "FindRefreshToken", func() error {
		return s.refreshTokens.FindOne(ctx, filter).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	return &doc, nil
}

// RevokeRefreshToken conditionally revokes a live token record. The is_revoked
// guard in the filter makes concurrent revocations race safely: exactly one
// caller observes a modified count of 1.
func (s *Store) RevokeRefreshToken(ctx context.Context, token, userEmail string) (bool, error) {
	if token == "" || userEmail == "" {
		return false, ErrInvalidArgument
	}

	now := time.Now().UTC()
	filter := bson.M{
		constants.MongoFieldRefreshToken: token,
		constants.MongoFieldUserEmail:    userEmail,
		constants.MongoFieldIsRevoked:    false,
	}
	update := bson.M{"$set": bson.M{
		constants.MongoFieldIsRevoked: true,
		constants.MongoFieldRevokedAt: now,
	}}

	var result *mongo.UpdateResult
	err := s.retryOperation(ctx, "RevokeRefreshToken", func() error {
		var opErr error
		result, opErr = s.refreshTokens.UpdateOne(ctx, filter, update)
		return opErr
	})
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return result.ModifiedCount == 1, nil
}

// RevokeAllRefreshTokens revokes every live token for the identity and
// returns how many were revoked.
func (s *Store) RevokeAllRefreshTokens(ctx context.Context, userEmail string) (int64, error) {
	if userEmail == "" {
		return 0, ErrInvalidArgument
	}

	now := time.Now().UTC()
	filter := bson.M{
		constants.MongoFieldUserEmail: userEmail,
		constants.MongoFieldIsRevoked: false,
	}
	update := bson.M{"$set": bson.M{
		constants.MongoFieldIsRevoked: true,
		constants.MongoFieldRevokedAt: now,
	}}

	var result *mongo.UpdateResult
	err := s.retryOperation(ctx, "RevokeAllRefreshTokens", func() error {
		var opErr error
		result, opErr = s.refreshTokens.UpdateMany(ctx, filter, update)
		return opErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	return result.ModifiedCount, nil
}

// DeleteExpiredRefreshTokens removes records whose expiry has passed and
// returns how many were deleted.
func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	filter := bson.M{constants.MongoFieldExpiresAt: bson.M{"$lt": time.Now().UTC()}}

	var result *mongo.DeleteResult
	err := s.retryOperation(ctx, "DeleteExpiredRefreshTokens", func() error {
		var opErr error
		result, opErr = s.refreshTokens.DeleteMany(ctx, filter)
		return opErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}

	return result.DeletedCount, nil
}

// retryOperation executes a MongoDB operation with retry logic for transient errors
func (s *Store) retryOperation(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	delay := s.retry.initialDelay

	for attempt := 1; attempt <= s.retry.maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if !isRetryableError(err) {
			return err
		}

		lastErr = err

		if attempt < s.retry.maxAttempts {
			s.logger.Warn("MongoDB operation failed, retrying",
				"operation", operation,
				"attempt", attempt,
				"max_attempts", s.retry.maxAttempts,
				"delay", delay,
				"error", err)

			select {
			case <-time.After(delay):
				// Continue to next attempt
			case <-ctx.Done():
				return fmt.Errorf("operation cancelled during retry: %w", ctx.Err())
			}

			// Exponential backoff
			delay = time.Duration(float64(delay) * s.retry.multiplier)
			if delay > s.retry.maxDelay {
				delay = s.retry.maxDelay
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w",
		s.retry.maxAttempts, lastErr)
}

// NewDefaultContext returns the standard operation context used when a caller
// does not supply one.
func NewDefaultContext() (context.Context, context.CancelFunc) {
	return util.NewTimeoutContext(constants.DefaultContextTimeout)
}
