// Package chat implements the message service: persistence of one-to-one
// messages, conversation aggregates, read receipts and user listing.
package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/real-rm/golog"

	"github.com/real-rm/privchat/internal/constants"
	"github.com/real-rm/privchat/internal/message"
	"github.com/real-rm/privchat/internal/metrics"
	"github.com/real-rm/privchat/internal/storage"
)

// Message is the service-level view of a persisted chat message
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

// Conversation is the service-level view of a conversation aggregate
type Conversation struct {
	RoomID       string    `json:"room_id"`
	Participants []string  `json:"participants"`
	LastMessage  string    `json:"last_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// User is the public view of an account, with credentials stripped
type User struct {
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Telephone        string    `json:"telephone,omitempty"`
	IsEmailConfirmed bool      `json:"is_email_confirmed"`
	CreatedAt        time.Time `json:"created_at"`
}

// Service coordinates message persistence and conversation upkeep
type Service struct {
	store  *storage.Store
	logger *golog.Logger
}

// NewService creates a message service backed by the given store
func NewService(store *storage.Store, logger *golog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// RoomID derives the deterministic conversation identifier for an unordered
// pair of identities: the pair sorted lexicographically, joined with "_".
// RoomID(a, b) == RoomID(b, a) always.
func RoomID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, constants.RoomSeparator)
}

// Save sanitizes and validates the content, persists the message, and
// refreshes the conversation aggregate for the pair in a single conditional
// write. Content failing validation is rejected before anything is written.
func (s *Service) Save(ctx context.Context, sender, receiver, content string) (*Message, error) {
	clean, err := message.ValidateContent(content)
	if err != nil {
		return nil, err
	}

	doc, err := s.store.InsertMessage(ctx, sender, receiver, clean)
	if err != nil {
		return nil, err
	}

	pair := []string{sender, receiver}
	sort.Strings(pair)
	if err := s.store.UpsertConversation(ctx, RoomID(sender, receiver), pair, clean); err != nil {
		// The message is durable; a failed aggregate refresh only leaves the
		// room list stale until the next message lands.
		s.logger.Warn("Conversation upsert failed after message insert",
			"room", RoomID(sender, receiver), "error", err)
	}

	return &Message{
		ID:        doc.ID.Hex(),
		Sender:    doc.SenderEmail,
		Receiver:  doc.ReceiverEmail,
		Content:   doc.Content,
		Timestamp: doc.Timestamp,
		IsRead:    doc.IsRead,
	}, nil
}

// History returns up to limit messages between two identities in
// chronological order. The store query runs newest-first so the limit keeps
// the latest messages; the slice is reversed before returning.
func (s *Service) History(ctx context.Context, a, b string, limit int) ([]*Message, error) {
	docs, err := s.store.ListMessagesBetween(ctx, a, b, limit)
	if err != nil {
		return nil, err
	}

	out := make([]*Message, len(docs))
	for i, doc := range docs {
		// Reverse newest-first into oldest-first
		out[len(docs)-1-i] = &Message{
			ID:        doc.ID.Hex(),
			Sender:    doc.SenderEmail,
			Receiver:  doc.ReceiverEmail,
			Content:   doc.Content,
			Timestamp: doc.Timestamp,
			IsRead:    doc.IsRead,
		}
	}

	return out, nil
}

// RoomsFor lists the conversations the identity participates in, most
// recently active first.
func (s *Service) RoomsFor(ctx context.Context, identity string) ([]*Conversation, error) {
	docs, err := s.store.ListConversations(ctx, identity)
	if err != nil {
		return nil, err
	}

	rooms := make([]*Conversation, len(docs))
	for i, doc := range docs {
		rooms[i] = &Conversation{
			RoomID:       doc.RoomID,
			Participants: doc.Participants,
			LastMessage:  doc.LastMessage,
			CreatedAt:    doc.CreatedAt,
			UpdatedAt:    doc.UpdatedAt,
		}
	}

	return rooms, nil
}

// MarkRead marks all unread messages flowing sender -> receiver as read.
// Idempotent: a second call reports zero modified.
func (s *Service) MarkRead(ctx context.Context, sender, receiver string) (int64, error) {
	count, err := s.store.MarkMessagesRead(ctx, sender, receiver)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		metrics.ReadReceipts.Inc()
	}
	return count, nil
}

// UnreadCount returns how many unread messages are addressed to the identity
func (s *Service) UnreadCount(ctx context.Context, identity string) (int64, error) {
	return s.store.CountUnread(ctx, identity)
}

// ListUsers returns reachable users excluding the requesting identity
func (s *Service) ListUsers(ctx context.Context, excluding string, limit, offset int) ([]*User, error) {
	docs, err := s.store.ListUsers(ctx, excluding, limit, offset)
	if err != nil {
		return nil, err
	}

	users := make([]*User, len(docs))
	for i, doc := range docs {
		users[i] = &User{
			Username:         doc.Username,
			Email:            doc.Email,
			Telephone:        doc.Telephone,
			IsEmailConfirmed: doc.IsEmailConfirmed,
			CreatedAt:        doc.CreatedAt,
		}
	}

	return users, nil
}
