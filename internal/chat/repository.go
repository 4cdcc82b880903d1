package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Participant returns the membership row for (conversation, user), or
// (nil, nil) when none exists. The guard treats the row as the sole source
// of truth, so this query always hits the database.
func (r *Repository) Participant(ctx context.Context, conversationID, userID int) (*Participant, error) {
	p := &Participant{}
	query := `
		SELECT conversation_id, user_id, role, joined_at
		FROM participants
		WHERE conversation_id = $1 AND user_id = $2
	`
	err := r.db.QueryRowContext(ctx, query, conversationID, userID).
		Scan(&p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// Participants lists all current members of a conversation.
func (r *Repository) Participants(ctx context.Context, conversationID int) ([]Participant, error) {
	query := `
		SELECT conversation_id, user_id, role, joined_at
		FROM participants
		WHERE conversation_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// SaveMessage inserts one message row and one key envelope per recipient in
// a single transaction. Either everything commits or nothing does: a message
// whose envelopes failed to store is never visible to readers.
func (r *Repository) SaveMessage(ctx context.Context, conversationID, senderID int, ciphertext string, wrappedKeys map[int]string) (*Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	msg, err := createMessage(ctx, tx, conversationID, senderID, ciphertext)
	if err != nil {
		return nil, err
	}

	// Stable insert order keeps envelope ids deterministic
	recipients := lo.Keys(wrappedKeys)
	sort.Ints(recipients)
	for _, recipientID := range recipients {
		if err := addKeyEnvelope(ctx, tx, msg.ID, recipientID, wrappedKeys[recipientID]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

func createMessage(ctx context.Context, tx *sql.Tx, conversationID, senderID int, ciphertext string) (*Message, error) {
	msg := &Message{ConversationID: conversationID, SenderID: senderID, Ciphertext: ciphertext}
	query := `
		INSERT INTO messages (conversation_id, sender_id, ciphertext)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := tx.QueryRowContext(ctx, query, conversationID, senderID, ciphertext).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func addKeyEnvelope(ctx context.Context, tx *sql.Tx, messageID, recipientID int, wrappedKey string) error {
	query := `
		INSERT INTO message_keys (message_id, recipient_id, wrapped_key)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.ExecContext(ctx, query, messageID, recipientID, wrappedKey); err != nil {
		return fmt.Errorf("insert key envelope for recipient %d: %w", recipientID, err)
	}
	return nil
}

// CreateConversation creates the conversation, makes the creator its single
// owner, and adds the other members — atomically.
func (r *Repository) CreateConversation(ctx context.Context, kind, title string, creatorID int, memberIDs []int) (*Conversation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	conv := &Conversation{Kind: kind, Title: title}
	err = tx.QueryRowContext(ctx,
		"INSERT INTO conversations (kind, title) VALUES ($1, $2) RETURNING id, created_at",
		kind, title).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO participants (conversation_id, user_id, role) VALUES ($1, $2, 'owner')",
		conv.ID, creatorID); err != nil {
		return nil, err
	}

	for _, memberID := range memberIDs {
		if memberID == creatorID {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO participants (conversation_id, user_id, role) VALUES ($1, $2, 'member')",
			conv.ID, memberID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns the conversations the user belongs to.
func (r *Repository) ListConversations(ctx context.Context, userID int) ([]Conversation, error) {
	query := `
		SELECT c.id, c.kind, COALESCE(c.title, ''), c.created_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Kind, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (r *Repository) AddParticipant(ctx context.Context, conversationID, userID int, role Role) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO participants (conversation_id, user_id, role) VALUES ($1, $2, $3)",
		conversationID, userID, role)
	return err
}

func (r *Repository) RemoveParticipant(ctx context.Context, conversationID, userID int) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM participants WHERE conversation_id = $1 AND user_id = $2",
		conversationID, userID)
	return err
}

// MessagesFor loads a conversation's history as seen by one requester: each
// message joined with the requester's own key envelope only. Messages the
// requester holds no envelope for (sent before they joined) are skipped.
// Insertion order is the single total order within a conversation.
func (r *Repository) MessagesFor(ctx context.Context, conversationID, requesterID, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.ciphertext, k.wrapped_key, m.created_at
		FROM messages m
		JOIN message_keys k ON k.message_id = m.id AND k.recipient_id = $2
		WHERE m.conversation_id = $1
		ORDER BY m.id DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, requesterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.SenderID, &e.Ciphertext, &e.WrappedKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
