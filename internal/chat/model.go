package chat

import "time"

// ---------------------------------------------
// Database & API Models
// ---------------------------------------------

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

type Conversation struct {
	ID        int       `json:"id"`
	Kind      string    `json:"kind"` // 'direct' or 'group'
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Participant is the sole source of truth for authorization: a user may
// touch a conversation if and only if a row exists for the pair.
type Participant struct {
	ConversationID int       `json:"conversation_id"`
	UserID         int       `json:"user_id"`
	Role           Role      `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Message holds opaque ciphertext; the server never sees plaintext.
// Immutable once created.
type Message struct {
	ID             int       `json:"id"`
	ConversationID int       `json:"conversation_id"`
	SenderID       int       `json:"sender_id"`
	Ciphertext     string    `json:"ciphertext"`
	CreatedAt      time.Time `json:"created_at"`
}

// KeyEnvelope is the message's symmetric key wrapped for one recipient.
// Unique per (message, recipient).
type KeyEnvelope struct {
	ID          int    `json:"id"`
	MessageID   int    `json:"message_id"`
	RecipientID int    `json:"recipient_id"`
	WrappedKey  string `json:"wrapped_key"`
}

// HistoryEntry is one message as seen by one requester: the ciphertext plus
// only that requester's wrapped key, never anyone else's.
type HistoryEntry struct {
	ID             int       `json:"id"`
	ConversationID int       `json:"conversation_id"`
	SenderID       int       `json:"sender_id"`
	Ciphertext     string    `json:"ciphertext"`
	WrappedKey     string    `json:"wrapped_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// ---------------------------------------------
// Websocket wire frames
// ---------------------------------------------

const (
	FrameSend    = "send"
	FrameMessage = "message"
	FrameAck     = "ack"
	FrameError   = "error"
)

// SendFrame is what the frontend SENDS to us: the ciphertext encrypted once,
// plus the symmetric key wrapped separately for every intended recipient.
type SendFrame struct {
	Type           string         `json:"type"`
	ConversationID int            `json:"conversation_id" validate:"required,gt=0"`
	Ciphertext     string         `json:"ciphertext" validate:"required"`
	WrappedKeys    map[int]string `json:"wrapped_keys"`
}

// DeliveryFrame is pushed to exactly one recipient's sessions. It carries
// that recipient's single wrapped key; another recipient's key is never
// included (strict per-recipient payload isolation).
type DeliveryFrame struct {
	Type           string    `json:"type"`
	MessageID      int       `json:"message_id"`
	ConversationID int       `json:"conversation_id"`
	SenderID       int       `json:"sender_id"`
	Ciphertext     string    `json:"ciphertext"`
	WrappedKey     string    `json:"wrapped_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// AckFrame confirms a send back to its author.
type AckFrame struct {
	Type           string `json:"type"`
	MessageID      int    `json:"message_id"`
	ConversationID int    `json:"conversation_id"`
}

// ErrorFrame reports a failure to the session that caused it.
type ErrorFrame struct {
	Type      string    `json:"type"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
