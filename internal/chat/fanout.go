package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/apperr"
)

// Store is the persistence boundary the engine writes through. SaveMessage
// must be all-or-nothing: the message row and every key envelope commit
// together or not at all.
type Store interface {
	Participants(ctx context.Context, conversationID int) ([]Participant, error)
	SaveMessage(ctx context.Context, conversationID, senderID int, ciphertext string, wrappedKeys map[int]string) (*Message, error)
}

// Relay forwards one recipient's delivery frame to other process instances.
// May be nil for single-instance deployments and in tests.
type Relay interface {
	Publish(ctx context.Context, recipientID int, frame DeliveryFrame) error
}

// Engine orchestrates a send: authorize the sender, validate the payload,
// persist atomically, then push to each recipient's live sessions.
type Engine struct {
	guard    *Guard
	store    Store
	registry *Registry
	relay    Relay
	validate *validator.Validate
	log      *slog.Logger
}

func NewEngine(guard *Guard, store Store, registry *Registry, relay Relay, log *slog.Logger) *Engine {
	return &Engine{
		guard:    guard,
		store:    store,
		registry: registry,
		relay:    relay,
		validate: validator.New(),
		log:      log,
	}
}

// SendRequest is one send operation as submitted by an authenticated sender.
type SendRequest struct {
	ConversationID int            `validate:"required,gt=0"`
	Ciphertext     string         `validate:"required"`
	WrappedKeys    map[int]string `validate:"required"`
}

// SendMessage runs the fan-out algorithm. Each step's failure aborts all
// later steps and leaves no partial state behind.
func (e *Engine) SendMessage(ctx context.Context, senderID int, req SendRequest) (*Message, error) {
	// 1. Authorize the sender. A non-participant is rejected before any
	// persistence or network I/O happens on their behalf.
	if err := e.guard.RequireCanSend(ctx, senderID, req.ConversationID); err != nil {
		return nil, err
	}

	// 2. Validate the payload shape. A message with zero deliverable
	// recipients is meaningless.
	if err := e.validate.Struct(req); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, "malformed send request", err)
	}
	if len(req.WrappedKeys) == 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "wrapped_keys must not be empty")
	}

	// 3. Filter recipients against current membership. Entries for
	// non-participants are dropped silently: the sender's key map may
	// legitimately lag a membership change, and the valid recipients
	// should still get the message. Dropping also stops a stale or
	// malicious client from leaking a key envelope to an outsider.
	participants, err := e.store.Participants(ctx, req.ConversationID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}
	members := lo.SliceToMap(participants, func(p Participant) (int, struct{}) {
		return p.UserID, struct{}{}
	})
	surviving := lo.PickBy(req.WrappedKeys, func(recipientID int, _ string) bool {
		_, ok := members[recipientID]
		return ok
	})
	if dropped := len(req.WrappedKeys) - len(surviving); dropped > 0 {
		e.log.Warn("dropped key envelopes for non-participants",
			"conversation_id", req.ConversationID,
			"sender_id", senderID,
			"dropped", dropped,
		)
	}
	if len(surviving) == 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "no valid recipients")
	}

	// 4. Persist message + envelopes in one transaction.
	msg, err := e.store.SaveMessage(ctx, req.ConversationID, senderID, req.Ciphertext, surviving)
	if err != nil {
		e.log.Error("message persistence failed",
			"conversation_id", req.ConversationID,
			"sender_id", senderID,
			"err", err,
		)
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}

	// 5. Deliver to each surviving recipient's live sessions. Only the
	// already-committed message is read here, so no extra locking: a
	// session that vanishes mid-fan-out misses the push and catches up
	// via history.
	e.deliver(ctx, msg, surviving)

	return msg, nil
}

// deliver pushes one per-recipient frame to every live session of each
// recipient, locally and via the relay for sessions on other instances.
// A recipient's wrapped key is never part of another recipient's frame.
func (e *Engine) deliver(ctx context.Context, msg *Message, wrappedKeys map[int]string) {
	for recipientID, wrappedKey := range wrappedKeys {
		frame := DeliveryFrame{
			Type:           FrameMessage,
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Ciphertext:     msg.Ciphertext,
			WrappedKey:     wrappedKey,
			CreatedAt:      msg.CreatedAt,
		}

		payload, err := json.Marshal(frame)
		if err != nil {
			e.log.Error("marshal delivery frame", "err", err)
			continue
		}

		// No live session is not an error: the recipient retrieves the
		// message later through history.
		for _, session := range e.registry.SessionsFor(recipientID) {
			if !session.Sink.Push(payload) {
				e.log.Warn("session backed up, dropping push",
					"recipient_id", recipientID,
					"session", session.Handle,
				)
			}
		}

		if e.relay != nil {
			if err := e.relay.Publish(ctx, recipientID, frame); err != nil {
				e.log.Error("relay publish failed",
					"recipient_id", recipientID,
					"message_id", msg.ID,
					"err", err,
				)
			}
		}
	}
}
