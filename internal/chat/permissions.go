package chat

import (
	"context"
	"log/slog"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/apperr"
)

// ParticipantReader is the read side of the participant relation the guard
// decides against. (nil, nil) means no membership row exists for the pair.
type ParticipantReader interface {
	Participant(ctx context.Context, conversationID, userID int) (*Participant, error)
}

// Guard answers membership and role questions. Every check reads fresh state
// on every call — no caching — so membership changes take effect for the
// very next operation.
type Guard struct {
	store ParticipantReader
	log   *slog.Logger
}

func NewGuard(store ParticipantReader, log *slog.Logger) *Guard {
	return &Guard{store: store, log: log}
}

func (g *Guard) participant(ctx context.Context, userID, conversationID int) (*Participant, error) {
	p, err := g.store.Participant(ctx, conversationID, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}
	return p, nil
}

// RequireParticipant fails unless a membership row exists for the pair.
func (g *Guard) RequireParticipant(ctx context.Context, userID, conversationID int) error {
	p, err := g.participant(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if p == nil {
		g.log.Warn("authorization denied: not a participant",
			"user_id", userID, "conversation_id", conversationID)
		return apperr.New(apperr.KindAccessDenied, "not a participant of this conversation")
	}
	return nil
}

// RequireOwner fails unless the user's participant row carries the owner role.
func (g *Guard) RequireOwner(ctx context.Context, userID, conversationID int) error {
	p, err := g.participant(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if p == nil {
		g.log.Warn("authorization denied: not a participant",
			"user_id", userID, "conversation_id", conversationID)
		return apperr.New(apperr.KindAccessDenied, "not a participant of this conversation")
	}
	if p.Role != RoleOwner {
		g.log.Warn("authorization denied: owner role required",
			"user_id", userID, "conversation_id", conversationID)
		return apperr.New(apperr.KindAccessDenied, "owner role required")
	}
	return nil
}

// CanRemove decides whether requester may remove target from a conversation.
// The requester must be a participant; then an owner may remove anyone
// (including itself — the owner check deliberately takes precedence over the
// self-removal check), and any participant may remove itself (leave).
func (g *Guard) CanRemove(ctx context.Context, requesterID, targetID, conversationID int) error {
	p, err := g.participant(ctx, requesterID, conversationID)
	if err != nil {
		return err
	}
	if p == nil {
		g.log.Warn("authorization denied: not a participant",
			"user_id", requesterID, "conversation_id", conversationID)
		return apperr.New(apperr.KindAccessDenied, "not a participant of this conversation")
	}
	if p.Role == RoleOwner {
		return nil
	}
	if requesterID == targetID {
		return nil
	}
	g.log.Warn("authorization denied: cannot remove other participants",
		"user_id", requesterID, "target_id", targetID, "conversation_id", conversationID)
	return apperr.New(apperr.KindAccessDenied, "only the owner may remove other participants")
}

// RequireCanSend and RequireCanRead are participant checks today, but kept
// as distinct named operations so future policy (mute, archive) can diverge
// without touching call sites.

func (g *Guard) RequireCanSend(ctx context.Context, userID, conversationID int) error {
	return g.RequireParticipant(ctx, userID, conversationID)
}

func (g *Guard) RequireCanRead(ctx context.Context, userID, conversationID int) error {
	return g.RequireParticipant(ctx, userID, conversationID)
}
