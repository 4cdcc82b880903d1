package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/apperr"
	"github.com/Daom5095/BackendChatPrivate-sub000/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	gate     *auth.Gate
	engine   *Engine
	registry *Registry
	repo     *Repository
	guard    *Guard
	log      *slog.Logger
}

func NewHandler(gate *auth.Gate, engine *Engine, registry *Registry, repo *Repository, guard *Guard, log *slog.Logger) *Handler {
	return &Handler{
		gate:     gate,
		engine:   engine,
		registry: registry,
		repo:     repo,
		guard:    guard,
		log:      log,
	}
}

// ServeWs establishes a websocket session. Authentication runs exactly once,
// here at connect; a bad or missing credential leaves the connection open
// but anonymous, and identity-requiring operations fail on their own later.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	principal, authErr := h.gate.Authenticate(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "err", err)
		return
	}

	var session *Session
	if principal != nil {
		session = &Session{
			Handle:      uuid.New(),
			Principal:   *principal,
			ConnectedAt: time.Now(),
		}
	}

	client := NewClient(conn, h.registry, h.engine, session, h.log)

	if session != nil {
		h.registry.Register(session)
		h.log.Info("session registered",
			"user_id", session.Principal.UserID,
			"session", session.Handle,
		)
	} else if authErr != nil {
		// Tell the client why it is anonymous, then keep serving it
		client.pushError(authErr)
	}

	go client.WritePump()
	go client.ReadPump()
}

// ---------------------------------------------
// REST API (behind the auth middleware)
// ---------------------------------------------

type startConversationRequest struct {
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	MemberIDs []int  `json:"member_ids"`
}

type startConversationResponse struct {
	ConversationID int `json:"conversation_id"`
}

// StartConversation creates a conversation with the caller as its owner.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Kind == "" {
		req.Kind = "direct"
	}
	if req.Kind != "direct" && req.Kind != "group" {
		http.Error(w, "kind must be 'direct' or 'group'", http.StatusBadRequest)
		return
	}
	if len(req.MemberIDs) == 0 {
		http.Error(w, "member_ids must not be empty", http.StatusBadRequest)
		return
	}
	if req.Kind == "direct" && len(req.MemberIDs) != 1 {
		http.Error(w, "a direct conversation has exactly one other member", http.StatusBadRequest)
		return
	}

	conv, err := h.repo.CreateConversation(r.Context(), req.Kind, req.Title, principal.UserID, req.MemberIDs)
	if err != nil {
		h.log.Error("create conversation failed", "err", err, "user_id", principal.UserID)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(startConversationResponse{ConversationID: conv.ID})
}

// ListConversations returns the caller's conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversations, err := h.repo.ListConversations(r.Context(), principal.UserID)
	if err != nil {
		h.log.Error("list conversations failed", "err", err, "user_id", principal.UserID)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conversations)
}

type addParticipantRequest struct {
	UserID int `json:"user_id"`
}

// AddParticipant is owner-only.
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID, err := strconv.Atoi(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	var req addParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if err := h.guard.RequireOwner(r.Context(), principal.UserID, conversationID); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.repo.AddParticipant(r.Context(), conversationID, req.UserID, RoleMember); err != nil {
		h.log.Error("add participant failed", "err", err, "conversation_id", conversationID)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveParticipant: owner may remove anyone, a member only itself.
func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID, err := strconv.Atoi(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	targetID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	if err := h.guard.CanRemove(r.Context(), principal.UserID, targetID, conversationID); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.repo.RemoveParticipant(r.Context(), conversationID, targetID); err != nil {
		h.log.Error("remove participant failed", "err", err, "conversation_id", conversationID)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetChatHistory loads the caller's view of a conversation: each message
// with the caller's own wrapped key only.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID, err := strconv.Atoi(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	if err := h.guard.RequireCanRead(r.Context(), principal.UserID, conversationID); err != nil {
		h.writeError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.repo.MessagesFor(r.Context(), conversationID, principal.UserID, limit)
	if err != nil {
		h.log.Error("load history failed", "err", err, "conversation_id", conversationID)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	http.Error(w, apperr.ClientMessage(err), apperr.HTTPStatus(kind))
}
