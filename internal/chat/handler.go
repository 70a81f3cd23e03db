package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	myMiddleware "mentor-chat/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin policy is enforced by the gateway in front of us
	},
}

type Handler struct {
	router     *Router
	query      *Query
	directory  *Directory
	log        *log.Logger
	sendBuffer int
}

func NewHandler(router *Router, query *Query, directory *Directory, logger *log.Logger, sendBuffer int) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		router:     router,
		query:      query,
		directory:  directory,
		log:        logger,
		sendBuffer: sendBuffer,
	}
}

// ServeWs upgrades to a websocket and serves the realtime protocol until the
// peer goes away. The connection still has to join before anything else.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerParticipant(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", "err", err)
		return
	}

	conn := NewConn(caller, h.sendBuffer)
	h.log.Debug("websocket connected", "conn", conn.ID, "caller", caller.Identity)
	NewClient(h.router, ws, conn, h.log).Run(r.Context())
}

type startConversationRequest struct {
	Receiver Participant `json:"receiver"`
}

// StartConversation finds or creates the conversation between the caller
// and the receiver in the body.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	self, ok := callerParticipant(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	c, err := h.directory.GetOrCreate(r.Context(), self, req.Receiver)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListConversations lists the caller's conversations, most recent first.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	self, ok := callerParticipant(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	summaries, err := h.query.ListConversations(r.Context(), self.Identity, self.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// GetConversationMessages returns one conversation's history. Conversations
// the caller is not part of are reported as missing.
func (h *Handler) GetConversationMessages(w http.ResponseWriter, r *http.Request) {
	self, ok := callerParticipant(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	c, err := h.query.Conversation(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !c.HasParticipant(self) {
		h.writeError(w, ErrNotFound)
		return
	}
	messages, err := h.query.ListMessages(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// GetChatHistory returns the caller's history with ?with=<identity>&role=<role>
// without creating a conversation.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	self, ok := callerParticipant(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	other := Participant{
		Identity: r.URL.Query().Get("with"),
		Role:     Role(r.URL.Query().Get("role")),
	}
	messages, err := h.query.MessagesBetween(r.Context(), self, other)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.query.Ping(ctx); err != nil {
		h.log.Error("health check", "err", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validation *ValidationError
	switch {
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.log.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func callerParticipant(r *http.Request) (Participant, bool) {
	caller, ok := myMiddleware.CallerFrom(r.Context())
	if !ok {
		return Participant{}, false
	}
	return Participant{Identity: caller.Identity, Role: Role(caller.Role)}, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
