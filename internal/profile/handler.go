package profile

import (
	"encoding/json"
	"errors"
	"net/http"

	"mentor-chat/internal/chat"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

// Search answers GET /api/profiles/search?q=<name>&role=<role>, used to find
// someone to start a conversation with.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := h.Service.Search(r.Context(), q.Get("q"), chat.Role(q.Get("role")))
	if err != nil {
		var validation *chat.ValidationError
		if errors.As(err, &validation) {
			http.Error(w, validation.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}
