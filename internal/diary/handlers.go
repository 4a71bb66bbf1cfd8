package diary

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/fdg312/fitdiary/internal/userctx"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleListMeals handles GET /v1/diary/meals?date=YYYY-MM-DD
func (h *Handler) HandleListMeals(w http.ResponseWriter, r *http.Request) {
	userID, ok := userctx.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	resp, err := h.service.ListMeals(r.Context(), userID, r.URL.Query().Get("date"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleListSessions handles GET /v1/workouts/sessions?date=YYYY-MM-DD
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userctx.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	resp, err := h.service.ListSessions(r.Context(), userID, r.URL.Query().Get("date"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDeleteMeal handles DELETE /v1/diary/meals/{id}
func (h *Handler) HandleDeleteMeal(w http.ResponseWriter, r *http.Request) {
	userID, ok := userctx.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}

	if err := h.service.DeleteMeal(r.Context(), userID, id); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteSession handles DELETE /v1/workouts/sessions/{id}
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := userctx.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}

	if err := h.service.DeleteSession(r.Context(), userID, id); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Not found")
	default:
		log.Printf("ERROR diary: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
