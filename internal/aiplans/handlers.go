package aiplans

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/fdg312/fitdiary/internal/planapply"
	"github.com/fdg312/fitdiary/internal/plannormalize"
	"github.com/fdg312/fitdiary/internal/planschema"
	"github.com/fdg312/fitdiary/internal/userctx"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type Handler struct {
	service      *Service
	maxBodyBytes int64
}

// NewHandler creates the apply handler; bodies above maxBodyKB are rejected with 413.
func NewHandler(service *Service, maxBodyKB int) *Handler {
	if maxBodyKB <= 0 {
		maxBodyKB = 256
	}
	return &Handler{service: service, maxBodyBytes: int64(maxBodyKB) * 1024}
}

// HandleApplyMealPlan handles POST /v1/ai/recommendations/mealplan/apply
func (h *Handler) HandleApplyMealPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := userctx.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	var req MealPlanApplyRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.ApplyMealPlan(r.Context(), userID, req, idempotencyKey(r))
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, statusFor(resp), resp)
}

// HandleApplyWorkout handles POST /v1/ai/recommendations/workout/apply
func (h *Handler) HandleApplyWorkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := userctx.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	var req WorkoutApplyRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.ApplyWorkout(r.Context(), userID, req, idempotencyKey(r))
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, statusFor(resp), resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body is too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "invalid_json", "Request body is empty")
		default:
			writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON")
		}
		return false
	}
	return true
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
}

func statusFor(resp *ApplyResponse) int {
	if resp.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	var (
		verr  *planschema.ValidationError
		empty *plannormalize.EmptyPlanError
		nerr  *plannormalize.NormalizationError
		aerr  *planapply.ApplyError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
			Code:    "validation_failed",
			Message: "Plan validation failed",
			Fields:  verr.Fields(),
		}})

	case errors.As(err, &empty):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorDetail{
			Code:    "empty_plan",
			Message: "Plan has no items that can be saved",
			Dropped: empty.Dropped,
			Skipped: empty.Skipped,
		}})

	case errors.As(err, &nerr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorDetail{
			Code:    nerr.Kind,
			Message: "Plan cannot be applied",
			Fields:  map[string]string{nerr.Path: nerr.Message},
		}})

	case errors.As(err, &aerr):
		switch aerr.Kind {
		case planapply.KindPartialPersistFailure:
			if aerr.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(aerr.RetryAfter.Seconds()))))
				writeError(w, http.StatusServiceUnavailable, string(aerr.Kind), "Plan was not saved, please retry later")
				return
			}
			writeError(w, http.StatusServiceUnavailable, string(aerr.Kind), "Plan was not saved, please retry")
		case planapply.KindInProgress:
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, string(aerr.Kind), "The same plan is being applied, please retry")
		default:
			writeError(w, http.StatusInternalServerError, string(aerr.Kind), "Internal server error")
		}

	case errors.Is(err, context.Canceled):
		log.Printf("INFO aiplans: request cancelled: %v", err)
		writeError(w, http.StatusServiceUnavailable, "cancelled", "Request cancelled")

	default:
		log.Printf("ERROR aiplans: apply failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
