package aiplans

import (
	"encoding/json"

	"github.com/fdg312/fitdiary/internal/planapply"
	"github.com/fdg312/fitdiary/internal/plannormalize"
)

// MealPlanApplyRequest is the body of POST /v1/ai/recommendations/mealplan/apply.
type MealPlanApplyRequest struct {
	Date     string          `json:"date,omitempty"`
	MealType string          `json:"meal_type,omitempty"`
	Plan     json.RawMessage `json:"plan"`
}

// WorkoutApplyRequest is the body of POST /v1/ai/recommendations/workout/apply.
type WorkoutApplyRequest struct {
	Date string          `json:"date,omitempty"`
	Plan json.RawMessage `json:"plan"`
}

// ApplyResponse — ответ на успешное применение (или повтор) плана
type ApplyResponse struct {
	Message         string                `json:"message"`
	Date            string                `json:"date,omitempty"`
	SessionID       string                `json:"session_id,omitempty"`
	ResolvedCount   int                   `json:"resolved_count"`
	UnresolvedCount int                   `json:"unresolved_count"`
	SkippedCount    int                   `json:"skipped_count"`
	Totals          *plannormalize.Totals `json:"totals,omitempty"`
	Replayed        bool                  `json:"replayed"`
	Receipt         *planapply.Receipt    `json:"receipt"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  map[string]string       `json:"fields,omitempty"`
	Dropped []plannormalize.Dropped `json:"dropped,omitempty"`
	Skipped []plannormalize.Skipped `json:"skipped,omitempty"`
}
