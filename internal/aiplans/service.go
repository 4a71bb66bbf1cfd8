package aiplans

import (
	"context"
	"time"

	"github.com/fdg312/fitdiary/internal/planapply"
	"github.com/fdg312/fitdiary/internal/plannormalize"
	"github.com/fdg312/fitdiary/internal/planschema"
	"github.com/fdg312/fitdiary/internal/storage"
)

// Service runs a plan through validation, normalization and apply.
type Service struct {
	normalizer *plannormalize.Normalizer
	engine     *planapply.Engine
}

// NewService creates the intake service.
func NewService(normalizer *plannormalize.Normalizer, engine *planapply.Engine) *Service {
	return &Service{normalizer: normalizer, engine: engine}
}

// ApplyMealPlan validates, normalizes and persists a meal plan for userID.
// idempotencyKey is the raw Idempotency-Key header, empty when absent.
func (s *Service) ApplyMealPlan(ctx context.Context, userID string, req MealPlanApplyRequest, idempotencyKey string) (*ApplyResponse, error) {
	if err := checkEnvelope(req.Date, req.MealType, req.Plan); err != nil {
		return nil, err
	}

	doc, err := planschema.Validate(req.Plan, planschema.KindMealPlan)
	if err != nil {
		return nil, err
	}

	plan, err := s.normalizer.NormalizeMealPlan(ctx, doc.MealPlan, plannormalize.Context{
		Date:     req.Date,
		MealType: req.MealType,
		UserID:   userID,
	})
	if err != nil {
		return nil, err
	}

	receipt, err := s.engine.ApplyMealPlan(ctx, plan, scopedKey(userID, storage.BatchKindMealPlan, idempotencyKey))
	if err != nil {
		return nil, err
	}

	message := "Meal plan applied"
	if receipt.Replayed {
		message = "Meal plan already applied"
	}
	return &ApplyResponse{
		Message:         message,
		Date:            receipt.Date,
		ResolvedCount:   receipt.ResolvedCount,
		UnresolvedCount: receipt.UnresolvedCount,
		SkippedCount:    receipt.SkippedCount,
		Totals:          receipt.Totals,
		Replayed:        receipt.Replayed,
		Receipt:         receipt,
	}, nil
}

// ApplyWorkout validates, normalizes and persists a workout plan for userID.
func (s *Service) ApplyWorkout(ctx context.Context, userID string, req WorkoutApplyRequest, idempotencyKey string) (*ApplyResponse, error) {
	if err := checkEnvelope(req.Date, "", req.Plan); err != nil {
		return nil, err
	}

	doc, err := planschema.Validate(req.Plan, planschema.KindWorkout)
	if err != nil {
		return nil, err
	}

	session, err := s.normalizer.NormalizeWorkout(ctx, doc.Workout, plannormalize.Context{
		Date:   req.Date,
		UserID: userID,
	})
	if err != nil {
		return nil, err
	}

	receipt, err := s.engine.ApplyWorkout(ctx, session, scopedKey(userID, storage.BatchKindWorkout, idempotencyKey))
	if err != nil {
		return nil, err
	}

	message := "Workout applied"
	if receipt.Replayed {
		message = "Workout already applied"
	}
	resp := &ApplyResponse{
		Message:       message,
		Date:          receipt.Date,
		ResolvedCount: receipt.ResolvedCount,
		SkippedCount:  receipt.SkippedCount,
		Replayed:      receipt.Replayed,
		Receipt:       receipt,
	}
	if len(receipt.ParentIDs) > 0 {
		resp.SessionID = receipt.ParentIDs[0]
	}
	return resp, nil
}

func scopedKey(userID, kind, header string) string {
	if header == "" {
		return ""
	}
	return planapply.ScopedKey(userID, kind, header)
}

// checkEnvelope validates the request fields around the plan document.
func checkEnvelope(date, mealType string, plan []byte) error {
	var fields []planschema.FieldError
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			fields = append(fields, planschema.FieldError{Path: "date", Message: "must be a date in YYYY-MM-DD format"})
		}
	}
	if mealType != "" && !plannormalize.ValidMealType(mealType) {
		fields = append(fields, planschema.FieldError{Path: "meal_type", Message: "must be one of breakfast, lunch, dinner, snack"})
	}
	if len(plan) == 0 || string(plan) == "null" {
		fields = append(fields, planschema.FieldError{Path: "plan", Message: "is required"})
	}
	if len(fields) > 0 {
		return &planschema.ValidationError{Errors: fields}
	}
	return nil
}
