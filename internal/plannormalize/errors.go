package plannormalize

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPlan   = errors.New("plan has nothing to persist")
	ErrInvalidPlan = errors.New("plan cannot be normalized")
)

const (
	KindInvalidDuration = "invalid_duration"
	KindInvalidMealType = "invalid_meal_type"
	KindInvalidDate     = "invalid_date"
)

// EmptyPlanError: после нормализации не осталось ни одной позиции/подхода.
type EmptyPlanError struct {
	Plan    string // mealplan | workout
	Dropped []Dropped
	Skipped []Skipped
}

func (e *EmptyPlanError) Error() string {
	return fmt.Sprintf("empty %s: %d dropped, %d skipped", e.Plan, len(e.Dropped), len(e.Skipped))
}

func (e *EmptyPlanError) Unwrap() error { return ErrEmptyPlan }

// NormalizationError rejects the whole plan because of one field.
type NormalizationError struct {
	Kind    string
	Path    string
	Message string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Kind, e.Path, e.Message)
}

func (e *NormalizationError) Unwrap() error { return ErrInvalidPlan }
