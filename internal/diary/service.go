package diary

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fdg312/fitdiary/internal/storage"
)

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrNotFound    = errors.New("not found")
)

// Service reads and deletes persisted diary records.
type Service struct {
	storage storage.DiaryStorage
}

func NewService(st storage.DiaryStorage) *Service {
	return &Service{storage: st}
}

func (s *Service) ListMeals(ctx context.Context, ownerUserID, date string) (*ListMealsResponse, error) {
	date, err := parseDate(date)
	if err != nil {
		return nil, err
	}

	meals, err := s.storage.ListMeals(ctx, ownerUserID, date)
	if err != nil {
		return nil, err
	}

	resp := &ListMealsResponse{Date: date, Meals: make([]MealDTO, 0, len(meals))}
	for _, m := range meals {
		resp.Meals = append(resp.Meals, toMealDTO(m))
	}
	return resp, nil
}

func (s *Service) ListSessions(ctx context.Context, ownerUserID, date string) (*ListSessionsResponse, error) {
	date, err := parseDate(date)
	if err != nil {
		return nil, err
	}

	sessions, err := s.storage.ListWorkoutSessions(ctx, ownerUserID, date)
	if err != nil {
		return nil, err
	}

	resp := &ListSessionsResponse{Date: date, Sessions: make([]WorkoutSessionDTO, 0, len(sessions))}
	for _, ws := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionDTO(ws))
	}
	return resp, nil
}

func (s *Service) DeleteMeal(ctx context.Context, ownerUserID, id string) error {
	if err := s.storage.DeleteMeal(ctx, ownerUserID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Service) DeleteSession(ctx context.Context, ownerUserID, id string) error {
	if err := s.storage.DeleteWorkoutSession(ctx, ownerUserID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// parseDate: пустая дата означает все дни
func parseDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse("2006-01-02", raw); err != nil {
		return "", ErrInvalidDate
	}
	return raw, nil
}

func toMealDTO(m storage.DiaryMeal) MealDTO {
	items := make([]MealItemDTO, len(m.Items))
	for i, it := range m.Items {
		items[i] = MealItemDTO{
			ID:         it.ID,
			Position:   it.Position,
			ProductID:  it.ProductID,
			Name:       it.Name,
			Unresolved: it.Unresolved,
			QuantityG:  it.QuantityG,
			Calories:   it.Calories,
			Protein:    it.Protein,
			Fats:       it.Fats,
			Carbs:      it.Carbs,
		}
	}
	return MealDTO{
		ID:            m.ID,
		MealDate:      m.MealDate,
		MealType:      m.MealType,
		Title:         m.Title,
		TotalCalories: m.TotalCalories,
		TotalProtein:  m.TotalProtein,
		TotalFats:     m.TotalFats,
		TotalCarbs:    m.TotalCarbs,
		Items:         items,
		CreatedAt:     m.CreatedAt,
	}
}

func toSessionDTO(ws storage.WorkoutSession) WorkoutSessionDTO {
	sets := make([]WorkoutSetDTO, len(ws.Sets))
	for i, s := range ws.Sets {
		sets[i] = WorkoutSetDTO{
			ID:           s.ID,
			SetNumber:    s.SetNumber,
			ExerciseID:   s.ExerciseID,
			ExerciseName: s.ExerciseName,
			Reps:         s.Reps,
			WeightKg:     s.WeightKg,
		}
	}
	return WorkoutSessionDTO{
		ID:          ws.ID,
		SessionDate: ws.SessionDate,
		Notes:       ws.Notes,
		DurationMin: ws.DurationMin,
		Sets:        sets,
		CreatedAt:   ws.CreatedAt,
	}
}
