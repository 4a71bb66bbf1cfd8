package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fdg312/fitdiary/internal/storage"
	"github.com/google/uuid"
)

type catalogStorage struct {
	mu        sync.RWMutex
	foods     map[string]*storage.FoodProduct // key: name_key
	exercises map[string]*storage.Exercise    // key: name_key
}

func newCatalogStorage() *catalogStorage {
	return &catalogStorage{
		foods:     make(map[string]*storage.FoodProduct),
		exercises: make(map[string]*storage.Exercise),
	}
}

func (s *catalogStorage) FindFoodByKey(ctx context.Context, nameKey string) (storage.FoodProduct, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.FoodProduct{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	food, ok := s.foods[nameKey]
	if !ok {
		return storage.FoodProduct{}, false, nil
	}
	return *food, true, nil
}

func (s *catalogStorage) FindExerciseByKey(ctx context.Context, nameKey string) (storage.Exercise, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.Exercise{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, ok := s.exercises[nameKey]
	if !ok {
		return storage.Exercise{}, false, nil
	}
	return *ex, true, nil
}

func (s *catalogStorage) SearchFoods(ctx context.Context, query string, limit int) ([]storage.FoodProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []storage.FoodProduct{}
	for key, food := range s.foods {
		if query == "" || strings.Contains(key, query) {
			results = append(results, *food)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].NameKey < results[j].NameKey })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *catalogStorage) SearchExercises(ctx context.Context, query string, limit int) ([]storage.Exercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []storage.Exercise{}
	for key, ex := range s.exercises {
		if query == "" || strings.Contains(key, query) {
			results = append(results, *ex)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].NameKey < results[j].NameKey })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *catalogStorage) UpsertFood(ctx context.Context, req storage.FoodProductUpsert) (storage.FoodProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	if existing, ok := s.foods[req.NameKey]; ok {
		existing.Name = req.Name
		existing.KcalPer100g = req.KcalPer100g
		existing.ProteinGPer100g = req.ProteinGPer100g
		existing.FatGPer100g = req.FatGPer100g
		existing.CarbsGPer100g = req.CarbsGPer100g
		existing.UpdatedAt = now
		return *existing, nil
	}

	food := &storage.FoodProduct{
		ID:              uuid.New().String(),
		Name:            req.Name,
		NameKey:         req.NameKey,
		KcalPer100g:     req.KcalPer100g,
		ProteinGPer100g: req.ProteinGPer100g,
		FatGPer100g:     req.FatGPer100g,
		CarbsGPer100g:   req.CarbsGPer100g,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.foods[req.NameKey] = food
	return *food, nil
}

func (s *catalogStorage) UpsertExercise(ctx context.Context, req storage.ExerciseUpsert) (storage.Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	if existing, ok := s.exercises[req.NameKey]; ok {
		existing.Name = req.Name
		existing.MuscleGroup = req.MuscleGroup
		existing.UpdatedAt = now
		return *existing, nil
	}

	ex := &storage.Exercise{
		ID:          uuid.New().String(),
		Name:        req.Name,
		NameKey:     req.NameKey,
		MuscleGroup: req.MuscleGroup,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.exercises[req.NameKey] = ex
	return *ex, nil
}
