package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fdg312/fitdiary/internal/storage"
	"github.com/go-playground/validator/v10"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

var ErrInvalidSeed = errors.New("invalid catalog seed")

// ObjectGetter is the part of blob.Store the seed import needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Service — поиск по каталогу, резолвинг имён и импорт сида.
type Service struct {
	storage  storage.CatalogStorage
	validate *validator.Validate
}

// NewService creates a catalog service backed by the catalog storage.
func NewService(st storage.CatalogStorage) *Service {
	return &Service{
		storage:  st,
		validate: validator.New(),
	}
}

// Resolve looks the name up by exact normalized key.
func (s *Service) Resolve(ctx context.Context, kind Kind, name string) (*Entry, bool, error) {
	key := NormalizeName(name)
	if key == "" {
		return nil, false, nil
	}

	switch kind {
	case KindFood:
		food, ok, err := s.storage.FindFoodByKey(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("failed to find food %q: %w", key, err)
		}
		if !ok {
			return nil, false, nil
		}
		return &Entry{
			ID:              food.ID,
			Kind:            KindFood,
			Name:            food.Name,
			KcalPer100g:     food.KcalPer100g,
			ProteinGPer100g: food.ProteinGPer100g,
			FatGPer100g:     food.FatGPer100g,
			CarbsGPer100g:   food.CarbsGPer100g,
		}, true, nil

	case KindExercise:
		ex, ok, err := s.storage.FindExerciseByKey(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("failed to find exercise %q: %w", key, err)
		}
		if !ok {
			return nil, false, nil
		}
		return &Entry{
			ID:          ex.ID,
			Kind:        KindExercise,
			Name:        ex.Name,
			MuscleGroup: ex.MuscleGroup,
		}, true, nil

	default:
		return nil, false, fmt.Errorf("unknown catalog kind %q", kind)
	}
}

// SearchFoods returns products whose normalized name contains query.
func (s *Service) SearchFoods(ctx context.Context, query string, limit int) ([]storage.FoodProduct, error) {
	return s.storage.SearchFoods(ctx, NormalizeName(query), clampLimit(limit))
}

// SearchExercises returns exercises whose normalized name contains query.
func (s *Service) SearchExercises(ctx context.Context, query string, limit int) ([]storage.Exercise, error) {
	return s.storage.SearchExercises(ctx, NormalizeName(query), clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

// ParseSeed decodes and validates a JSON catalog.
func (s *Service) ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if err := s.validate.Struct(&seed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return &seed, nil
}

// FetchSeed reads the seed object from blob storage and parses it.
func (s *Service) FetchSeed(ctx context.Context, getter ObjectGetter, key string) (*Seed, error) {
	data, err := getter.GetObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog seed %q: %w", key, err)
	}
	return s.ParseSeed(data)
}

// Import upserts every seed entry by normalized name. Entries whose names
// normalize to the same key collapse into the last one.
func (s *Service) Import(ctx context.Context, seed *Seed) (ImportResult, error) {
	var result ImportResult

	for _, f := range seed.Foods {
		key := NormalizeName(f.Name)
		if key == "" {
			continue
		}
		if _, err := s.storage.UpsertFood(ctx, storage.FoodProductUpsert{
			Name:            f.Name,
			NameKey:         key,
			KcalPer100g:     f.KcalPer100g,
			ProteinGPer100g: f.ProteinGPer100g,
			FatGPer100g:     f.FatGPer100g,
			CarbsGPer100g:   f.CarbsGPer100g,
		}); err != nil {
			return result, fmt.Errorf("failed to upsert food %q: %w", f.Name, err)
		}
		result.Foods++
	}

	for _, e := range seed.Exercises {
		key := NormalizeName(e.Name)
		if key == "" {
			continue
		}
		if _, err := s.storage.UpsertExercise(ctx, storage.ExerciseUpsert{
			Name:        e.Name,
			NameKey:     key,
			MuscleGroup: e.MuscleGroup,
		}); err != nil {
			return result, fmt.Errorf("failed to upsert exercise %q: %w", e.Name, err)
		}
		result.Exercises++
	}

	return result, nil
}
