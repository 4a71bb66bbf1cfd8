package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/fdg312/fitdiary/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var foodColumns = []string{
	"id::text", "name", "name_key", "kcal_per_100g", "protein_g_per_100g",
	"fat_g_per_100g", "carbs_g_per_100g", "created_at", "updated_at",
}

var exerciseColumns = []string{
	"id::text", "name", "name_key", "muscle_group", "created_at", "updated_at",
}

type catalogStorage struct {
	db DB
}

func newCatalogStorage(db DB) *catalogStorage {
	return &catalogStorage{db: db}
}

func scanFood(row pgx.Row) (storage.FoodProduct, error) {
	var f storage.FoodProduct
	err := row.Scan(
		&f.ID,
		&f.Name,
		&f.NameKey,
		&f.KcalPer100g,
		&f.ProteinGPer100g,
		&f.FatGPer100g,
		&f.CarbsGPer100g,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	return f, err
}

func scanExercise(row pgx.Row) (storage.Exercise, error) {
	var e storage.Exercise
	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.NameKey,
		&e.MuscleGroup,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}

func (s *catalogStorage) FindFoodByKey(ctx context.Context, nameKey string) (storage.FoodProduct, bool, error) {
	query, args, err := psql.Select(foodColumns...).
		From("food_products").
		Where(squirrel.Eq{"name_key": nameKey}).
		ToSql()
	if err != nil {
		return storage.FoodProduct{}, false, fmt.Errorf("build food lookup: %w", err)
	}

	food, err := scanFood(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.FoodProduct{}, false, nil
	}
	if err != nil {
		return storage.FoodProduct{}, false, fmt.Errorf("failed to find food: %w", err)
	}
	return food, true, nil
}

func (s *catalogStorage) FindExerciseByKey(ctx context.Context, nameKey string) (storage.Exercise, bool, error) {
	query, args, err := psql.Select(exerciseColumns...).
		From("exercises").
		Where(squirrel.Eq{"name_key": nameKey}).
		ToSql()
	if err != nil {
		return storage.Exercise{}, false, fmt.Errorf("build exercise lookup: %w", err)
	}

	ex, err := scanExercise(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Exercise{}, false, nil
	}
	if err != nil {
		return storage.Exercise{}, false, fmt.Errorf("failed to find exercise: %w", err)
	}
	return ex, true, nil
}

func (s *catalogStorage) SearchFoods(ctx context.Context, query string, limit int) ([]storage.FoodProduct, error) {
	q := psql.Select(foodColumns...).From("food_products").OrderBy("name_key")
	if query != "" {
		q = q.Where(squirrel.Like{"name_key": likePattern(query)})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build food search: %w", err)
	}

	rows, err := s.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search foods: %w", err)
	}
	defer rows.Close()

	foods := []storage.FoodProduct{}
	for rows.Next() {
		food, err := scanFood(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		foods = append(foods, food)
	}
	return foods, rows.Err()
}

func (s *catalogStorage) SearchExercises(ctx context.Context, query string, limit int) ([]storage.Exercise, error) {
	q := psql.Select(exerciseColumns...).From("exercises").OrderBy("name_key")
	if query != "" {
		q = q.Where(squirrel.Like{"name_key": likePattern(query)})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build exercise search: %w", err)
	}

	rows, err := s.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search exercises: %w", err)
	}
	defer rows.Close()

	exercises := []storage.Exercise{}
	for rows.Next() {
		ex, err := scanExercise(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exercise: %w", err)
		}
		exercises = append(exercises, ex)
	}
	return exercises, rows.Err()
}

func (s *catalogStorage) UpsertFood(ctx context.Context, req storage.FoodProductUpsert) (storage.FoodProduct, error) {
	query := `
		INSERT INTO food_products (id, name, name_key, kcal_per_100g, protein_g_per_100g, fat_g_per_100g, carbs_g_per_100g)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name_key) DO UPDATE SET
			name = EXCLUDED.name,
			kcal_per_100g = EXCLUDED.kcal_per_100g,
			protein_g_per_100g = EXCLUDED.protein_g_per_100g,
			fat_g_per_100g = EXCLUDED.fat_g_per_100g,
			carbs_g_per_100g = EXCLUDED.carbs_g_per_100g,
			updated_at = now()
		RETURNING ` + strings.Join(foodColumns, ", ")

	food, err := scanFood(s.db.QueryRow(ctx, query,
		uuid.New().String(),
		req.Name,
		req.NameKey,
		req.KcalPer100g,
		req.ProteinGPer100g,
		req.FatGPer100g,
		req.CarbsGPer100g,
	))
	if err != nil {
		return storage.FoodProduct{}, fmt.Errorf("failed to upsert food: %w", err)
	}
	return food, nil
}

func (s *catalogStorage) UpsertExercise(ctx context.Context, req storage.ExerciseUpsert) (storage.Exercise, error) {
	query := `
		INSERT INTO exercises (id, name, name_key, muscle_group)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name_key) DO UPDATE SET
			name = EXCLUDED.name,
			muscle_group = EXCLUDED.muscle_group,
			updated_at = now()
		RETURNING ` + strings.Join(exerciseColumns, ", ")

	ex, err := scanExercise(s.db.QueryRow(ctx, query,
		uuid.New().String(),
		req.Name,
		req.NameKey,
		req.MuscleGroup,
	))
	if err != nil {
		return storage.Exercise{}, fmt.Errorf("failed to upsert exercise: %w", err)
	}
	return ex, nil
}

// likePattern escapes LIKE wildcards in a user query.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}
