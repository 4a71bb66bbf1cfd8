package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/fdg312/fitdiary/internal/storage"
	"github.com/google/uuid"
)

type diaryStorage struct {
	db DB
}

func newDiaryStorage(db DB) *diaryStorage {
	return &diaryStorage{db: db}
}

func (s *diaryStorage) CreateMealBatch(ctx context.Context, meal storage.DiaryMeal) (storage.DiaryMeal, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return storage.DiaryMeal{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	meal.ID = uuid.New().String()

	mealQuery := `
		INSERT INTO diary_meals (id, owner_user_id, batch_key, meal_date, meal_type, title,
		                         total_calories, total_protein, total_fats, total_carbs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, mealQuery,
		meal.ID,
		meal.OwnerUserID,
		meal.BatchKey,
		meal.MealDate,
		meal.MealType,
		meal.Title,
		meal.TotalCalories,
		meal.TotalProtein,
		meal.TotalFats,
		meal.TotalCarbs,
	).Scan(&meal.CreatedAt)
	if err != nil {
		return storage.DiaryMeal{}, fmt.Errorf("failed to insert diary meal: %w", err)
	}

	items := make([]storage.DiaryMealItem, len(meal.Items))
	copy(items, meal.Items)

	if len(items) > 0 {
		insert := psql.Insert("diary_meal_items").Columns(
			"id", "meal_id", "position", "product_id", "name", "unresolved",
			"quantity_g", "calories", "protein", "fats", "carbs",
		)
		for i := range items {
			items[i].ID = uuid.New().String()
			items[i].MealID = meal.ID
			it := items[i]
			insert = insert.Values(
				it.ID, it.MealID, it.Position, it.ProductID, it.Name, it.Unresolved,
				it.QuantityG, it.Calories, it.Protein, it.Fats, it.Carbs,
			)
		}

		sqlStr, args, err := insert.ToSql()
		if err != nil {
			return storage.DiaryMeal{}, fmt.Errorf("build meal items insert: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
			return storage.DiaryMeal{}, fmt.Errorf("failed to insert diary meal items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.DiaryMeal{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	meal.Items = items
	return meal, nil
}

func (s *diaryStorage) CreateWorkoutSession(ctx context.Context, session storage.WorkoutSession) (storage.WorkoutSession, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return storage.WorkoutSession{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	session.ID = uuid.New().String()

	sessionQuery := `
		INSERT INTO workout_sessions (id, owner_user_id, batch_key, session_date, notes, duration_min)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, sessionQuery,
		session.ID,
		session.OwnerUserID,
		session.BatchKey,
		session.SessionDate,
		session.Notes,
		session.DurationMin,
	).Scan(&session.CreatedAt)
	if err != nil {
		return storage.WorkoutSession{}, fmt.Errorf("failed to insert workout session: %w", err)
	}

	sets := make([]storage.WorkoutSet, len(session.Sets))
	copy(sets, session.Sets)

	if len(sets) > 0 {
		insert := psql.Insert("workout_sets").Columns(
			"id", "session_id", "set_number", "exercise_id", "exercise_name", "reps", "weight_kg",
		)
		for i := range sets {
			sets[i].ID = uuid.New().String()
			sets[i].SessionID = session.ID
			st := sets[i]
			insert = insert.Values(st.ID, st.SessionID, st.SetNumber, st.ExerciseID, st.ExerciseName, st.Reps, st.WeightKg)
		}

		sqlStr, args, err := insert.ToSql()
		if err != nil {
			return storage.WorkoutSession{}, fmt.Errorf("build workout sets insert: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
			return storage.WorkoutSession{}, fmt.Errorf("failed to insert workout sets: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.WorkoutSession{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	session.Sets = sets
	return session, nil
}

func (s *diaryStorage) DeleteMeal(ctx context.Context, ownerUserID string, id string) error {
	// diary_meal_items удаляются каскадом
	result, err := s.db.Exec(ctx, `DELETE FROM diary_meals WHERE id = $1 AND owner_user_id = $2`, id, ownerUserID)
	if err != nil {
		return fmt.Errorf("failed to delete diary meal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *diaryStorage) DeleteWorkoutSession(ctx context.Context, ownerUserID string, id string) error {
	result, err := s.db.Exec(ctx, `DELETE FROM workout_sessions WHERE id = $1 AND owner_user_id = $2`, id, ownerUserID)
	if err != nil {
		return fmt.Errorf("failed to delete workout session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *diaryStorage) ListMeals(ctx context.Context, ownerUserID string, date string) ([]storage.DiaryMeal, error) {
	q := psql.Select(
		"id::text", "owner_user_id", "batch_key", "meal_date::text", "meal_type", "title",
		"total_calories", "total_protein", "total_fats", "total_carbs", "created_at",
	).From("diary_meals").
		Where(squirrel.Eq{"owner_user_id": ownerUserID}).
		OrderBy("created_at", "id")
	if date != "" {
		q = q.Where(squirrel.Eq{"meal_date": date})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build meals query: %w", err)
	}

	rows, err := s.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list diary meals: %w", err)
	}
	defer rows.Close()

	meals := []storage.DiaryMeal{}
	index := map[string]int{}
	var ids []string
	for rows.Next() {
		var m storage.DiaryMeal
		err := rows.Scan(
			&m.ID,
			&m.OwnerUserID,
			&m.BatchKey,
			&m.MealDate,
			&m.MealType,
			&m.Title,
			&m.TotalCalories,
			&m.TotalProtein,
			&m.TotalFats,
			&m.TotalCarbs,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diary meal: %w", err)
		}
		m.Items = []storage.DiaryMealItem{}
		index[m.ID] = len(meals)
		ids = append(ids, m.ID)
		meals = append(meals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diary meals: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return meals, nil
	}

	itemsSQL, itemsArgs, err := psql.Select(
		"id::text", "meal_id::text", "position", "product_id::text", "name", "unresolved",
		"quantity_g", "calories", "protein", "fats", "carbs",
	).From("diary_meal_items").
		Where(squirrel.Eq{"meal_id": ids}).
		OrderBy("meal_id", "position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build meal items query: %w", err)
	}

	itemRows, err := s.db.Query(ctx, itemsSQL, itemsArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list diary meal items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it storage.DiaryMealItem
		err := itemRows.Scan(
			&it.ID,
			&it.MealID,
			&it.Position,
			&it.ProductID,
			&it.Name,
			&it.Unresolved,
			&it.QuantityG,
			&it.Calories,
			&it.Protein,
			&it.Fats,
			&it.Carbs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diary meal item: %w", err)
		}
		if i, ok := index[it.MealID]; ok {
			meals[i].Items = append(meals[i].Items, it)
		}
	}
	return meals, itemRows.Err()
}

func (s *diaryStorage) ListWorkoutSessions(ctx context.Context, ownerUserID string, date string) ([]storage.WorkoutSession, error) {
	q := psql.Select(
		"id::text", "owner_user_id", "batch_key", "session_date::text", "notes", "duration_min", "created_at",
	).From("workout_sessions").
		Where(squirrel.Eq{"owner_user_id": ownerUserID}).
		OrderBy("created_at", "id")
	if date != "" {
		q = q.Where(squirrel.Eq{"session_date": date})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sessions query: %w", err)
	}

	rows, err := s.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workout sessions: %w", err)
	}
	defer rows.Close()

	sessions := []storage.WorkoutSession{}
	index := map[string]int{}
	var ids []string
	for rows.Next() {
		var ws storage.WorkoutSession
		err := rows.Scan(
			&ws.ID,
			&ws.OwnerUserID,
			&ws.BatchKey,
			&ws.SessionDate,
			&ws.Notes,
			&ws.DurationMin,
			&ws.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workout session: %w", err)
		}
		ws.Sets = []storage.WorkoutSet{}
		index[ws.ID] = len(sessions)
		ids = append(ids, ws.ID)
		sessions = append(sessions, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workout sessions: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return sessions, nil
	}

	setsSQL, setsArgs, err := psql.Select(
		"id::text", "session_id::text", "set_number", "exercise_id::text", "exercise_name", "reps", "weight_kg",
	).From("workout_sets").
		Where(squirrel.Eq{"session_id": ids}).
		OrderBy("session_id", "set_number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build workout sets query: %w", err)
	}

	setRows, err := s.db.Query(ctx, setsSQL, setsArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workout sets: %w", err)
	}
	defer setRows.Close()

	for setRows.Next() {
		var st storage.WorkoutSet
		err := setRows.Scan(
			&st.ID,
			&st.SessionID,
			&st.SetNumber,
			&st.ExerciseID,
			&st.ExerciseName,
			&st.Reps,
			&st.WeightKg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workout set: %w", err)
		}
		if i, ok := index[st.SessionID]; ok {
			sessions[i].Sets = append(sessions[i].Sets, st)
		}
	}
	return sessions, setRows.Err()
}
