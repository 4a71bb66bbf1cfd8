package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrBatchNotOwned = errors.New("batch is not pending or claimed by another call")
)

// Storage — корневой интерфейс хранилища (Memory или Postgres)
type Storage interface {
	GetCatalogStorage() CatalogStorage
	GetDiaryStorage() DiaryStorage
	GetBatchesStorage() BatchesStorage

	// Close закрывает соединение (для Postgres)
	Close() error
}

// ---------- Catalog ----------

// FoodProduct — продукт каталога, макросы на 100 г
type FoodProduct struct {
	ID              string
	Name            string
	NameKey         string // normalized name, unique
	KcalPer100g     float64
	ProteinGPer100g float64
	FatGPer100g     float64
	CarbsGPer100g   float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type FoodProductUpsert struct {
	Name            string
	NameKey         string
	KcalPer100g     float64
	ProteinGPer100g float64
	FatGPer100g     float64
	CarbsGPer100g   float64
}

// Exercise — упражнение каталога
type Exercise struct {
	ID          string
	Name        string
	NameKey     string
	MuscleGroup string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ExerciseUpsert struct {
	Name        string
	NameKey     string
	MuscleGroup string
}

// CatalogStorage — lookup и импорт каталога продуктов и упражнений
type CatalogStorage interface {
	// FindFoodByKey returns the product with the exact normalized name
	FindFoodByKey(ctx context.Context, nameKey string) (FoodProduct, bool, error)
	// FindExerciseByKey returns the exercise with the exact normalized name
	FindExerciseByKey(ctx context.Context, nameKey string) (Exercise, bool, error)
	// SearchFoods matches query as a substring of the normalized name
	SearchFoods(ctx context.Context, query string, limit int) ([]FoodProduct, error)
	SearchExercises(ctx context.Context, query string, limit int) ([]Exercise, error)
	// UpsertFood creates or updates by NameKey
	UpsertFood(ctx context.Context, req FoodProductUpsert) (FoodProduct, error)
	UpsertExercise(ctx context.Context, req ExerciseUpsert) (Exercise, error)
}

// ---------- Diary ----------

// DiaryMeal — запись дневника питания с позициями
type DiaryMeal struct {
	ID            string
	OwnerUserID   string
	BatchKey      string
	MealDate      string // YYYY-MM-DD
	MealType      string // breakfast|lunch|dinner|snack
	Title         string
	TotalCalories float64
	TotalProtein  float64
	TotalFats     float64
	TotalCarbs    float64
	Items         []DiaryMealItem
	CreatedAt     time.Time
}

type DiaryMealItem struct {
	ID         string
	MealID     string
	Position   int
	ProductID  *string
	Name       string
	Unresolved bool
	QuantityG  float64
	Calories   float64
	Protein    float64
	Fats       float64
	Carbs      float64
}

// WorkoutSession — выполненная тренировка с подходами
type WorkoutSession struct {
	ID          string
	OwnerUserID string
	BatchKey    string
	SessionDate string // YYYY-MM-DD
	Notes       string
	DurationMin *int
	Sets        []WorkoutSet
	CreatedAt   time.Time
}

type WorkoutSet struct {
	ID           string
	SessionID    string
	SetNumber    int
	ExerciseID   string
	ExerciseName string
	Reps         *int
	WeightKg     *float64
}

// DiaryStorage — записи дневника питания и тренировок
type DiaryStorage interface {
	// CreateMealBatch creates one meal with all its items atomically and returns it with IDs
	CreateMealBatch(ctx context.Context, meal DiaryMeal) (DiaryMeal, error)
	// CreateWorkoutSession creates one session with all its sets atomically
	CreateWorkoutSession(ctx context.Context, session WorkoutSession) (WorkoutSession, error)
	// DeleteMeal removes a meal and its items; ErrNotFound if absent
	DeleteMeal(ctx context.Context, ownerUserID string, id string) error
	DeleteWorkoutSession(ctx context.Context, ownerUserID string, id string) error
	ListMeals(ctx context.Context, ownerUserID string, date string) ([]DiaryMeal, error)
	ListWorkoutSessions(ctx context.Context, ownerUserID string, date string) ([]WorkoutSession, error)
}

// ---------- Apply batches ----------

const (
	BatchStatusPending      = "pending"
	BatchStatusCommitted    = "committed"
	BatchStatusInconsistent = "inconsistent"
)

const (
	BatchKindMealPlan = "mealplan"
	BatchKindWorkout  = "workout"
)

// ApplyBatch — запись идемпотентности применения плана
type ApplyBatch struct {
	IdempotencyKey string
	OwnerUserID    string
	Kind           string
	TargetDate     string
	Status         string
	ClaimID        string // текущий владелец pending-claim
	Receipt        []byte // JSON, set on commit
	CommittedIDs   []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BatchesStorage — атомарный claim ключа идемпотентности
type BatchesStorage interface {
	// ClaimBatch inserts a pending batch with a fresh ClaimID if the key is absent.
	// A pending batch not touched for longer than lease is taken over under a new ClaimID.
	// Returns claimed=true when this call owns the batch, otherwise the existing row.
	ClaimBatch(ctx context.Context, batch ApplyBatch, lease time.Duration) (ApplyBatch, bool, error)
	// CommitBatch moves a pending batch held by claimID to committed; ErrBatchNotOwned otherwise
	CommitBatch(ctx context.Context, key, claimID string, receipt []byte, committedIDs []string) error
	// ReleaseBatch deletes a pending claim held by claimID so the key can be retried
	ReleaseBatch(ctx context.Context, key, claimID string) error
	// MarkBatchInconsistent records IDs that could not be rolled back; ErrBatchNotOwned if claimID lost the batch
	MarkBatchInconsistent(ctx context.Context, key, claimID string, committedIDs []string) error
	GetBatch(ctx context.Context, key string) (ApplyBatch, bool, error)
}
