package catalog

import "time"

// FoodDTO — продукт в ответе поиска
type FoodDTO struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	KcalPer100g     float64   `json:"kcal_per_100g"`
	ProteinGPer100g float64   `json:"protein_g_per_100g"`
	FatGPer100g     float64   `json:"fat_g_per_100g"`
	CarbsGPer100g   float64   `json:"carbs_g_per_100g"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ExerciseDTO — упражнение в ответе поиска
type ExerciseDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MuscleGroup string    `json:"muscle_group"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SearchFoodsResponse is the response for GET /v1/catalog/foods.
type SearchFoodsResponse struct {
	Items []FoodDTO `json:"items"`
	Limit int       `json:"limit"`
}

// SearchExercisesResponse is the response for GET /v1/catalog/exercises.
type SearchExercisesResponse struct {
	Items []ExerciseDTO `json:"items"`
	Limit int           `json:"limit"`
}

// Seed is the JSON catalog imported by cmd/seed-catalog.
type Seed struct {
	Foods     []SeedFood     `json:"foods" validate:"dive"`
	Exercises []SeedExercise `json:"exercises" validate:"dive"`
}

type SeedFood struct {
	Name            string  `json:"name" validate:"required,max=120"`
	KcalPer100g     float64 `json:"kcal_per_100g" validate:"gte=0,lte=1000"`
	ProteinGPer100g float64 `json:"protein_g_per_100g" validate:"gte=0,lte=100"`
	FatGPer100g     float64 `json:"fat_g_per_100g" validate:"gte=0,lte=100"`
	CarbsGPer100g   float64 `json:"carbs_g_per_100g" validate:"gte=0,lte=100"`
}

type SeedExercise struct {
	Name        string `json:"name" validate:"required,max=120"`
	MuscleGroup string `json:"muscle_group" validate:"max=60"`
}

// ImportResult counts upserted rows.
type ImportResult struct {
	Foods     int `json:"foods"`
	Exercises int `json:"exercises"`
}
