package diary

import "time"

type MealItemDTO struct {
	ID         string  `json:"id"`
	Position   int     `json:"position"`
	ProductID  *string `json:"product_id"`
	Name       string  `json:"name"`
	Unresolved bool    `json:"unresolved"`
	QuantityG  float64 `json:"quantity_g"`
	Calories   float64 `json:"calories"`
	Protein    float64 `json:"protein"`
	Fats       float64 `json:"fats"`
	Carbs      float64 `json:"carbs"`
}

type MealDTO struct {
	ID            string        `json:"id"`
	MealDate      string        `json:"meal_date"`
	MealType      string        `json:"meal_type"`
	Title         string        `json:"title"`
	TotalCalories float64       `json:"total_calories"`
	TotalProtein  float64       `json:"total_protein"`
	TotalFats     float64       `json:"total_fats"`
	TotalCarbs    float64       `json:"total_carbs"`
	Items         []MealItemDTO `json:"items"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ListMealsResponse is the response for GET /v1/diary/meals.
type ListMealsResponse struct {
	Date  string    `json:"date,omitempty"`
	Meals []MealDTO `json:"meals"`
}

type WorkoutSetDTO struct {
	ID           string   `json:"id"`
	SetNumber    int      `json:"set_number"`
	ExerciseID   string   `json:"exercise_id"`
	ExerciseName string   `json:"exercise_name"`
	Reps         *int     `json:"reps"`
	WeightKg     *float64 `json:"weight_kg"`
}

type WorkoutSessionDTO struct {
	ID          string          `json:"id"`
	SessionDate string          `json:"session_date"`
	Notes       string          `json:"notes"`
	DurationMin *int            `json:"duration_min"`
	Sets        []WorkoutSetDTO `json:"sets"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ListSessionsResponse is the response for GET /v1/workouts/sessions.
type ListSessionsResponse struct {
	Date     string              `json:"date,omitempty"`
	Sessions []WorkoutSessionDTO `json:"sessions"`
}
