package planschema

// Kind selects which plan shape a document is validated against.
type Kind string

const (
	KindMealPlan Kind = "mealplan_apply"
	KindWorkout  Kind = "workout_apply"
)

// Document is a validated plan: exactly one of MealPlan or Workout is set.
type Document struct {
	Kind     Kind
	MealPlan *MealPlan
	Workout  *WorkoutPlan
}

// MealPlan — план питания от AI. Блоки принимаются под ключом meals или plan.
type MealPlan struct {
	Date  *string     `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Meals []MealBlock `json:"meals" validate:"required,min=1,dive"`
	// BlocksKey is the document key the blocks came from: "meals" or the "plan" alias
	BlocksKey string `json:"-"`
}

type MealBlock struct {
	Title         string     `json:"title"`
	TotalCalories *float64   `json:"total_calories" validate:"omitempty,gte=0"`
	Items         []MealItem `json:"items" validate:"required,min=1,dive"`
}

// MealItem: non-positive grams pass here and are dropped during normalization.
type MealItem struct {
	Name     string   `json:"name" validate:"required"`
	Grams    *float64 `json:"grams" validate:"omitempty,min_if_positive=1,max=2000"`
	Calories *float64 `json:"calories" validate:"omitempty,gte=0,lte=5000"`
}

// WorkoutPlan — план тренировки от AI
type WorkoutPlan struct {
	Date        *string    `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Title       string     `json:"title"`
	DurationMin *int       `json:"duration_min" validate:"omitempty,min_if_positive=10,max=180"`
	Sets        []SetBlock `json:"sets" validate:"required,min=1,dive"`
}

type SetBlock struct {
	SetNumber *int         `json:"set_number" validate:"omitempty,gte=1"`
	Reps      *int         `json:"reps" validate:"omitempty,min_if_positive=1,max=100"`
	WeightKg  *float64     `json:"weight_kg" validate:"omitempty,gte=0,lte=500"`
	Exercise  *ExerciseRef `json:"exercise" validate:"required"`
}

type ExerciseRef struct {
	Name        string `json:"name" validate:"required"`
	MuscleGroup string `json:"muscle_group"`
}
