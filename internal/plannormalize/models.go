package plannormalize

const (
	MealTypeBreakfast = "breakfast"
	MealTypeLunch     = "lunch"
	MealTypeDinner    = "dinner"
	MealTypeSnack     = "snack"
)

// ValidMealType reports whether t is one of the four diary meal types.
func ValidMealType(t string) bool {
	switch t {
	case MealTypeBreakfast, MealTypeLunch, MealTypeDinner, MealTypeSnack:
		return true
	}
	return false
}

// mealTypeByPosition: 0→breakfast, 1→lunch, 2→dinner, дальше snack
func mealTypeByPosition(i int) string {
	switch i {
	case 0:
		return MealTypeBreakfast
	case 1:
		return MealTypeLunch
	case 2:
		return MealTypeDinner
	default:
		return MealTypeSnack
	}
}

// Причины отбрасывания позиций
const (
	ReasonNonPositiveGrams   = "non_positive_grams"
	ReasonNonPositiveReps    = "non_positive_reps"
	ReasonNotInCatalog       = "not_in_catalog"
	ReasonCatalogUnavailable = "catalog_unavailable"
)

// Context carries what the caller knows about the plan beyond the document.
type Context struct {
	Date     string // YYYY-MM-DD, used when the document has no date
	MealType string // forces every block into one entry
	UserID   string
}

// Totals — суммы по позициям, всегда пересчитанные
type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Fats     float64 `json:"fats"`
	Carbs    float64 `json:"carbs"`
}

func (t *Totals) add(o Totals) {
	t.Calories += o.Calories
	t.Protein += o.Protein
	t.Fats += o.Fats
	t.Carbs += o.Carbs
}

func (t Totals) rounded() Totals {
	return Totals{
		Calories: round1(t.Calories),
		Protein:  round1(t.Protein),
		Fats:     round1(t.Fats),
		Carbs:    round1(t.Carbs),
	}
}

// MealItem is a diary line. ProductID is nil when Unresolved.
type MealItem struct {
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

// MealEntry — одна запись дневника на (date, meal_type)
type MealEntry struct {
	MealDate string
	MealType string
	Title    string
	Items    []MealItem
	Totals   Totals
}

// Dropped is a meal item that will not be persisted.
type Dropped struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// MealPlan is the persistable form of a meal plan document.
type MealPlan struct {
	UserID          string
	Date            string
	MealType        string // задан клиентом для всего плана, иначе пусто
	Entries         []MealEntry
	Dropped         []Dropped
	Totals          Totals
	ResolvedCount   int
	UnresolvedCount int
}

// WorkoutSet — подход с упражнением из каталога
type WorkoutSet struct {
	SetNumber    int
	ExerciseID   string
	ExerciseName string
	Reps         *int
	WeightKg     *float64
}

// Skipped is a set that will not be persisted.
type Skipped struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// WorkoutSession is the persistable form of a workout document.
type WorkoutSession struct {
	UserID      string
	SessionDate string
	Notes       string
	DurationMin *int
	Sets        []WorkoutSet
	Skipped     []Skipped
}
