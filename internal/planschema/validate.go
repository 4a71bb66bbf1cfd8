package planschema

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// min_if_positive=N: values <= 0 pass, positive values must be >= N
	if err := v.RegisterValidation("min_if_positive", func(fl validator.FieldLevel) bool {
		limit, err := strconv.ParseFloat(fl.Param(), 64)
		if err != nil {
			return false
		}
		var value float64
		switch fl.Field().Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			value = float64(fl.Field().Int())
		case reflect.Float32, reflect.Float64:
			value = fl.Field().Float()
		default:
			return false
		}
		return value <= 0 || value >= limit
	}); err != nil {
		panic(fmt.Sprintf("register min_if_positive: %v", err))
	}

	return v
}

// Validate checks raw against the schema for kind and returns the typed document.
// Every failing field is reported in one *ValidationError.
func Validate(raw []byte, kind Kind) (*Document, error) {
	tree, err := parseTree(raw)
	if err != nil {
		return nil, NewValidationError(rootPath, "must be valid JSON")
	}

	errs := newCollector()
	w := &walker{errs: errs}

	doc := &Document{Kind: kind}
	switch kind {
	case KindMealPlan:
		plan, key := w.mealPlan(tree)
		if plan != nil {
			checkStruct(plan, errs, func(path string) string {
				if key != "meals" && strings.HasPrefix(path, "meals") {
					return key + strings.TrimPrefix(path, "meals")
				}
				return path
			})
		}
		doc.MealPlan = plan
	case KindWorkout:
		plan := w.workoutPlan(tree)
		if plan != nil {
			checkStruct(plan, errs, nil)
		}
		doc.Workout = plan
	default:
		return nil, fmt.Errorf("unknown plan kind %q", kind)
	}

	if err := errs.err(); err != nil {
		return nil, err
	}
	return doc, nil
}

func checkStruct(v any, errs *collector, rename func(string) string) {
	err := validate.Struct(v)
	if err == nil {
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.add(rootPath, err.Error())
		return
	}

	for _, fe := range verrs {
		path := fe.Namespace()
		// drop the root struct name: MealPlan.meals[0].title → meals[0].title
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		if rename != nil {
			path = rename(path)
		}
		errs.add(path, reason(fe))
	}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "min_if_positive", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	default:
		return "is invalid"
	}
}
