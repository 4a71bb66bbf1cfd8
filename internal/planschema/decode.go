package planschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const rootPath = "$"

// walker converts an untyped JSON tree into plan structs, recording type
// errors instead of stopping at the first one.
type walker struct {
	errs *collector
}

func parseTree(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON document")
	}
	return tree, nil
}

func join(path, key string) string {
	if path == "" || path == rootPath {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

// lookup returns the value under key, treating null as absent.
func lookup(obj map[string]any, key string) (any, bool) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (w *walker) object(v any, path string) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		w.errs.add(path, "must be an object")
		return nil, false
	}
	return obj, true
}

func (w *walker) array(obj map[string]any, key, path string) ([]any, bool) {
	v, ok := lookup(obj, key)
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	if !ok {
		w.errs.add(path, "must be an array")
		return nil, false
	}
	return arr, true
}

func (w *walker) str(obj map[string]any, key, path string) (string, bool) {
	v, ok := lookup(obj, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		w.errs.add(path, "must be a string")
		return "", false
	}
	return s, true
}

func (w *walker) optString(obj map[string]any, key, path string) *string {
	s, ok := w.str(obj, key, path)
	if !ok {
		return nil
	}
	return &s
}

func (w *walker) optNumber(obj map[string]any, key, path string) *float64 {
	v, ok := lookup(obj, key)
	if !ok {
		return nil
	}
	n, ok := v.(json.Number)
	if !ok {
		w.errs.add(path, "must be a number")
		return nil
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		w.errs.add(path, "must be a finite number")
		return nil
	}
	return &f
}

func (w *walker) optInt(obj map[string]any, key, path string) *int {
	f := w.optNumber(obj, key, path)
	if f == nil {
		return nil
	}
	if *f != math.Trunc(*f) {
		w.errs.add(path, "must be an integer")
		return nil
	}
	if math.Abs(*f) > math.MaxInt32 {
		w.errs.add(path, "is out of range")
		return nil
	}
	i := int(*f)
	return &i
}

func (w *walker) mealPlan(tree any) (*MealPlan, string) {
	obj, ok := w.object(tree, rootPath)
	if !ok {
		return nil, "meals"
	}

	plan := &MealPlan{
		Date: w.optString(obj, "date", "date"),
	}

	key := "meals"
	if _, ok := lookup(obj, "meals"); !ok {
		if _, ok := lookup(obj, "plan"); ok {
			key = "plan"
		}
	}
	plan.BlocksKey = key

	blocks, ok := w.array(obj, key, key)
	if !ok {
		return plan, key
	}

	plan.Meals = make([]MealBlock, 0, len(blocks))
	for i, raw := range blocks {
		blockPath := index(key, i)
		plan.Meals = append(plan.Meals, w.mealBlock(raw, blockPath))
	}
	return plan, key
}

func (w *walker) mealBlock(raw any, path string) MealBlock {
	var block MealBlock
	obj, ok := w.object(raw, path)
	if !ok {
		// placeholder passes tag checks so only the type error is reported
		block.Items = []MealItem{{Name: "-"}}
		return block
	}

	block.Title, _ = w.str(obj, "title", join(path, "title"))
	block.TotalCalories = w.optNumber(obj, "total_calories", join(path, "total_calories"))

	itemsPath := join(path, "items")
	items, ok := w.array(obj, "items", itemsPath)
	if !ok {
		return block
	}

	block.Items = make([]MealItem, 0, len(items))
	for j, rawItem := range items {
		itemPath := index(itemsPath, j)
		block.Items = append(block.Items, w.mealItem(rawItem, itemPath))
	}
	return block
}

func (w *walker) mealItem(raw any, path string) MealItem {
	var item MealItem
	obj, ok := w.object(raw, path)
	if !ok {
		item.Name = "-"
		return item
	}

	name, _ := w.str(obj, "name", join(path, "name"))
	item.Name = strings.TrimSpace(name)
	item.Grams = w.optNumber(obj, "grams", join(path, "grams"))
	item.Calories = w.optNumber(obj, "calories", join(path, "calories"))
	return item
}

func (w *walker) workoutPlan(tree any) *WorkoutPlan {
	obj, ok := w.object(tree, rootPath)
	if !ok {
		return nil
	}

	plan := &WorkoutPlan{
		Date:        w.optString(obj, "date", "date"),
		DurationMin: w.optInt(obj, "duration_min", "duration_min"),
	}
	plan.Title, _ = w.str(obj, "title", "title")

	sets, ok := w.array(obj, "sets", "sets")
	if !ok {
		return plan
	}

	plan.Sets = make([]SetBlock, 0, len(sets))
	for i, raw := range sets {
		plan.Sets = append(plan.Sets, w.setBlock(raw, index("sets", i)))
	}
	return plan
}

func (w *walker) setBlock(raw any, path string) SetBlock {
	var set SetBlock
	obj, ok := w.object(raw, path)
	if !ok {
		set.Exercise = &ExerciseRef{Name: "-"}
		return set
	}

	set.SetNumber = w.optInt(obj, "set_number", join(path, "set_number"))
	set.Reps = w.optInt(obj, "reps", join(path, "reps"))
	set.WeightKg = w.optNumber(obj, "weight_kg", join(path, "weight_kg"))

	exPath := join(path, "exercise")
	if v, ok := lookup(obj, "exercise"); ok {
		if exObj, ok := w.object(v, exPath); ok {
			ref := &ExerciseRef{}
			name, _ := w.str(exObj, "name", join(exPath, "name"))
			ref.Name = strings.TrimSpace(name)
			ref.MuscleGroup, _ = w.str(exObj, "muscle_group", join(exPath, "muscle_group"))
			set.Exercise = ref
		} else {
			set.Exercise = &ExerciseRef{Name: "-"}
		}
	}
	return set
}
