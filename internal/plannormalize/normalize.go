package plannormalize

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fdg312/fitdiary/internal/catalog"
	"github.com/fdg312/fitdiary/internal/config"
	"github.com/fdg312/fitdiary/internal/planschema"
)

const dateLayout = "2006-01-02"

// Границы полей, в которые приводятся значения
const (
	minGrams, maxGrams       = 1.0, 2000.0
	minCalories, maxCalories = 0.0, 5000.0
	minReps, maxReps         = 1, 100
	minWeight, maxWeight     = 0.0, 500.0
	minDuration, maxDuration = 10, 180
)

// Normalizer turns validated plan documents into persistable records,
// resolving names against the catalog.
type Normalizer struct {
	resolver catalog.Resolver
	cfg      config.IntakeConfig
	now      func() time.Time
}

// New creates a Normalizer. Zero tunables fall back to config.DefaultIntake.
func New(resolver catalog.Resolver, cfg config.IntakeConfig) *Normalizer {
	def := config.DefaultIntake()
	if cfg.CatalogWorkers <= 0 {
		cfg.CatalogWorkers = def.CatalogWorkers
	}
	if cfg.CatalogTimeoutMs <= 0 {
		cfg.CatalogTimeoutMs = def.CatalogTimeoutMs
	}
	if cfg.DefaultKcal <= 0 {
		cfg.DefaultKcal = def.DefaultKcal
	}
	if cfg.KcalPer100g <= 0 {
		cfg.KcalPer100g = def.KcalPer100g
	}
	if cfg.DefaultPortionG <= 0 {
		cfg.DefaultPortionG = def.DefaultPortionG
	}

	return &Normalizer{
		resolver: resolver,
		cfg:      cfg,
		now:      time.Now,
	}
}

// NormalizeMealPlan resolves every item, recomputes all aggregates and groups
// blocks into one entry per meal type.
func (n *Normalizer) NormalizeMealPlan(ctx context.Context, doc *planschema.MealPlan, nctx Context) (*MealPlan, error) {
	if doc == nil {
		return nil, &EmptyPlanError{Plan: "mealplan"}
	}
	if nctx.MealType != "" && !ValidMealType(nctx.MealType) {
		return nil, &NormalizationError{
			Kind:    KindInvalidMealType,
			Path:    "meal_type",
			Message: "must be one of breakfast, lunch, dinner, snack",
		}
	}

	date, err := n.targetDate(doc.Date, nctx.Date)
	if err != nil {
		return nil, err
	}

	plan := &MealPlan{UserID: nctx.UserID, Date: date, MealType: nctx.MealType}

	blocksKey := doc.BlocksKey
	if blocksKey == "" {
		blocksKey = "meals"
	}

	type pending struct {
		path string
		item planschema.MealItem
	}
	byType := make(map[string][]pending)
	titles := make(map[string][]string)
	var order []string
	var names []string

	for i, block := range doc.Meals {
		mealType := nctx.MealType
		if mealType == "" {
			mealType = mealTypeByPosition(i)
		}
		if _, seen := byType[mealType]; !seen {
			order = append(order, mealType)
			byType[mealType] = nil
		}
		titles[mealType] = append(titles[mealType], block.Title)

		for j, item := range block.Items {
			path := fmt.Sprintf("%s[%d].items[%d]", blocksKey, i, j)
			if item.Grams != nil && *item.Grams <= 0 {
				plan.Dropped = append(plan.Dropped, Dropped{Path: path, Name: item.Name, Reason: ReasonNonPositiveGrams})
				continue
			}
			byType[mealType] = append(byType[mealType], pending{path: path, item: item})
			names = append(names, item.Name)
		}
	}

	found, err := n.resolveNames(ctx, catalog.KindFood, names)
	if err != nil {
		return nil, err
	}

	for _, mealType := range order {
		items := byType[mealType]
		if len(items) == 0 {
			continue
		}

		entry := MealEntry{
			MealDate: date,
			MealType: mealType,
			Title:    joinTitles(titles[mealType]),
			Items:    make([]MealItem, 0, len(items)),
		}
		var totals Totals
		for _, p := range items {
			res := found[catalog.NormalizeName(p.item.Name)]
			item := n.mealItem(p.item, res)
			item.Position = len(entry.Items) + 1
			entry.Items = append(entry.Items, item)

			totals.add(Totals{Calories: item.Calories, Protein: item.Protein, Fats: item.Fats, Carbs: item.Carbs})
			if item.Unresolved {
				plan.UnresolvedCount++
			} else {
				plan.ResolvedCount++
			}
		}
		entry.Totals = totals.rounded()
		plan.Totals.add(entry.Totals)
		plan.Entries = append(plan.Entries, entry)
	}
	plan.Totals = plan.Totals.rounded()

	if len(plan.Entries) == 0 {
		return nil, &EmptyPlanError{Plan: "mealplan", Dropped: plan.Dropped}
	}
	return plan, nil
}

func (n *Normalizer) mealItem(in planschema.MealItem, res lookupResult) MealItem {
	var grams, aiCalories *float64
	if in.Grams != nil {
		g := clamp(*in.Grams, minGrams, maxGrams)
		grams = &g
	}
	if in.Calories != nil {
		c := clamp(*in.Calories, minCalories, maxCalories)
		aiCalories = &c
	}

	if res.status != lookupHit {
		item := MealItem{Name: in.Name, Unresolved: true, QuantityG: n.cfg.DefaultPortionG}
		switch {
		case aiCalories != nil:
			item.Calories = *aiCalories
		case grams != nil:
			item.Calories = *grams * n.cfg.KcalPer100g / 100
		default:
			item.Calories = n.cfg.DefaultKcal
		}
		if grams != nil {
			item.QuantityG = *grams
		}
		item.QuantityG = round1(item.QuantityG)
		item.Calories = round1(clamp(item.Calories, minCalories, maxCalories))
		return item
	}

	e := res.entry
	qty := n.cfg.DefaultPortionG
	switch {
	case grams != nil:
		qty = *grams
	case aiCalories != nil && e.KcalPer100g > 0:
		qty = clamp(*aiCalories/e.KcalPer100g*100, minGrams, maxGrams)
	}

	id := e.ID
	return MealItem{
		ProductID: &id,
		Name:      e.Name,
		QuantityG: round1(qty),
		Calories:  round1(e.KcalPer100g * qty / 100),
		Protein:   round1(e.ProteinGPer100g * qty / 100),
		Fats:      round1(e.FatGPer100g * qty / 100),
		Carbs:     round1(e.CarbsGPer100g * qty / 100),
	}
}

// NormalizeWorkout resolves every exercise; sets that cannot be persisted are skipped
// and the rest are numbered 1..N in document order.
func (n *Normalizer) NormalizeWorkout(ctx context.Context, doc *planschema.WorkoutPlan, nctx Context) (*WorkoutSession, error) {
	if doc == nil {
		return nil, &EmptyPlanError{Plan: "workout"}
	}

	date, err := n.targetDate(doc.Date, nctx.Date)
	if err != nil {
		return nil, err
	}

	session := &WorkoutSession{
		UserID:      nctx.UserID,
		SessionDate: date,
		Notes:       doc.Title,
	}

	if doc.DurationMin != nil {
		if *doc.DurationMin <= 0 {
			return nil, &NormalizationError{
				Kind:    KindInvalidDuration,
				Path:    "duration_min",
				Message: "must be positive",
			}
		}
		d := clampInt(*doc.DurationMin, minDuration, maxDuration)
		session.DurationMin = &d
	}

	type pending struct {
		index int
		set   planschema.SetBlock
	}
	var candidates []pending
	var names []string
	for i, set := range doc.Sets {
		name := ""
		if set.Exercise != nil {
			name = set.Exercise.Name
		}
		if set.Reps != nil && *set.Reps <= 0 {
			session.Skipped = append(session.Skipped, Skipped{Index: i, Name: name, Reason: ReasonNonPositiveReps})
			continue
		}
		if name == "" {
			session.Skipped = append(session.Skipped, Skipped{Index: i, Reason: ReasonNotInCatalog})
			continue
		}
		candidates = append(candidates, pending{index: i, set: set})
		names = append(names, name)
	}

	found, err := n.resolveNames(ctx, catalog.KindExercise, names)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		name := c.set.Exercise.Name
		res := found[catalog.NormalizeName(name)]
		switch res.status {
		case lookupMiss:
			session.Skipped = append(session.Skipped, Skipped{Index: c.index, Name: name, Reason: ReasonNotInCatalog})
			continue
		case lookupFailed:
			session.Skipped = append(session.Skipped, Skipped{Index: c.index, Name: name, Reason: ReasonCatalogUnavailable})
			continue
		}

		set := WorkoutSet{
			SetNumber:    len(session.Sets) + 1,
			ExerciseID:   res.entry.ID,
			ExerciseName: res.entry.Name,
		}
		if c.set.Reps != nil {
			r := clampInt(*c.set.Reps, minReps, maxReps)
			set.Reps = &r
		}
		if c.set.WeightKg != nil {
			w := round1(clamp(*c.set.WeightKg, minWeight, maxWeight))
			set.WeightKg = &w
		}
		session.Sets = append(session.Sets, set)
	}

	if len(session.Sets) == 0 {
		return nil, &EmptyPlanError{Plan: "workout", Skipped: session.Skipped}
	}
	return session, nil
}

// targetDate: дата документа, иначе из контекста, иначе сегодня (UTC)
func (n *Normalizer) targetDate(docDate *string, ctxDate string) (string, error) {
	if docDate != nil && *docDate != "" {
		if _, err := time.Parse(dateLayout, *docDate); err != nil {
			return "", &NormalizationError{Kind: KindInvalidDate, Path: "date", Message: "must be a date in YYYY-MM-DD format"}
		}
		return *docDate, nil
	}
	if ctxDate != "" {
		if _, err := time.Parse(dateLayout, ctxDate); err != nil {
			return "", &NormalizationError{Kind: KindInvalidDate, Path: "date", Message: "must be a date in YYYY-MM-DD format"}
		}
		return ctxDate, nil
	}
	return n.now().UTC().Format(dateLayout), nil
}

func joinTitles(titles []string) string {
	if len(titles) == 1 {
		return titles[0]
	}
	parts := make([]string, 0, len(titles))
	for _, t := range titles {
		if strings.TrimSpace(t) != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "; ")
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
