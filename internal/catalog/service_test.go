package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/fdg312/fitdiary/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedJSON = `{
	"foods": [
		{"name": "Овсянка", "kcal_per_100g": 60, "protein_g_per_100g": 2.5, "fat_g_per_100g": 1.5, "carbs_g_per_100g": 10},
		{"name": "Гречка варёная", "kcal_per_100g": 110, "protein_g_per_100g": 4, "fat_g_per_100g": 1, "carbs_g_per_100g": 21},
		{"name": "  ", "kcal_per_100g": 1}
	],
	"exercises": [
		{"name": "Жим  лёжа", "muscle_group": "chest"},
		{"name": "Приседания", "muscle_group": "legs"}
	]
}`

type fakeGetter struct {
	data map[string][]byte
}

func (g fakeGetter) GetObject(ctx context.Context, key string) ([]byte, error) {
	data, ok := g.data[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func seededService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(memory.New().GetCatalogStorage())

	seed, err := svc.ParseSeed([]byte(seedJSON))
	require.NoError(t, err)
	_, err = svc.Import(context.Background(), seed)
	require.NoError(t, err)
	return svc
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "жим лёжа", NormalizeName("  Жим \t Лёжа "))
	assert.Equal(t, "овсянка", NormalizeName("ОВСЯНКА"))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestImportCountsAndSkipsBlankNames(t *testing.T) {
	svc := NewService(memory.New().GetCatalogStorage())
	seed, err := svc.ParseSeed([]byte(seedJSON))
	require.NoError(t, err)

	res, err := svc.Import(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Foods: 2, Exercises: 2}, res)

	// повторный импорт обновляет, а не дублирует
	res, err = svc.Import(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Foods)

	foods, err := svc.SearchFoods(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, foods, 2)
}

func TestResolveFood(t *testing.T) {
	svc := seededService(t)

	entry, ok, err := svc.Resolve(context.Background(), KindFood, "  овсянка ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindFood, entry.Kind)
	assert.Equal(t, "Овсянка", entry.Name)
	assert.Equal(t, 60.0, entry.KcalPer100g)
	assert.NotEmpty(t, entry.ID)
}

func TestResolveExerciseCollapsesWhitespace(t *testing.T) {
	svc := seededService(t)

	entry, ok, err := svc.Resolve(context.Background(), KindExercise, "жим лёжа")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "chest", entry.MuscleGroup)
}

func TestResolveMiss(t *testing.T) {
	svc := seededService(t)

	entry, ok, err := svc.Resolve(context.Background(), KindFood, "Борщ")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entry)

	_, ok, err = svc.Resolve(context.Background(), KindFood, "   ")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveUnknownKind(t *testing.T) {
	svc := seededService(t)

	_, _, err := svc.Resolve(context.Background(), Kind("drink"), "вода")
	assert.Error(t, err)
}

func TestResolveCancelledContext(t *testing.T) {
	svc := seededService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.Resolve(ctx, KindFood, "овсянка")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseSeedRejectsInvalid(t *testing.T) {
	svc := NewService(memory.New().GetCatalogStorage())

	tests := []struct {
		name string
		data string
	}{
		{"broken json", `{"foods": [`},
		{"missing name", `{"foods": [{"kcal_per_100g": 10}]}`},
		{"kcal out of range", `{"foods": [{"name": "Масло", "kcal_per_100g": 5000}]}`},
		{"negative macro", `{"foods": [{"name": "Сыр", "fat_g_per_100g": -1}]}`},
		{"exercise without name", `{"exercises": [{"muscle_group": "back"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ParseSeed([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidSeed)
		})
	}
}

func TestFetchSeed(t *testing.T) {
	svc := NewService(memory.New().GetCatalogStorage())
	getter := fakeGetter{data: map[string][]byte{"catalog/seed.json": []byte(seedJSON)}}

	seed, err := svc.FetchSeed(context.Background(), getter, "catalog/seed.json")
	require.NoError(t, err)
	assert.Len(t, seed.Exercises, 2)

	_, err = svc.FetchSeed(context.Background(), getter, "missing.json")
	assert.Error(t, err)
}

func TestSearchLimitClamp(t *testing.T) {
	assert.Equal(t, defaultSearchLimit, clampLimit(0))
	assert.Equal(t, defaultSearchLimit, clampLimit(-3))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, maxSearchLimit, clampLimit(1000))
}
