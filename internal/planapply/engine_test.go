package planapply

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fdg312/fitdiary/internal/config"
	"github.com/fdg312/fitdiary/internal/plannormalize"
	"github.com/fdg312/fitdiary/internal/storage"
	"github.com/fdg312/fitdiary/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDiary wraps a real store and fails on demand.
type flakyDiary struct {
	storage.DiaryStorage

	mu           sync.Mutex
	creates      int
	failCreateAt int // 1-based, 0 = never
	failDeletes  bool
	onCreate     func(n int)
}

func (d *flakyDiary) hit() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates++
	return d.creates, d.failCreateAt != 0 && d.creates == d.failCreateAt
}

func (d *flakyDiary) CreateMealBatch(ctx context.Context, meal storage.DiaryMeal) (storage.DiaryMeal, error) {
	n, fail := d.hit()
	if fail {
		return storage.DiaryMeal{}, errors.New("connection reset")
	}
	saved, err := d.DiaryStorage.CreateMealBatch(ctx, meal)
	if err == nil && d.onCreate != nil {
		d.onCreate(n)
	}
	return saved, err
}

func (d *flakyDiary) CreateWorkoutSession(ctx context.Context, s storage.WorkoutSession) (storage.WorkoutSession, error) {
	n, fail := d.hit()
	if fail {
		return storage.WorkoutSession{}, errors.New("connection reset")
	}
	saved, err := d.DiaryStorage.CreateWorkoutSession(ctx, s)
	if err == nil && d.onCreate != nil {
		d.onCreate(n)
	}
	return saved, err
}

func (d *flakyDiary) DeleteMeal(ctx context.Context, ownerUserID, id string) error {
	if d.failDeletes {
		return errors.New("connection reset")
	}
	return d.DiaryStorage.DeleteMeal(ctx, ownerUserID, id)
}

func (d *flakyDiary) DeleteWorkoutSession(ctx context.Context, ownerUserID, id string) error {
	if d.failDeletes {
		return errors.New("connection reset")
	}
	return d.DiaryStorage.DeleteWorkoutSession(ctx, ownerUserID, id)
}

// flakyBatches wraps the batch store and fails selected calls.
type flakyBatches struct {
	storage.BatchesStorage

	failReleases bool
	failGets     bool
	// commitLost applies the commit but reports the connection dropped
	commitLost bool
}

func (b *flakyBatches) CommitBatch(ctx context.Context, key, claimID string, receipt []byte, ids []string) error {
	if err := b.BatchesStorage.CommitBatch(ctx, key, claimID, receipt, ids); err != nil {
		return err
	}
	if b.commitLost {
		return context.Canceled
	}
	return nil
}

func (b *flakyBatches) ReleaseBatch(ctx context.Context, key, claimID string) error {
	if b.failReleases {
		return errors.New("connection reset")
	}
	return b.BatchesStorage.ReleaseBatch(ctx, key, claimID)
}

func (b *flakyBatches) GetBatch(ctx context.Context, key string) (storage.ApplyBatch, bool, error) {
	if b.failGets {
		return storage.ApplyBatch{}, false, errors.New("connection reset")
	}
	return b.BatchesStorage.GetBatch(ctx, key)
}

type fixture struct {
	store   *memory.MemoryStorage
	diary   *flakyDiary
	batches *flakyBatches
	engine  *Engine
}

func newFixture() *fixture {
	store := memory.New()
	diary := &flakyDiary{DiaryStorage: store.GetDiaryStorage()}
	batches := &flakyBatches{BatchesStorage: store.GetBatchesStorage()}
	e := New(diary, batches, config.DefaultIntake())
	e.pollInterval = 10 * time.Millisecond
	e.waitFor = 2 * time.Second
	e.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return &fixture{store: store, diary: diary, batches: batches, engine: e}
}

func (f *fixture) meals(t *testing.T) []storage.DiaryMeal {
	t.Helper()
	meals, err := f.store.GetDiaryStorage().ListMeals(context.Background(), "u1", "")
	require.NoError(t, err)
	return meals
}

func productID(id string) *string { return &id }

func mealPlan() *plannormalize.MealPlan {
	return &plannormalize.MealPlan{
		UserID: "u1",
		Date:   "2024-05-01",
		Entries: []plannormalize.MealEntry{
			{
				MealDate: "2024-05-01",
				MealType: plannormalize.MealTypeBreakfast,
				Title:    "Завтрак",
				Items: []plannormalize.MealItem{
					{Position: 1, ProductID: productID("food-oat"), Name: "Овсянка", QuantityG: 150, Calories: 90, Protein: 3.8, Fats: 2.3, Carbs: 15},
					{Position: 2, Name: "Пирожок", Unresolved: true, QuantityG: 100, Calories: 250},
				},
				Totals: plannormalize.Totals{Calories: 340, Protein: 3.8, Fats: 2.3, Carbs: 15},
			},
			{
				MealDate: "2024-05-01",
				MealType: plannormalize.MealTypeLunch,
				Items: []plannormalize.MealItem{
					{Position: 1, ProductID: productID("food-buck"), Name: "Гречка", QuantityG: 200, Calories: 220, Protein: 8, Fats: 2, Carbs: 42},
				},
				Totals: plannormalize.Totals{Calories: 220, Protein: 8, Fats: 2, Carbs: 42},
			},
		},
		Dropped:         []plannormalize.Dropped{{Path: "meals[0].items[2]", Name: "Вода", Reason: plannormalize.ReasonNonPositiveGrams}},
		Totals:          plannormalize.Totals{Calories: 560, Protein: 11.8, Fats: 4.3, Carbs: 57},
		ResolvedCount:   2,
		UnresolvedCount: 1,
	}
}

func workout() *plannormalize.WorkoutSession {
	reps := 10
	weight := 60.0
	duration := 45
	return &plannormalize.WorkoutSession{
		UserID:      "u1",
		SessionDate: "2024-05-01",
		Notes:       "Грудь",
		DurationMin: &duration,
		Sets: []plannormalize.WorkoutSet{
			{SetNumber: 1, ExerciseID: "ex-bench", ExerciseName: "Жим лёжа", Reps: &reps, WeightKg: &weight},
			{SetNumber: 2, ExerciseID: "ex-bench", ExerciseName: "Жим лёжа", Reps: &reps, WeightKg: &weight},
		},
		Skipped: []plannormalize.Skipped{{Index: 2, Name: "Бёрпи", Reason: plannormalize.ReasonNotInCatalog}},
	}
}

func applyError(t *testing.T, err error) *ApplyError {
	t.Helper()
	var aerr *ApplyError
	require.True(t, errors.As(err, &aerr), "expected *ApplyError, got %v", err)
	return aerr
}

func TestApplyMealPlanPersistsRecomputedTotals(t *testing.T) {
	f := newFixture()

	receipt, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	require.NoError(t, err)
	assert.False(t, receipt.Replayed)
	assert.Equal(t, "u1:2024-05-01:mealplan", receipt.BatchKey)
	assert.Len(t, receipt.ParentIDs, 2)
	assert.Equal(t, 2, receipt.ResolvedCount)
	assert.Equal(t, 1, receipt.UnresolvedCount)
	assert.Equal(t, 1, receipt.DroppedCount)
	assert.Equal(t, 560.0, receipt.Totals.Calories)
	assert.True(t, receipt.CommittedAt.Equal(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))

	meals := f.meals(t)
	require.Len(t, meals, 2)
	for _, m := range meals {
		var sum float64
		for _, it := range m.Items {
			sum += it.Calories
		}
		assert.InDelta(t, sum, m.TotalCalories, 0.001)
		assert.Equal(t, receipt.BatchKey, m.BatchKey)
	}
	assert.Equal(t, plannormalize.MealTypeBreakfast, meals[0].MealType)
	assert.True(t, meals[0].Items[1].Unresolved)
	assert.Nil(t, meals[0].Items[1].ProductID)

	batch, ok, err := f.store.GetBatchesStorage().GetBatch(context.Background(), receipt.BatchKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, storage.BatchStatusCommitted, batch.Status)
	assert.ElementsMatch(t, receipt.ParentIDs, batch.CommittedIDs)
}

func TestApplyMealPlanTwiceReturnsSameReceipt(t *testing.T) {
	f := newFixture()

	first, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "u1|mealplan|abc")
	require.NoError(t, err)

	second, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "u1|mealplan|abc")
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.ParentIDs, second.ParentIDs)
	assert.Equal(t, first.BatchKey, second.BatchKey)
	assert.Equal(t, first.Totals, second.Totals)
	assert.True(t, first.CommittedAt.Equal(second.CommittedAt))
	assert.Len(t, f.meals(t), 2)
}

// singleMeal keeps only the entry of mealType, as when the client applies a plan to one meal.
func singleMeal(mealType string) *plannormalize.MealPlan {
	plan := mealPlan()
	plan.MealType = mealType
	for _, e := range plan.Entries {
		if e.MealType == mealType {
			plan.Entries = []plannormalize.MealEntry{e}
			plan.Totals = e.Totals
			break
		}
	}
	return plan
}

func TestApplyMealPlanPerMealTypeKeys(t *testing.T) {
	f := newFixture()

	breakfast, err := f.engine.ApplyMealPlan(context.Background(), singleMeal(plannormalize.MealTypeBreakfast), "")
	require.NoError(t, err)
	assert.Equal(t, "u1:2024-05-01:mealplan:breakfast", breakfast.BatchKey)

	lunch, err := f.engine.ApplyMealPlan(context.Background(), singleMeal(plannormalize.MealTypeLunch), "")
	require.NoError(t, err)
	assert.False(t, lunch.Replayed, "lunch must not replay the breakfast receipt")
	assert.Equal(t, "u1:2024-05-01:mealplan:lunch", lunch.BatchKey)

	meals := f.meals(t)
	require.Len(t, meals, 2)
	assert.ElementsMatch(t,
		[]string{plannormalize.MealTypeBreakfast, plannormalize.MealTypeLunch},
		[]string{meals[0].MealType, meals[1].MealType})

	again, err := f.engine.ApplyMealPlan(context.Background(), singleMeal(plannormalize.MealTypeLunch), "")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, lunch.ParentIDs, again.ParentIDs)
}

func TestApplyMealPlanConcurrentCallsCommitOnce(t *testing.T) {
	f := newFixture()
	f.diary.onCreate = func(int) { time.Sleep(30 * time.Millisecond) }

	var wg sync.WaitGroup
	receipts := make([]*Receipt, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipts[i], errs[i] = f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, receipts[0].ParentIDs, receipts[1].ParentIDs)
	assert.NotEqual(t, receipts[0].Replayed, receipts[1].Replayed)
	assert.Len(t, f.meals(t), 2)
}

func TestApplyMealPlanPartialFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.diary.failCreateAt = 2

	_, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	aerr := applyError(t, err)
	assert.Equal(t, KindPartialPersistFailure, aerr.Kind)
	assert.Empty(t, aerr.CommittedIDs)
	assert.Empty(t, f.meals(t))

	_, ok, err := f.store.GetBatchesStorage().GetBatch(context.Background(), aerr.Key)
	require.NoError(t, err)
	assert.False(t, ok, "claim must be released")

	// повтор с тем же ключом проходит
	f.diary.failCreateAt = 0
	receipt, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	require.NoError(t, err)
	assert.False(t, receipt.Replayed)
	assert.Len(t, f.meals(t), 2)
}

func TestApplyMealPlanRollbackFailureIsInconsistent(t *testing.T) {
	f := newFixture()
	f.diary.failCreateAt = 2
	f.diary.failDeletes = true

	_, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	aerr := applyError(t, err)
	assert.Equal(t, KindInconsistentState, aerr.Kind)
	require.Len(t, aerr.CommittedIDs, 1)

	batch, ok, err := f.store.GetBatchesStorage().GetBatch(context.Background(), aerr.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, storage.BatchStatusInconsistent, batch.Status)
	assert.Equal(t, aerr.CommittedIDs, batch.CommittedIDs)

	// ключ остаётся заблокированным
	_, err = f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	aerr = applyError(t, err)
	assert.Equal(t, KindInconsistentState, aerr.Kind)
}

func TestApplyMealPlanCancellationRollsBack(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.diary.onCreate = func(n int) {
		if n == 1 {
			cancel()
		}
	}

	_, err := f.engine.ApplyMealPlan(ctx, mealPlan(), "")
	aerr := applyError(t, err)
	assert.Equal(t, KindPartialPersistFailure, aerr.Kind)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.meals(t))
}

func TestApplyWaitsForPendingClaimAndTimesOut(t *testing.T) {
	f := newFixture()
	f.engine.waitFor = 60 * time.Millisecond

	_, claimed, err := f.store.GetBatchesStorage().ClaimBatch(context.Background(), storage.ApplyBatch{
		IdempotencyKey: "u1:2024-05-01:mealplan",
		OwnerUserID:    "u1",
		Kind:           storage.BatchKindMealPlan,
	}, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	aerr := applyError(t, err)
	assert.Equal(t, KindInProgress, aerr.Kind)
	assert.Empty(t, f.meals(t))
}

func TestApplyTakesOverReleasedClaim(t *testing.T) {
	f := newFixture()
	batches := f.store.GetBatchesStorage()
	key := "u1:2024-05-01:mealplan"

	held, claimed, err := batches.ClaimBatch(context.Background(), storage.ApplyBatch{IdempotencyKey: key, OwnerUserID: "u1"}, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = batches.ReleaseBatch(context.Background(), key, held.ClaimID)
	}()

	receipt, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	require.NoError(t, err)
	assert.False(t, receipt.Replayed)
	assert.Len(t, f.meals(t), 2)
}

func TestApplyReleaseFailureRecoversAfterClaimTTL(t *testing.T) {
	f := newFixture()
	f.engine.claimTTL = 50 * time.Millisecond
	f.diary.failCreateAt = 2
	f.batches.failReleases = true

	_, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	aerr := applyError(t, err)
	assert.Equal(t, KindPartialPersistFailure, aerr.Kind)
	assert.Equal(t, 50*time.Millisecond, aerr.RetryAfter)
	assert.Empty(t, f.meals(t))

	batch, ok, err := f.store.GetBatchesStorage().GetBatch(context.Background(), aerr.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, storage.BatchStatusPending, batch.Status)

	// повтор дожидается истечения claim и перехватывает ключ
	f.diary.failCreateAt = 0
	f.batches.failReleases = false
	receipt, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	require.NoError(t, err)
	assert.False(t, receipt.Replayed)
	assert.Len(t, f.meals(t), 2)

	batch, _, err = f.store.GetBatchesStorage().GetBatch(context.Background(), aerr.Key)
	require.NoError(t, err)
	assert.Equal(t, storage.BatchStatusCommitted, batch.Status)
}

func TestApplyLiveClaimIsNotTakenOver(t *testing.T) {
	f := newFixture()
	f.engine.claimTTL = time.Minute
	f.engine.waitFor = 60 * time.Millisecond
	f.diary.failCreateAt = 2
	f.batches.failReleases = true

	_, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	require.Equal(t, KindPartialPersistFailure, applyError(t, err).Kind)

	f.diary.failCreateAt = 0
	_, err = f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	aerr := applyError(t, err)
	assert.Equal(t, KindInProgress, aerr.Kind)
	assert.Empty(t, f.meals(t))
}

func TestApplyCommitAcknowledgementLostKeepsRecords(t *testing.T) {
	f := newFixture()
	f.batches.commitLost = true

	receipt, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	require.NoError(t, err)
	require.Len(t, receipt.ParentIDs, 2)

	meals := f.meals(t)
	require.Len(t, meals, 2)

	f.batches.commitLost = false
	again, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.ElementsMatch(t, []string{meals[0].ID, meals[1].ID}, again.ParentIDs)
}

func TestApplyCommitOutcomeUnknownIsInconsistent(t *testing.T) {
	f := newFixture()
	f.batches.commitLost = true
	f.batches.failGets = true

	_, err := f.engine.ApplyMealPlan(context.Background(), mealPlan(), "")
	aerr := applyError(t, err)
	assert.Equal(t, KindInconsistentState, aerr.Kind)
	assert.Len(t, aerr.CommittedIDs, 2)
	// записи не удаляются вслепую
	assert.Len(t, f.meals(t), 2)
}

func TestApplyCommitSurvivesCancelledRequest(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	commits := &cancelOnCommit{BatchesStorage: f.store.GetBatchesStorage(), cancel: cancel}
	f.engine.batches = commits

	receipt, err := f.engine.ApplyMealPlan(ctx, mealPlan(), "")
	require.NoError(t, err)
	assert.Len(t, receipt.ParentIDs, 2)
	assert.Len(t, f.meals(t), 2)
}

// cancelOnCommit cancels the request right before the commit reaches the store.
type cancelOnCommit struct {
	storage.BatchesStorage
	cancel context.CancelFunc
}

func (c *cancelOnCommit) CommitBatch(ctx context.Context, key, claimID string, receipt []byte, ids []string) error {
	c.cancel()
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.BatchesStorage.CommitBatch(ctx, key, claimID, receipt, ids)
}

func TestApplyRejectsEmptyPlan(t *testing.T) {
	f := newFixture()

	_, err := f.engine.ApplyMealPlan(context.Background(), &plannormalize.MealPlan{UserID: "u1", Date: "2024-05-01"}, "")
	assert.ErrorIs(t, err, plannormalize.ErrEmptyPlan)

	_, err = f.engine.ApplyWorkout(context.Background(), nil, "")
	assert.ErrorIs(t, err, plannormalize.ErrEmptyPlan)
}

func TestApplyWorkoutPersistsSession(t *testing.T) {
	f := newFixture()

	receipt, err := f.engine.ApplyWorkout(context.Background(), workout(), "")
	require.NoError(t, err)
	assert.Equal(t, "u1:2024-05-01:workout", receipt.BatchKey)
	assert.Equal(t, 2, receipt.ResolvedCount)
	assert.Equal(t, 1, receipt.SkippedCount)
	assert.Nil(t, receipt.Totals)
	require.Len(t, receipt.ParentIDs, 1)

	sessions, err := f.store.GetDiaryStorage().ListWorkoutSessions(context.Background(), "u1", "2024-05-01")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, receipt.ParentIDs[0], sessions[0].ID)
	assert.Equal(t, "Грудь", sessions[0].Notes)
	require.Len(t, sessions[0].Sets, 2)
	assert.Equal(t, 1, sessions[0].Sets[0].SetNumber)
	assert.Equal(t, 2, sessions[0].Sets[1].SetNumber)

	again, err := f.engine.ApplyWorkout(context.Background(), workout(), "")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, receipt.ParentIDs, again.ParentIDs)
}

func TestApplyWorkoutCancelledBeforeCommitRollsBack(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.diary.onCreate = func(int) { cancel() }

	_, err := f.engine.ApplyWorkout(ctx, workout(), "")
	aerr := applyError(t, err)
	assert.Equal(t, KindPartialPersistFailure, aerr.Kind)

	sessions, err := f.store.GetDiaryStorage().ListWorkoutSessions(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestApplyWorkoutCreateFailureReleasesKey(t *testing.T) {
	f := newFixture()
	f.diary.failCreateAt = 1

	_, err := f.engine.ApplyWorkout(context.Background(), workout(), "")
	aerr := applyError(t, err)
	assert.Equal(t, KindPartialPersistFailure, aerr.Kind)

	_, ok, err := f.store.GetBatchesStorage().GetBatch(context.Background(), aerr.Key)
	require.NoError(t, err)
	assert.False(t, ok)
}
