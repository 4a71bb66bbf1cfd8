package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fdg312/fitdiary/internal/storage"
)

const testLease = time.Minute

func TestClaimBatchIsAtomic(t *testing.T) {
	st := New().GetBatchesStorage()
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	claimed := make(chan bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := st.ClaimBatch(ctx, storage.ApplyBatch{IdempotencyKey: "k1", OwnerUserID: "u1", Kind: storage.BatchKindMealPlan}, testLease)
			if err != nil {
				t.Errorf("claim: %v", err)
			}
			claimed <- ok
		}()
	}
	wg.Wait()
	close(claimed)

	winners := 0
	for ok := range claimed {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", winners)
	}
}

func TestBatchLifecycle(t *testing.T) {
	st := New().GetBatchesStorage()
	ctx := context.Background()

	b, ok, _ := st.ClaimBatch(ctx, storage.ApplyBatch{IdempotencyKey: "k1"}, testLease)
	if !ok {
		t.Fatal("expected first claim to succeed")
	}
	if b.ClaimID == "" {
		t.Fatal("expected claim id on a fresh claim")
	}

	if err := st.CommitBatch(ctx, "k1", "other-claim", []byte(`{}`), nil); !errors.Is(err, storage.ErrBatchNotOwned) {
		t.Fatalf("expected ErrBatchNotOwned committing with a foreign claim id, got %v", err)
	}
	if err := st.CommitBatch(ctx, "k1", b.ClaimID, []byte(`{"ok":true}`), []string{"m1"}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	existing, ok, _ := st.ClaimBatch(ctx, storage.ApplyBatch{IdempotencyKey: "k1"}, testLease)
	if ok {
		t.Fatal("expected second claim to return existing batch")
	}
	if existing.Status != storage.BatchStatusCommitted || string(existing.Receipt) != `{"ok":true}` {
		t.Fatalf("unexpected existing batch: %+v", existing)
	}

	if err := st.ReleaseBatch(ctx, "k1", b.ClaimID); !errors.Is(err, storage.ErrBatchNotOwned) {
		t.Fatalf("expected ErrBatchNotOwned releasing committed batch, got %v", err)
	}
}

func TestReleaseBatchAllowsReclaim(t *testing.T) {
	st := New().GetBatchesStorage()
	ctx := context.Background()

	b, _, _ := st.ClaimBatch(ctx, storage.ApplyBatch{IdempotencyKey: "k1"}, testLease)
	if err := st.ReleaseBatch(ctx, "k1", b.ClaimID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := st.ClaimBatch(ctx, storage.ApplyBatch{IdempotencyKey: "k1"}, testLease); !ok {
		t.Fatal("expected claim after release to succeed")
	}
}

func TestStalePendingClaimIsTakenOver(t *testing.T) {
	st := newBatchesStorage()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return now }

	first, ok, _ := st.ClaimBatch(ctx, storage.ApplyBatch{IdempotencyKey: "k1"}, testLease)
	if !ok {
		t.Fatal("expected first claim to succeed")
	}

	now = now.Add(30 * time.Second)
	if _, ok, _ := st.ClaimBatch(ctx, storage.ApplyBatch{IdempotencyKey: "k1"}, testLease); ok {
		t.Fatal("expected live claim to be kept")
	}

	now = now.Add(2 * time.Minute)
	second, ok, _ := st.ClaimBatch(ctx, storage.ApplyBatch{IdempotencyKey: "k1"}, testLease)
	if !ok {
		t.Fatal("expected stale claim to be taken over")
	}
	if second.ClaimID == first.ClaimID {
		t.Fatal("expected a new claim id after takeover")
	}

	// прежний владелец больше ничего не может сделать с ключом
	if err := st.CommitBatch(ctx, "k1", first.ClaimID, []byte(`{}`), nil); !errors.Is(err, storage.ErrBatchNotOwned) {
		t.Fatalf("expected ErrBatchNotOwned for stale owner commit, got %v", err)
	}
	if err := st.ReleaseBatch(ctx, "k1", first.ClaimID); !errors.Is(err, storage.ErrBatchNotOwned) {
		t.Fatalf("expected ErrBatchNotOwned for stale owner release, got %v", err)
	}
	if err := st.MarkBatchInconsistent(ctx, "k1", first.ClaimID, []string{"m1"}); !errors.Is(err, storage.ErrBatchNotOwned) {
		t.Fatalf("expected ErrBatchNotOwned for stale owner mark, got %v", err)
	}
	if err := st.CommitBatch(ctx, "k1", second.ClaimID, []byte(`{}`), []string{"m2"}); err != nil {
		t.Fatalf("commit by new owner: %v", err)
	}

	// committed не перехватывается никогда
	now = now.Add(time.Hour)
	if _, ok, _ := st.ClaimBatch(ctx, storage.ApplyBatch{IdempotencyKey: "k1"}, testLease); ok {
		t.Fatal("committed batch must not be taken over")
	}
}

func TestDiaryMealRoundTrip(t *testing.T) {
	st := New().GetDiaryStorage()
	ctx := context.Background()

	created, err := st.CreateMealBatch(ctx, storage.DiaryMeal{
		OwnerUserID: "u1",
		MealDate:    "2024-05-01",
		MealType:    "breakfast",
		Items: []storage.DiaryMealItem{
			{Position: 1, Name: "Овсянка", QuantityG: 150, Calories: 90},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Items[0].MealID != created.ID {
		t.Fatalf("expected ids assigned, got %+v", created)
	}

	meals, _ := st.ListMeals(ctx, "u1", "2024-05-01")
	if len(meals) != 1 {
		t.Fatalf("expected 1 meal, got %d", len(meals))
	}

	other, _ := st.ListMeals(ctx, "u2", "2024-05-01")
	if len(other) != 0 {
		t.Fatalf("expected meals scoped by owner, got %d", len(other))
	}

	if err := st.DeleteMeal(ctx, "u2", created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if err := st.DeleteMeal(ctx, "u1", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	meals, _ = st.ListMeals(ctx, "u1", "2024-05-01")
	if len(meals) != 0 {
		t.Fatalf("expected no meals after delete, got %d", len(meals))
	}
}

func TestCatalogUpsertByKey(t *testing.T) {
	st := New().GetCatalogStorage()
	ctx := context.Background()

	first, _ := st.UpsertFood(ctx, storage.FoodProductUpsert{Name: "Овсянка", NameKey: "овсянка", KcalPer100g: 60})
	second, _ := st.UpsertFood(ctx, storage.FoodProductUpsert{Name: "Овсянка", NameKey: "овсянка", KcalPer100g: 68})

	if first.ID != second.ID {
		t.Fatalf("expected upsert to keep id, got %s and %s", first.ID, second.ID)
	}

	found, ok, _ := st.FindFoodByKey(ctx, "овсянка")
	if !ok || found.KcalPer100g != 68 {
		t.Fatalf("expected updated product, got %+v (found=%v)", found, ok)
	}

	results, _ := st.SearchFoods(ctx, "овс", 10)
	if len(results) != 1 {
		t.Fatalf("expected 1 search hit, got %d", len(results))
	}
}
