package planapply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fdg312/fitdiary/internal/config"
	"github.com/fdg312/fitdiary/internal/plannormalize"
	"github.com/fdg312/fitdiary/internal/storage"
	"github.com/sethvargo/go-retry"
)

const defaultPollInterval = 100 * time.Millisecond

var errClaimPending = errors.New("batch is still pending")

// Engine persists normalized plans exactly once per idempotency key.
type Engine struct {
	diary   storage.DiaryStorage
	batches storage.BatchesStorage

	waitFor         time.Duration
	pollInterval    time.Duration
	rollbackTimeout time.Duration
	claimTTL        time.Duration
	now             func() time.Time
}

// New creates an Engine over the diary and batch stores.
func New(diary storage.DiaryStorage, batches storage.BatchesStorage, cfg config.IntakeConfig) *Engine {
	def := config.DefaultIntake()
	if cfg.ApplyWaitSeconds <= 0 {
		cfg.ApplyWaitSeconds = def.ApplyWaitSeconds
	}
	if cfg.RollbackTimeoutSeconds <= 0 {
		cfg.RollbackTimeoutSeconds = def.RollbackTimeoutSeconds
	}
	if cfg.ClaimTTLSeconds <= 0 {
		cfg.ClaimTTLSeconds = def.ClaimTTLSeconds
	}

	return &Engine{
		diary:           diary,
		batches:         batches,
		waitFor:         time.Duration(cfg.ApplyWaitSeconds) * time.Second,
		pollInterval:    defaultPollInterval,
		rollbackTimeout: time.Duration(cfg.RollbackTimeoutSeconds) * time.Second,
		claimTTL:        time.Duration(cfg.ClaimTTLSeconds) * time.Second,
		now:             time.Now,
	}
}

// ApplyMealPlan creates one diary meal per entry. An empty key is derived
// from (user, date, mealplan) plus the plan's meal type when one was given.
func (e *Engine) ApplyMealPlan(ctx context.Context, plan *plannormalize.MealPlan, key string) (*Receipt, error) {
	var userID, date, mealType string
	if plan != nil {
		userID, date, mealType = plan.UserID, plan.Date, plan.MealType
	}
	if key == "" {
		key = DeriveMealPlanKey(userID, date, mealType)
	}

	r := newRun(key, storage.BatchKindMealPlan, userID)
	if plan == nil || len(plan.Entries) == 0 {
		r.to(StateRejected)
		return nil, &plannormalize.EmptyPlanError{Plan: "mealplan"}
	}
	if err := r.to(StateNormalized); err != nil {
		return nil, err
	}

	replay, err := e.claim(ctx, r, date)
	if err != nil || replay != nil {
		return replay, err
	}

	if err := r.to(StatePersisting); err != nil {
		return nil, err
	}

	created := make([]string, 0, len(plan.Entries))
	for i, entry := range plan.Entries {
		meal := storage.DiaryMeal{
			OwnerUserID:   userID,
			BatchKey:      key,
			MealDate:      entry.MealDate,
			MealType:      entry.MealType,
			Title:         entry.Title,
			TotalCalories: entry.Totals.Calories,
			TotalProtein:  entry.Totals.Protein,
			TotalFats:     entry.Totals.Fats,
			TotalCarbs:    entry.Totals.Carbs,
			Items:         make([]storage.DiaryMealItem, 0, len(entry.Items)),
		}
		for _, it := range entry.Items {
			meal.Items = append(meal.Items, storage.DiaryMealItem{
				Position:   it.Position,
				ProductID:  it.ProductID,
				Name:       it.Name,
				Unresolved: it.Unresolved,
				QuantityG:  it.QuantityG,
				Calories:   it.Calories,
				Protein:    it.Protein,
				Fats:       it.Fats,
				Carbs:      it.Carbs,
			})
		}

		if err := ctx.Err(); err != nil {
			return nil, e.rollback(ctx, r, created, err)
		}
		saved, err := e.diary.CreateMealBatch(ctx, meal)
		if err != nil {
			return nil, e.rollback(ctx, r, created, fmt.Errorf("failed to create meal %d (%s): %w", i, entry.MealType, err))
		}
		created = append(created, saved.ID)
	}

	totals := plan.Totals
	receipt := &Receipt{
		BatchKey:        key,
		Kind:            storage.BatchKindMealPlan,
		Date:            date,
		ParentIDs:       created,
		ResolvedCount:   plan.ResolvedCount,
		UnresolvedCount: plan.UnresolvedCount,
		DroppedCount:    len(plan.Dropped),
		Totals:          &totals,
	}
	return e.commit(ctx, r, receipt, created)
}

// ApplyWorkout creates one workout session with all its sets. An empty key
// is derived from (user, date, workout).
func (e *Engine) ApplyWorkout(ctx context.Context, session *plannormalize.WorkoutSession, key string) (*Receipt, error) {
	var userID, date string
	if session != nil {
		userID, date = session.UserID, session.SessionDate
	}
	if key == "" {
		key = DeriveKey(userID, date, storage.BatchKindWorkout)
	}

	r := newRun(key, storage.BatchKindWorkout, userID)
	if session == nil || len(session.Sets) == 0 {
		r.to(StateRejected)
		return nil, &plannormalize.EmptyPlanError{Plan: "workout"}
	}
	if err := r.to(StateNormalized); err != nil {
		return nil, err
	}

	replay, err := e.claim(ctx, r, date)
	if err != nil || replay != nil {
		return replay, err
	}

	if err := r.to(StatePersisting); err != nil {
		return nil, err
	}

	ws := storage.WorkoutSession{
		OwnerUserID: userID,
		BatchKey:    key,
		SessionDate: date,
		Notes:       session.Notes,
		DurationMin: session.DurationMin,
		Sets:        make([]storage.WorkoutSet, 0, len(session.Sets)),
	}
	for _, s := range session.Sets {
		ws.Sets = append(ws.Sets, storage.WorkoutSet{
			SetNumber:    s.SetNumber,
			ExerciseID:   s.ExerciseID,
			ExerciseName: s.ExerciseName,
			Reps:         s.Reps,
			WeightKg:     s.WeightKg,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, e.rollback(ctx, r, nil, err)
	}
	saved, err := e.diary.CreateWorkoutSession(ctx, ws)
	if err != nil {
		return nil, e.rollback(ctx, r, nil, fmt.Errorf("failed to create workout session: %w", err))
	}
	created := []string{saved.ID}

	receipt := &Receipt{
		BatchKey:      key,
		Kind:          storage.BatchKindWorkout,
		Date:          date,
		ParentIDs:     created,
		ResolvedCount: len(session.Sets),
		SkippedCount:  len(session.Skipped),
	}
	return e.commit(ctx, r, receipt, created)
}

// claim takes the idempotency key. It returns a receipt when the key was already
// committed, nil when this call now owns the pending batch.
func (e *Engine) claim(ctx context.Context, r *run, date string) (*Receipt, error) {
	batch := storage.ApplyBatch{
		IdempotencyKey: r.key,
		OwnerUserID:    r.userID,
		Kind:           r.kind,
		TargetDate:     date,
	}

	existing, claimed, err := e.batches.ClaimBatch(ctx, batch, e.claimTTL)
	if err != nil {
		r.to(StateFailed)
		return nil, fmt.Errorf("failed to claim batch %q: %w", r.key, err)
	}
	if claimed {
		r.claimID = existing.ClaimID
		return nil, nil
	}

	// ключ занят: ждём, пока параллельный вызов закоммитит или освободит его,
	// либо пока его claim не протухнет
	b := retry.WithMaxDuration(e.waitFor, retry.NewConstant(e.pollInterval))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		if existing.Status != storage.BatchStatusPending {
			return nil
		}
		current, ok, err := e.batches.ClaimBatch(ctx, batch, e.claimTTL)
		if err != nil {
			return err
		}
		if ok {
			claimed = true
			r.claimID = current.ClaimID
			if current.CreatedAt.Before(current.UpdatedAt) {
				log.Printf("WARN planapply: key=%q took over stale claim", r.key)
			}
			return nil
		}
		existing = current
		if existing.Status == storage.BatchStatusPending {
			return retry.RetryableError(errClaimPending)
		}
		return nil
	})

	switch {
	case errors.Is(err, errClaimPending):
		r.to(StateFailed)
		log.Printf("WARN planapply: key=%q still pending after %s", r.key, e.waitFor)
		return nil, &ApplyError{Kind: KindInProgress, Key: r.key, Err: err}
	case err != nil:
		r.to(StateFailed)
		return nil, fmt.Errorf("failed to wait for batch %q: %w", r.key, err)
	case claimed:
		return nil, nil
	}

	switch existing.Status {
	case storage.BatchStatusCommitted:
		var receipt Receipt
		if err := json.Unmarshal(existing.Receipt, &receipt); err != nil {
			r.to(StateFailed)
			return nil, fmt.Errorf("failed to decode receipt of batch %q: %w", r.key, err)
		}
		receipt.Replayed = true
		if err := r.to(StateCommitted); err != nil {
			return nil, err
		}
		log.Printf("INFO planapply: key=%q replayed committed receipt", r.key)
		return &receipt, nil

	case storage.BatchStatusInconsistent:
		r.to(StateFailed)
		log.Printf("ERROR planapply: key=%q user=%s batch is inconsistent committed_ids=%v", r.key, r.userID, existing.CommittedIDs)
		return nil, &ApplyError{Kind: KindInconsistentState, Key: r.key, CommittedIDs: existing.CommittedIDs}

	default:
		r.to(StateFailed)
		return nil, fmt.Errorf("batch %q has unknown status %q", r.key, existing.Status)
	}
}

func (e *Engine) commit(ctx context.Context, r *run, receipt *Receipt, created []string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, e.rollback(ctx, r, created, err)
	}

	receipt.CommittedAt = e.now().UTC()
	data, err := json.Marshal(receipt)
	if err != nil {
		return nil, e.rollback(ctx, r, created, fmt.Errorf("failed to encode receipt: %w", err))
	}

	// фиксация не зависит от отмены запроса: записи уже созданы
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.rollbackTimeout)
	defer cancel()

	if err := e.batches.CommitBatch(cctx, r.key, r.claimID, data, created); err != nil {
		landed, lerr := e.commitLanded(cctx, r)
		switch {
		case lerr != nil:
			// исход неизвестен: удалять записи нельзя, коммит мог пройти
			cause := fmt.Errorf("commit outcome unknown: %w (lookup: %v)", err, lerr)
			return nil, e.markInconsistent(cctx, r, created, cause)
		case landed:
			log.Printf("WARN planapply: key=%q commit reported %v but batch is committed", r.key, err)
		default:
			return nil, e.rollback(ctx, r, created, fmt.Errorf("failed to commit batch: %w", err))
		}
	}

	if err := r.to(StateCommitted); err != nil {
		return nil, err
	}
	log.Printf("INFO planapply: key=%q committed kind=%s ids=%v", r.key, r.kind, created)
	return receipt, nil
}

// commitLanded reports whether the batch is committed under this run's claim.
func (e *Engine) commitLanded(ctx context.Context, r *run) (bool, error) {
	batch, ok, err := e.batches.GetBatch(ctx, r.key)
	if err != nil {
		return false, err
	}
	return ok && batch.Status == storage.BatchStatusCommitted && batch.ClaimID == r.claimID, nil
}

// rollback deletes created records newest first with a detached, time-bounded context.
// Success releases the key; any failed delete marks the batch inconsistent.
func (e *Engine) rollback(ctx context.Context, r *run, created []string, cause error) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.rollbackTimeout)
	defer cancel()

	var remaining []string
	for i := len(created) - 1; i >= 0; i-- {
		id := created[i]
		var err error
		if r.kind == storage.BatchKindWorkout {
			err = e.diary.DeleteWorkoutSession(rctx, r.userID, id)
		} else {
			err = e.diary.DeleteMeal(rctx, r.userID, id)
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("WARN planapply: key=%q rollback delete id=%s failed: %v", r.key, id, err)
			remaining = append(remaining, id)
		}
	}

	if len(remaining) > 0 {
		return e.markInconsistent(rctx, r, remaining, cause)
	}

	if err := r.to(StateFailed); err != nil {
		log.Printf("WARN planapply: %v", err)
	}

	err := e.batches.ReleaseBatch(rctx, r.key, r.claimID)
	switch {
	case errors.Is(err, storage.ErrBatchNotOwned):
		log.Printf("INFO planapply: key=%q claim was taken over before release", r.key)
	case err != nil:
		// ключ останется pending до истечения claim TTL, раньше повтор получит apply_in_progress
		log.Printf("ERROR planapply: key=%q release failed, key stays pending for %s: %v", r.key, e.claimTTL, err)
		log.Printf("WARN planapply: key=%q rolled back %d record(s): %v", r.key, len(created), cause)
		return &ApplyError{Kind: KindPartialPersistFailure, Key: r.key, RetryAfter: e.claimTTL, Err: cause}
	}
	log.Printf("WARN planapply: key=%q rolled back %d record(s): %v", r.key, len(created), cause)
	return &ApplyError{Kind: KindPartialPersistFailure, Key: r.key, Err: cause}
}

// markInconsistent records ids that may still exist and blocks the key.
func (e *Engine) markInconsistent(ctx context.Context, r *run, ids []string, cause error) error {
	if err := r.to(StateFailed); err != nil {
		log.Printf("WARN planapply: %v", err)
	}
	if err := e.batches.MarkBatchInconsistent(ctx, r.key, r.claimID, ids); err != nil {
		log.Printf("ERROR planapply: key=%q mark inconsistent failed: %v", r.key, err)
	}
	log.Printf("ERROR planapply: key=%q user=%s inconsistent state committed_ids=%v cause=%v", r.key, r.userID, ids, cause)
	return &ApplyError{Kind: KindInconsistentState, Key: r.key, CommittedIDs: ids, Err: cause}
}
