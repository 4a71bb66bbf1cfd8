package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/fitdiary/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const batchColumns = `idempotency_key, owner_user_id, kind, target_date::text, status, claim_id, receipt, committed_ids, created_at, updated_at`

// claimAttempts bounds the insert/select loop when a claim is released between the two statements.
const claimAttempts = 3

type batchesStorage struct {
	db DB
}

func newBatchesStorage(db DB) *batchesStorage {
	return &batchesStorage{db: db}
}

func scanBatch(row pgx.Row) (storage.ApplyBatch, error) {
	var b storage.ApplyBatch
	err := row.Scan(
		&b.IdempotencyKey,
		&b.OwnerUserID,
		&b.Kind,
		&b.TargetDate,
		&b.Status,
		&b.ClaimID,
		&b.Receipt,
		&b.CommittedIDs,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

func (s *batchesStorage) ClaimBatch(ctx context.Context, batch storage.ApplyBatch, lease time.Duration) (storage.ApplyBatch, bool, error) {
	insertQuery := `
		INSERT INTO apply_batches (idempotency_key, owner_user_id, kind, target_date, status, claim_id)
		VALUES ($1, $2, $3, $4, 'pending', $5)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + batchColumns

	for attempt := 0; attempt < claimAttempts; attempt++ {
		claimed, err := scanBatch(s.db.QueryRow(ctx, insertQuery,
			batch.IdempotencyKey,
			batch.OwnerUserID,
			batch.Kind,
			batch.TargetDate,
			uuid.New().String(),
		))
		if err == nil {
			return claimed, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) && !isUniqueViolation(err) {
			return storage.ApplyBatch{}, false, fmt.Errorf("failed to claim batch: %w", err)
		}

		if lease > 0 {
			taken, ok, err := s.takeOver(ctx, batch.IdempotencyKey, lease)
			if err != nil {
				return storage.ApplyBatch{}, false, err
			}
			if ok {
				return taken, true, nil
			}
		}

		existing, found, err := s.GetBatch(ctx, batch.IdempotencyKey)
		if err != nil {
			return storage.ApplyBatch{}, false, err
		}
		if found {
			return existing, false, nil
		}
		// claim released between insert and select, try again
	}

	return storage.ApplyBatch{}, false, fmt.Errorf("failed to claim batch %s: key kept changing", batch.IdempotencyKey)
}

// takeOver reassigns a pending batch whose owner has not touched it for longer than lease.
func (s *batchesStorage) takeOver(ctx context.Context, key string, lease time.Duration) (storage.ApplyBatch, bool, error) {
	query := `
		UPDATE apply_batches
		SET claim_id = $2, updated_at = now()
		WHERE idempotency_key = $1 AND status = 'pending' AND updated_at < now() - make_interval(secs => $3)
		RETURNING ` + batchColumns

	batch, err := scanBatch(s.db.QueryRow(ctx, query, key, uuid.New().String(), lease.Seconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ApplyBatch{}, false, nil
	}
	if err != nil {
		return storage.ApplyBatch{}, false, fmt.Errorf("failed to take over batch: %w", err)
	}
	return batch, true, nil
}

func (s *batchesStorage) CommitBatch(ctx context.Context, key, claimID string, receipt []byte, committedIDs []string) error {
	query := `
		UPDATE apply_batches
		SET status = 'committed', receipt = $3, committed_ids = $4, updated_at = now()
		WHERE idempotency_key = $1 AND claim_id = $2 AND status = 'pending'
	`
	result, err := s.db.Exec(ctx, query, key, claimID, receipt, nonNilIDs(committedIDs))
	if err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrBatchNotOwned
	}
	return nil
}

func (s *batchesStorage) ReleaseBatch(ctx context.Context, key, claimID string) error {
	result, err := s.db.Exec(ctx,
		`DELETE FROM apply_batches WHERE idempotency_key = $1 AND claim_id = $2 AND status = 'pending'`,
		key, claimID)
	if err != nil {
		return fmt.Errorf("failed to release batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrBatchNotOwned
	}
	return nil
}

func (s *batchesStorage) MarkBatchInconsistent(ctx context.Context, key, claimID string, committedIDs []string) error {
	query := `
		UPDATE apply_batches
		SET status = 'inconsistent', committed_ids = $3, updated_at = now()
		WHERE idempotency_key = $1 AND claim_id = $2 AND status = 'pending'
	`
	result, err := s.db.Exec(ctx, query, key, claimID, nonNilIDs(committedIDs))
	if err != nil {
		return fmt.Errorf("failed to mark batch inconsistent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrBatchNotOwned
	}
	return nil
}

func (s *batchesStorage) GetBatch(ctx context.Context, key string) (storage.ApplyBatch, bool, error) {
	query := `SELECT ` + batchColumns + ` FROM apply_batches WHERE idempotency_key = $1`

	batch, err := scanBatch(s.db.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ApplyBatch{}, false, nil
	}
	if err != nil {
		return storage.ApplyBatch{}, false, fmt.Errorf("failed to get batch: %w", err)
	}
	return batch, true, nil
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
