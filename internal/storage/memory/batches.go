package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fdg312/fitdiary/internal/storage"
	"github.com/google/uuid"
)

type batchesStorage struct {
	mu      sync.Mutex
	batches map[string]*storage.ApplyBatch // key: idempotency_key
	now     func() time.Time
}

func newBatchesStorage() *batchesStorage {
	return &batchesStorage{
		batches: make(map[string]*storage.ApplyBatch),
		now:     time.Now,
	}
}

func (s *batchesStorage) ClaimBatch(ctx context.Context, batch storage.ApplyBatch, lease time.Duration) (storage.ApplyBatch, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.ApplyBatch{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if existing, ok := s.batches[batch.IdempotencyKey]; ok {
		// зависший pending: владелец не закоммитил и не освободил ключ за lease
		if existing.Status == storage.BatchStatusPending && lease > 0 && now.Sub(existing.UpdatedAt) > lease {
			existing.ClaimID = uuid.New().String()
			existing.UpdatedAt = now
			return copyBatch(existing), true, nil
		}
		return copyBatch(existing), false, nil
	}

	batch.Status = storage.BatchStatusPending
	batch.ClaimID = uuid.New().String()
	batch.Receipt = nil
	batch.CommittedIDs = nil
	batch.CreatedAt = now
	batch.UpdatedAt = now
	s.batches[batch.IdempotencyKey] = &batch

	return copyBatch(&batch), true, nil
}

// owned returns the pending batch held by claimID. Caller holds mu.
func (s *batchesStorage) owned(key, claimID string) (*storage.ApplyBatch, bool) {
	batch, ok := s.batches[key]
	if !ok || batch.Status != storage.BatchStatusPending || batch.ClaimID != claimID {
		return nil, false
	}
	return batch, true
}

func (s *batchesStorage) CommitBatch(ctx context.Context, key, claimID string, receipt []byte, committedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.owned(key, claimID)
	if !ok {
		return storage.ErrBatchNotOwned
	}

	batch.Status = storage.BatchStatusCommitted
	batch.Receipt = append([]byte(nil), receipt...)
	batch.CommittedIDs = append([]string(nil), committedIDs...)
	batch.UpdatedAt = s.now().UTC()
	return nil
}

func (s *batchesStorage) ReleaseBatch(ctx context.Context, key, claimID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owned(key, claimID); !ok {
		return storage.ErrBatchNotOwned
	}
	delete(s.batches, key)
	return nil
}

func (s *batchesStorage) MarkBatchInconsistent(ctx context.Context, key, claimID string, committedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.owned(key, claimID)
	if !ok {
		return storage.ErrBatchNotOwned
	}

	batch.Status = storage.BatchStatusInconsistent
	batch.CommittedIDs = append([]string(nil), committedIDs...)
	batch.UpdatedAt = s.now().UTC()
	return nil
}

func (s *batchesStorage) GetBatch(ctx context.Context, key string) (storage.ApplyBatch, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[key]
	if !ok {
		return storage.ApplyBatch{}, false, nil
	}
	return copyBatch(batch), true, nil
}

func copyBatch(b *storage.ApplyBatch) storage.ApplyBatch {
	out := *b
	out.Receipt = append([]byte(nil), b.Receipt...)
	out.CommittedIDs = append([]string(nil), b.CommittedIDs...)
	return out
}
