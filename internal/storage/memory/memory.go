package memory

import (
	"github.com/fdg312/fitdiary/internal/storage"
)

// MemoryStorage — in-memory реализация storage.Storage
type MemoryStorage struct {
	catalog *catalogStorage
	diary   *diaryStorage
	batches *batchesStorage
}

// New создаёт пустой MemoryStorage
func New() *MemoryStorage {
	return &MemoryStorage{
		catalog: newCatalogStorage(),
		diary:   newDiaryStorage(),
		batches: newBatchesStorage(),
	}
}

func (m *MemoryStorage) GetCatalogStorage() storage.CatalogStorage {
	return m.catalog
}

func (m *MemoryStorage) GetDiaryStorage() storage.DiaryStorage {
	return m.diary
}

func (m *MemoryStorage) GetBatchesStorage() storage.BatchesStorage {
	return m.batches
}

func (m *MemoryStorage) Close() error {
	return nil
}
