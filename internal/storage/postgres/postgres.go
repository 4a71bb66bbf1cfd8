package postgres

import (
	"context"
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/fdg312/fitdiary/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool used by the stores.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// PostgresStorage — Postgres реализация storage.Storage
type PostgresStorage struct {
	pool    *pgxpool.Pool
	catalog *catalogStorage
	diary   *diaryStorage
	batches *batchesStorage
}

// New создаёт PostgresStorage поверх пула соединений
func New(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	ps := NewWithDB(pool)
	ps.pool = pool
	return ps, nil
}

// NewWithDB builds the storage over any DB (pool or mock).
func NewWithDB(db DB) *PostgresStorage {
	return &PostgresStorage{
		catalog: newCatalogStorage(db),
		diary:   newDiaryStorage(db),
		batches: newBatchesStorage(db),
	}
}

func (p *PostgresStorage) GetCatalogStorage() storage.CatalogStorage {
	return p.catalog
}

func (p *PostgresStorage) GetDiaryStorage() storage.DiaryStorage {
	return p.diary
}

func (p *PostgresStorage) GetBatchesStorage() storage.BatchesStorage {
	return p.batches
}

func (p *PostgresStorage) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
