package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresRepository предоставляет доступ к хранилищу записей в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := runMigrations(ctx, db, "postgres", "migrations/postgres"); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(r.delays) {
			return err
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Ретраим только конфликты сериализации и взаимоблокировки.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Get возвращает запись по бакету и идентификатору.
func (r *PostgresRepository) Get(ctx context.Context, bucket, id string) (Record, error) {
	rec := Record{Bucket: bucket, ID: id}
	err := r.pool.QueryRow(ctx,
		`SELECT payload, version FROM records WHERE bucket = $1 AND id = $2`,
		bucket, id,
	).Scan(&rec.Payload, &rec.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List возвращает все записи бакета, упорядоченные по идентификатору.
func (r *PostgresRepository) List(ctx context.Context, bucket string) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, payload, version
		 FROM records
		 WHERE bucket = $1
		 ORDER BY id`,
		bucket,
	)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec := Record{Bucket: bucket}
		if err := rows.Scan(&rec.ID, &rec.Payload, &rec.Version); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// Put создаёт или обновляет запись с проверкой версии и возвращает новую версию.
func (r *PostgresRepository) Put(ctx context.Context, rec Record) (int64, error) {
	var version int64
	err := r.withRetry(ctx, func() error {
		var tag pgconn.CommandTag
		var err error
		if rec.Version == 0 {
			tag, err = r.pool.Exec(ctx,
				`INSERT INTO records (bucket, id, payload, version) VALUES ($1, $2, $3, 1)
				 ON CONFLICT (bucket, id) DO NOTHING`,
				rec.Bucket, rec.ID, rec.Payload,
			)
		} else {
			tag, err = r.pool.Exec(ctx,
				`UPDATE records SET payload = $3, version = version + 1, updated_at = now()
				 WHERE bucket = $1 AND id = $2 AND version = $4`,
				rec.Bucket, rec.ID, rec.Payload, rec.Version,
			)
		}
		if err != nil {
			return fmt.Errorf("put record: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return ErrVersionConflict
		}
		version = rec.Version + 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Seed заполняет бакет начальными записями, если он ещё ни разу не заполнялся.
// Маркер бакета и записи вставляются в одной транзакции.
func (r *PostgresRepository) Seed(ctx context.Context, bucket string, recs []Record) (bool, error) {
	var seeded bool
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx,
			`INSERT INTO buckets (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
			bucket,
		)
		if err != nil {
			return fmt.Errorf("insert bucket marker: %w", err)
		}
		if tag.RowsAffected() == 0 {
			seeded = false
			return nil
		}

		batch := &pgx.Batch{}
		for _, rec := range recs {
			batch.Queue(
				`INSERT INTO records (bucket, id, payload, version) VALUES ($1, $2, $3, 1)
				 ON CONFLICT (bucket, id) DO NOTHING`,
				bucket, rec.ID, rec.Payload,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert seed records: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return seeded, nil
}
