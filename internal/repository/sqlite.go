package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteRepository хранит записи в файле SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository открывает файл базы, создавая каталоги при необходимости, и применяет миграции.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path == "" {
		path = "olea.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite допускает одного писателя; одно соединение исключает SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	if err := runMigrations(ctx, db, "sqlite3", "migrations/sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

// Close закрывает файл базы.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Get возвращает запись по бакету и идентификатору.
func (r *SQLiteRepository) Get(ctx context.Context, bucket, id string) (Record, error) {
	rec := Record{Bucket: bucket, ID: id}
	err := r.db.QueryRowContext(ctx,
		`SELECT payload, version FROM records WHERE bucket = ? AND id = ?`,
		bucket, id,
	).Scan(&rec.Payload, &rec.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List возвращает все записи бакета, упорядоченные по идентификатору.
func (r *SQLiteRepository) List(ctx context.Context, bucket string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payload, version FROM records WHERE bucket = ? ORDER BY id`,
		bucket,
	)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (r *SQLiteRepository) Put(ctx context.Context, rec Record) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if rec.Version == 0 {
		res, err = r.db.ExecContext(ctx,
			`INSERT INTO records (bucket, id, payload, version) VALUES (?, ?, ?, 1)
			 ON CONFLICT (bucket, id) DO NOTHING`,
			rec.Bucket, rec.ID, rec.Payload,
		)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE records SET payload = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
			 WHERE bucket = ? AND id = ? AND version = ?`,
			rec.Payload, rec.Bucket, rec.ID, rec.Version,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("put record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return 0, ErrVersionConflict
	}
	return rec.Version + 1, nil
}

// Seed заполняет бакет начальными записями, если он ещё ни разу не заполнялся.
func (r *SQLiteRepository) Seed(ctx context.Context, bucket string, recs []Record) (seeded bool, retErr error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil || !seeded {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO buckets (name) VALUES (?) ON CONFLICT (name) DO NOTHING`,
		bucket,
	)
	if err != nil {
		return false, fmt.Errorf("insert bucket marker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (bucket, id, payload, version) VALUES (?, ?, ?, 1)
			 ON CONFLICT (bucket, id) DO NOTHING`,
			bucket, rec.ID, rec.Payload,
		); err != nil {
			return false, fmt.Errorf("insert seed record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}
