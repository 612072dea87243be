// Package service реализует бизнес-логику платформы Olea Controls: жизненный цикл рабочих
// заказов, учёт расходов и остатка бюджета, начисление опыта и кадровый справочник.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/olea-platform/internal/model"
	"github.com/mmeshcher/olea-platform/internal/repository"
)

const (
	bucketWorkOrders = "work_orders"
	bucketExpenses   = "expenses"
	bucketPlayers    = "players"
	bucketEmployees  = "employees"
)

// maxAttempts ограничивает число повторов чтения-изменения-записи при конфликте версий.
const maxAttempts = 3

var (
	// ErrWorkOrderNotFound возвращается, если рабочий заказ не найден.
	ErrWorkOrderNotFound = errors.New("work order not found")
	// ErrExpenseNotFound возвращается, если расход не найден.
	ErrExpenseNotFound = errors.New("expense not found")
	// ErrPlayerNotFound возвращается, если игровой профиль не найден.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrEmployeeNotFound возвращается, если сотрудник не найден.
	ErrEmployeeNotFound = errors.New("employee not found")
	// ErrInvalidTransition возвращается при недопустимой смене статуса.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrWorkOrderLocked возвращается при попытке изменить подтверждённый заказ.
	ErrWorkOrderLocked = errors.New("work order is locked")
	// ErrInvalidAmount возвращается при неположительной сумме.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrNotLeadTechnician возвращается, если расход или ход работ по заказу фиксирует не ведущий техник.
	ErrNotLeadTechnician = errors.New("only the lead technician may record expenses or evidence")
	// ErrVersionConflict возвращается, если запись не удалось сохранить из-за параллельных изменений.
	ErrVersionConflict = repository.ErrVersionConflict
)

// Repository описывает контракт хранилища записей, используемый сервисом.
type Repository interface {
	Close() error
	Get(ctx context.Context, bucket, id string) (repository.Record, error)
	List(ctx context.Context, bucket string) ([]repository.Record, error)
	Put(ctx context.Context, rec repository.Record) (int64, error)
	Seed(ctx context.Context, bucket string, recs []repository.Record) (bool, error)
}

// Connectivity сообщает, доступна ли центральная система в момент вызова.
type Connectivity interface {
	Online() bool
}

// Uploader передаёт накопленные офлайн расходы в центральную систему.
type Uploader interface {
	PushExpenses(ctx context.Context, expenses []model.Expense) error
}

// Metrics получает события доменных операций.
type Metrics interface {
	WorkOrderTransition(status model.WorkOrderStatus)
	ExpenseSaved(status model.SyncStatus)
	ExpensesSynced(n int)
}

type nopMetrics struct{}

func (nopMetrics) WorkOrderTransition(model.WorkOrderStatus) {}
func (nopMetrics) ExpenseSaved(model.SyncStatus)             {}
func (nopMetrics) ExpensesSynced(int)                        {}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithUploader задаёт клиент выгрузки расходов в центральную систему.
func WithUploader(u Uploader) Option {
	return func(s *Service) { s.uploader = u }
}

// WithMetrics задаёт приёмник доменных метрик.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service содержит бизнес-логику платформы.
type Service struct {
	repo     Repository
	conn     Connectivity
	uploader Uploader
	metrics  Metrics
	logger   *zap.Logger
	now      func() time.Time

	seedMu sync.Mutex
	seeded map[string]bool
}

// NewService создаёт сервис поверх хранилища и признака доступности центральной системы.
func NewService(repo Repository, conn Connectivity, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		conn:    conn,
		metrics: nopMetrics{},
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
		seeded:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Online сообщает текущее состояние связи с центральной системой.
func (s *Service) Online() bool {
	if s.conn == nil {
		return true
	}
	return s.conn.Online()
}

func (s *Service) ensureSeeded(ctx context.Context, bucket string) error {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()

	if s.seeded[bucket] {
		return nil
	}

	recs, err := seedRecords(bucket)
	if err != nil {
		return err
	}

	created, err := s.repo.Seed(ctx, bucket, recs)
	if err != nil {
		return fmt.Errorf("seed %s: %w", bucket, err)
	}
	if created {
		s.logger.Info("bucket seeded", zap.String("bucket", bucket), zap.Int("records", len(recs)))
	}

	s.seeded[bucket] = true
	return nil
}

func (s *Service) get(ctx context.Context, bucket, id string, v any) (int64, error) {
	if err := s.ensureSeeded(ctx, bucket); err != nil {
		return 0, err
	}

	rec, err := s.repo.Get(ctx, bucket, id)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(rec.Payload, v); err != nil {
		return 0, fmt.Errorf("decode %s/%s: %w", bucket, id, err)
	}
	return rec.Version, nil
}

func (s *Service) put(ctx context.Context, bucket, id string, v any, version int64) (int64, error) {
	if err := s.ensureSeeded(ctx, bucket); err != nil {
		return 0, err
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode %s/%s: %w", bucket, id, err)
	}

	return s.repo.Put(ctx, repository.Record{
		Bucket:  bucket,
		ID:      id,
		Payload: payload,
		Version: version,
	})
}

// list декодирует все записи бакета; setVersion переносит версию хранилища в документ.
func list[T any](ctx context.Context, s *Service, bucket string, setVersion func(*T, int64)) ([]T, error) {
	if err := s.ensureSeeded(ctx, bucket); err != nil {
		return nil, err
	}

	recs, err := s.repo.List(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", bucket, err)
	}

	res := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := json.Unmarshal(rec.Payload, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", bucket, rec.ID, err)
		}
		setVersion(&v, rec.Version)
		res = append(res, v)
	}
	return res, nil
}

// retryOnConflict повторяет fn, пока хранилище сообщает о конфликте версий.
func (s *Service) retryOnConflict(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < maxAttempts; i++ {
		err = fn()
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
