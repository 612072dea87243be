package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mmeshcher/olea-platform/internal/model"
	"github.com/mmeshcher/olea-platform/internal/repository"
)

// expenseTransitions задаёт допустимые переходы статусов расхода.
var expenseTransitions = map[model.ExpenseStatus][]model.ExpenseStatus{
	model.ExpenseStatusDraft:     {model.ExpenseStatusSubmitted},
	model.ExpenseStatusSubmitted: {model.ExpenseStatusApproved, model.ExpenseStatusRejected},
	model.ExpenseStatusRejected:  {model.ExpenseStatusSubmitted},
	model.ExpenseStatusApproved:  {model.ExpenseStatusReimbursed},
}

// ExpenseFilter ограничивает выборку расходов. Пустые поля не фильтруют.
type ExpenseFilter struct {
	OTID        string
	TechID      string
	Status      model.ExpenseStatus
	PendingSync *bool
}

func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(c int64) float64 {
	return float64(c) / 100
}

func newExpenseID() string {
	return "EXP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// GetExpense возвращает расход по идентификатору.
func (s *Service) GetExpense(ctx context.Context, id string) (*model.Expense, error) {
	var e model.Expense
	version, err := s.get(ctx, bucketExpenses, id, &e)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExpenseNotFound
		}
		return nil, fmt.Errorf("get expense: %w", err)
	}
	e.Version = version
	return &e, nil
}

// ListExpenses возвращает расходы, подходящие под фильтр.
func (s *Service) ListExpenses(ctx context.Context, f ExpenseFilter) ([]model.Expense, error) {
	all, err := list(ctx, s, bucketExpenses, func(e *model.Expense, v int64) { e.Version = v })
	if err != nil {
		return nil, err
	}

	return lo.Filter(all, func(e model.Expense, _ int) bool {
		if f.OTID != "" && e.OTID != f.OTID {
			return false
		}
		if f.TechID != "" && e.TechID != f.TechID {
			return false
		}
		if f.Status != "" && e.Status != f.Status {
			return false
		}
		if f.PendingSync != nil && e.PendingSync != *f.PendingSync {
			return false
		}
		return true
	}), nil
}

// SaveExpense регистрирует новый расход. При настроенной выгрузке расход сразу передаётся
// в центральную систему; если она недоступна или выгрузка не удалась, расход остаётся
// ожидающим синхронизации. Превышение бюджета заказа не блокирует запись.
func (s *Service) SaveExpense(ctx context.Context, e model.Expense) (*model.Expense, error) {
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.OTID == "" {
		return nil, fmt.Errorf("%w: otId is required", ErrValidation)
	}
	if e.TechID == "" {
		return nil, fmt.Errorf("%w: techId is required", ErrValidation)
	}
	if e.Status == "" {
		e.Status = model.ExpenseStatusSubmitted
	}
	if e.Status != model.ExpenseStatusDraft && e.Status != model.ExpenseStatusSubmitted {
		return nil, fmt.Errorf("%w: new expense must be %s or %s", ErrValidation, model.ExpenseStatusDraft, model.ExpenseStatusSubmitted)
	}

	w, err := s.GetWorkOrder(ctx, e.OTID)
	switch {
	case errors.Is(err, ErrWorkOrderNotFound):
		// Расход на несуществующий заказ допускается.
		s.logger.Warn("expense references unknown work order", zap.String("otID", e.OTID))
	case err != nil:
		return nil, err
	case w.IsLocked:
		return nil, ErrWorkOrderLocked
	case w.LeadTechID != e.TechID:
		return nil, ErrNotLeadTechnician
	}

	now := s.now()
	markPending(&e, !s.Online() || s.uploader != nil)
	e.CreatedAt = now
	e.UpdatedAt = now
	e.SyncedAt = nil
	e.LastComment = ""

	err = s.retryOnConflict(ctx, func() error {
		e.ID = newExpenseID()
		version, err := s.put(ctx, bucketExpenses, e.ID, e, 0)
		if err != nil {
			return err
		}
		e.Version = version
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save expense: %w", err)
	}

	saved := s.pushNow(ctx, &e)
	s.metrics.ExpenseSaved(saved.SyncStatus)
	return saved, nil
}

// markPending выставляет признаки синхронизации расхода.
func markPending(e *model.Expense, pending bool) {
	e.PendingSync = pending
	e.SyncStatus = model.SyncStatusSynced
	if pending {
		e.SyncStatus = model.SyncStatusOffline
	}
}

// pushNow выгружает ожидающий расход, если есть связь и клиент выгрузки.
// При ошибке расход остаётся ожидающим и будет передан при следующей синхронизации.
func (s *Service) pushNow(ctx context.Context, e *model.Expense) *model.Expense {
	if !e.PendingSync || s.uploader == nil || !s.Online() {
		return e
	}

	if err := s.uploader.PushExpenses(ctx, []model.Expense{*e}); err != nil {
		s.logger.Warn("expense push deferred", zap.Error(err), zap.String("expenseID", e.ID))
		return e
	}

	synced, err := s.markSynced(ctx, e.ID)
	if err != nil {
		s.logger.Error("mark expense synced error", zap.Error(err), zap.String("expenseID", e.ID))
		return e
	}
	s.metrics.ExpensesSynced(1)
	return synced
}

func (s *Service) markSynced(ctx context.Context, id string) (*model.Expense, error) {
	return s.mutateExpense(ctx, id, func(e *model.Expense) error {
		if !e.PendingSync {
			return errAlreadySynced
		}
		now := s.now()
		markPending(e, false)
		e.SyncedAt = &now
		return nil
	})
}

func (s *Service) mutateExpense(ctx context.Context, id string, fn func(e *model.Expense) error) (*model.Expense, error) {
	var out *model.Expense
	err := s.retryOnConflict(ctx, func() error {
		e, err := s.GetExpense(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		e.UpdatedAt = s.now()

		version, err := s.put(ctx, bucketExpenses, e.ID, e, e.Version)
		if err != nil {
			return err
		}
		e.Version = version
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateExpenseStatus меняет статус расхода (одобрение, отклонение, возмещение) с комментарием.
// При настроенной выгрузке изменение передаётся в центральную систему так же, как новый расход.
func (s *Service) UpdateExpenseStatus(ctx context.Context, id string, status model.ExpenseStatus, comment string) (*model.Expense, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	e, err := s.mutateExpense(ctx, id, func(e *model.Expense) error {
		if !lo.Contains(expenseTransitions[e.Status], status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, status)
		}
		e.Status = status
		e.LastComment = comment
		if s.uploader != nil || !s.Online() {
			markPending(e, true)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.pushNow(ctx, e), nil
}

// GetWorkOrderFinancials рассчитывает освоение бюджета заказа по его неотклонённым расходам.
func (s *Service) GetWorkOrderFinancials(ctx context.Context, otID string) (*model.Financials, error) {
	w, err := s.GetWorkOrder(ctx, otID)
	if err != nil {
		return nil, err
	}

	expenses, err := s.ListExpenses(ctx, ExpenseFilter{OTID: otID})
	if err != nil {
		return nil, err
	}

	counted := lo.Filter(expenses, func(e model.Expense, _ int) bool {
		return e.Status != model.ExpenseStatusRejected
	})
	spent := lo.SumBy(counted, func(e model.Expense) int64 { return toCents(e.Amount) })
	balance := toCents(w.AssignedFunds) - spent

	return &model.Financials{
		OTID:          w.ID,
		AssignedFunds: w.AssignedFunds,
		TotalSpent:    fromCents(spent),
		Balance:       fromCents(balance),
		IsOverLimit:   balance < 0,
		Expenses:      counted,
	}, nil
}

// SyncPendingExpenses выгружает ожидающие расходы и помечает их синхронизированными.
// Возвращает число синхронизированных расходов.
func (s *Service) SyncPendingExpenses(ctx context.Context) (int, error) {
	pending := true
	expenses, err := s.ListExpenses(ctx, ExpenseFilter{PendingSync: &pending})
	if err != nil {
		return 0, err
	}
	if len(expenses) == 0 {
		return 0, nil
	}

	if s.uploader != nil {
		if err := s.uploader.PushExpenses(ctx, expenses); err != nil {
			return 0, fmt.Errorf("push pending expenses: %w", err)
		}
	}

	synced := 0
	for _, e := range expenses {
		_, err := s.markSynced(ctx, e.ID)
		switch {
		case errors.Is(err, errAlreadySynced):
		case err != nil:
			s.metrics.ExpensesSynced(synced)
			return synced, fmt.Errorf("mark expense %s synced: %w", e.ID, err)
		default:
			synced++
		}
	}

	s.metrics.ExpensesSynced(synced)
	s.logger.Info("pending expenses synced", zap.Int("count", synced))
	return synced, nil
}

var errAlreadySynced = errors.New("expense already synced")
