package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mmeshcher/olea-platform/internal/model"
	"github.com/mmeshcher/olea-platform/internal/repository"
)

// CompletionXP начисляется ведущему технику при завершении заказа.
const CompletionXP = 50

// workOrderTransitions задаёт штатные переходы жизненного цикла заказа.
var workOrderTransitions = map[model.WorkOrderStatus][]model.WorkOrderStatus{
	model.WorkOrderStatusUnassigned: {model.WorkOrderStatusAssigned},
	model.WorkOrderStatusAssigned:   {model.WorkOrderStatusAccepted},
	model.WorkOrderStatusAccepted:   {model.WorkOrderStatusInProgress},
	model.WorkOrderStatusInProgress: {model.WorkOrderStatusCompleted},
	model.WorkOrderStatusCompleted:  {model.WorkOrderStatusValidated},
}

// assignableStatuses перечисляет статусы, из которых допускается (пере)назначение техников.
var assignableStatuses = []model.WorkOrderStatus{
	model.WorkOrderStatusUnassigned,
	model.WorkOrderStatusAssigned,
	model.WorkOrderStatusAccepted,
}

// technicianStatuses перечисляет статусы, которые выставляет только ведущий техник заказа.
var technicianStatuses = []model.WorkOrderStatus{
	model.WorkOrderStatusAccepted,
	model.WorkOrderStatusInProgress,
	model.WorkOrderStatusCompleted,
}

// CanTransition сообщает, допустим ли штатный переход между статусами заказа.
func CanTransition(from, to model.WorkOrderStatus) bool {
	return lo.Contains(workOrderTransitions[from], to)
}

// WorkOrderFilter ограничивает выборку заказов. Пустые поля не фильтруют.
type WorkOrderFilter struct {
	Status       model.WorkOrderStatus
	LeadTechID   string
	TechnicianID string
	UpdatedSince time.Time
}

// WorkOrderPatch содержит изменяемые описательные поля заказа.
type WorkOrderPatch struct {
	Title        *string
	Description  *string
	ClientName   *string
	Address      *string
	PendingTasks *string
}

// Assignment описывает назначение техников и бюджета на заказ.
type Assignment struct {
	LeadTechID   string
	LeadTechName string
	SupportTechs []model.Technician
	Funds        float64
}

// StatusChange описывает запрос смены статуса заказа вместе с артефактами завершения.
//
// Override разрешает любой переход в обход таблицы переходов (административная правка).
type StatusChange struct {
	Status           model.WorkOrderStatus
	PendingTasks     *string
	Signature        *string
	CompletionPhotos []string
	ActorID          string
	Override         bool
}

func (c StatusChange) hasEvidence() bool {
	return c.PendingTasks != nil || c.Signature != nil || c.CompletionPhotos != nil
}

// GetWorkOrder возвращает заказ по идентификатору.
func (s *Service) GetWorkOrder(ctx context.Context, id string) (*model.WorkOrder, error) {
	var w model.WorkOrder
	version, err := s.get(ctx, bucketWorkOrders, id, &w)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWorkOrderNotFound
		}
		return nil, fmt.Errorf("get work order: %w", err)
	}
	w.Version = version
	return &w, nil
}

// ListWorkOrders возвращает заказы, подходящие под фильтр, упорядоченные по идентификатору.
func (s *Service) ListWorkOrders(ctx context.Context, f WorkOrderFilter) ([]model.WorkOrder, error) {
	all, err := list(ctx, s, bucketWorkOrders, func(w *model.WorkOrder, v int64) { w.Version = v })
	if err != nil {
		return nil, err
	}

	return lo.Filter(all, func(w model.WorkOrder, _ int) bool {
		if f.Status != "" && w.Status != f.Status {
			return false
		}
		if f.LeadTechID != "" && w.LeadTechID != f.LeadTechID {
			return false
		}
		if f.TechnicianID != "" && !w.HasTechnician(f.TechnicianID) {
			return false
		}
		if !f.UpdatedSince.IsZero() && !w.UpdatedAt.After(f.UpdatedSince) {
			return false
		}
		return true
	}), nil
}

// CreateWorkOrder создаёт заказ. Статус ASSIGNED выставляется, если указан ведущий техник.
func (s *Service) CreateWorkOrder(ctx context.Context, w model.WorkOrder) (*model.WorkOrder, error) {
	if strings.TrimSpace(w.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if w.AssignedFunds < 0 {
		return nil, ErrInvalidAmount
	}

	now := s.now()
	w.Status = model.WorkOrderStatusUnassigned
	if w.LeadTechID != "" {
		w.Status = model.WorkOrderStatusAssigned
	}
	if w.SupportTechs == nil {
		w.SupportTechs = []model.Technician{}
	}
	w.IsLocked = false
	w.CreatedAt = now
	w.UpdatedAt = now

	err := s.retryOnConflict(ctx, func() error {
		id, err := s.nextWorkOrderID(ctx, now.Year())
		if err != nil {
			return err
		}
		w.ID = id

		version, err := s.put(ctx, bucketWorkOrders, w.ID, w, 0)
		if err != nil {
			return err
		}
		w.Version = version
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create work order: %w", err)
	}

	s.metrics.WorkOrderTransition(w.Status)
	return &w, nil
}

// nextWorkOrderID выдаёт идентификатор OT-<год>-<номер> со следующим номером в пределах года.
func (s *Service) nextWorkOrderID(ctx context.Context, year int) (string, error) {
	all, err := list(ctx, s, bucketWorkOrders, func(*model.WorkOrder, int64) {})
	if err != nil {
		return "", err
	}

	prefix := fmt.Sprintf("OT-%d-", year)
	maxSeq := 0
	for _, w := range all {
		if !strings.HasPrefix(w.ID, prefix) {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimPrefix(w.ID, prefix))
		if err == nil && seq > maxSeq {
			maxSeq = seq
		}
	}
	return fmt.Sprintf("%s%03d", prefix, maxSeq+1), nil
}

// mutateWorkOrder выполняет чтение-изменение-запись заказа с повтором при конфликте версий.
func (s *Service) mutateWorkOrder(ctx context.Context, id string, fn func(w *model.WorkOrder) error) (*model.WorkOrder, error) {
	var out *model.WorkOrder
	err := s.retryOnConflict(ctx, func() error {
		w, err := s.GetWorkOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(w); err != nil {
			return err
		}
		w.UpdatedAt = s.now()

		version, err := s.put(ctx, bucketWorkOrders, w.ID, w, w.Version)
		if err != nil {
			return err
		}
		w.Version = version
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssignWorkOrder назначает ведущего техника, помощников и бюджет; статус становится ASSIGNED.
// Повторный вызов перезаписывает назначение, а не дополняет его.
func (s *Service) AssignWorkOrder(ctx context.Context, id string, a Assignment) (*model.WorkOrder, error) {
	if a.LeadTechID == "" {
		return nil, fmt.Errorf("%w: lead technician is required", ErrValidation)
	}
	if a.Funds < 0 {
		return nil, ErrInvalidAmount
	}

	w, err := s.mutateWorkOrder(ctx, id, func(w *model.WorkOrder) error {
		if w.IsLocked {
			return ErrWorkOrderLocked
		}
		if !lo.Contains(assignableStatuses, w.Status) {
			return fmt.Errorf("%w: cannot assign work order in status %s", ErrInvalidTransition, w.Status)
		}

		w.Status = model.WorkOrderStatusAssigned
		w.LeadTechID = a.LeadTechID
		w.LeadTechName = a.LeadTechName
		w.SupportTechs = a.SupportTechs
		if w.SupportTechs == nil {
			w.SupportTechs = []model.Technician{}
		}
		w.AssignedFunds = a.Funds
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.WorkOrderTransition(w.Status)
	return w, nil
}

// UpdateWorkOrderStatus переводит заказ в новый статус и сохраняет артефакты завершения.
// Работу по заказу и артефакты завершения фиксирует только ведущий техник.
// Блокировка заказа выставляется тогда и только тогда, когда статус VALIDATED.
func (s *Service) UpdateWorkOrderStatus(ctx context.Context, id string, c StatusChange) (*model.WorkOrder, error) {
	if !c.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, c.Status)
	}

	var previous model.WorkOrderStatus
	w, err := s.mutateWorkOrder(ctx, id, func(w *model.WorkOrder) error {
		previous = w.Status

		if c.PendingTasks != nil {
			w.PendingTasks = *c.PendingTasks
		}
		if c.Signature != nil {
			w.Signature = *c.Signature
		}
		if c.CompletionPhotos != nil {
			w.CompletionPhotos = c.CompletionPhotos
		}

		if !c.Override {
			if !CanTransition(w.Status, c.Status) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, c.Status)
			}
			if (lo.Contains(technicianStatuses, c.Status) || c.hasEvidence()) && c.ActorID != w.LeadTechID {
				return ErrNotLeadTechnician
			}
			if c.Status == model.WorkOrderStatusAssigned && w.LeadTechID == "" {
				return fmt.Errorf("%w: lead technician is required", ErrValidation)
			}
			if c.Status == model.WorkOrderStatusCompleted && strings.TrimSpace(w.Signature) == "" {
				return fmt.Errorf("%w: signature is required to complete", ErrValidation)
			}
		}

		now := s.now()
		switch c.Status {
		case model.WorkOrderStatusInProgress:
			w.StartedAt = &now
		case model.WorkOrderStatusCompleted:
			w.CompletedAt = &now
		case model.WorkOrderStatusValidated:
			w.ValidatedAt = &now
			w.ValidatedBy = c.ActorID
		}

		w.Status = c.Status
		w.IsLocked = c.Status == model.WorkOrderStatusValidated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.WorkOrderTransition(w.Status)
	if c.Override {
		s.logger.Warn("work order status overridden",
			zap.String("otID", w.ID),
			zap.String("from", string(previous)),
			zap.String("to", string(w.Status)),
			zap.String("actor", c.ActorID),
		)
	}

	if w.Status == model.WorkOrderStatusCompleted && previous != model.WorkOrderStatusCompleted && w.LeadTechID != "" {
		if _, err := s.AddXP(ctx, w.LeadTechID, CompletionXP, model.XPReasonOTCompleted); err != nil {
			s.logger.Error("add completion xp error", zap.Error(err), zap.String("otID", w.ID))
		}
	}

	return w, nil
}

// UpdateWorkOrder изменяет описательные поля заказа.
func (s *Service) UpdateWorkOrder(ctx context.Context, id string, p WorkOrderPatch) (*model.WorkOrder, error) {
	return s.mutateWorkOrder(ctx, id, func(w *model.WorkOrder) error {
		if w.IsLocked {
			return ErrWorkOrderLocked
		}
		if p.Title != nil {
			if strings.TrimSpace(*p.Title) == "" {
				return fmt.Errorf("%w: title is required", ErrValidation)
			}
			w.Title = *p.Title
		}
		if p.Description != nil {
			w.Description = *p.Description
		}
		if p.ClientName != nil {
			w.ClientName = *p.ClientName
		}
		if p.Address != nil {
			w.Address = *p.Address
		}
		if p.PendingTasks != nil {
			w.PendingTasks = *p.PendingTasks
		}
		return nil
	})
}

// AddSupplementalFunds увеличивает бюджет заказа на указанную сумму.
func (s *Service) AddSupplementalFunds(ctx context.Context, id string, amount float64) (*model.WorkOrder, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	return s.mutateWorkOrder(ctx, id, func(w *model.WorkOrder) error {
		if w.IsLocked {
			return ErrWorkOrderLocked
		}
		w.AssignedFunds = fromCents(toCents(w.AssignedFunds) + toCents(amount))
		return nil
	})
}
