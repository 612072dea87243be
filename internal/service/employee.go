package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/mmeshcher/olea-platform/internal/model"
	"github.com/mmeshcher/olea-platform/internal/repository"
)

// EmployeeFilter ограничивает выборку сотрудников.
type EmployeeFilter struct {
	Role   model.Role
	Active *bool
}

// GetEmployee возвращает карточку сотрудника.
func (s *Service) GetEmployee(ctx context.Context, id string) (*model.Employee, error) {
	var e model.Employee
	version, err := s.get(ctx, bucketEmployees, id, &e)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	e.Version = version
	return &e, nil
}

// ListEmployees возвращает сотрудников, подходящих под фильтр.
func (s *Service) ListEmployees(ctx context.Context, f EmployeeFilter) ([]model.Employee, error) {
	all, err := list(ctx, s, bucketEmployees, func(e *model.Employee, v int64) { e.Version = v })
	if err != nil {
		return nil, err
	}

	return lo.Filter(all, func(e model.Employee, _ int) bool {
		if f.Role != "" && e.Role != f.Role {
			return false
		}
		if f.Active != nil && e.Active != *f.Active {
			return false
		}
		return true
	}), nil
}

// SaveEmployee создаёт сотрудника с новым идентификатором EMP-<номер> или перезаписывает существующего.
func (s *Service) SaveEmployee(ctx context.Context, e model.Employee) (*model.Employee, error) {
	if strings.TrimSpace(e.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !e.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, e.Role)
	}
	if e.HireDate.IsZero() {
		e.HireDate = s.now()
	}

	generateID := e.ID == ""
	err := s.retryOnConflict(ctx, func() error {
		e.Version = 0
		if generateID {
			id, err := s.nextEmployeeID(ctx)
			if err != nil {
				return err
			}
			e.ID = id
		} else {
			existing, err := s.GetEmployee(ctx, e.ID)
			switch {
			case err == nil:
				e.Version = existing.Version
			case !errors.Is(err, ErrEmployeeNotFound):
				return err
			}
		}

		version, err := s.put(ctx, bucketEmployees, e.ID, e, e.Version)
		if err != nil {
			return err
		}
		e.Version = version
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save employee: %w", err)
	}
	return &e, nil
}

func (s *Service) nextEmployeeID(ctx context.Context) (string, error) {
	all, err := list(ctx, s, bucketEmployees, func(*model.Employee, int64) {})
	if err != nil {
		return "", err
	}

	maxSeq := 0
	for _, e := range all {
		if seq, err := strconv.Atoi(strings.TrimPrefix(e.ID, "EMP-")); err == nil && seq > maxSeq {
			maxSeq = seq
		}
	}
	return fmt.Sprintf("EMP-%03d", maxSeq+1), nil
}
