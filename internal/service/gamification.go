package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mmeshcher/olea-platform/internal/model"
	"github.com/mmeshcher/olea-platform/internal/repository"
)

// GetPlayer возвращает игровой профиль сотрудника.
func (s *Service) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	var p model.Player
	version, err := s.get(ctx, bucketPlayers, id, &p)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("get player: %w", err)
	}
	p.Version = version
	return &p, nil
}

// AddXP начисляет опыт сотруднику, создавая профиль при первом начислении, и пересчитывает уровень.
// Повторный вызов с теми же аргументами начисляет опыт повторно.
func (s *Service) AddXP(ctx context.Context, userID string, amount int64, reason model.XPReason) (*model.Player, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	var out *model.Player
	err := s.retryOnConflict(ctx, func() error {
		p, err := s.GetPlayer(ctx, userID)
		switch {
		case errors.Is(err, ErrPlayerNotFound):
			p = &model.Player{ID: userID}
			if emp, err := s.GetEmployee(ctx, userID); err == nil {
				p.Name = emp.Name
			}
		case err != nil:
			return err
		}

		p.XP += amount
		p.Level = model.LevelForXP(p.XP)
		switch reason {
		case model.XPReasonOTCompleted:
			p.CompletedOTs++
		case model.XPReasonPerfectScore:
			p.PerfectServices++
		}
		p.UpdatedAt = s.now()

		version, err := s.put(ctx, bucketPlayers, p.ID, p, p.Version)
		if err != nil {
			return err
		}
		p.Version = version
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Leaderboard возвращает профили по убыванию опыта. limit <= 0 означает без ограничения.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]model.Player, error) {
	players, err := list(ctx, s, bucketPlayers, func(p *model.Player, v int64) { p.Version = v })
	if err != nil {
		return nil, err
	}

	sort.SliceStable(players, func(i, j int) bool {
		if players[i].XP != players[j].XP {
			return players[i].XP > players[j].XP
		}
		return players[i].ID < players[j].ID
	})

	if limit > 0 && len(players) > limit {
		players = players[:limit]
	}
	return players, nil
}
