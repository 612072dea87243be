package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/olea-platform/internal/model"
	"github.com/mmeshcher/olea-platform/internal/service"
	"github.com/mmeshcher/olea-platform/internal/validation"
)

// GetPlayer возвращает игровой профиль сотрудника.
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.service.GetPlayer(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get player error", zap.String("playerID", id))
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Leaderboard возвращает рейтинг по опыту.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	players, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		h.writeError(w, err, "leaderboard error")
		return
	}

	writeJSON(w, http.StatusOK, players)
}

type xpRequest struct {
	Amount int64          `json:"amount"`
	Reason model.XPReason `json:"reason"`
}

// AddXP начисляет опыт вручную.
func (h *Handler) AddXP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req xpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.AddXP(r.Context(), id, req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, err, "add xp error", zap.String("playerID", id))
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// ListEmployees возвращает сотрудников по фильтрам role и active.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.EmployeeFilter{Role: model.Role(q.Get("role"))}
	if f.Role != "" && !f.Role.Valid() {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "active must be boolean", http.StatusBadRequest)
			return
		}
		f.Active = &active
	}

	employees, err := h.service.ListEmployees(r.Context(), f)
	if err != nil {
		h.writeError(w, err, "list employees error")
		return
	}

	writeJSON(w, http.StatusOK, employees)
}

// GetEmployee возвращает карточку сотрудника.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validation.IsValidEmployeeID(id) {
		http.Error(w, "invalid employee id", http.StatusBadRequest)
		return
	}

	e, err := h.service.GetEmployee(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get employee error", zap.String("employeeID", id))
		return
	}

	writeJSON(w, http.StatusOK, e)
}

// SaveEmployee создаёт сотрудника (201) или перезаписывает существующего (200).
func (h *Handler) SaveEmployee(w http.ResponseWriter, r *http.Request) {
	var req model.Employee
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID != "" && !validation.IsValidEmployeeID(req.ID) {
		http.Error(w, "invalid employee id", http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	if req.ID == "" {
		status = http.StatusCreated
	} else if _, err := h.service.GetEmployee(r.Context(), req.ID); errors.Is(err, service.ErrEmployeeNotFound) {
		status = http.StatusCreated
	}

	e, err := h.service.SaveEmployee(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "save employee error", zap.String("employeeID", req.ID))
		return
	}

	writeJSON(w, status, e)
}
