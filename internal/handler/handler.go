// Package handler содержит HTTP-обработчики API платформы Olea Controls.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/olea-platform/internal/middleware"
	"github.com/mmeshcher/olea-platform/internal/model"
	"github.com/mmeshcher/olea-platform/internal/service"
	"github.com/mmeshcher/olea-platform/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Online() bool

	ListWorkOrders(ctx context.Context, f service.WorkOrderFilter) ([]model.WorkOrder, error)
	GetWorkOrder(ctx context.Context, id string) (*model.WorkOrder, error)
	CreateWorkOrder(ctx context.Context, w model.WorkOrder) (*model.WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, id string, p service.WorkOrderPatch) (*model.WorkOrder, error)
	AssignWorkOrder(ctx context.Context, id string, a service.Assignment) (*model.WorkOrder, error)
	UpdateWorkOrderStatus(ctx context.Context, id string, c service.StatusChange) (*model.WorkOrder, error)
	AddSupplementalFunds(ctx context.Context, id string, amount float64) (*model.WorkOrder, error)
	GetWorkOrderFinancials(ctx context.Context, otID string) (*model.Financials, error)

	ListExpenses(ctx context.Context, f service.ExpenseFilter) ([]model.Expense, error)
	GetExpense(ctx context.Context, id string) (*model.Expense, error)
	SaveExpense(ctx context.Context, e model.Expense) (*model.Expense, error)
	UpdateExpenseStatus(ctx context.Context, id string, status model.ExpenseStatus, comment string) (*model.Expense, error)
	SyncPendingExpenses(ctx context.Context) (int, error)

	GetPlayer(ctx context.Context, id string) (*model.Player, error)
	Leaderboard(ctx context.Context, limit int) ([]model.Player, error)
	AddXP(ctx context.Context, userID string, amount int64, reason model.XPReason) (*model.Player, error)

	ListEmployees(ctx context.Context, f service.EmployeeFilter) ([]model.Employee, error)
	GetEmployee(ctx context.Context, id string) (*model.Employee, error)
	SaveEmployee(ctx context.Context, e model.Employee) (*model.Employee, error)
}

// Instrumentation отдаёт метрики и считает запросы.
type Instrumentation interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// Handler реализует HTTP-обработчики API платформы.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        Instrumentation
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. metrics может быть nil.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, metrics Instrumentation) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		metrics:        metrics,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrWorkOrderNotFound),
		errors.Is(err, service.ErrExpenseNotFound),
		errors.Is(err, service.ErrPlayerNotFound),
		errors.Is(err, service.ErrEmployeeNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrWorkOrderLocked):
		return http.StatusLocked
	case errors.Is(err, service.ErrNotLeadTechnician):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeError переводит ошибку сервиса в HTTP-ответ; непредвиденные ошибки логируются.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(code), code)
		return
	}
	http.Error(w, err.Error(), code)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (middleware.Session, bool) {
	s, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return s, ok
}

func isManager(role model.Role) bool {
	return role == model.RoleAdmin || role == model.RoleSupervisor
}

type healthResponse struct {
	Status string `json:"status"`
	Online bool   `json:"online"`
}

// Health сообщает о работоспособности и состоянии связи с центральной системой.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Online: h.service.Online()})
}

type sessionRequest struct {
	EmployeeID string `json:"employeeId"`
}

type sessionResponse struct {
	EmployeeID string     `json:"employeeId"`
	Name       string     `json:"name,omitempty"`
	Role       model.Role `json:"role"`
}

// Login открывает сессию от имени активного сотрудника.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validation.IsValidEmployeeID(req.EmployeeID) {
		http.Error(w, "invalid employee id", http.StatusBadRequest)
		return
	}

	emp, err := h.service.GetEmployee(r.Context(), req.EmployeeID)
	if err != nil {
		if errors.Is(err, service.ErrEmployeeNotFound) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.writeError(w, err, "login error", zap.String("employeeID", req.EmployeeID))
		return
	}
	if !emp.Active {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.authMiddleware.SetSessionCookie(w, middleware.Session{EmployeeID: emp.ID, Role: emp.Role})
	writeJSON(w, http.StatusOK, sessionResponse{EmployeeID: emp.ID, Name: emp.Name, Role: emp.Role})
}

// CurrentSession возвращает сотрудника текущей сессии.
func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{EmployeeID: s.EmployeeID, Role: s.Role})
}
