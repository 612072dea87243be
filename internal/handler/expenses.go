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

// ListExpenses возвращает расходы по фильтрам otId, techId, status, pendingSync.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.ExpenseFilter{
		OTID:   q.Get("otId"),
		TechID: q.Get("techId"),
		Status: model.ExpenseStatus(q.Get("status")),
	}
	if f.Status != "" && !f.Status.Valid() {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	if v := q.Get("pendingSync"); v != "" {
		pending, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "pendingSync must be boolean", http.StatusBadRequest)
			return
		}
		f.PendingSync = &pending
	}

	expenses, err := h.service.ListExpenses(r.Context(), f)
	if err != nil {
		h.writeError(w, err, "list expenses error")
		return
	}

	if len(expenses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// GetExpense возвращает расход по идентификатору.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, err := h.service.GetExpense(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get expense error", zap.String("expenseID", id))
		return
	}

	writeJSON(w, http.StatusOK, e)
}

type createExpenseRequest struct {
	OTID        string              `json:"otId"`
	Category    string              `json:"category"`
	Description string              `json:"description"`
	Amount      float64             `json:"amount"`
	Status      model.ExpenseStatus `json:"status"`
}

type expenseResponse struct {
	*model.Expense
	Financials *model.Financials `json:"financials,omitempty"`
}

// SaveExpense регистрирует расход от имени сотрудника текущей сессии.
func (h *Handler) SaveExpense(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req createExpenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validation.IsValidAmount(req.Amount) {
		http.Error(w, service.ErrInvalidAmount.Error(), http.StatusUnprocessableEntity)
		return
	}

	e, err := h.service.SaveExpense(r.Context(), model.Expense{
		OTID:        req.OTID,
		TechID:      s.EmployeeID,
		TechName:    h.employeeName(r, s.EmployeeID),
		Category:    req.Category,
		Description: req.Description,
		Amount:      req.Amount,
		Status:      req.Status,
	})
	if err != nil {
		h.writeError(w, err, "save expense error", zap.String("otID", req.OTID), zap.String("techID", s.EmployeeID))
		return
	}

	resp := expenseResponse{Expense: e}
	f, err := h.service.GetWorkOrderFinancials(r.Context(), e.OTID)
	switch {
	case err == nil:
		resp.Financials = f
	case !errors.Is(err, service.ErrWorkOrderNotFound):
		h.logger.Warn("financials after expense save error", zap.Error(err), zap.String("otID", e.OTID))
	}

	writeJSON(w, http.StatusCreated, resp)
}

type expenseStatusRequest struct {
	Status  model.ExpenseStatus `json:"status"`
	Comment string              `json:"comment"`
}

// UpdateExpenseStatus меняет статус расхода. Одобрение, отклонение и возмещение доступны руководителям;
// техник может только повторно подать собственный расход.
func (h *Handler) UpdateExpenseStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req expenseStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !isManager(s.Role) {
		if req.Status != model.ExpenseStatusSubmitted {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		current, err := h.service.GetExpense(r.Context(), id)
		if err != nil {
			h.writeError(w, err, "get expense error", zap.String("expenseID", id))
			return
		}
		if current.TechID != s.EmployeeID {
			http.Error(w, "only the owner may resubmit an expense", http.StatusForbidden)
			return
		}
	}

	e, err := h.service.UpdateExpenseStatus(r.Context(), id, req.Status, req.Comment)
	if err != nil {
		h.writeError(w, err, "update expense status error", zap.String("expenseID", id))
		return
	}

	writeJSON(w, http.StatusOK, e)
}

type syncResponse struct {
	Synced int `json:"synced"`
}

// SyncExpenses запускает выгрузку офлайн расходов в центральную систему.
func (h *Handler) SyncExpenses(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.SyncPendingExpenses(r.Context())
	if err != nil {
		h.logger.Error("sync expenses error", zap.Error(err), zap.Int("synced", n))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{Synced: n})
}
