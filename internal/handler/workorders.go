package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/olea-platform/internal/model"
	"github.com/mmeshcher/olea-platform/internal/service"
	"github.com/mmeshcher/olea-platform/internal/validation"
)

func etag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

// workOrderID извлекает идентификатор заказа из пути и отвечает 400 на некорректный формат.
func workOrderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validation.IsValidWorkOrderID(id) {
		http.Error(w, "malformed work order id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (h *Handler) writeWorkOrder(w http.ResponseWriter, status int, wo *model.WorkOrder) {
	w.Header().Set("ETag", etag(wo.Version))
	writeJSON(w, status, wo)
}

// ListWorkOrders возвращает заказы по фильтрам status, leadTechId, technicianId, updatedSince.
func (h *Handler) ListWorkOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.WorkOrderFilter{
		Status:       model.WorkOrderStatus(q.Get("status")),
		LeadTechID:   q.Get("leadTechId"),
		TechnicianID: q.Get("technicianId"),
	}
	if f.Status != "" && !f.Status.Valid() {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	if v := q.Get("updatedSince"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "updatedSince must be RFC3339", http.StatusBadRequest)
			return
		}
		f.UpdatedSince = since
	}

	orders, err := h.service.ListWorkOrders(r.Context(), f)
	if err != nil {
		h.writeError(w, err, "list work orders error")
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetWorkOrder возвращает заказ; ETag содержит его версию.
func (h *Handler) GetWorkOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := workOrderID(w, r)
	if !ok {
		return
	}

	wo, err := h.service.GetWorkOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get work order error", zap.String("otID", id))
		return
	}

	if r.Header.Get("If-None-Match") == etag(wo.Version) {
		w.Header().Set("ETag", etag(wo.Version))
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.writeWorkOrder(w, http.StatusOK, wo)
}

type createWorkOrderRequest struct {
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	ClientName    string             `json:"clientName"`
	Address       string             `json:"address"`
	LeadTechID    string             `json:"leadTechId"`
	LeadTechName  string             `json:"leadTechName"`
	SupportTechs  []model.Technician `json:"supportTechs"`
	AssignedFunds float64            `json:"assignedFunds"`
}

// CreateWorkOrder создаёт заказ.
func (h *Handler) CreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req createWorkOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AssignedFunds != 0 && !validation.IsValidAmount(req.AssignedFunds) {
		http.Error(w, service.ErrInvalidAmount.Error(), http.StatusUnprocessableEntity)
		return
	}
	if req.LeadTechID != "" && req.LeadTechName == "" {
		req.LeadTechName = h.employeeName(r, req.LeadTechID)
	}

	wo, err := h.service.CreateWorkOrder(r.Context(), model.WorkOrder{
		Title:         req.Title,
		Description:   req.Description,
		ClientName:    req.ClientName,
		Address:       req.Address,
		LeadTechID:    req.LeadTechID,
		LeadTechName:  req.LeadTechName,
		SupportTechs:  req.SupportTechs,
		AssignedFunds: req.AssignedFunds,
	})
	if err != nil {
		h.writeError(w, err, "create work order error")
		return
	}

	h.writeWorkOrder(w, http.StatusCreated, wo)
}

type patchWorkOrderRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	ClientName   *string `json:"clientName"`
	Address      *string `json:"address"`
	PendingTasks *string `json:"pendingTasks"`
}

// UpdateWorkOrder изменяет описательные поля заказа.
func (h *Handler) UpdateWorkOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := workOrderID(w, r)
	if !ok {
		return
	}

	var req patchWorkOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	wo, err := h.service.UpdateWorkOrder(r.Context(), id, service.WorkOrderPatch(req))
	if err != nil {
		h.writeError(w, err, "update work order error", zap.String("otID", id))
		return
	}

	h.writeWorkOrder(w, http.StatusOK, wo)
}

type assignRequest struct {
	LeadTechID   string             `json:"leadTechId"`
	LeadTechName string             `json:"leadTechName"`
	SupportTechs []model.Technician `json:"supportTechs"`
	Funds        float64            `json:"funds"`
}

// AssignWorkOrder назначает техников и бюджет.
func (h *Handler) AssignWorkOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := workOrderID(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Funds != 0 && !validation.IsValidAmount(req.Funds) {
		http.Error(w, service.ErrInvalidAmount.Error(), http.StatusUnprocessableEntity)
		return
	}
	if req.LeadTechID != "" && req.LeadTechName == "" {
		req.LeadTechName = h.employeeName(r, req.LeadTechID)
	}

	wo, err := h.service.AssignWorkOrder(r.Context(), id, service.Assignment(req))
	if err != nil {
		h.writeError(w, err, "assign work order error", zap.String("otID", id))
		return
	}

	h.writeWorkOrder(w, http.StatusOK, wo)
}

type statusRequest struct {
	Status           model.WorkOrderStatus `json:"status"`
	PendingTasks     *string               `json:"pendingTasks"`
	Signature        *string               `json:"signature"`
	CompletionPhotos []string              `json:"completionPhotos"`
	Override         bool                  `json:"override"`
}

// UpdateWorkOrderStatus меняет статус заказа. VALIDATED доступен руководителям, override только администратору.
func (h *Handler) UpdateWorkOrderStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := workOrderID(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Override && s.Role != model.RoleAdmin {
		http.Error(w, "override requires ADMIN", http.StatusForbidden)
		return
	}
	if req.Status == model.WorkOrderStatusValidated && !isManager(s.Role) {
		http.Error(w, "validation requires ADMIN or SUPERVISOR", http.StatusForbidden)
		return
	}

	wo, err := h.service.UpdateWorkOrderStatus(r.Context(), id, service.StatusChange{
		Status:           req.Status,
		PendingTasks:     req.PendingTasks,
		Signature:        req.Signature,
		CompletionPhotos: req.CompletionPhotos,
		ActorID:          s.EmployeeID,
		Override:         req.Override,
	})
	if err != nil {
		h.writeError(w, err, "update work order status error", zap.String("otID", id))
		return
	}

	h.writeWorkOrder(w, http.StatusOK, wo)
}

type fundsRequest struct {
	Amount float64 `json:"amount"`
}

// AddSupplementalFunds увеличивает бюджет заказа.
func (h *Handler) AddSupplementalFunds(w http.ResponseWriter, r *http.Request) {
	id, ok := workOrderID(w, r)
	if !ok {
		return
	}

	var req fundsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validation.IsValidAmount(req.Amount) {
		http.Error(w, service.ErrInvalidAmount.Error(), http.StatusUnprocessableEntity)
		return
	}

	wo, err := h.service.AddSupplementalFunds(r.Context(), id, req.Amount)
	if err != nil {
		h.writeError(w, err, "add funds error", zap.String("otID", id))
		return
	}

	h.writeWorkOrder(w, http.StatusOK, wo)
}

// GetWorkOrderFinancials возвращает расчёт остатка бюджета заказа.
func (h *Handler) GetWorkOrderFinancials(w http.ResponseWriter, r *http.Request) {
	id, ok := workOrderID(w, r)
	if !ok {
		return
	}

	f, err := h.service.GetWorkOrderFinancials(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get financials error", zap.String("otID", id))
		return
	}

	writeJSON(w, http.StatusOK, f)
}

func (h *Handler) employeeName(r *http.Request, id string) string {
	emp, err := h.service.GetEmployee(r.Context(), id)
	if err != nil {
		return ""
	}
	return emp.Name
}
