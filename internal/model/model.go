// Package model содержит доменные сущности платформы Olea Controls.
package model

import "time"

// WorkOrderStatus описывает этап жизненного цикла рабочего заказа (OT).
type WorkOrderStatus string

const (
	WorkOrderStatusUnassigned WorkOrderStatus = "UNASSIGNED"
	WorkOrderStatusAssigned   WorkOrderStatus = "ASSIGNED"
	WorkOrderStatusAccepted   WorkOrderStatus = "ACCEPTED"
	WorkOrderStatusInProgress WorkOrderStatus = "IN_PROGRESS"
	WorkOrderStatusCompleted  WorkOrderStatus = "COMPLETED"
	WorkOrderStatusValidated  WorkOrderStatus = "VALIDATED"
)

// Valid сообщает, является ли статус одним из известных.
func (s WorkOrderStatus) Valid() bool {
	switch s {
	case WorkOrderStatusUnassigned, WorkOrderStatusAssigned, WorkOrderStatusAccepted,
		WorkOrderStatusInProgress, WorkOrderStatusCompleted, WorkOrderStatusValidated:
		return true
	}
	return false
}

// Technician описывает техника, привязанного к заказу.
type Technician struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WorkOrder описывает рабочий заказ с назначенными техниками и бюджетом.
type WorkOrder struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	ClientName       string          `json:"clientName,omitempty"`
	Address          string          `json:"address,omitempty"`
	Status           WorkOrderStatus `json:"status"`
	LeadTechID       string          `json:"leadTechId,omitempty"`
	LeadTechName     string          `json:"leadTechName,omitempty"`
	SupportTechs     []Technician    `json:"supportTechs"`
	AssignedFunds    float64         `json:"assignedFunds"`
	IsLocked         bool            `json:"isLocked"`
	PendingTasks     string          `json:"pendingTasks,omitempty"`
	Signature        string          `json:"signature,omitempty"`
	CompletionPhotos []string        `json:"completionPhotos,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	StartedAt        *time.Time      `json:"startedAt,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	ValidatedAt      *time.Time      `json:"validatedAt,omitempty"`
	ValidatedBy      string          `json:"validatedBy,omitempty"`
	Version          int64           `json:"version"`
}

// HasTechnician сообщает, участвует ли техник в заказе как ведущий или помощник.
func (w *WorkOrder) HasTechnician(id string) bool {
	if w.LeadTechID == id {
		return true
	}
	for _, t := range w.SupportTechs {
		if t.ID == id {
			return true
		}
	}
	return false
}

// ExpenseStatus описывает статус отчёта о расходах.
type ExpenseStatus string

const (
	ExpenseStatusDraft      ExpenseStatus = "DRAFT"
	ExpenseStatusSubmitted  ExpenseStatus = "SUBMITTED"
	ExpenseStatusApproved   ExpenseStatus = "APPROVED"
	ExpenseStatusRejected   ExpenseStatus = "REJECTED"
	ExpenseStatusReimbursed ExpenseStatus = "REIMBURSED"
)

// Valid сообщает, является ли статус одним из известных.
func (s ExpenseStatus) Valid() bool {
	switch s {
	case ExpenseStatusDraft, ExpenseStatusSubmitted, ExpenseStatusApproved,
		ExpenseStatusRejected, ExpenseStatusReimbursed:
		return true
	}
	return false
}

// SyncStatus описывает состояние синхронизации расхода с центральной системой.
type SyncStatus string

const (
	SyncStatusOffline SyncStatus = "OFFLINE"
	SyncStatusSynced  SyncStatus = "SYNCED"
)

// Expense описывает расход техника, привязанный к рабочему заказу.
type Expense struct {
	ID          string        `json:"id"`
	OTID        string        `json:"otId"`
	TechID      string        `json:"techId"`
	TechName    string        `json:"techName,omitempty"`
	Category    string        `json:"category,omitempty"`
	Description string        `json:"description,omitempty"`
	Amount      float64       `json:"amount"`
	Status      ExpenseStatus `json:"status"`
	LastComment string        `json:"lastComment,omitempty"`
	PendingSync bool          `json:"pendingSync"`
	SyncStatus  SyncStatus    `json:"syncStatus"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	SyncedAt    *time.Time    `json:"syncedAt,omitempty"`
	Version     int64         `json:"version"`
}

// Financials содержит расчёт освоения бюджета заказа. Не сохраняется.
type Financials struct {
	OTID          string    `json:"otId"`
	AssignedFunds float64   `json:"assignedFunds"`
	TotalSpent    float64   `json:"totalSpent"`
	Balance       float64   `json:"balance"`
	IsOverLimit   bool      `json:"isOverLimit"`
	Expenses      []Expense `json:"expenses"`
}

// XPReason описывает причину начисления опыта.
type XPReason string

const (
	XPReasonOTCompleted  XPReason = "OT_COMPLETED"
	XPReasonPerfectScore XPReason = "PERFECT_SCORE"
)

// Player описывает игровой профиль сотрудника.
type Player struct {
	ID              string    `json:"id"`
	Name            string    `json:"name,omitempty"`
	XP              int64     `json:"xp"`
	Level           int64     `json:"level"`
	CompletedOTs    int64     `json:"completedOTs"`
	PerfectServices int64     `json:"perfectServices"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Version         int64     `json:"version"`
}

// LevelForXP возвращает уровень для накопленного опыта.
func LevelForXP(xp int64) int64 {
	return xp/100 + 1
}

// Role описывает роль сотрудника на платформе.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSupervisor Role = "SUPERVISOR"
	RoleTechnician Role = "TECHNICIAN"
	RoleHR         Role = "HR"
	RoleSales      Role = "SALES"
)

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleTechnician, RoleHR, RoleSales:
		return true
	}
	return false
}

// Employee описывает запись сотрудника в кадровом справочнике.
type Employee struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Role       Role      `json:"role"`
	Department string    `json:"department,omitempty"`
	Position   string    `json:"position,omitempty"`
	HireDate   time.Time `json:"hireDate"`
	Active     bool      `json:"active"`
	Version    int64     `json:"version"`
}
