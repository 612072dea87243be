package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmeshcher/olea-platform/internal/model"
	"github.com/mmeshcher/olea-platform/internal/repository"
)

var seedTime = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func seedWorkOrders() []model.WorkOrder {
	started := seedTime.Add(26 * time.Hour)
	return []model.WorkOrder{
		{
			ID:           "OT-2024-001",
			Title:        "Mantenimiento preventivo de chiller",
			ClientName:   "Hospital Santa Fe",
			Address:      "Av. Vasco de Quiroga 1200",
			Status:       model.WorkOrderStatusUnassigned,
			SupportTechs: []model.Technician{},
			CreatedAt:    seedTime,
			UpdatedAt:    seedTime,
		},
		{
			ID:            "OT-2024-002",
			Title:         "Instalación de controlador BMS",
			ClientName:    "Torre Reforma",
			Address:       "Paseo de la Reforma 483",
			Status:        model.WorkOrderStatusAssigned,
			LeadTechID:    "EMP-003",
			LeadTechName:  "Carlos Méndez",
			SupportTechs:  []model.Technician{{ID: "EMP-004", Name: "Luis Ortega"}},
			AssignedFunds: 1500,
			CreatedAt:     seedTime,
			UpdatedAt:     seedTime,
		},
		{
			ID:            "OT-2024-003",
			Title:         "Calibración de sensores de presión",
			ClientName:    "Planta Toluca",
			Address:       "Carretera Toluca-Naucalpan km 52",
			Status:        model.WorkOrderStatusInProgress,
			LeadTechID:    "EMP-004",
			LeadTechName:  "Luis Ortega",
			SupportTechs:  []model.Technician{},
			AssignedFunds: 800,
			CreatedAt:     seedTime,
			UpdatedAt:     started,
			StartedAt:     &started,
		},
	}
}

func seedExpenses() []model.Expense {
	return []model.Expense{
		{
			ID:          "EXP-SEED0001",
			OTID:        "OT-2024-003",
			TechID:      "EMP-004",
			TechName:    "Luis Ortega",
			Category:    "FUEL",
			Description: "Gasolina traslado a planta",
			Amount:      350,
			Status:      model.ExpenseStatusApproved,
			SyncStatus:  model.SyncStatusSynced,
			CreatedAt:   seedTime.Add(27 * time.Hour),
			UpdatedAt:   seedTime.Add(30 * time.Hour),
		},
		{
			ID:          "EXP-SEED0002",
			OTID:        "OT-2024-003",
			TechID:      "EMP-004",
			TechName:    "Luis Ortega",
			Category:    "MATERIALS",
			Description: "Conectores y cable blindado",
			Amount:      220.5,
			Status:      model.ExpenseStatusSubmitted,
			SyncStatus:  model.SyncStatusSynced,
			CreatedAt:   seedTime.Add(28 * time.Hour),
			UpdatedAt:   seedTime.Add(28 * time.Hour),
		},
	}
}

func seedPlayers() []model.Player {
	return []model.Player{
		{ID: "EMP-003", Name: "Carlos Méndez", XP: 250, Level: model.LevelForXP(250), CompletedOTs: 5, UpdatedAt: seedTime},
		{ID: "EMP-004", Name: "Luis Ortega", XP: 120, Level: model.LevelForXP(120), CompletedOTs: 2, PerfectServices: 1, UpdatedAt: seedTime},
	}
}

func seedEmployees() []model.Employee {
	hired := time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)
	return []model.Employee{
		{ID: "EMP-001", Name: "Ana Robles", Email: "ana.robles@oleacontrols.com", Role: model.RoleAdmin, Department: "Dirección", Position: "Administradora", HireDate: hired, Active: true},
		{ID: "EMP-002", Name: "Jorge Salinas", Email: "jorge.salinas@oleacontrols.com", Role: model.RoleSupervisor, Department: "Operaciones", Position: "Supervisor de campo", HireDate: hired, Active: true},
		{ID: "EMP-003", Name: "Carlos Méndez", Email: "carlos.mendez@oleacontrols.com", Role: model.RoleTechnician, Department: "Operaciones", Position: "Técnico líder", HireDate: hired, Active: true},
		{ID: "EMP-004", Name: "Luis Ortega", Email: "luis.ortega@oleacontrols.com", Role: model.RoleTechnician, Department: "Operaciones", Position: "Técnico", HireDate: hired, Active: true},
		{ID: "EMP-005", Name: "Paola Núñez", Email: "paola.nunez@oleacontrols.com", Role: model.RoleHR, Department: "Recursos Humanos", Position: "Analista RH", HireDate: hired, Active: true},
		{ID: "EMP-006", Name: "Ricardo Vega", Email: "ricardo.vega@oleacontrols.com", Role: model.RoleSales, Department: "Comercial", Position: "Ejecutivo de ventas", HireDate: hired, Active: true},
	}
}

type seedDoc struct {
	id  string
	doc any
}

func seedRecords(bucket string) ([]repository.Record, error) {
	var docs []seedDoc

	switch bucket {
	case bucketWorkOrders:
		for _, w := range seedWorkOrders() {
			docs = append(docs, seedDoc{w.ID, w})
		}
	case bucketExpenses:
		for _, e := range seedExpenses() {
			docs = append(docs, seedDoc{e.ID, e})
		}
	case bucketPlayers:
		for _, p := range seedPlayers() {
			docs = append(docs, seedDoc{p.ID, p})
		}
	case bucketEmployees:
		for _, e := range seedEmployees() {
			docs = append(docs, seedDoc{e.ID, e})
		}
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}

	recs := make([]repository.Record, 0, len(docs))
	for _, d := range docs {
		payload, err := json.Marshal(d.doc)
		if err != nil {
			return nil, fmt.Errorf("encode seed %s/%s: %w", bucket, d.id, err)
		}
		recs = append(recs, repository.Record{Bucket: bucket, ID: d.id, Payload: payload})
	}
	return recs, nil
}
