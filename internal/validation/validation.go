// Package validation содержит функции валидации входных данных.
package validation

import (
	"math"
	"regexp"
)

var (
	workOrderIDRe = regexp.MustCompile(`^OT-\d{4}-\d{3,}$`)
	employeeIDRe  = regexp.MustCompile(`^EMP-\d{3,}$`)
)

// IsValidWorkOrderID проверяет формат идентификатора заказа OT-<год>-<номер>.
func IsValidWorkOrderID(id string) bool {
	return workOrderIDRe.MatchString(id)
}

// IsValidEmployeeID проверяет формат идентификатора сотрудника EMP-<номер>.
func IsValidEmployeeID(id string) bool {
	return employeeIDRe.MatchString(id)
}

// IsValidAmount проверяет, что сумма конечна, положительна и задана не точнее копейки.
func IsValidAmount(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return false
	}
	cents := v * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}
