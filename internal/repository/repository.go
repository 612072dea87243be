// Package repository содержит хранилища записей платформы: в памяти, SQLite и PostgreSQL.
//
// Все реализации хранят JSON-документы в именованных бакетах. Каждая запись несёт версию,
// которая используется для оптимистичной блокировки при обновлении.
package repository

import "errors"

var (
	// ErrNotFound возвращается, если запись отсутствует в бакете.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict возвращается, если запись была изменена после чтения.
	ErrVersionConflict = errors.New("record version conflict")
)

// Record описывает сохранённый документ.
//
// Version равна нулю у ещё не сохранённой записи. Put с нулевой версией создаёт запись,
// Put с положительной версией обновляет запись только при совпадении версии.
type Record struct {
	Bucket  string
	ID      string
	Payload []byte
	Version int64
}
