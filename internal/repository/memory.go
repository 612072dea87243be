package repository

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository хранит записи в памяти процесса. Потокобезопасен.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]map[string]Record
	seeded  map[string]struct{}
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]map[string]Record),
		seeded:  make(map[string]struct{}),
	}
}

// Close ничего не делает и нужен для совместимости с остальными хранилищами.
func (m *MemoryRepository) Close() error {
	return nil
}

// Get возвращает копию записи из бакета.
func (m *MemoryRepository) Get(ctx context.Context, bucket, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[bucket][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// List возвращает все записи бакета, упорядоченные по идентификатору.
func (m *MemoryRepository) List(ctx context.Context, bucket string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]Record, 0, len(m.records[bucket]))
	for _, rec := range m.records[bucket] {
		res = append(res, cloneRecord(rec))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// Put создаёт или обновляет запись с проверкой версии и возвращает новую версию.
func (m *MemoryRepository) Put(ctx context.Context, rec Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.records[rec.Bucket]
	if !ok {
		bucket = make(map[string]Record)
		m.records[rec.Bucket] = bucket
	}

	current, exists := bucket[rec.ID]
	switch {
	case rec.Version == 0 && exists:
		return 0, ErrVersionConflict
	case rec.Version > 0 && (!exists || current.Version != rec.Version):
		return 0, ErrVersionConflict
	}

	stored := cloneRecord(rec)
	stored.Version = rec.Version + 1
	bucket[rec.ID] = stored
	return stored.Version, nil
}

// Seed заполняет бакет начальными записями, если он ещё ни разу не заполнялся.
func (m *MemoryRepository) Seed(ctx context.Context, bucket string, recs []Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seeded[bucket]; ok {
		return false, nil
	}
	m.seeded[bucket] = struct{}{}

	b, ok := m.records[bucket]
	if !ok {
		b = make(map[string]Record)
		m.records[bucket] = b
	}
	for _, rec := range recs {
		if _, exists := b[rec.ID]; exists {
			continue
		}
		stored := cloneRecord(rec)
		stored.Bucket = bucket
		stored.Version = 1
		b[rec.ID] = stored
	}
	return true, nil
}

func cloneRecord(rec Record) Record {
	payload := make([]byte, len(rec.Payload))
	copy(payload, rec.Payload)
	rec.Payload = payload
	return rec
}
