package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore реализует ConstructionStore в памяти.
// Используется в тестах и при запуске без внешних БД.
// ВНИМАНИЕ: данные теряются при перезапуске сервера!
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore создаёт пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Save сохраняет копию данных
func (s *MemoryStore) Save(ctx context.Context, id string, data []byte) error {
	if id == "" {
		return fmt.Errorf("пустой идентификатор постройки")
	}

	// Проверяем контекст на отмену
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.data[id] = append([]byte(nil), data...)
	return nil
}

// Load возвращает копию записи
func (s *MemoryStore) Load(ctx context.Context, id string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrStoreClosed
	}
	data, ok := s.data[id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// LoadAll возвращает копии всех записей
func (s *MemoryStore) LoadAll(ctx context.Context) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make(map[string][]byte, len(s.data))
	for id, data := range s.data {
		out[id] = append([]byte(nil), data...)
	}
	return out, nil
}

// Delete удаляет запись
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	delete(s.data, id)
	return nil
}

// Close помечает хранилище закрытым
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Len количество записей (для тестов и статистики)
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
