package storage

import (
	"context"
	"errors"
)

// ErrStoreClosed возвращается при обращении к закрытому хранилищу
var ErrStoreClosed = errors.New("хранилище не готово")

// ConstructionStore непрозрачное долговременное хранилище построек.
// Ключ: идентификатор постройки, значение: закодированный снимок (см. Codec).
// Формат значения хранилищу безразличен.
type ConstructionStore interface {
	// Save сохраняет или перезаписывает запись.
	Save(ctx context.Context, id string, data []byte) error

	// Load возвращает запись; found=false, если её нет.
	Load(ctx context.Context, id string) (data []byte, found bool, err error)

	// LoadAll возвращает все записи.
	LoadAll(ctx context.Context) (map[string][]byte, error)

	// Delete удаляет запись. Отсутствие записи ошибкой не считается.
	Delete(ctx context.Context, id string) error

	// Close освобождает ресурсы.
	Close() error
}
