package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MariaStore реализует ConstructionStore для MariaDB/MySQL.
// Использует таблицу constructions(id, payload).
type MariaStore struct {
	db *sql.DB
}

// NewMariaStore подключается к базе и создаёт таблицу, если её нет.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaStore(dsn string) (*MariaStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	store := &MariaStore{db: db}
	if err := store.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return store, nil
}

// NewMariaStoreFromDB оборачивает готовое соединение (таблица должна существовать)
func NewMariaStoreFromDB(db *sql.DB) *MariaStore {
	return &MariaStore{db: db}
}

func (s *MariaStore) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS constructions (
			id         VARCHAR(191) PRIMARY KEY,
			payload    LONGBLOB     NOT NULL,
			updated_at TIMESTAMP    DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE    CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка создания таблицы constructions: %w", err)
	}
	return nil
}

// Save использует INSERT ... ON DUPLICATE KEY UPDATE
func (s *MariaStore) Save(ctx context.Context, id string, data []byte) error {
	query := `
		INSERT INTO constructions (id, payload) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE payload = VALUES(payload)
	`
	if _, err := s.db.ExecContext(ctx, query, id, data); err != nil {
		return fmt.Errorf("ошибка сохранения постройки %s: %w", id, err)
	}
	return nil
}

// Load читает одну постройку
func (s *MariaStore) Load(ctx context.Context, id string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM constructions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки постройки %s: %w", id, err)
	}
	return data, true, nil
}

// LoadAll читает все постройки
func (s *MariaStore) LoadAll(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM constructions`)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки построек: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки: %w", err)
		}
		out[id] = data
	}
	return out, rows.Err()
}

// Delete удаляет постройку
func (s *MariaStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM constructions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("ошибка удаления постройки %s: %w", id, err)
	}
	return nil
}

// Close закрывает соединение
func (s *MariaStore) Close() error {
	return s.db.Close()
}
