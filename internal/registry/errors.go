package registry

import "errors"

var (
	// ErrNotFound постройка не зарегистрирована
	ErrNotFound = errors.New("постройка не найдена")
	// ErrDuplicate идентификатор уже занят
	ErrDuplicate = errors.New("постройка уже существует")
	// ErrInvalidState операция недопустима в текущем состоянии реестра
	ErrInvalidState = errors.New("недопустимое состояние реестра")
	// ErrNoStorage хранилище не привязано (InitStorage не вызывался)
	ErrNoStorage = errors.New("хранилище не привязано")
)
