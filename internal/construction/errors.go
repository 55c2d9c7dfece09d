package construction

import "errors"

var (
	ErrInvalidID       = errors.New("некорректный идентификатор постройки")
	ErrRoomExists      = errors.New("комната уже существует")
	ErrRoomNotFound    = errors.New("комната не найдена")
	ErrIndexOutOfRange = errors.New("индекс сущности вне диапазона")
	ErrNoBounds        = errors.New("у постройки не заданы границы")
)
