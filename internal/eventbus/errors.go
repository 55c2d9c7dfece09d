package eventbus

import "errors"

// ErrBusClosed шина закрыта
var ErrBusClosed = errors.New("eventbus: шина закрыта")
