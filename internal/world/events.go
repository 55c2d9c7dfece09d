package world

import "github.com/annel0/constructs/internal/vec"

// EventType тип события уровня
type EventType uint8

const (
	EventChunkLoaded EventType = iota
	EventChunkUnloaded
)

func (t EventType) String() string {
	switch t {
	case EventChunkLoaded:
		return "chunk_loaded"
	case EventChunkUnloaded:
		return "chunk_unloaded"
	default:
		return "unknown"
	}
}

// ChunkEvent событие загрузки или выгрузки колонки чанка
type ChunkEvent struct {
	Type  EventType
	Level string
	Chunk vec.ChunkPos
}

// ChunkHandler получатель событий чанков. Вызывается вне блокировок уровня.
type ChunkHandler func(ChunkEvent)
