package eventbus

import (
	"context"
	"encoding/json"

	"github.com/annel0/constructs/internal/construction"
	"github.com/annel0/constructs/internal/logging"
	"github.com/annel0/constructs/internal/vec"
)

// ChangeEvent полезная нагрузка ConstructionChanged
type ChangeEvent struct {
	ConstructionID string   `json:"construction_id"`
	RoomID         string   `json:"room_id,omitempty"`
	Kind           string   `json:"kind"`
	Pos            vec.Vec3 `json:"pos"`
}

// ValidationEvent полезная нагрузка ValidationFailed
type ValidationEvent struct {
	ConstructionID string `json:"construction_id"`
	RoomID         string `json:"room_id,omitempty"`
	Mismatches     int    `json:"mismatches"`
}

// OccupancyEvent полезная нагрузка OccupancyCleared
type OccupancyEvent struct {
	Tick   uint64 `json:"tick"`
	Chunks int    `json:"chunks"`
}

// Publisher упрощённая публикация событий подсистемы построек.
// Ошибки шины логируются и не возвращаются: события носят уведомительный характер.
type Publisher struct {
	bus    EventBus
	source string
	logger *logging.Logger
}

// NewPublisher создаёт публикатор. bus == nil даёт пустышку.
func NewPublisher(bus EventBus, source string, logger *logging.Logger) *Publisher {
	return &Publisher{bus: bus, source: source, logger: logger}
}

// PublishJSON сериализует payload и публикует событие
func (p *Publisher) PublishJSON(eventType string, priority int, payload interface{}) {
	if p == nil || p.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("не удалось сериализовать %s: %v", eventType, err)
		return
	}
	if err := p.bus.Publish(context.Background(), NewEnvelope(p.source, eventType, priority, data)); err != nil {
		p.logger.Warn("публикация %s: %v", eventType, err)
	}
}

// ChangeListener возвращает слушателя изменений постройки для construction.SetListener
func (p *Publisher) ChangeListener() construction.ChangeListener {
	return func(ch construction.Change) {
		p.PublishJSON(EventConstructionChanged, 3, ChangeEvent{
			ConstructionID: ch.ConstructionID,
			RoomID:         ch.RoomID,
			Kind:           ch.Kind.String(),
			Pos:            ch.Pos,
		})
	}
}
