package spawn

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/constructs/internal/vec"
)

// ErrChunkOccupied чанк уже зарезервирован другой оценкой
var ErrChunkOccupied = errors.New("чанк занят")

// ReservingEvaluator резервирует чанк и передаёт его следующему вычислителю.
// Повторный регион до очистки резервов отклоняется.
type ReservingEvaluator struct {
	Occupied *OccupiedChunks
	Next     Evaluator
}

func (e *ReservingEvaluator) Evaluate(ctx context.Context, level Level, chunk vec.ChunkPos) error {
	if !e.Occupied.Reserve(level.Name(), chunk.X, chunk.Z) {
		return fmt.Errorf("%w: %s (%d,%d)", ErrChunkOccupied, level.Name(), chunk.X, chunk.Z)
	}
	if e.Next == nil {
		return nil
	}
	return e.Next.Evaluate(ctx, level, chunk)
}
