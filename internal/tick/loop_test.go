package tick

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_CommandsRunBeforeHooks(t *testing.T) {
	l := New(20, nil)
	var order []string
	l.OnTick(func(_ context.Context, tick uint64) {
		order = append(order, "hook")
	})

	done := l.Exec(func() { order = append(order, "cmd") })
	select {
	case <-done:
		t.Fatal("команда выполнена до тика")
	default:
	}

	assert.Equal(t, uint64(1), l.Step(context.Background()))
	<-done
	assert.Equal(t, []string{"cmd", "hook"}, order)
	assert.Equal(t, uint64(1), l.CurrentTick())
}

func TestLoop_PanicsAreContained(t *testing.T) {
	l := New(20, nil)
	var ran bool
	l.OnTick(func(context.Context, uint64) { panic("хук") })
	done := l.Exec(func() { panic("команда") })
	l.Exec(func() { ran = true })

	require.NotPanics(t, func() { l.Step(context.Background()) })
	<-done
	assert.True(t, ran)
}

func TestLoop_DoReturnsError(t *testing.T) {
	l := New(100, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	boom := errors.New("boom")
	assert.ErrorIs(t, l.Do(context.Background(), func() error { return boom }), boom)
	assert.NoError(t, l.Do(context.Background(), func() error { return nil }))
	assert.Greater(t, l.CurrentTick(), uint64(0))
}

func TestLoop_DoHonoursContext(t *testing.T) {
	l := New(20, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoop_SerializesConcurrentExec(t *testing.T) {
	l := New(1000, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
