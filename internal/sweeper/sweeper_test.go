package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepOverdue(context.Context) (int, error) {
	s.calls.Add(1)
	return 1, s.err
}

func Test_Run_SweepsUntilCancelled(t *testing.T) {
	s := &countingSweeper{err: errors.New("transient")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		New(s, 5*time.Millisecond, nil).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func Test_Run_DisabledInterval(t *testing.T) {
	s := &countingSweeper{}

	New(s, 0, nil).Run(context.Background())

	assert.Zero(t, s.calls.Load())
}
