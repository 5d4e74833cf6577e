package workflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdflearn/internal/analysis"
	"pdflearn/internal/model"
)

func TestPoller(t *testing.T) {
	p := Poller{Interval: 2 * time.Millisecond, Timeout: 500 * time.Millisecond}

	t.Run("stops at the first terminal status", func(t *testing.T) {
		var calls atomic.Int32
		rep, err := p.Poll(context.Background(), func(context.Context) (*analysis.StatusReport, error) {
			if calls.Add(1) < 3 {
				return &analysis.StatusReport{Status: model.JobPending}, nil
			}
			return &analysis.StatusReport{Status: model.JobCancelled}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, model.JobCancelled, rep.Status)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("fetch errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		boom := errors.New("boom")
		_, err := p.Poll(context.Background(), func(context.Context) (*analysis.StatusReport, error) {
			calls.Add(1)
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("times out while pending", func(t *testing.T) {
		short := Poller{Interval: 2 * time.Millisecond, Timeout: 20 * time.Millisecond}
		_, err := short.Poll(context.Background(), func(context.Context) (*analysis.StatusReport, error) {
			return &analysis.StatusReport{Status: model.JobPending}, nil
		})
		assert.ErrorIs(t, err, ErrPollTimeout)
	})

	t.Run("requests never overlap", func(t *testing.T) {
		var inFlight, maxInFlight, calls atomic.Int32
		_, err := p.Poll(context.Background(), func(context.Context) (*analysis.StatusReport, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			time.Sleep(3 * time.Millisecond)
			if calls.Add(1) < 5 {
				return &analysis.StatusReport{Status: model.JobPending}, nil
			}
			return &analysis.StatusReport{Status: model.JobDone}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(1), maxInFlight.Load())
	})

	t.Run("cancellation is honored", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := Poller{Interval: time.Hour, Timeout: 2 * time.Hour}
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		_, err := slow.Poll(ctx, func(context.Context) (*analysis.StatusReport, error) {
			return &analysis.StatusReport{Status: model.JobPending}, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})
}
