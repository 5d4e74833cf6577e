package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"pdflearn/internal/analysis"
)

// ErrPollTimeout is returned when a job is still pending after the poll timeout.
var ErrPollTimeout = errors.New("analysis status polling timed out")

var errPending = errors.New("analysis pending")

// Poller queries a job status serially, one request at a time and Interval apart,
// until the job is terminal, Timeout elapses or the context is cancelled.
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Poll returns the first terminal report. A fetch error stops polling immediately.
func (p Poller) Poll(ctx context.Context, fetch func(ctx context.Context) (*analysis.StatusReport, error)) (*analysis.StatusReport, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	op := func() (*analysis.StatusReport, error) {
		rep, err := fetch(ctx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if !rep.Status.Terminal() {
			return nil, errPending
		}
		return rep, nil
	}

	rep, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(timeout),
	)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if errors.Is(err, errPending) {
			return nil, ErrPollTimeout
		}
		return nil, err
	}
	return rep, nil
}
