package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/loanGuard/autherr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// run evaluates fn under timeout on its own goroutine, so a collaborator that ignores
// cancellation still yields a Denied decision on time. Panics become LookupFailed.
func run(ctx context.Context, timeout time.Duration, op string, fail func(Reason, error) Decision, fn func(context.Context) Decision) Decision {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Decision, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fail(ReasonLookupFailed, autherr.New(autherr.KindLookupFailed, op, fmt.Errorf("panic: %v", r)))
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case d := <-done:
		return d
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fail(ReasonTimeout, autherr.New(autherr.KindTimeout, op, ctx.Err()))
		}
		return fail(ReasonLookupFailed, autherr.New(autherr.KindLookupFailed, op, ctx.Err()))
	}
}

func finish(logger *zap.Logger, observe Observer, kind Kind, d Decision, start time.Time, now func() time.Time) Decision {
	elapsed := now().Sub(start)
	if d.Err != nil {
		logger.Error("gate evaluation failed",
			zap.String("gate", string(kind)),
			zap.String("evaluation_id", d.ID),
			zap.String("reason", d.Reason.String()),
			zap.Error(d.Err),
		)
	} else if d.State == Denied {
		logger.Debug("gate denied",
			zap.String("gate", string(kind)),
			zap.String("evaluation_id", d.ID),
			zap.String("reason", d.Reason.String()),
		)
	}
	if observe != nil {
		observe(kind, d, elapsed)
	}
	return d
}

func newID() string {
	return uuid.NewString()
}
