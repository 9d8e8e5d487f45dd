package tx

import (
	"context"
	"time"
)

// Runner provides the per-entity transactional boundary used by every engine
// service. All work done inside fn for the same key is linearized, and either
// fully applies or fully rolls back.
//
// Calls nested under an outer RunInTx reuse the outer boundary, so a service
// may call another service's public method while already holding the key.
type Runner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// defaultTxTimeout bounds a single unit of work when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
