package tx

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	dErrors "agora/pkg/domain-errors"
)

// numShards spreads keys across independent mutexes so unrelated mandates
// never contend on one global lock.
const numShards = 128

// ShardedRunner is the in-memory Runner. Keys hash onto sharded mutexes; the
// in-memory stores rely on callers validating before saving, since there is
// nothing to roll back.
type ShardedRunner struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

// NewShardedRunner constructs an in-memory Runner.
func NewShardedRunner(timeout time.Duration) *ShardedRunner {
	return &ShardedRunner{timeout: timeout}
}

// heldShardsKey scopes the held set to one runner; a nested call on a
// different runner still takes that runner's lock.
type heldShardsKey struct {
	runner *ShardedRunner
}

func (r *ShardedRunner) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	shard := shardFor(key)
	held, _ := ctx.Value(heldShardsKey{runner: r}).(map[int]bool)
	if held[shard] {
		return fn(ctx)
	}

	ctx, cancel := withDefaultTimeout(ctx, r.timeout)
	defer cancel()

	r.shards[shard].Lock()
	defer r.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	next := make(map[int]bool, len(held)+1)
	for k := range held {
		next[k] = true
	}
	next[shard] = true
	return fn(context.WithValue(ctx, heldShardsKey{runner: r}, next))
}

func shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % numShards)
}
