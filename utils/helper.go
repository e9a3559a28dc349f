package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/facturino/books_backend/config"
	"github.com/shopspring/decimal"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// RoundCents rounds a decimal money amount (in cents) to a whole number of cents,
// half away from zero. All derived movement costs go through this.
func RoundCents(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// StockLock obtains a best-effort cross-instance lock for one stock ledger key.
// Reliability must not depend on Redis: posting is also serialized by the process-local
// keyed mutex and by MySQL advisory locks inside the posting transaction. When Redis is
// not configured the call is a no-op.
//
// The returned release func must be called after the posting transaction commits.
func StockLock(ctx context.Context, key string, moduleName string, functionName string) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	logger := config.GetLogger()
	lockKey := fmt.Sprintf("stockLock:%s", key)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	})
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain stock lock", key, err)
		return nil, errors.New("could not obtain stock lock")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining stock lock", key, err)
		return nil, err
	}
	return func() {
		_ = lock.Release(ctx)
	}, nil
}
