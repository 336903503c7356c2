package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/vipul43/ledger-sync-worker/internal/connector"
)

// Messages that mean retrying cannot help. Matched case-insensitively
// against the whole error chain's text.
var nonRetryablePatterns = []string{
	"authentication failed",
	"invalid credentials",
	"permission denied",
	"not found",
	"does not support",
	"invalid configuration",
}

// IsRetryable classifies a sync failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if connector.IsFatal(err) || errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range nonRetryablePatterns {
		if strings.Contains(msg, p) {
			return false
		}
	}
	return true
}

// Backoff is an exponential delay: Base * 2^retryCount, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the attempt that follows retryCount
// earlier retries. It never decreases as retryCount grows. Without a Max the
// delay saturates at the largest representable duration.
func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := b.Base
	for i := 0; i < retryCount; i++ {
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
		if d > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
