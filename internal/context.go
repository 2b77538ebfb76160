package internal

import (
	"context"
	"strconv"
	"time"
)

type ctxKey string

const ContextRenterKey ctxKey = "renterID"

// RenterIDFromContext returns the renter id placed on the request by the
// upstream identity layer, or 0 when absent.
func RenterIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	switch v := ctx.Value(ContextRenterKey).(type) {
	case int64:
		return v
	case string:
		id, _ := strconv.ParseInt(v, 10, 64)
		return id
	}
	return 0
}

func ContextWithRenterID(ctx context.Context, renterID int64) context.Context {
	return context.WithValue(ctx, ContextRenterKey, renterID)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
