package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"salonbook/backend/internal/service/booking"
)

const defaultStreamMaxLen = 10000

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisNotifier appends events to a capped Redis stream.
type RedisNotifier struct {
	rdb    streamAdder
	stream string
	maxLen int64
}

func NewRedisNotifier(rdb *redis.Client, stream string, maxLen int64) *RedisNotifier {
	return newRedisNotifier(rdb, stream, maxLen)
}

func newRedisNotifier(rdb streamAdder, stream string, maxLen int64) *RedisNotifier {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &RedisNotifier{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (n *RedisNotifier) Notify(ctx context.Context, ev booking.Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}
	err = n.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":   ev.ID.String(),
			"event_type": string(ev.Type),
			"staff_id":   ev.Appointment.StaffID.String(),
			"payload":    payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", n.stream, err)
	}
	return nil
}
