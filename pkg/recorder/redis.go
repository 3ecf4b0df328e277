package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream tick records are appended to.
const DefaultStream = "decoyrange:ticks"

// RedisRecorder appends each record as a JSON "record" field on a stream.
type RedisRecorder struct {
	client *redis.Client
	stream string
}

func NewRedis(client *redis.Client, stream string) *RedisRecorder {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisRecorder{client: client, stream: stream}
}

func (r *RedisRecorder) Record(ctx context.Context, rec TickRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode tick record: %w", err)
	}
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"run_id":  rec.RunID,
			"episode": rec.Episode,
			"tick":    rec.Tick,
			"record":  string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append tick to %s: %w", r.stream, err)
	}
	return nil
}

// Ticks reads every record on the stream that belongs to runID.
func (r *RedisRecorder) Ticks(ctx context.Context, runID string) ([]TickRecord, error) {
	msgs, err := r.client.XRange(ctx, r.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.stream, err)
	}
	var out []TickRecord
	for _, msg := range msgs {
		raw, ok := msg.Values["record"].(string)
		if !ok {
			continue
		}
		var rec TickRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode tick record %s: %w", msg.ID, err)
		}
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *RedisRecorder) Close() error {
	return r.client.Close()
}
