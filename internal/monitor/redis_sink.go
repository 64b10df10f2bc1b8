package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/centsible/infera/internal/backend"
)

// RedisSink mirrors samples into Redis so several router processes can share
// one latency/success view. Samples land in a time-windowed sorted set per
// backend kind plus an exponential-moving-average key for cheap reads.
type RedisSink struct {
	client *redis.Client

	window     time.Duration
	maxSamples int64
	timeout    time.Duration
}

// NewRedisSink creates a sink with a 5 minute sample window.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{
		client:     client,
		window:     5 * time.Minute,
		maxSamples: 1000,
		timeout:    200 * time.Millisecond,
	}
}

// Write records one sample. Called from the monitor's collector goroutine,
// never from the routing hot path, so a short blocking write is acceptable.
func (rs *RedisSink) Write(s Sample) error {
	ctx, cancel := context.WithTimeout(context.Background(), rs.timeout)
	defer cancel()

	key := rs.sampleKey(s.Backend)
	now := time.Now()

	success := 0
	if s.Succeeded {
		success = 1
	}
	member := fmt.Sprintf("%d:%d:%d", s.Latency.Milliseconds(), success, now.UnixNano())

	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})

	cutoff := float64(now.Add(-rs.window).UnixMilli())
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%.0f", cutoff))
	pipe.ZRemRangeByRank(ctx, key, 0, -rs.maxSamples-1)
	pipe.Expire(ctx, key, rs.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return rs.updateAverage(ctx, s.Backend, s.Latency)
}

// AverageLatency returns the shared moving-average latency for a backend
// kind, or 0 when no process has recorded anything yet.
func (rs *RedisSink) AverageLatency(ctx context.Context, kind backend.Kind) (time.Duration, error) {
	val, err := rs.client.Get(ctx, rs.avgKey(kind)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	avgMs, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(avgMs * float64(time.Millisecond)), nil
}

// SuccessRate returns the shared success rate over the sample window. A kind
// with no samples reports 1.0.
func (rs *RedisSink) SuccessRate(ctx context.Context, kind backend.Kind) (float64, error) {
	members, err := rs.client.ZRange(ctx, rs.sampleKey(kind), 0, -1).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 1.0, nil
	}

	var succeeded int
	for _, m := range members {
		// member format: "latency_ms:success:nanos"
		var latency, success int64
		var nanos int64
		if _, err := fmt.Sscanf(m, "%d:%d:%d", &latency, &success, &nanos); err != nil {
			continue
		}
		if success == 1 {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(members)), nil
}

// Clear removes all shared samples for a backend kind.
func (rs *RedisSink) Clear(ctx context.Context, kind backend.Kind) error {
	pipe := rs.client.Pipeline()
	pipe.Del(ctx, rs.sampleKey(kind))
	pipe.Del(ctx, rs.avgKey(kind))
	_, err := pipe.Exec(ctx)
	return err
}

func (rs *RedisSink) updateAverage(ctx context.Context, kind backend.Kind, latency time.Duration) error {
	key := rs.avgKey(kind)
	latencyMs := float64(latency.Milliseconds())

	current, err := rs.client.Get(ctx, key).Result()
	var next float64
	switch {
	case err == redis.Nil:
		next = latencyMs
	case err != nil:
		return err
	default:
		prev, perr := strconv.ParseFloat(current, 64)
		if perr != nil {
			next = latencyMs
		} else {
			next = prev*0.9 + latencyMs*0.1
		}
	}

	return rs.client.Set(ctx, key, next, rs.window*2).Err()
}

func (rs *RedisSink) sampleKey(kind backend.Kind) string {
	return fmt.Sprintf("infera:samples:%s", kind)
}

func (rs *RedisSink) avgKey(kind backend.Kind) string {
	return fmt.Sprintf("infera:latency:avg:%s", kind)
}
