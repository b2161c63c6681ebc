package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ledMatrix/display/internal/telemetry"
)

// PostReport stores a run report as JSON under key.
func PostReport(ctx context.Context, client *redis.Client, key string, report *telemetry.Report, ttl time.Duration) error {
	res, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	cmd := client.Set(ctx, key, res, ttl)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	return nil
}

func ReadReport(ctx context.Context, client *redis.Client, key string) (*telemetry.Report, error) {
	cmd := client.Get(ctx, key)
	if err := cmd.Err(); err != nil {
		return nil, err
	}

	b, err := cmd.Bytes()
	if err != nil {
		return nil, err
	}

	var report telemetry.Report
	if err = json.Unmarshal(b, &report); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}

	return &report, nil
}
