package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hrygo/divinesense/internal/model"
)

// ResultStream publishes one entry per completed job onto its own Redis
// stream (job-result:<jobId>), per spec.md §6. Unlike Queue, a result
// stream has exactly one reader per job id and nothing to fan out to, so
// it is a raw XAdd with no consumer group — grounded the same way as
// Queue on intelligencedev-manifold's redis_cache.go/dedupe.go XAdd/Ping
// usage.
type ResultStream struct {
	client *redis.Client
}

// NewResultStream connects to addr and verifies it is reachable.
func NewResultStream(ctx context.Context, addr string) (*ResultStream, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("resultstream: redis ping failed: %w", err)
	}
	return &ResultStream{client: client}, nil
}

// PublishResult appends result, JSON-encoded, as a single field on
// jobID's result stream. Implements internal/generation.ResultPublisher.
func (r *ResultStream) PublishResult(ctx context.Context, jobID string, result model.LLMGenerationResult) error {
	fields, err := resultStreamFields(result)
	if err != nil {
		return err
	}

	_, err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: ResultStreamName(jobID),
		Values: fields,
	}).Result()
	if err != nil {
		return fmt.Errorf("resultstream: xadd: %w", err)
	}
	return nil
}

// resultStreamFields JSON-encodes result into the single "body" field an
// XAdd entry carries, split out from PublishResult so it is testable
// without a live Redis connection.
func resultStreamFields(result model.LLMGenerationResult) (map[string]any, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("resultstream: marshal result: %w", err)
	}
	return map[string]any{"body": body}, nil
}

// Close releases the underlying Redis connection.
func (r *ResultStream) Close() error {
	return r.client.Close()
}
