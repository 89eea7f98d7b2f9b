// Package queue implements the Redis-streams-backed job and result
// queues described in spec.md §5/§6: append-only producers, at-least-once
// consumer groups. go-redis/v9 is sourced from intelligencedev-manifold's
// go.mod (the teacher has no Redis dependency); XAdd/XReadGroup/XAck usage
// is grounded on that repo's internal/workspaces/redis_cache.go and
// internal/orchestrator/dedupe.go (redis.Options{Addr}, Ping-on-connect,
// redis.Nil handling).
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is a single entry read from a stream, carrying its own stream
// id for acknowledgement.
type Message struct {
	ID     string
	Fields map[string]any
}

// Queue wraps a Redis stream for a single job type, with a durable
// consumer group so multiple worker processes can share the backlog
// (spec.md §5: "consumers use at-least-once semantics").
type Queue struct {
	client *redis.Client
	stream string
	group  string
}

// New connects to addr and returns a Queue bound to stream/group,
// creating the consumer group if it does not already exist.
func New(ctx context.Context, addr, stream, group string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("queue: redis ping failed: %w", err)
	}

	q := &Queue{client: client, stream: stream, group: group}
	if err := q.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("queue: create consumer group: %w", err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() != "" && len(err.Error()) >= len("BUSYGROUP") && err.Error()[:9] == "BUSYGROUP"
}

// Publish appends fields to the stream as a new entry. Producers are
// append-only; delivery ordering across producers is not guaranteed.
func (q *Queue) Publish(ctx context.Context, fields map[string]any) (string, error) {
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("queue: xadd: %w", err)
	}
	return id, nil
}

// Consume blocks for up to block waiting for new entries claimed by
// consumer within q.group, returning whatever arrived (possibly none on
// timeout).
func (q *Queue) Consume(ctx context.Context, consumer string, block time.Duration) ([]Message, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    10,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: xreadgroup: %w", err)
	}

	var out []Message
	for _, stream := range res {
		for _, entry := range stream.Messages {
			out = append(out, Message{ID: entry.ID, Fields: entry.Values})
		}
	}
	return out, nil
}

// Ack acknowledges a successfully processed entry, removing it from the
// consumer group's pending entries list.
func (q *Queue) Ack(ctx context.Context, id string) error {
	return q.client.XAck(ctx, q.stream, q.group, id).Err()
}

// Close releases the underlying Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

// ResultStreamName returns the result-stream key for jobID, matching
// spec.md §6 ("Redis stream keyed job-result:<jobId>").
func ResultStreamName(jobID string) string {
	return "job-result:" + jobID
}
