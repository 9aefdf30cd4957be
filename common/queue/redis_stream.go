package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boxops/portal/common/logger"
	rediscommon "github.com/boxops/portal/common/redis"
	"github.com/google/uuid"
)

const (
	fieldKey   = "key"
	fieldValue = "value"

	streamReadCount = 10
)

// RedisStreamQueue publishes to Redis streams and consumes them through a consumer group.
// Messages are acknowledged only after the handler succeeds.
type RedisStreamQueue struct {
	client   *rediscommon.Client
	group    string
	consumer string
	block    time.Duration
	log      *logger.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	cancel []context.CancelFunc
}

// NewRedisStreamQueue creates a stream-backed queue for the given consumer group
func NewRedisStreamQueue(client *rediscommon.Client, group string, block time.Duration, log *logger.Logger) *RedisStreamQueue {
	return &RedisStreamQueue{
		client:   client,
		group:    group,
		consumer: fmt.Sprintf("%s-%s", group, uuid.NewString()[:8]),
		block:    block,
		log:      log,
	}
}

// Publish appends the message to the topic stream
func (q *RedisStreamQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	_, err := q.client.AddToStream(ctx, topic, map[string]interface{}{
		fieldKey:   key,
		fieldValue: message,
	})
	return err
}

// Subscribe creates the consumer group if needed and starts a read loop
func (q *RedisStreamQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	if err := q.client.CreateStreamGroup(ctx, topic, q.group); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = append(q.cancel, cancel)
	q.mu.Unlock()

	q.log.Info("subscribing to stream", "stream", topic, "group", q.group, "consumer", q.consumer)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.consume(loopCtx, topic, handler)
	}()

	return nil
}

func (q *RedisStreamQueue) consume(ctx context.Context, topic string, handler MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			q.log.Info("stream subscription cancelled", "stream", topic)
			return
		default:
		}

		streams, err := q.client.ReadFromStreamGroup(ctx, q.group, q.consumer, topic, streamReadCount, q.block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Error("failed to read stream", "stream", topic, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				key, _ := message.Values[fieldKey].(string)
				value, _ := message.Values[fieldValue].(string)

				if err := handler(ctx, key, []byte(value)); err != nil {
					// Left pending for redelivery
					q.log.Error("message handler error", "stream", topic, "message_id", message.ID, "error", err)
					continue
				}

				if err := q.client.AckStreamMessage(ctx, topic, q.group, message.ID); err != nil {
					q.log.Warn("failed to ack message", "stream", topic, "message_id", message.ID, "error", err)
				}
			}
		}
	}
}

// Close stops all read loops and waits for them to exit
func (q *RedisStreamQueue) Close() error {
	q.mu.Lock()
	for _, cancel := range q.cancel {
		cancel()
	}
	q.cancel = nil
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
