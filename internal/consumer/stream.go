package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/arena/internal/config"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

const (
	// Batch size for reading messages
	batchSize = 100

	// Block duration when waiting for new messages
	blockDuration = 1 * time.Second

	// Pending messages idle this long are claimed and retried
	defaultRetryAfter = 30 * time.Second
)

// StreamConsumer consumes finished match results from a Redis stream
type StreamConsumer struct {
	redis        *redis.Client
	processor    *Processor
	streamConfig config.StreamConfig
	log          *zap.Logger
	retryAfter   time.Duration
}

// NewStreamConsumer creates a new stream consumer
func NewStreamConsumer(redisClient *redis.Client, processor *Processor, streamConfig config.StreamConfig, log *zap.Logger) *StreamConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	retryAfter := streamConfig.RetryAfter
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}
	return &StreamConsumer{
		redis:        redisClient,
		processor:    processor,
		streamConfig: streamConfig,
		log:          log,
		retryAfter:   retryAfter,
	}
}

// Start consumes until ctx is cancelled
func (sc *StreamConsumer) Start(ctx context.Context) error {
	stream := sc.streamConfig.ResultsStream
	sc.log.Info("stream consumer started",
		zap.String("stream", stream),
		zap.String("group", sc.streamConfig.ConsumerGroup),
		zap.String("consumer", sc.streamConfig.ConsumerID))

	if err := sc.createConsumerGroup(ctx, stream); err != nil {
		return err
	}

	// Results this consumer read but never acked before a restart
	if _, err := sc.read(ctx, stream, "0", -1); err != nil && ctx.Err() == nil {
		sc.log.Warn("pending read error", zap.String("stream", stream), zap.Error(err))
	}
	lastClaim := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if time.Since(lastClaim) >= sc.retryAfter {
			if _, err := sc.claimStale(ctx, stream); err != nil && ctx.Err() == nil {
				sc.log.Warn("pending claim error", zap.String("stream", stream), zap.Error(err))
			}
			lastClaim = time.Now()
		}

		if _, err := sc.poll(ctx, stream); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			sc.log.Warn("stream read error", zap.String("stream", stream), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// createConsumerGroup creates the consumer group, tolerating an existing one
func (sc *StreamConsumer) createConsumerGroup(ctx context.Context, stream string) error {
	err := sc.redis.XGroupCreateMkStream(ctx, stream, sc.streamConfig.ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// poll reads and handles one batch of new messages, returning how many it saw
func (sc *StreamConsumer) poll(ctx context.Context, stream string) (int, error) {
	return sc.read(ctx, stream, ">", blockDuration)
}

// read handles one XREADGROUP batch. id "0" re-reads this consumer's pending
// entries; block < 0 does not block.
func (sc *StreamConsumer) read(ctx context.Context, stream, id string, block time.Duration) (int, error) {
	streams, err := sc.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    sc.streamConfig.ConsumerGroup,
		Consumer: sc.streamConfig.ConsumerID,
		Streams:  []string{stream, id},
		Count:    batchSize,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// No new messages
			return 0, nil
		}
		return 0, err
	}

	n := 0
	for _, s := range streams {
		for _, message := range s.Messages {
			sc.processMessage(ctx, s.Stream, message)
			n++
		}
	}
	return n, nil
}

// claimStale takes over pending messages idle for at least retryAfter, from
// any consumer of the group including this one, and retries them
func (sc *StreamConsumer) claimStale(ctx context.Context, stream string) (int, error) {
	n := 0
	start := "0-0"
	for {
		messages, next, err := sc.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    sc.streamConfig.ConsumerGroup,
			Consumer: sc.streamConfig.ConsumerID,
			MinIdle:  sc.retryAfter,
			Start:    start,
			Count:    batchSize,
		}).Result()
		if err != nil {
			return n, err
		}
		for _, message := range messages {
			sc.processMessage(ctx, stream, message)
			n++
		}
		if next == "0-0" || next == "" || len(messages) == 0 {
			return n, nil
		}
		start = next
	}
}

// processMessage rates one result. Malformed messages are acked after
// logging; failed ratings stay pending until claimStale retries them.
func (sc *StreamConsumer) processMessage(ctx context.Context, stream string, msg redis.XMessage) {
	dataStr, ok := msg.Values["data"].(string)
	if !ok {
		sc.log.Warn("invalid message format", zap.String("stream", stream), zap.String("id", msg.ID))
		resultsTotal.WithLabelValues("malformed").Inc()
		sc.ackMessage(ctx, stream, msg.ID)
		return
	}

	var result models.MatchResultMessage
	if err := json.Unmarshal([]byte(dataStr), &result); err != nil {
		sc.log.Warn("failed to parse match result", zap.String("id", msg.ID), zap.Error(err))
		resultsTotal.WithLabelValues("malformed").Inc()
		sc.ackMessage(ctx, stream, msg.ID)
		return
	}

	if _, _, err := sc.processor.ProcessResult(ctx, result); err != nil {
		sc.log.Error("failed to rate match", zap.String("match_id", result.MatchID), zap.Error(err))
		return
	}

	sc.ackMessage(ctx, stream, msg.ID)
}

// ackMessage acknowledges a message in the stream
func (sc *StreamConsumer) ackMessage(ctx context.Context, stream string, messageID string) {
	if err := sc.redis.XAck(ctx, stream, sc.streamConfig.ConsumerGroup, messageID).Err(); err != nil {
		sc.log.Warn("failed to ack message", zap.String("id", messageID), zap.Error(err))
	}
}
