package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/arena/internal/retry"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

// StreamPublisher publishes finished match results to a Redis stream
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	retry  *retry.Policy
	log    *zap.Logger
}

// NewStreamPublisher creates a new stream publisher
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64, log *zap.Logger) *StreamPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		retry:  retry.NewPolicy(3, 100*time.Millisecond),
		log:    log,
	}
}

// PublishResult appends a match result to the stream
func (p *StreamPublisher) PublishResult(ctx context.Context, result models.MatchResultMessage) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling match result: %w", err)
	}

	err = p.retry.Execute(ctx, func(ctx context.Context) error {
		return p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: p.maxLen > 0,
			Values: map[string]interface{}{
				"data":      string(data),
				"match_id":  result.MatchID,
				"game_type": result.GameType,
			},
		}).Err()
	})
	if err != nil {
		return fmt.Errorf("publish result of %s: %w", result.MatchID, err)
	}

	p.log.Debug("published match result",
		zap.String("match_id", result.MatchID),
		zap.String("stream", p.stream))
	return nil
}
