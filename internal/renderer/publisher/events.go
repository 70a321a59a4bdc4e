package publisher

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
	"slidecast/internal/pkg/logger"
)

// RedisPublisher is the part of *redis.Client the events publisher uses.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Events announces every finished job on a Redis pub/sub channel. Delivery is
// fire-and-forget: subscribers that are not listening miss the event.
type Events struct {
	rdb     RedisPublisher
	channel string
	log     *logger.Logger
}

func NewEvents(rdb RedisPublisher, channel string, log *logger.Logger) *Events {
	if log == nil {
		log = logger.Discard()
	}
	return &Events{rdb: rdb, channel: channel, log: log.WithComponent("events")}
}

func (e *Events) Publish(ctx context.Context, res models.RenderResult) error {
	payload, err := json.Marshal(res.Event())
	if err != nil {
		return errors.Wrap(err, "publisher.events", "encode render event")
	}

	receivers, err := e.rdb.Publish(ctx, e.channel, payload).Result()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "publisher.events", "publish render event").
			WithField(errors.FieldJobID, res.JobID)
	}

	e.log.FromContext(ctx).Debug("render event published",
		"job_id", res.JobID,
		"channel", e.channel,
		"receivers", receivers,
	)
	return nil
}
