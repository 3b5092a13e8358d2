package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis relays notifications over redis PUBLISH/SUBSCRIBE.
type Redis struct {
	*hub
	client  *redis.Client
	channel string
	log     *zap.Logger
}

// NewRedis parses url (redis://host:port/db) and returns a broker.
func NewRedis(url string, log *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisFromClient(redis.NewClient(opts), log), nil
}

func NewRedisFromClient(client *redis.Client, log *zap.Logger) *Redis {
	return &Redis{
		hub:     newHub(),
		client:  client,
		channel: DefaultChannel,
		log:     log.Named("feed.redis"),
	}
}

func (r *Redis) Publish(ctx context.Context, topic, payload string) error {
	body, err := encode(Message{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Run subscribes to the redis channel; go-redis reconnects on its own.
func (r *Redis) Run(ctx context.Context) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe: %w", err)
	}
	r.log.Info("listening", zap.String("channel", r.channel))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := decode(m.Payload)
			if err != nil {
				r.log.Warn("dropping malformed message", zap.Error(err))
				continue
			}
			r.dispatch(msg)
		}
	}
}

// Close releases the redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
