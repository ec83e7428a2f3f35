package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bassista/labasica/internal/logger"
	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"
)

const redisDialTimeout = 2 * time.Second

// RedisChannel uses Redis pub/sub on a single topic.
type RedisChannel struct {
	client *redis.Client
	topic  string
	closed atomic.Bool
}

// NewRedisChannel connects and pings the server; an unreachable server is an error
// so the caller can fall back to another channel.
func NewRedisChannel(ctx context.Context, addr, topic string) (*RedisChannel, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: redisDialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	logger.WithComponent("broadcast").Infof("connected to redis at %s, topic %s", addr, topic)
	return &RedisChannel{client: client, topic: topic}, nil
}

func (c *RedisChannel) Publish(ctx context.Context, m Message) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := c.client.Publish(ctx, c.topic, raw).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", c.topic, err)
	}
	return nil
}

func (c *RedisChannel) Subscribe(ctx context.Context, fn func(Message)) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	pubsub, err := c.subscribe(ctx)
	if err != nil {
		return err
	}
	go c.receive(ctx, pubsub, fn)
	return nil
}

// subscribe waits for the subscription to be confirmed by the server.
func (c *RedisChannel) subscribe(ctx context.Context) (*redis.PubSub, error) {
	pubsub := c.client.Subscribe(ctx, c.topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}
	return pubsub, nil
}

// receive forwards messages and resubscribes with exponential backoff if the
// subscription channel is ever closed underneath it.
func (c *RedisChannel) receive(ctx context.Context, pubsub *redis.PubSub, fn func(Message)) {
	log := logger.WithComponent("broadcast")
	for {
		if !c.forward(ctx, pubsub, fn) {
			pubsub.Close()
			return
		}
		pubsub.Close()
		if c.closed.Load() {
			return
		}

		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0
		err := backoff.RetryNotify(func() error {
			if c.closed.Load() {
				return backoff.Permanent(ErrChannelClosed)
			}
			ps, err := c.subscribe(ctx)
			if err != nil {
				return err
			}
			pubsub = ps
			return nil
		}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
			log.Warnf("redis resubscribe failed, retrying in %v: %v", wait, err)
		})
		if err != nil {
			log.Debugf("redis receive loop stopped: %v", err)
			return
		}
		log.Infof("resubscribed to %s", c.topic)
	}
}

// forward returns false when ctx ended and true when the channel closed.
func (c *RedisChannel) forward(ctx context.Context, pubsub *redis.PubSub, fn func(Message)) bool {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-ch:
			if !ok {
				return true
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				logger.WithComponent("broadcast").Warnf("undecodable redis message: %v", err)
				continue
			}
			fn(m)
		}
	}
}

func (c *RedisChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.client.Close()
}
