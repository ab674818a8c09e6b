/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay carries change events between server instances over a Redis
// pub/sub channel. Every instance runs Run, which republishes received
// topics into its local Broker, so one instance's write refreshes the live
// feeds held by all of them. Local subscribers are always notified
// directly; relayed copies of this instance's own events are dropped.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   *Broker
	origin  string
}

func NewRedisRelay(client *redis.Client, channel string, local *Broker) (*RedisRelay, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if channel == "" {
		return nil, fmt.Errorf("feed channel cannot be empty")
	}
	if local == nil {
		return nil, fmt.Errorf("local broker cannot be nil")
	}
	return &RedisRelay{client: client, channel: channel, local: local, origin: uuid.New().String()}, nil
}

// payload is "<origin>|<topic>".
func encodePayload(origin, topic string) string {
	return origin + "|" + topic
}

func decodePayload(payload string) (origin, topic string, ok bool) {
	origin, topic, ok = strings.Cut(payload, "|")
	if !ok || origin == "" || topic == "" {
		return "", "", false
	}
	return origin, topic, true
}

// Publish implements store.ChangeNotifier. Local delivery does not depend on
// Redis; a failed Redis publish only affects the other instances.
func (r *RedisRelay) Publish(ctx context.Context, topic string) error {
	localErr := r.local.Publish(ctx, topic)

	if err := r.client.Publish(ctx, r.channel, encodePayload(r.origin, topic)).Err(); err != nil {
		zap.L().Warn("Redis publish failed, delivered locally only",
			zap.String("topic", topic),
			zap.Error(err))
	}
	return localErr
}

// Run blocks relaying events until ctx is cancelled, resubscribing with a
// capped backoff when the connection drops.
func (r *RedisRelay) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := r.relay(ctx); err != nil {
			zap.L().Warn("Feed relay interrupted",
				zap.String("channel", r.channel),
				zap.Duration("retry_in", backoff),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (r *RedisRelay) relay(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			zap.L().Debug("Failed to close feed subscription", zap.Error(err))
		}
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	zap.L().Info("Feed relay subscribed", zap.String("channel", r.channel))

	// events from other instances may have been missed while unsubscribed
	r.resync(ctx)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("feed channel closed")
			}
			origin, topic, valid := decodePayload(msg.Payload)
			if !valid {
				zap.L().Debug("Dropping malformed relayed event", zap.String("payload", msg.Payload))
				continue
			}
			if origin == r.origin {
				continue
			}
			if err := r.local.Publish(ctx, topic); err != nil {
				zap.L().Warn("Failed to deliver relayed event", zap.String("topic", topic), zap.Error(err))
			}
		}
	}
}

func (r *RedisRelay) resync(ctx context.Context) {
	for _, topic := range r.local.Topics() {
		if err := r.local.Publish(ctx, topic); err != nil {
			zap.L().Warn("Failed to resync feed", zap.String("topic", topic), zap.Error(err))
		}
	}
}
