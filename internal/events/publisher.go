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

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"p2p-coin-desk-go/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrOutboxFull      = errors.New("event outbox is full")
	ErrPublisherClosed = errors.New("event publisher is closed")
)

const (
	defaultOutboxSize  = 256
	defaultDialTimeout = 5 * time.Second
)

// Publisher announces request lifecycle transitions. Publishing is best
// effort: callers log failures and carry on.
type Publisher interface {
	PublishCreated(ctx context.Context, req *models.Request) error
	PublishResolved(ctx context.Context, req *models.Request, actorEmail string) error
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishCreated(context.Context, *models.Request) error          { return nil }
func (NoopPublisher) PublishResolved(context.Context, *models.Request, string) error { return nil }

// AMQPPublisher queues events in a bounded outbox and sends them from a
// background goroutine as persistent JSON messages to a durable queue on the
// default exchange. Callers never wait on the broker. The connection is
// dialed lazily and re-dialed after it drops.
type AMQPPublisher struct {
	url         string
	queue       string
	dialTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	closing atomic.Bool
	outbox  chan RequestEvent
	done    chan struct{}

	// owned by the worker goroutine
	conn *amqp.Connection
}

type PublisherOption func(*AMQPPublisher)

// WithDialTimeout bounds the TCP connect and AMQP handshake.
func WithDialTimeout(d time.Duration) PublisherOption {
	return func(p *AMQPPublisher) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

func WithOutboxSize(n int) PublisherOption {
	return func(p *AMQPPublisher) {
		if n > 0 {
			p.outbox = make(chan RequestEvent, n)
		}
	}
}

func NewAMQPPublisher(url, queue string, opts ...PublisherOption) (*AMQPPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url cannot be empty")
	}
	if queue == "" {
		return nil, fmt.Errorf("queue name cannot be empty")
	}

	p := &AMQPPublisher{
		url:         url,
		queue:       queue,
		dialTimeout: defaultDialTimeout,
		outbox:      make(chan RequestEvent, defaultOutboxSize),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.run()
	return p, nil
}

func (p *AMQPPublisher) PublishCreated(_ context.Context, req *models.Request) error {
	return p.enqueue(newEvent(KindCreated, req, ""))
}

func (p *AMQPPublisher) PublishResolved(_ context.Context, req *models.Request, actorEmail string) error {
	return p.enqueue(newEvent(KindResolved, req, actorEmail))
}

func (p *AMQPPublisher) enqueue(ev RequestEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.outbox <- ev:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s event for %s", ErrOutboxFull, ev.Kind, ev.RequestId)
	}
}

func (p *AMQPPublisher) run() {
	defer close(p.done)
	defer p.closeConn()

	dropped := 0
	for ev := range p.outbox {
		if dropped > 0 {
			dropped++
			continue
		}
		if err := p.send(ev); err != nil {
			zap.L().Warn("Failed to publish lifecycle event",
				zap.String("kind", ev.Kind),
				zap.String("request_id", ev.RequestId),
				zap.Error(err))
			// the broker is down and we are shutting down: stop retrying
			if p.closing.Load() {
				dropped = 1
			}
		}
	}

	if dropped > 0 {
		zap.L().Warn("Dropped lifecycle events on shutdown", zap.Int("count", dropped))
	}
}

func (p *AMQPPublisher) send(ev RequestEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare failed: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Kind,
		Body:         body,
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.dialTimeout)
	defer cancel()
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	zap.L().Debug("Published lifecycle event",
		zap.String("kind", ev.Kind),
		zap.String("request_id", ev.RequestId))
	return nil
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.DialConfig(p.url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Dial:      amqp.DefaultDial(p.dialTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("broker dial failed: %w", err)
		}
		p.conn = conn
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open failed: %w", err)
	}
	return ch, nil
}

func (p *AMQPPublisher) closeConn() {
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			zap.L().Warn("Failed to close broker connection", zap.Error(err))
		}
	}
	p.conn = nil
}

// Close stops accepting events and waits for the outbox to drain. If the
// broker is unreachable the remaining events are dropped after the first
// failed send.
func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	p.closing.Store(true)
	close(p.outbox)
	p.mu.Unlock()

	<-p.done
}
