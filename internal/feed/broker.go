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
	"sync"

	"go.uber.org/zap"
)

// Broker fans change events out to live subscriptions keyed by topic. A
// subscription reloads its snapshot on every event and hands it to the
// subscriber; events arriving faster than delivery are coalesced.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{topics: make(map[string]map[*Subscription]struct{})}
}

// Subscription is a live feed handle. Cancel stops delivery; after Cancel
// returns, the callback will not be invoked again.
type Subscription struct {
	broker  *Broker
	topic   string
	signal  chan struct{}
	done    chan struct{}
	stopped chan struct{}

	mu        sync.Mutex
	cancelled bool
	once      sync.Once
}

// Publish implements store.ChangeNotifier.
func (b *Broker) Publish(_ context.Context, topic string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[topic] {
		select {
		case sub.signal <- struct{}{}:
		default:
			// a reload is already queued
		}
	}
	return nil
}

// Subscribe registers onUpdate for topic. The current snapshot from load is
// delivered first, then a fresh one after every change. Cancel must not be
// called from inside onUpdate.
func Subscribe[T any](b *Broker, topic string, load func(ctx context.Context) (T, error), onUpdate func(T)) *Subscription {
	sub := &Subscription{
		broker:  b,
		topic:   topic,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	// queue the initial snapshot
	sub.signal <- struct{}{}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.cancelled = true
		close(sub.stopped)
		return sub
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(sub.stopped)
		defer cancel()
		for {
			select {
			case <-sub.done:
				return
			case <-sub.signal:
			}

			snapshot, err := load(ctx)
			if err != nil {
				zap.L().Warn("Failed to load feed snapshot", zap.String("topic", topic), zap.Error(err))
				continue
			}

			sub.mu.Lock()
			if !sub.cancelled {
				onUpdate(snapshot)
			}
			sub.mu.Unlock()
		}
	}()

	go func() {
		<-sub.done
		cancel()
	}()

	return sub
}

// Cancel is idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.cancelled = true
		s.mu.Unlock()

		s.broker.remove(s)
		close(s.done)
	})
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.stopped
}

func (s *Subscription) Topic() string {
	return s.topic
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.topic]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
}

// SubscriberCount reports live subscriptions on topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Topics lists the topics that currently have subscribers.
func (b *Broker) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.topics))
	for topic := range b.topics {
		topics = append(topics, topic)
	}
	return topics
}

// Close cancels every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*Subscription
	for _, subs := range b.topics {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.Cancel()
	}
}
