package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Subscription is a live pub/sub subscription. Messages is closed once Close is called.
type Subscription interface {
	Messages() <-chan string
	Close() error
}

func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.cmd.Publish(ctx, channel, message).Err()
}

// Subscribe returns once the server has confirmed the subscription, so a
// publish issued after it returns is never missed.
func (c *Client) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if c == nil || c.conn == nil {
		return nil, errNotConnected
	}
	ps := c.conn.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return forward(ps), nil
}

type channelSubscription struct {
	ps       *redis.PubSub
	payloads chan string
	stop     chan struct{}
	stopOnce sync.Once
}

// forward copies payloads off the go-redis channel until it closes or the
// subscriber stops listening.
func forward(ps *redis.PubSub) *channelSubscription {
	s := &channelSubscription{ps: ps, payloads: make(chan string), stop: make(chan struct{})}
	go func() {
		defer close(s.payloads)
		in := ps.Channel()
		for {
			select {
			case <-s.stop:
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case s.payloads <- msg.Payload:
				case <-s.stop:
					return
				}
			}
		}
	}()
	return s
}

func (s *channelSubscription) Messages() <-chan string { return s.payloads }

func (s *channelSubscription) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return s.ps.Close()
}
