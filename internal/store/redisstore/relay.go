// Package redisstore mirrors chat events onto a Redis pub/sub channel so
// other local processes can follow a turn.
package redisstore

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/kel/internal/chat"
)

// Publisher is the part of *redis.Client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Ping checks connectivity with a short timeout.
func Ping(ctx context.Context, c *redis.Client) error {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.Ping(cctx).Err()
}

// Relay buffers broadcaster events and publishes them from its own goroutine,
// so a slow Redis never stalls a turn. Events are dropped when the buffer is
// full.
type Relay struct {
	pub     Publisher
	channel string
	queue   chan chat.Event
	dropped atomic.Int64
}

func NewRelay(pub Publisher, channel string, buffer int) *Relay {
	if buffer <= 0 {
		buffer = 256
	}
	return &Relay{pub: pub, channel: channel, queue: make(chan chat.Event, buffer)}
}

// Handle is a chat.Handler.
func (r *Relay) Handle(e chat.Event) {
	select {
	case r.queue <- e:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("redis_relay_drop channel=%s dropped=%d", r.channel, n)
		}
	}
}

// Run publishes queued events until ctx is done, then flushes what is left.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case e := <-r.queue:
			r.publish(ctx, e)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

func (r *Relay) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case e := <-r.queue:
			r.publish(ctx, e)
		default:
			return
		}
	}
}

func (r *Relay) publish(ctx context.Context, e chat.Event) {
	b, err := json.Marshal(e)
	if err != nil {
		log.Printf("redis_relay_marshal err=%v", err)
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.pub.Publish(cctx, r.channel, b).Err(); err != nil {
		log.Printf("redis_relay_publish channel=%s turn=%s kind=%s err=%v", r.channel, e.TurnID, e.Kind, err)
	}
}

func (r *Relay) Dropped() int64 {
	return r.dropped.Load()
}
