package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 10 * time.Second
)

var ErrBadMessage = errors.New("rabbitmq: bad title job message")

type Handler func(ctx context.Context, job TitleJob) error

// Settler acknowledges title job deliveries. A failed job is re-published to
// the retry queue until MaxAttempts, then rejected into the dead-letter queue.
type Settler struct {
	Ch          Channel
	Queue       string
	MaxAttempts int
	RetryDelay  time.Duration
}

func (s Settler) Settle(ctx context.Context, d amqp.Delivery, fn Handler) error {
	var job TitleJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.ConversationID == 0 {
		_ = d.Nack(false, false)
		return fmt.Errorf("%w: %s", ErrBadMessage, string(d.Body))
	}

	err := fn(ctx, job)
	if err == nil {
		return d.Ack(false)
	}

	limit := s.MaxAttempts
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}
	if job.Attempt+1 < limit {
		delay := s.RetryDelay
		if delay <= 0 {
			delay = DefaultRetryDelay
		}
		next := job
		next.Attempt++
		ttl := strconv.FormatInt(delay.Milliseconds(), 10)
		if perr := publish(ctx, s.Ch, RetryQueue(s.Queue), next, ttl); perr == nil {
			_ = d.Ack(false)
			return err
		}
	}
	_ = d.Nack(false, false)
	return err
}

type lockedChannel struct {
	mu sync.Mutex
	Channel
}

func (l *lockedChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Channel.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

// Locked serialises publishes so one amqp channel can be shared by a worker
// pool.
func Locked(ch Channel) Channel {
	return &lockedChannel{Channel: ch}
}
