package kv

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	"github.com/magabrotheeeer/hackstore/internal/storage"
)

// RetryPolicy параметры ленивого подключения к удалённому бэкенду.
type RetryPolicy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultRetryPolicy три попытки с линейной задержкой 200ms, но не больше секунды.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 200 * time.Millisecond, MaxBackoff: time.Second}

// delay задержка перед попыткой attempt (с единицы): attempt*Backoff, не больше MaxBackoff.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := time.Duration(attempt) * p.Backoff
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// connector лениво и идемпотентно устанавливает соединение типа C.
// После ошибки операции соединение сбрасывается, и следующая операция подключается заново.
type connector[C any] struct {
	mu      sync.Mutex
	conn    C
	ready   bool
	dial    func(ctx context.Context) (C, error)
	closeFn func(C) error
	policy  RetryPolicy
	log     *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func newConnector[C any](dial func(ctx context.Context) (C, error), closeFn func(C) error, policy RetryPolicy, log *slog.Logger) *connector[C] {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &connector[C]{
		dial:    dial,
		closeFn: closeFn,
		policy:  policy,
		log:     log,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ensure возвращает установленное соединение или подключается с повторами.
func (c *connector[C]) ensure(ctx context.Context) (C, error) {
	const op = "kv.connector.ensure"
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return c.conn, nil
	}

	var zero C
	var lastErr error
	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		conn, err := c.dial(ctx)
		if err == nil {
			c.conn = conn
			c.ready = true
			return conn, nil
		}
		lastErr = err
		c.log.Debug("remote kv connect failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.policy.Attempts),
			sl.Err(err),
		)
		if attempt == c.policy.Attempts {
			break
		}
		if err := c.sleep(ctx, c.policy.delay(attempt)); err != nil {
			return zero, fmt.Errorf("%s: %w", op, err)
		}
	}
	return zero, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, lastErr)
}

// reset закрывает текущее соединение, следующая операция подключится заново.
func (c *connector[C]) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return
	}
	if c.closeFn != nil {
		if err := c.closeFn(c.conn); err != nil {
			c.log.Debug("close remote kv connection", sl.Err(err))
		}
	}
	var zero C
	c.conn = zero
	c.ready = false
}

// close закрывает соединение, если оно было установлено.
func (c *connector[C]) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready || c.closeFn == nil {
		return nil
	}
	err := c.closeFn(c.conn)
	var zero C
	c.conn = zero
	c.ready = false
	return err
}
