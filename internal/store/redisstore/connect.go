package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appLog "calmerge/internal/log"
)

// ConnectOptions defines the client and its retry behavior.
type ConnectOptions struct {
	Addr     string
	Username string
	Password string
	DB       int

	ConnectTimeout time.Duration // total time allowed for attempts
	RetryInterval  time.Duration // first wait; doubles up to MaxWait
	MaxWait        time.Duration
	PingTimeout    time.Duration
}

func (o *ConnectOptions) normalize() {
	if o.Addr == "" {
		o.Addr = "localhost:6379"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 5 * time.Second
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 2 * time.Second
	}
}

// Connect creates a client and pings it with exponential backoff until it
// answers or ConnectTimeout elapses.
func Connect(ctx context.Context, opts ConnectOptions) (*redis.Client, error) {
	opts.normalize()

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	appLog.Info("connecting to redis", "addr", opts.Addr, "timeout", opts.ConnectTimeout.String())

	start := time.Now()
	wait := opts.RetryInterval
	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, opts.PingTimeout)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err == nil {
			if attempt > 1 {
				appLog.Warn("connected to redis after retry", "addr", opts.Addr, "attempts", attempt, "elapsed", time.Since(start).String())
			} else {
				appLog.Info("connected to redis", "addr", opts.Addr)
			}
			return client, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = client.Close()
			appLog.Error("redis unavailable", err, "addr", opts.Addr, "attempts", attempt)
			return nil, fmt.Errorf("redis unavailable at %s after %d attempts: %w", opts.Addr, attempt, err)
		case <-timer.C:
			appLog.Warn("redis connection failed, retrying", "addr", opts.Addr, "attempt", attempt, "next_retry_in", wait.String(), "err", err)
			wait *= 2
			if wait > opts.MaxWait {
				wait = opts.MaxWait
			}
		}
	}
}
