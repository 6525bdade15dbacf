package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/backoff"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/redis/go-redis/v9"
)

// ConnectOptions describes the client and how long New keeps trying.
type ConnectOptions struct {
	Addr           string        // host:port
	User           string        // optional ACL user
	Password       string        // optional
	ClientName     string        // CLIENT SETNAME on every connection (optional)
	RedisDB        int           // logical database
	DialTimeout    time.Duration // per dial
	ReadTimeout    time.Duration // per command read
	WriteTimeout   time.Duration // per command write
	PoolSize       int           // connection pool size
	ConnectTimeout time.Duration // overall budget for the first successful ping
	RetryInterval  time.Duration // first wait between pings, doubles
	MaxWait        time.Duration // cap for the wait between pings
	PingTimeout    time.Duration // per ping
	WarnThreshold  int           // attempts logged as warnings before escalating to errors
}

// urgentWindow is the remaining budget below which retries log as errors.
const urgentWindow = 10 * time.Second

func (o ConnectOptions) validate() error {
	var errs []error
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"ConnectTimeout", o.ConnectTimeout},
		{"RetryInterval", o.RetryInterval},
		{"MaxWait", o.MaxWait},
		{"PingTimeout", o.PingTimeout},
	} {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %v", d.name, d.v))
		}
	}
	if o.WarnThreshold < 0 {
		errs = append(errs, fmt.Errorf("WarnThreshold must be >= 0, got %d", o.WarnThreshold))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("redis connect options: %w", err)
	}
	return nil
}

func (o ConnectOptions) clientOptions() *redis.Options {
	return &redis.Options{
		Addr:         o.Addr,
		Username:     o.User,
		Password:     o.Password,
		ClientName:   o.ClientName,
		DB:           o.RedisDB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		PoolSize:     o.PoolSize,
	}
}

// New returns a client once a ping succeeds. It retries with exponential
// backoff until ConnectTimeout elapses or ctx is cancelled; on failure the
// client is closed.
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if err := opts.validate(); err != nil {
		log.Error("invalid redis connect options", logger.Error(err))
		return nil, err
	}

	client := redis.NewClient(opts.clientOptions())
	if err := waitReady(ctx, client, opts, log); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func waitReady(parent context.Context, client *redis.Client, opts ConnectOptions, log logger.Logger) error {
	ctx, cancel := context.WithTimeout(parent, opts.ConnectTimeout)
	defer cancel()

	log.Info("connecting to redis",
		logger.String("addr", opts.Addr),
		logger.Duration("timeout", opts.ConnectTimeout))

	start := time.Now()
	bo := backoff.New(opts.RetryInterval, opts.MaxWait)

	for attempt := 1; ; attempt++ {
		err := ping(ctx, client, opts.PingTimeout)
		if err == nil {
			fields := []logger.Field{logger.String("addr", opts.Addr), logger.Int("attempts", attempt)}
			if attempt > 1 {
				log.Warn("connected to redis after retry", append(fields, logger.Duration("elapsed", time.Since(start)))...)
			} else {
				log.Info("connected to redis", fields...)
			}
			return nil
		}

		if parent.Err() != nil {
			return fmt.Errorf("redis connect to %s cancelled after %d attempts: %w", opts.Addr, attempt, parent.Err())
		}

		wait := bo.Next()
		if !backoff.Sleep(ctx, wait) {
			if parent.Err() != nil {
				return fmt.Errorf("redis connect to %s cancelled after %d attempts: %w", opts.Addr, attempt, parent.Err())
			}
			log.Error("redis unavailable, giving up",
				logger.String("addr", opts.Addr),
				logger.Int("attempts", attempt),
				logger.Duration("timeout", opts.ConnectTimeout),
				logger.Error(err))
			return fmt.Errorf("redis unavailable at %s after %d attempts (timeout: %v): %w",
				opts.Addr, attempt, opts.ConnectTimeout, err)
		}

		logRetry(log, opts, attempt, remaining(ctx), wait, err)
	}
}

func ping(ctx context.Context, client *redis.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

func logRetry(log logger.Logger, opts ConnectOptions, attempt int, left, next time.Duration, err error) {
	fields := []logger.Field{
		logger.String("addr", opts.Addr),
		logger.Int("attempt", attempt),
		logger.Duration("next_retry_in", next),
		logger.Error(err),
	}
	switch {
	case left < urgentWindow:
		log.Error("redis still down, connect timeout approaching", append(fields, logger.Duration("remaining", left))...)
	case attempt <= opts.WarnThreshold:
		log.Warn("redis connection failed, retrying", fields...)
	default:
		log.Error("redis still unavailable, retrying", fields...)
	}
}

// remaining reports how much of ctx's deadline is left.
func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
