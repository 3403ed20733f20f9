// Package queue is a small redis-backed job queue with delayed retries and a dead-letter list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"CoinFlow/pkg/logger"
)

type Mode int

const (
	ModeProducerConsumer Mode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m Mode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

type Config struct {
	Name       string
	KeyPrefix  string
	Workers    int
	RetryLimit int
	RetryDelay time.Duration
	// PollTimeout bounds each blocking pop so workers notice shutdown.
	PollTimeout time.Duration
	// RetryInterval is how often due retries are moved back to the main list.
	RetryInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "coinflow:queue"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 5 * time.Second
	}
}

type RedisQueue struct {
	logger *logger.Logger
	cfg    Config
	client redis.UniversalClient
	mode   Mode
	now    func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRedisQueue(l *logger.Logger, cfg Config, client redis.UniversalClient, mode Mode) *RedisQueue {
	cfg.setDefaults()
	return &RedisQueue{
		logger: l.With(logger.String("component", "queue"), logger.String("queue", cfg.Name)),
		cfg:    cfg,
		client: client,
		mode:   mode,
		now:    time.Now,
		jobs:   make(map[string]Job),
	}
}

func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
}

// Start pings redis and, unless producer-only, launches workers and the retry mover.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = stop
	r.running = true

	if r.mode != ModeProducerOnly {
		for i := range r.cfg.Workers {
			r.wg.Add(1)
			go r.worker(runCtx, i)
		}
		r.wg.Add(1)
		go r.retryLoop(runCtx)
	}
	r.logger.Info("redis queue started", logger.String("mode", r.mode.String()), logger.Int("workers", r.cfg.Workers))
	return nil
}

func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	}
}

// Enqueue stores a JSON-encoded payload under msgType.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload any) error {
	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    raw,
		EnqueuedAt: r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Len reports the number of messages waiting, scheduled for retry and dead.
func (r *RedisQueue) Len(ctx context.Context) (pending, retrying, dead int64, err error) {
	pipe := r.client.Pipeline()
	p := pipe.LLen(ctx, r.queueKey())
	rt := pipe.ZCard(ctx, r.retryKey())
	d := pipe.LLen(ctx, r.deadKey())
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, err
	}
	return p.Val(), rt.Val(), d.Val(), nil
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		res, err := r.client.BRPop(ctx, r.cfg.PollTimeout, r.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			r.logger.Error("brpop failed", logger.Int("worker", id), logger.Error(err))
			sleepCtx(ctx, time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.logger.Error("drop malformed message", logger.Error(err))
			continue
		}
		r.process(ctx, msg)
	}
}

// process runs the job; a failed message is retried later or moved to the dead list.
func (r *RedisQueue) process(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message type", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.push(context.WithoutCancel(ctx), r.deadKey(), msg)
		return
	}

	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		return
	}
	// Shutdown interrupted the job; put it back untouched.
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		r.push(context.WithoutCancel(ctx), r.queueKey(), msg)
		return
	}

	msg.Attempts++
	msg.LastError = err.Error()
	if msg.Attempts > r.cfg.RetryLimit {
		r.logger.Error("message dead-lettered",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		r.push(context.WithoutCancel(ctx), r.deadKey(), msg)
		return
	}

	at := r.now().Add(r.cfg.RetryDelay)
	r.logger.Warn("message failed, retry scheduled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.Time("retry_at", at),
		logger.Error(err))
	data, _ := json.Marshal(msg)
	if err := r.client.ZAdd(context.WithoutCancel(ctx), r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: data}).Err(); err != nil {
		r.logger.Error("schedule retry", logger.Error(err))
	}
}

func (r *RedisQueue) push(ctx context.Context, key string, msg Message) {
	data, _ := json.Marshal(msg)
	if err := r.client.LPush(ctx, key, data).Err(); err != nil {
		r.logger.Error("lpush", logger.String("key", key), logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.moveDueRetries(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("move retries", logger.Error(err))
			}
		}
	}
}

// moveDueRetries returns retries whose time has come to the main list.
func (r *RedisQueue) moveDueRetries(ctx context.Context) (int, error) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, member := range due {
		// ZRem first so two movers cannot requeue the same member.
		n, err := r.client.ZRem(ctx, r.retryKey(), member).Result()
		if err != nil {
			return moved, err
		}
		if n == 0 {
			continue
		}
		if err := r.client.LPush(ctx, r.queueKey(), member).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func (r *RedisQueue) queueKey() string { return r.cfg.KeyPrefix + ":" + r.cfg.Name + ":messages" }
func (r *RedisQueue) retryKey() string { return r.cfg.KeyPrefix + ":" + r.cfg.Name + ":retry" }
func (r *RedisQueue) deadKey() string  { return r.cfg.KeyPrefix + ":" + r.cfg.Name + ":dlq" }

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
