package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"CoinFlow/pkg/logger"
)

// MessageHandler handles messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, value []byte) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads registered topics in a consumer group and hands messages to a worker pool.
// Offsets are committed after success, or after a failed message was parked in the DLQ.
type Consumer struct {
	cfg      ConsumerConfig
	logger   *logger.Logger
	hook     ConsumerHook
	handlers map[string]MessageHandler
	readers  map[string]messageReader
	dlq      messageWriter
	msgs     chan kafka.Message

	partMu    sync.Mutex
	partLocks map[string]*sync.Mutex

	newReader func(topic string) messageReader
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

func NewConsumer(l *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:     "coinflow",
		WorkerCount: 1,
		BufferSize:  16,
		RetryMax:    3,
		BackoffMin:  100 * time.Millisecond,
		BackoffMax:  5 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:       cfg,
		logger:    l.With(logger.String("component", "kafka_consumer")),
		hook:      NoopHook{},
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]messageReader),
		msgs:      make(chan kafka.Message, cfg.BufferSize),
		partLocks: make(map[string]*sync.Mutex),
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// WithHook replaces the lifecycle hook.
func (c *Consumer) WithHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.logger.Warn("handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// Start launches the fetch loops and workers. It does not block.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	var fetchers sync.WaitGroup
	for topic := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		fetchers.Add(1)
		go func() {
			defer fetchers.Done()
			c.fetch(ctx, topic, r)
		}()
	}
	// Workers drain the channel once every fetcher has stopped.
	go func() {
		fetchers.Wait()
		close(c.msgs)
	}()

	for range c.cfg.WorkerCount {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for m := range c.msgs {
				c.process(ctx, m)
			}
		}()
	}

	c.logger.Info("kafka consumer started",
		logger.String("group", c.cfg.GroupID),
		logger.Int("topics", len(c.handlers)),
		logger.Int("workers", c.cfg.WorkerCount))
	return nil
}

func (c *Consumer) fetch(ctx context.Context, topic string, r messageReader) {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("fetch failed", logger.String("topic", topic), logger.Error(err))
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}
		select {
		case c.msgs <- m:
		case <-ctx.Done():
			return
		}
	}
}

// process runs the handler with retries. In-flight handling is not cut short by Stop,
// but backoff waits are.
func (c *Consumer) process(ctx context.Context, m kafka.Message) {
	h, ok := c.handlers[m.Topic]
	if !ok {
		return
	}

	lock := c.partitionLock(m.Topic, m.Partition)
	lock.Lock()
	defer lock.Unlock()

	handleCtx := context.WithoutCancel(ctx)
	var err error
	for attempt := 1; ; attempt++ {
		err = safeHandle(handleCtx, h, m.Value)
		c.hook.AfterHandle(handleCtx, m, err)
		if err == nil {
			break
		}
		c.hook.OnError(handleCtx, m, attempt, err)
		if attempt > c.cfg.RetryMax {
			break
		}
		if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			// Left uncommitted; the group redelivers it after restart.
			return
		}
	}

	if err != nil {
		c.logger.Error("message handling failed",
			logger.String("topic", m.Topic),
			logger.Int("partition", m.Partition),
			logger.Int64("offset", m.Offset),
			logger.Error(err))
		if c.dlq == nil {
			return
		}
		if dlqErr := c.dlq.WriteMessages(handleCtx, kafka.Message{
			Topic:   c.cfg.DLQTopic,
			Key:     m.Key,
			Value:   m.Value,
			Headers: []kafka.Header{{Key: "source_topic", Value: []byte(m.Topic)}, {Key: "error", Value: []byte(err.Error())}},
		}); dlqErr != nil {
			c.logger.Error("dlq write failed", logger.String("topic", c.cfg.DLQTopic), logger.Error(dlqErr))
			return
		}
	}

	if r := c.readers[m.Topic]; r != nil {
		c.commit(handleCtx, r, m)
	}
}

func (c *Consumer) commit(ctx context.Context, r messageReader, m kafka.Message) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = r.CommitMessages(cctx, m)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.logger.Error("commit failed", logger.String("topic", m.Topic), logger.Int64("offset", m.Offset), logger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", topic, partition)
	c.partMu.Lock()
	defer c.partMu.Unlock()
	l, ok := c.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[key] = l
	}
	return l
}

// Stop cancels fetching, waits for workers and closes readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for consumer workers: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.logger.Warn("close reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			err = errors.Join(err, c.dlq.Close())
		}
		c.logger.Info("kafka consumer stopped")
	})
	return err
}

func safeHandle(ctx context.Context, h MessageHandler, value []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, value)
}

func backoffWithJitter(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	hi = max(hi, lo)
	d := hi
	if attempt < 32 {
		d = min(lo*time.Duration(1<<(attempt-1)), hi)
	}
	// up to 50% jitter
	return d - time.Duration(rand.Int64N(int64(d)/2+1))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
