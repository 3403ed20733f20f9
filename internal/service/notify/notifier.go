// Package notify hands triggered alerts to a delivery backend and delivers them to Telegram.
package notify

import (
	"context"
	"strconv"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/domain/repository"
	"CoinFlow/pkg/logger"
)

// JobType is the queue message type carrying an AlertEvent.
const JobType = "alert_triggered"

var (
	_ repository.Notifier = (*LogNotifier)(nil)
	_ repository.Notifier = (*KafkaNotifier)(nil)
	_ repository.Notifier = (*QueueNotifier)(nil)
)

// LogNotifier only writes the event to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(l *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: l.With(logger.String("component", "notifier"))}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, e models.AlertEvent) error {
	n.logger.Info("alert triggered",
		logger.String("event_id", e.EventID),
		logger.Int64("alert_id", e.AlertID),
		logger.Int64("user_id", e.UserID),
		logger.String("asset", e.AssetSymbol),
		logger.String("condition", string(e.Condition)),
		logger.Float64("target", e.TargetPrice),
		logger.Float64("price", e.ActualPrice))
	return nil
}

// Publisher is satisfied by pkg/kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value any) error
}

// KafkaNotifier publishes events keyed by user so one user's alerts stay ordered.
type KafkaNotifier struct {
	pub   Publisher
	topic string
}

func NewKafkaNotifier(pub Publisher, topic string) *KafkaNotifier {
	return &KafkaNotifier{pub: pub, topic: topic}
}

func (n *KafkaNotifier) Name() string { return "kafka" }

func (n *KafkaNotifier) Notify(ctx context.Context, e models.AlertEvent) error {
	return n.pub.Publish(ctx, n.topic, []byte(strconv.FormatInt(e.UserID, 10)), e)
}

// Enqueuer is satisfied by pkg/queue.RedisQueue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload any) error
}

type QueueNotifier struct {
	q Enqueuer
}

func NewQueueNotifier(q Enqueuer) *QueueNotifier {
	return &QueueNotifier{q: q}
}

func (n *QueueNotifier) Name() string { return "redis" }

func (n *QueueNotifier) Notify(ctx context.Context, e models.AlertEvent) error {
	return n.q.Enqueue(ctx, JobType, e)
}
