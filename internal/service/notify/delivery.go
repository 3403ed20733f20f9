package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/domain/repository"
	pkgcache "CoinFlow/pkg/cache"
	pkgkafka "CoinFlow/pkg/kafka"
	"CoinFlow/pkg/logger"
	"CoinFlow/pkg/queue"
)

// Sender delivers one text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Delivery turns AlertEvents from a broker into Telegram messages.
// Events already delivered are remembered by ID so redeliveries are dropped.
type Delivery struct {
	sender  Sender
	seen    pkgcache.Service
	seenTTL time.Duration
	topic   string
	metrics repository.Metrics
	logger  *logger.Logger
}

func NewDelivery(sender Sender, seen pkgcache.Service, topic string, m repository.Metrics, l *logger.Logger) *Delivery {
	return &Delivery{
		sender:  sender,
		seen:    seen,
		seenTTL: 24 * time.Hour,
		topic:   topic,
		metrics: m,
		logger:  l.With(logger.String("component", "delivery")),
	}
}

// Deliver sends the event in raw. Rejected messages are dropped, anything else is returned for retry.
func (d *Delivery) Deliver(ctx context.Context, raw []byte) error {
	var e models.AlertEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		d.logger.Error("drop undecodable alert event", logger.Error(err))
		return nil
	}

	key := "delivered:" + e.EventID
	if d.seen != nil && e.EventID != "" {
		if ok, err := d.seen.Exists(ctx, key); err == nil && ok {
			d.logger.Debug("duplicate alert event", logger.String("event_id", e.EventID))
			return nil
		}
	}

	err := d.sender.Send(ctx, e.UserID, FormatAlert(e))
	switch {
	case errors.Is(err, ErrRejected):
		d.metrics.RecordNotifyFailure("telegram")
		d.logger.Warn("telegram rejected alert",
			logger.String("event_id", e.EventID),
			logger.Int64("user_id", e.UserID),
			logger.Error(err))
		return nil
	case err != nil:
		d.metrics.RecordNotifyFailure("telegram")
		return fmt.Errorf("deliver %s: %w", e.EventID, err)
	}

	if d.seen != nil && e.EventID != "" {
		if err := d.seen.Set(ctx, key, true, d.seenTTL); err != nil {
			d.logger.Warn("remember delivered event", logger.Error(err))
		}
	}
	d.logger.Info("alert delivered",
		logger.String("event_id", e.EventID),
		logger.Int64("alert_id", e.AlertID),
		logger.Int64("user_id", e.UserID))
	return nil
}

// KafkaHandler adapts Delivery to the kafka consumer.
func (d *Delivery) KafkaHandler() pkgkafka.MessageHandler { return kafkaHandler{d} }

// QueueJob adapts Delivery to the redis queue.
func (d *Delivery) QueueJob() queue.Job { return queueJob{d} }

type kafkaHandler struct{ d *Delivery }

func (h kafkaHandler) Topic() string { return h.d.topic }

func (h kafkaHandler) Handle(ctx context.Context, value []byte) error {
	return h.d.Deliver(ctx, value)
}

type queueJob struct{ d *Delivery }

func (j queueJob) Name() string { return "telegram_delivery" }

func (j queueJob) Type() string { return JobType }

func (j queueJob) Handle(ctx context.Context, payload json.RawMessage) error {
	return j.d.Deliver(ctx, payload)
}
