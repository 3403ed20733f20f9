package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinFlow/pkg/logger"
)

type payload struct {
	AlertID int64  `json:"alert_id"`
	Text    string `json:"text"`
}

type recordingJob struct {
	mu   sync.Mutex
	got  []payload
	fail error
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "alert" }

func (j *recordingJob) Handle(_ context.Context, raw json.RawMessage) error {
	p, err := Decode[payload](raw)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.got = append(j.got, p)
	return j.fail
}

func (j *recordingJob) received() []payload {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]payload(nil), j.got...)
}

func newTestQueue(t *testing.T, cfg Config, mode Mode) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cfg.PollTimeout = 50 * time.Millisecond
	return NewRedisQueue(logger.Nop(), cfg, client, mode), mr
}

func TestRedisQueueDeliversToJob(t *testing.T) {
	q, _ := newTestQueue(t, Config{Name: "alerts", Workers: 2}, ModeProducerConsumer)
	job := &recordingJob{}
	q.RegisterJob(job)

	ctx := context.Background()
	require.NoError(t, q.Start(ctx))
	t.Cleanup(func() { q.Stop(context.Background()) })

	require.NoError(t, q.Enqueue(ctx, "alert", payload{AlertID: 7, Text: "BTC above 70000"}))
	assert.Eventually(t, func() bool { return len(job.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, payload{AlertID: 7, Text: "BTC above 70000"}, job.received()[0])
}

func TestRedisQueueEnqueueRequiresStart(t *testing.T) {
	q, _ := newTestQueue(t, Config{}, ModeProducerOnly)
	assert.ErrorContains(t, q.Enqueue(context.Background(), "alert", payload{}), "not running")
}

func TestRedisQueueRetryThenDeadLetter(t *testing.T) {
	q, _ := newTestQueue(t, Config{Name: "alerts", RetryLimit: 1, RetryDelay: time.Minute}, ModeConsumerOnly)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	job := &recordingJob{fail: errors.New("telegram 502")}
	q.RegisterJob(job)
	ctx := context.Background()

	msg := Message{ID: "m1", Type: "alert", Payload: json.RawMessage(`{"alert_id":1}`)}
	q.process(ctx, msg)

	pending, retrying, dead, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, [3]int64{0, 1, 0}, [3]int64{pending, retrying, dead})

	moved, err := q.moveDueRetries(ctx)
	require.NoError(t, err)
	assert.Zero(t, moved, "retry is not due yet")

	now = now.Add(2 * time.Minute)
	moved, err = q.moveDueRetries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	raw, err := q.client.RPop(ctx, q.queueKey()).Result()
	require.NoError(t, err)
	var retried Message
	require.NoError(t, json.Unmarshal([]byte(raw), &retried))
	assert.Equal(t, 1, retried.Attempts)
	assert.Equal(t, "telegram 502", retried.LastError)

	q.process(ctx, retried)
	pending, retrying, dead, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, [3]int64{0, 0, 1}, [3]int64{pending, retrying, dead})
	assert.Len(t, job.received(), 2)
}

func TestRedisQueueUnknownTypeIsDeadLettered(t *testing.T) {
	q, _ := newTestQueue(t, Config{}, ModeConsumerOnly)
	ctx := context.Background()
	q.process(ctx, Message{ID: "x", Type: "mystery"})

	_, _, dead, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestRedisQueueProducerOnlyIgnoresJobs(t *testing.T) {
	q, _ := newTestQueue(t, Config{}, ModeProducerOnly)
	q.RegisterJob(&recordingJob{})
	assert.Empty(t, q.jobs)
}

func TestRedisQueueStartFailsWithoutRedis(t *testing.T) {
	q, mr := newTestQueue(t, Config{}, ModeProducerOnly)
	mr.Close()
	assert.Error(t, q.Start(context.Background()))
}

func TestDecode(t *testing.T) {
	p, err := Decode[payload](json.RawMessage(`{"alert_id":3,"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.AlertID)

	_, err = Decode[payload](json.RawMessage(`[`))
	assert.Error(t, err)
}
