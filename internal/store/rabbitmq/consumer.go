package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/market-research/internal/jobs"
)

const (
	retryHeader  = "x-retry-count"
	reasonHeader = "x-dead-reason"
)

type ConsumerConfig struct {
	URL         string
	Queue       string
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
}

// Consumer pulls tasks off the queue and runs them with bounded concurrency.
// A handler error sends the task through the retry queue; once retries are
// exhausted a copy without credentials lands in the dead-letter queue.
type Consumer struct {
	cfg  ConsumerConfig
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *slog.Logger
}

func NewConsumer(cfg ConsumerConfig, log *slog.Logger) (*Consumer, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := declareTopology(ch, cfg.Queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	// strict concurrency control
	if err := ch.Qos(cfg.Concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}
	return &Consumer{cfg: cfg, conn: conn, ch: ch, log: log}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run consumes until ctx is cancelled or the delivery channel closes, then
// waits for in-flight tasks.
func (c *Consumer) Run(ctx context.Context, handle func(context.Context, jobs.Task) error) error {
	msgs, err := c.ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.log.Info("worker started", "queue", c.cfg.Queue, "concurrency", c.cfg.Concurrency)

	deliveries := make(chan amqp.Delivery, c.cfg.Concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.cfg.Concurrency)
	for i := 0; i < c.cfg.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range deliveries {
				c.process(ctx, workerID, d, handle)
			}
		}(i)
	}
	defer func() {
		close(deliveries)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("worker shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			deliveries <- d
		}
	}
}

func (c *Consumer) process(ctx context.Context, workerID int, d amqp.Delivery, handle func(context.Context, jobs.Task) error) {
	task, err := decodeTask(d.Body)
	if err != nil {
		c.log.Warn("bad message", "worker", workerID, "err", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	if err := handle(ctx, task); err != nil {
		c.log.Error("task failed", "worker", workerID, "job_id", task.JobID, "took", time.Since(start), "err", err)
		c.retryOrDeadLetter(ctx, d, task)
		return
	}
	if err := d.Ack(false); err != nil {
		c.log.Warn("ack failed", "worker", workerID, "job_id", task.JobID, "err", err)
	}
}

func (c *Consumer) retryOrDeadLetter(ctx context.Context, d amqp.Delivery, task jobs.Task) {
	n := retryCount(d.Headers)
	if n >= c.cfg.MaxRetries {
		c.deadLetter(ctx, d, task, fmt.Sprintf("gave up after %d retries", n))
		return
	}
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(n + 1)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := c.ch.PublishWithContext(pctx, "", retryQueue(c.cfg.Queue), false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Headers:      headers,
		Expiration:   strconv.FormatInt(c.cfg.RetryDelay.Milliseconds(), 10),
		Body:         d.Body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		c.log.Error("retry publish failed", "job_id", task.JobID, "err", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) deadLetter(ctx context.Context, d amqp.Delivery, task jobs.Task, reason string) {
	msg, err := deadLetterPublishing(d, task, reason)
	if err == nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = c.ch.PublishWithContext(pctx, "", deadQueue(c.cfg.Queue), false, false, msg)
	}
	if err != nil {
		c.log.Error("dead-letter publish failed", "job_id", task.JobID, "err", err)
		_ = d.Nack(false, false)
		return
	}
	c.log.Warn("task dead-lettered", "job_id", task.JobID, "reason", reason)
	_ = d.Ack(false)
}

// deadLetterPublishing builds the DLQ copy of d with the caller's
// credentials removed from the body.
func deadLetterPublishing(d amqp.Delivery, task jobs.Task, reason string) (amqp.Publishing, error) {
	task.Credentials = ""
	body, err := json.Marshal(task)
	if err != nil {
		return amqp.Publishing{}, err
	}
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[reasonHeader] = reason
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Headers:      headers,
		Body:         body,
		Timestamp:    time.Now(),
	}, nil
}

func decodeTask(body []byte) (jobs.Task, error) {
	var t jobs.Task
	if err := json.Unmarshal(body, &t); err != nil {
		return jobs.Task{}, err
	}
	if t.JobID == "" {
		return jobs.Task{}, errors.New("missing job_id")
	}
	return t, nil
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
