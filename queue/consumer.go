// Package queue consumes sensor messages from RabbitMQ, one durable queue per
// sensor kind, and acknowledges each delivery according to the ingest outcome.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"sensor-ingest/confs"
	"sensor-ingest/entities"
	"sensor-ingest/errs"
	"sensor-ingest/metric"
	"sensor-ingest/pkg/retry"
	"sensor-ingest/usecases"
)

const component = "rabbitmq"

// Handler turns one message body into an acknowledgement decision.
type Handler interface {
	Handle(ctx context.Context, queueKind entities.SensorKind, body []byte) usecases.Outcome
}

type delivery struct {
	kind entities.SensorKind
	amqp.Delivery
}

type Consumer struct {
	cfg     confs.RabbitMQConfig
	handler Handler
	metrics *metric.Collector
	log     *slog.Logger
}

func NewConsumer(cfg confs.RabbitMQConfig, handler Handler, metrics *metric.Collector, log *slog.Logger) *Consumer {
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		metrics: metrics,
		log:     log.With("component", "consumer"),
	}
}

// session is one live connection with its channel and consumer tags.
type session struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	tags []string
}

func (s *session) close(log *slog.Logger) {
	for _, tag := range s.tags {
		if err := s.ch.Cancel(tag, false); err != nil {
			log.Debug("consumer cancel failed", "tag", tag, "error", err)
		}
	}
	if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		log.Warn("channel close failed", "error", err)
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		log.Warn("connection close failed", "error", err)
	}
}

// connect dials the broker with bounded retries and declares the queues.
// Exhausting the attempts returns a fatal error.
func (c *Consumer) connect(ctx context.Context) (*session, error) {
	var s *session
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: c.cfg.ConnectAttempts,
		Delay:       c.cfg.ConnectDelay,
		OnRetry: func(attempt int, err error) {
			c.metrics.RecordConnectionError(component)
			c.log.Warn("broker connect failed, retrying", "attempt", attempt, "of", c.cfg.ConnectAttempts, "error", err)
		},
	}, func(ctx context.Context) error {
		conn, err := amqp.Dial(c.cfg.AMQPURL())
		if err != nil {
			return dialError(err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("rabbitmq channel open failed: %w", err)
		}
		if err := c.configure(ch); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return err
		}
		s = &session{conn: conn, ch: ch}
		return nil
	})
	if err != nil {
		return nil, errs.Fatal("rabbitmq connect", fmt.Errorf("%w: %w", errs.ErrConnectionLost, err))
	}
	c.log.Info("connected to broker", "queues", c.cfg.Queues(), "prefetch", c.cfg.Prefetch)
	return s, nil
}

// dialError marks broker refusals (bad credentials, vhost or SASL) as
// non-retryable; retrying them only delays the startup failure.
func dialError(err error) error {
	err = fmt.Errorf("rabbitmq connect failed: %w", err)
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp.AccessRefused {
		return retry.NonRetryable(err)
	}
	return err
}

// configure applies the channel-wide prefetch and declares one durable queue
// per kind with the message TTL.
func (c *Consumer) configure(ch *amqp.Channel) error {
	if err := ch.Qos(c.cfg.Prefetch, 0, true); err != nil {
		return fmt.Errorf("rabbitmq qos setup failed: %w", err)
	}
	queues := c.cfg.Queues()
	for _, kind := range entities.AllKinds {
		if _, err := ch.QueueDeclare(queues[kind], true, false, false, false, QueueArgs(c.cfg.MessageTTL)); err != nil {
			return fmt.Errorf("rabbitmq queue declare %s failed: %w", queues[kind], err)
		}
	}
	return nil
}

// QueueArgs returns the declaration arguments for a sensor queue. The TTL is
// sent as a long so multi-week values do not wrap.
func QueueArgs(ttl time.Duration) amqp.Table {
	if ttl <= 0 {
		return nil
	}
	return amqp.Table{"x-message-ttl": ttl.Milliseconds()}
}

// Run consumes until ctx is cancelled. A failed initial connect is returned
// as fatal; a connection lost mid-stream is logged, counted and re-dialled.
func (c *Consumer) Run(ctx context.Context) error {
	s, err := c.connect(ctx)
	if err != nil {
		return err
	}
	for {
		err := c.serve(ctx, s)
		s.close(c.log)
		if ctx.Err() != nil {
			c.log.Info("consumer stopped")
			return nil
		}
		c.metrics.RecordConnectionError(component)
		c.log.Error("broker connection lost, reconnecting", "error", err)

		if s, err = c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) serve(ctx context.Context, s *session) error {
	sources := make(map[entities.SensorKind]<-chan amqp.Delivery, len(entities.AllKinds))
	queues := c.cfg.Queues()
	for _, kind := range entities.AllKinds {
		tag := "sensor-ingest-" + string(kind)
		msgs, err := s.ch.Consume(queues[kind], tag, false, false, false, false, nil)
		if err != nil {
			return errs.Transient("rabbitmq consume", fmt.Errorf("queue %s: %w", queues[kind], err))
		}
		s.tags = append(s.tags, tag)
		sources[kind] = msgs
	}
	closed := s.conn.NotifyClose(make(chan *amqp.Error, 1))
	done := make(chan struct{})
	defer close(done)
	deliveries := merge(done, sources)

	c.log.Info("consuming", "queues", len(sources))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return errs.Transient("rabbitmq", fmt.Errorf("%w: %v", errs.ErrConnectionLost, amqpErr))
		case d, ok := <-deliveries:
			if !ok {
				return errs.Transient("rabbitmq", fmt.Errorf("%w: deliveries channel closed", errs.ErrConnectionLost))
			}
			c.Process(ctx, d.kind, d.Delivery)
		}
	}
}

// merge fans the per-queue delivery channels into one. The result is closed
// once every source is closed or done is closed.
func merge(done <-chan struct{}, sources map[entities.SensorKind]<-chan amqp.Delivery) <-chan delivery {
	out := make(chan delivery)
	var wg sync.WaitGroup
	for kind, src := range sources {
		wg.Add(1)
		go func(kind entities.SensorKind, src <-chan amqp.Delivery) {
			defer wg.Done()
			for d := range src {
				select {
				case out <- delivery{kind: kind, Delivery: d}:
				case <-done:
					return
				}
			}
		}(kind, src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Process handles one delivery to completion and acknowledges it. It never
// panics; a panicking handler leads to a requeue.
func (c *Consumer) Process(ctx context.Context, kind entities.SensorKind, d amqp.Delivery) usecases.Outcome {
	start := time.Now()
	c.metrics.RecordReceived(string(kind))

	out := c.handle(ctx, kind, d.Body)
	log := c.log.With("kind", out.Kind, "message_id", out.MessageID, "delivery_tag", d.DeliveryTag)

	var err error
	switch out.Action {
	case usecases.Ack:
		err = d.Ack(false)
	case usecases.Reject:
		err = d.Nack(false, false)
	default:
		c.wait(ctx, c.cfg.RequeueBackoff)
		err = d.Nack(false, true)
	}
	if err != nil {
		c.metrics.RecordConnectionError(component)
		log.Error("acknowledgement failed", "action", out.Action, "error", err)
	}

	c.metrics.RecordOutcome(string(kind), out.Action.String(), time.Since(start))
	if out.Reason != "" {
		log.Debug("delivery handled", "action", out.Action, "reason", out.Reason, "error", out.Err)
	}
	return out
}

func (c *Consumer) handle(ctx context.Context, kind entities.SensorKind, body []byte) (out usecases.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panic, requeueing", "kind", kind, "panic", r)
			out = usecases.Outcome{
				Action: usecases.Requeue,
				Kind:   kind,
				Reason: "panic",
				Err:    fmt.Errorf("handler panic: %v", r),
			}
		}
	}()
	return c.handler.Handle(ctx, kind, body)
}

func (c *Consumer) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
