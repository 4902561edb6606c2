package rmqconsumer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stored-file-api/config"
)

// HeaderSchemaVersion is read into Message.SchemaVersion when present.
const HeaderSchemaVersion = "x-schema-version"

var (
	// ErrSkip marks a message that is acknowledged without processing.
	ErrSkip = errors.New("skip message")
	// ErrDrop marks a message that can never be processed; it is rejected
	// without requeue.
	ErrDrop = errors.New("drop message")

	ErrDeliveryClosed = errors.New("delivery channel closed")
)

type (
	Message struct {
		ID            string
		RoutingKey    string
		SchemaVersion int
		Redelivered   bool
		Body          []byte
	}

	// Handler processes one message. A nil error acks it, ErrSkip acks it,
	// ErrDrop rejects it and any other error requeues it.
	Handler interface {
		HandleMessage(ctx context.Context, msg Message) error
	}

	Consumer struct {
		cfg        config.MQ
		log        *zap.Logger
		handler    Handler
		bindings   []string
		conn       *amqp091.Connection
		chConsume  *amqp091.Channel
		chDelivery <-chan amqp091.Delivery
	}
)

func New(cfg config.MQ, logger *zap.Logger, handler Handler, bindings ...string) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Consumer{
		cfg:      cfg,
		log:      logger,
		handler:  handler,
		bindings: bindings,
	}
}

func (c *Consumer) Connect(dsn string) error {
	conn, err := amqp091.DialConfig(dsn, amqp091.Config{
		Properties: amqp091.Table{
			"connection_name": "storedfiles-consumer",
		},
	})
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	c.conn, c.chConsume = conn, ch

	c.log.Info("rabbitmq consumer connected successfully")

	return nil
}

func (c *Consumer) Init() error {
	if err := c.chConsume.ExchangeDeclare(
		c.cfg.Exchange,
		c.cfg.ExchangeType,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := c.chConsume.QueueDeclare(
		c.cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, rk := range c.bindings {
		if err := c.chConsume.QueueBind(
			c.cfg.QueueName,
			rk,
			c.cfg.Exchange,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("queue bind %s: %w", rk, err)
		}
	}

	// one unacked message per worker
	if err := c.chConsume.Qos(c.cfg.Workers, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	deliveries, err := c.chConsume.Consume(
		c.cfg.QueueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.chDelivery = deliveries

	return nil
}

// DeliveryWorker fans deliveries out to cfg.Workers goroutines and blocks
// until ctx is done or the broker closes the delivery channel.
func (c *Consumer) DeliveryWorker(ctx context.Context) error {
	c.log.Info("starting delivery workers", zap.Int("workers", c.cfg.Workers))

	defer func() {
		c.log.Info("delivery workers gracefully stopped")
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		g.Go(func() error {
			return c.work(gctx, c.chDelivery)
		})
	}
	err := g.Wait()

	if c.chConsume != nil {
		_ = c.chConsume.Close()
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Consumer) work(ctx context.Context, deliveries <-chan amqp091.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveryClosed
			}
			if err := c.delivery(ctx, d); err != nil {
				// alert
				c.log.Error("mq ack error", zap.Error(err))
			}
		}
	}
}

// delivery runs the handler and settles the message according to its result.
func (c *Consumer) delivery(ctx context.Context, d amqp091.Delivery) error {
	msg := Message{
		ID:            d.MessageId,
		RoutingKey:    d.RoutingKey,
		SchemaVersion: schemaVersion(d.Headers),
		Redelivered:   d.Redelivered,
		Body:          d.Body,
	}
	log := c.log.With(
		zap.String("message_id", msg.ID),
		zap.String("routing_key", msg.RoutingKey),
		zap.Bool("redelivered", msg.Redelivered),
	)

	err := c.handler.HandleMessage(ctx, msg)
	switch {
	case err == nil:
		return d.Ack(false)
	case errors.Is(err, ErrSkip):
		log.Warn("mq message skipped", zap.Error(err))
		return d.Ack(false)
	case errors.Is(err, ErrDrop):
		log.Error("mq message dropped", zap.Error(err))
		return d.Reject(false)
	default:
		log.Warn("mq message requeued", zap.Error(err), zap.Duration("delay", c.cfg.RequeueDelay))
		c.holdBeforeRequeue(ctx)
		return d.Nack(false, true)
	}
}

// holdBeforeRequeue waits cfg.RequeueDelay. The message stays unacked, so the
// worker's prefetch slot is not handed to another delivery meanwhile.
func (c *Consumer) holdBeforeRequeue(ctx context.Context) {
	if c.cfg.RequeueDelay <= 0 {
		return
	}
	t := time.NewTimer(c.cfg.RequeueDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Consumer) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func schemaVersion(h amqp091.Table) int {
	switch v := h[HeaderSchemaVersion].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
