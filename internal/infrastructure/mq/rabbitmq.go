package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"stored-file-api/config"
	domain "stored-file-api/internal/domain/stored_file"
)

// HeaderSchemaVersion carries the event schema version next to the routing key.
const HeaderSchemaVersion = "x-schema-version"

const (
	defaultRelayInterval = 500 * time.Millisecond
	defaultRelayBatch    = 100
)

var ErrNack = errors.New("broker nacked publishing")

type (
	// publishFunc sends one message and returns once the broker confirmed it.
	publishFunc func(ctx context.Context, routingKey string, pub amqp091.Publishing) error

	// RabbitMQ relays the outbox to the exchange. An event is marked published
	// only after a broker confirm, so a crash in between republishes it.
	RabbitMQ struct {
		cfg      config.MQ
		log      *zap.Logger
		conn     *amqp091.Connection
		pubCh    *amqp091.Channel
		outbox   domain.Outbox
		mCounter *prometheus.CounterVec
		publish  publishFunc
	}
)

func New(cfg config.MQ, logger *zap.Logger, outbox domain.Outbox, mCounter *prometheus.CounterVec) *RabbitMQ {
	if cfg.RelayInterval <= 0 {
		cfg.RelayInterval = defaultRelayInterval
	}
	if cfg.RelayBatch <= 0 {
		cfg.RelayBatch = defaultRelayBatch
	}
	r := &RabbitMQ{
		cfg:      cfg,
		log:      logger,
		outbox:   outbox,
		mCounter: mCounter,
	}
	r.publish = r.publishConfirmed
	return r
}

func (r *RabbitMQ) Connect(ctx context.Context, dsn string) error {
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	amqpCfg := amqp091.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp091.Table{
			"connection_name": "storedfiles-publisher",
		},
		Dial: func(network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
	}

	var err error
	r.conn, err = amqp091.DialConfig(dsn, amqpCfg)
	if err != nil {
		return err
	}
	r.pubCh, err = r.conn.Channel()
	if err != nil {
		_ = r.conn.Close()
		return err
	}
	if err = r.pubCh.Confirm(false); err != nil {
		_ = r.conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}

	r.log.Info("rabbitmq connected successfully")

	return nil
}

func (r *RabbitMQ) Init() error {
	if err := r.pubCh.ExchangeDeclare(
		r.cfg.Exchange,
		r.cfg.ExchangeType,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = r.pubCh.Close()
		return err
	}

	return nil
}

// PublisherWorker polls the outbox until ctx is done.
func (r *RabbitMQ) PublisherWorker(ctx context.Context) {
	r.log.Info("starting publisher worker")

	defer func() {
		r.log.Info("publisher worker gracefully stopped")
	}()

	ticker := time.NewTicker(r.cfg.RelayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				n, err := r.relay(ctx)
				if err != nil {
					// alert
					r.log.Error("outbox relay error", zap.Error(err))
					break
				}
				if n < r.cfg.RelayBatch {
					break
				}
			}
		case <-ctx.Done():
			if r.pubCh != nil {
				_ = r.pubCh.Close()
			}
			return
		}
	}
}

// relay publishes one batch of pending events in outbox order and returns
// how many were published. It stops at the first failure so the rest are
// retried on the next tick.
func (r *RabbitMQ) relay(ctx context.Context) (int, error) {
	evts, err := r.outbox.FetchPendingEvents(ctx, r.cfg.RelayBatch)
	if err != nil {
		return 0, fmt.Errorf("fetch pending events: %w", err)
	}
	if len(evts) == 0 {
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(evts))
	var pubErr error
	for _, e := range evts {
		if pubErr = r.publishEvent(ctx, e); pubErr != nil {
			pubErr = fmt.Errorf("publish %s %s: %w", e.Type, e.ID, pubErr)
			break
		}
		published = append(published, e.ID)
	}

	if len(published) > 0 {
		if err = r.outbox.MarkEventsPublished(ctx, published); err != nil {
			return 0, fmt.Errorf("mark events published: %w", err)
		}
		if r.mCounter != nil {
			r.mCounter.WithLabelValues("events_published_total").Add(float64(len(published)))
		}
	}

	return len(published), pubErr
}

func (r *RabbitMQ) publishEvent(ctx context.Context, e *domain.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	pub := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.ID.String(),
		Timestamp:    e.OccurredAt,
		Type:         e.Type,
		Headers: amqp091.Table{
			HeaderSchemaVersion: int32(e.Version),
		},
		Body: b,
	}

	return r.publish(ctx, e.Type, pub)
}

func (r *RabbitMQ) publishConfirmed(ctx context.Context, routingKey string, pub amqp091.Publishing) error {
	confirm, err := r.pubCh.PublishWithDeferredConfirmWithContext(
		ctx,
		r.cfg.Exchange,
		routingKey,
		true,
		false,
		pub,
	)
	if err != nil {
		return err
	}

	ack, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ack {
		return ErrNack
	}
	return nil
}

func (r *RabbitMQ) GetConn() *amqp091.Connection { return r.conn }
