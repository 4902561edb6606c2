package rmqconsumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stored-file-api/config"
)

type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) error { return f(ctx, msg) }

type settle struct {
	op      string
	requeue bool
}

type fakeAcker struct {
	mu      sync.Mutex
	settled map[uint64]settle
}

func newFakeAcker() *fakeAcker { return &fakeAcker{settled: map[uint64]settle{}} }

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled[tag] = settle{op: "ack"}
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled[tag] = settle{op: "nack", requeue: requeue}
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled[tag] = settle{op: "reject", requeue: requeue}
	return nil
}

func (a *fakeAcker) get(tag uint64) (settle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.settled[tag]
	return s, ok
}

func Test_delivery_Table(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want settle
	}{
		{name: "success acks", want: settle{op: "ack"}},
		{name: "skip acks", err: fmt.Errorf("%w: unknown", ErrSkip), want: settle{op: "ack"}},
		{name: "drop rejects", err: fmt.Errorf("%w: bad json", ErrDrop), want: settle{op: "reject"}},
		{name: "failure requeues", err: errors.New("scan daemon down"), want: settle{op: "nack", requeue: true}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			acker := newFakeAcker()
			var got Message
			c := New(config.MQ{}, zap.NewNop(), HandlerFunc(func(_ context.Context, msg Message) error {
				got = msg
				return tt.err
			}))

			d := amqp091.Delivery{
				Acknowledger: acker,
				DeliveryTag:  7,
				MessageId:    "m-1",
				RoutingKey:   "stored_file.uploaded",
				Redelivered:  true,
				Headers:      amqp091.Table{HeaderSchemaVersion: int32(1)},
				Body:         []byte(`{"file_id":"x"}`),
			}
			require.NoError(t, c.delivery(context.Background(), d))

			s, ok := acker.get(7)
			require.True(t, ok)
			assert.Equal(t, tt.want, s)

			assert.Equal(t, "m-1", got.ID)
			assert.Equal(t, "stored_file.uploaded", got.RoutingKey)
			assert.Equal(t, 1, got.SchemaVersion)
			assert.True(t, got.Redelivered)
			assert.Equal(t, []byte(`{"file_id":"x"}`), got.Body)
		})
	}
}

func Test_delivery_RequeueDelay(t *testing.T) {
	const delay = 150 * time.Millisecond
	failing := HandlerFunc(func(context.Context, Message) error { return errors.New("scan daemon down") })

	t.Run("failure is held before requeue", func(t *testing.T) {
		acker := newFakeAcker()
		c := New(config.MQ{RequeueDelay: delay}, zap.NewNop(), failing)

		start := time.Now()
		require.NoError(t, c.delivery(context.Background(), amqp091.Delivery{Acknowledger: acker, DeliveryTag: 1}))

		assert.GreaterOrEqual(t, time.Since(start), delay)
		s, ok := acker.get(1)
		require.True(t, ok)
		assert.Equal(t, settle{op: "nack", requeue: true}, s)
	})

	t.Run("shutdown requeues without waiting", func(t *testing.T) {
		acker := newFakeAcker()
		c := New(config.MQ{RequeueDelay: time.Hour}, zap.NewNop(), failing)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		done := make(chan error, 1)
		go func() { done <- c.delivery(ctx, amqp091.Delivery{Acknowledger: acker, DeliveryTag: 2}) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("requeue waited past cancellation")
		}
		s, ok := acker.get(2)
		require.True(t, ok)
		assert.Equal(t, settle{op: "nack", requeue: true}, s)
	})

	t.Run("ack is never delayed", func(t *testing.T) {
		acker := newFakeAcker()
		c := New(config.MQ{RequeueDelay: time.Hour}, zap.NewNop(), HandlerFunc(func(context.Context, Message) error { return nil }))

		start := time.Now()
		require.NoError(t, c.delivery(context.Background(), amqp091.Delivery{Acknowledger: acker, DeliveryTag: 3}))

		assert.Less(t, time.Since(start), time.Second)
		s, _ := acker.get(3)
		assert.Equal(t, "ack", s.op)
	})
}

func Test_schemaVersion(t *testing.T) {
	cases := []struct {
		name string
		in   amqp091.Table
		want int
	}{
		{"int32", amqp091.Table{HeaderSchemaVersion: int32(2)}, 2},
		{"int64", amqp091.Table{HeaderSchemaVersion: int64(3)}, 3},
		{"string", amqp091.Table{HeaderSchemaVersion: "4"}, 4},
		{"missing", amqp091.Table{}, 0},
		{"nil table", nil, 0},
		{"garbage", amqp091.Table{HeaderSchemaVersion: 1.5}, 0},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, schemaVersion(tt.in))
		})
	}
}

func TestDeliveryWorker_PoolProcessesConcurrently(t *testing.T) {
	const workers = 3
	acker := newFakeAcker()
	deliveries := make(chan amqp091.Delivery)

	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	release := make(chan struct{})
	c := New(config.MQ{Workers: workers}, zap.NewNop(), HandlerFunc(func(context.Context, Message) error {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()

		<-release

		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}))
	c.chDelivery = deliveries

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.DeliveryWorker(ctx) }()

	for tag := uint64(1); tag <= workers; tag++ {
		deliveries <- amqp091.Delivery{Acknowledger: acker, DeliveryTag: tag}
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return peak == workers
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		for tag := uint64(1); tag <= workers; tag++ {
			if _, ok := acker.get(tag); !ok {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("delivery worker did not stop")
	}
}

func TestDeliveryWorker_ClosedChannel(t *testing.T) {
	deliveries := make(chan amqp091.Delivery)
	close(deliveries)

	c := New(config.MQ{Workers: 2}, zap.NewNop(), HandlerFunc(func(context.Context, Message) error { return nil }))
	c.chDelivery = deliveries

	err := c.DeliveryWorker(context.Background())
	assert.ErrorIs(t, err, ErrDeliveryClosed)
}

func TestConnect_InvalidDSN(t *testing.T) {
	c := New(config.MQ{}, zap.NewNop(), nil)

	err := c.Connect("amqp://bad:://dsn")
	require.Error(t, err)
	require.Nil(t, c.chConsume)
	require.Nil(t, c.conn)
}
