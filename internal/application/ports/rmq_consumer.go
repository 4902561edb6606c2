package ports

import "context"

type RMQConsumer interface {
	Connect(dsn string) error
	Init() error
	// DeliveryWorker blocks until ctx is done or the delivery channel closes.
	DeliveryWorker(ctx context.Context) error
	Close() error
}
