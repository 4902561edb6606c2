package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

type (
	APP struct {
		Name      string
		Host      string
		Port      string
		Env       string
		JWTSecret string
		// Repository is "postgres" or "memory".
		Repository string
	}
	DB struct {
		User     string
		Password string
		Name     string
		Host     string
		Port     string
	}
	MQ struct {
		User         string
		Password     string
		Vhost        string
		Host         string
		AmqpPort     string
		Exchange     string
		ExchangeType string
		QueueName    string
		Workers      int
		// RelayInterval is how often the outbox is polled for unpublished events.
		RelayInterval time.Duration
		RelayBatch    int
		// RequeueDelay holds a failed delivery before it is returned to the
		// queue, so a down dependency is not retried in a hot loop.
		RequeueDelay time.Duration
	}
	Storage struct {
		Root string
	}
	Scan struct {
		// Address is host:port or unix:/path/to/clamd.sock
		Address          string
		DialTimeout      time.Duration
		IOTimeout        time.Duration
		ChunkSize        int
		MaxResponseBytes int
	}
	Upload struct {
		// MaxBodyBytes caps the HTTP request body; per object type limits
		// are enforced by the domain rules.
		MaxBodyBytes int64
	}

	Config struct {
		App     APP
		DB      DB
		MQ      MQ
		Storage Storage
		Scan    Scan
		Upload  Upload
	}
)

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

func Load() Config {
	app := APP{
		Name:       getEnv("SERVICE_NAME", "storedfiles"),
		Host:       getEnv("SERVICE_HOST", ""),
		Port:       getEnv("SERVICE_PORT", "8080"),
		Env:        getEnv("SERVICE_ENV", ""),
		JWTSecret:  getEnv("SERVICE_JWT_SECRET", ""),
		Repository: getEnv("SERVICE_REPOSITORY", "postgres"),
	}
	db := DB{
		User:     getEnv("POSTGRES_USER", ""),
		Password: getEnv("POSTGRES_PASSWORD", ""),
		Name:     getEnv("POSTGRES_DB", ""),
		Host:     getEnv("POSTGRES_HOST", ""),
		Port:     getEnv("POSTGRES_PORT", ""),
	}
	mq := MQ{
		User:          getEnv("RABBITMQ_USER", ""),
		Password:      getEnv("RABBITMQ_PASSWORD", ""),
		Vhost:         getEnv("RABBITMQ_VHOST", ""),
		Host:          getEnv("RABBITMQ_HOST", ""),
		AmqpPort:      getEnv("RABBITMQ_AMQP_PORT", ""),
		Exchange:      getEnv("RABBITMQ_EXCHANGE", "stored_files"),
		ExchangeType:  getEnv("RABBITMQ_EXCHANGE_TYPE", "topic"),
		QueueName:     getEnv("RABBITMQ_QUEUE_NAME", "stored_files.pipeline"),
		Workers:       getEnvInt("RABBITMQ_WORKERS", 4),
		RelayInterval: getEnvDuration("RABBITMQ_RELAY_INTERVAL", 500*time.Millisecond),
		RelayBatch:    getEnvInt("RABBITMQ_RELAY_BATCH", 100),
		RequeueDelay:  getEnvDuration("RABBITMQ_REQUEUE_DELAY", 2*time.Second),
	}
	storage := Storage{
		Root: getEnv("STORAGE_ROOT", "./data/files"),
	}
	scan := Scan{
		Address:          getEnv("CLAMD_ADDRESS", "127.0.0.1:3310"),
		DialTimeout:      getEnvDuration("CLAMD_DIAL_TIMEOUT", 5*time.Second),
		IOTimeout:        getEnvDuration("CLAMD_IO_TIMEOUT", 60*time.Second),
		ChunkSize:        getEnvInt("CLAMD_CHUNK_SIZE", 64<<10),
		MaxResponseBytes: getEnvInt("CLAMD_MAX_RESPONSE_BYTES", 1<<10),
	}
	upload := Upload{
		MaxBodyBytes: int64(getEnvInt("UPLOAD_MAX_BODY_BYTES", 52<<20)),
	}

	return Config{
		App:     app,
		DB:      db,
		MQ:      mq,
		Storage: storage,
		Scan:    scan,
		Upload:  upload,
	}
}

func (c Config) DBDSN() (string, error) {
	if c.DB.User == "" || c.DB.Name == "" || c.DB.Host == "" || c.DB.Port == "" {
		return "", fmt.Errorf("incomplete DB config")
	}
	return fmt.Sprintf(
		"postgres://%s@%s:%s/%s",
		url.UserPassword(c.DB.User, c.DB.Password).String(),
		c.DB.Host,
		c.DB.Port,
		c.DB.Name,
	), nil
}

func (c Config) AMQPDSN() (string, error) {
	if c.MQ.User == "" || c.MQ.Host == "" || c.MQ.AmqpPort == "" {
		return "", fmt.Errorf("invalid MQ config: user, host and amqp port are required")
	}

	return fmt.Sprintf(
		"%s://%s@%s:%s/%s",
		"amqp",
		url.UserPassword(c.MQ.User, c.MQ.Password).String(),
		c.MQ.Host,
		c.MQ.AmqpPort,
		url.PathEscape(c.MQ.Vhost),
	), nil
}
