package config

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type StoreConfig struct {
	Driver   string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH" envDefault:"quantum-credits.db"`
}

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" envDefault:"30m"`
}

type LedgerConfig struct {
	// ConversionRate is the currency value of one credit.
	ConversionRate decimal.Decimal `env:"LEDGER_CONVERSION_RATE" envDefault:"1"`
	MaxAttempts    int             `env:"LEDGER_MAX_ATTEMPTS" envDefault:"5"`
}

type QRNGConfig struct {
	URL     string        `env:"QRNG_URL" envDefault:"https://qrng.anu.edu.au/API/jsonI.php?length=1&type=uint8"`
	Timeout time.Duration `env:"QRNG_TIMEOUT" envDefault:"3s"`
}

type PayoutConfig struct {
	// URL of the payout endpoint. Empty selects the simulated gateway.
	URL      string        `env:"PAYOUT_URL"`
	Currency string        `env:"PAYOUT_CURRENCY" envDefault:"usd"`
	Timeout  time.Duration `env:"PAYOUT_TIMEOUT" envDefault:"10s"`
}

const (
	SinkNone  = "none"
	SinkNATS  = "nats"
	SinkKafka = "kafka"
)

type EventsConfig struct {
	Sink         string   `env:"EVENTS_SINK" envDefault:"none"`
	Buffer       int      `env:"EVENTS_BUFFER" envDefault:"64"`
	NATSURL      string   `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NATSSubject  string   `env:"NATS_SUBJECT" envDefault:"credits.updated"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"127.0.0.1:9092"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"credits_updated"`
}
