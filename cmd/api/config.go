package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/QuantumCredits/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT" envDefault:"8080"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" envDefault:"INFO"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AdminEnabled    bool          `env:"ADMIN_ENABLED" envDefault:"false"`

	Store  config.StoreConfig
	Ledger config.LedgerConfig
	QRNG   config.QRNGConfig
	Payout config.PayoutConfig
	Events config.EventsConfig
}
