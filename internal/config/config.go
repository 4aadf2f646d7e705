package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseDSN    string
	MongoURI       string
	RedisAddr      string
	RabbitURL      string
	GatewayURL     string
	GatewayAPIKey  string
	ListenAddr     string
	PaymentTTL     time.Duration
	IdempotencyTTL time.Duration
	OTLPEndpoint   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	paymentTTL, _ := time.ParseDuration(os.Getenv("PAYMENT_TTL"))
	if paymentTTL == 0 {
		paymentTTL = 30 * time.Minute
	}
	idemTTL, _ := time.ParseDuration(os.Getenv("IDEMPOTENCY_TTL"))
	if idemTTL == 0 {
		idemTTL = time.Hour
	}
	listen := os.Getenv("LISTEN_ADDR")
	if listen == "" {
		listen = ":8080"
	}

	return &Config{
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		GatewayURL:     os.Getenv("GATEWAY_URL"),
		GatewayAPIKey:  os.Getenv("GATEWAY_API_KEY"),
		ListenAddr:     listen,
		PaymentTTL:     paymentTTL,
		IdempotencyTTL: idemTTL,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
