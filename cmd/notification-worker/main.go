package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-ticketing/internal/adapters/rabbit"
	"github.com/robertarktes/event-ticketing/internal/config"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

const (
	queueName = "ticketing.notifications"
	// dedupe window must outlive the publisher's retry horizon
	seenTTL = 24 * time.Hour
)

// The notification worker turns resolved payment and check-in events into
// attendee notifications. Delivery from the outbox is at-least-once, so every
// message is deduped on its id before being handled.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(conn, queueName, "payment.*")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := consumer.Consume()
	if err != nil {
		log.Fatalf("failed to start consuming: %v", err)
	}

	worker := &Worker{redis: redisClient, logger: logger}
	go worker.Run(ctx, deliveries)
	logger.Info("Notification worker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown notification worker")
}

type Worker struct {
	redis  *redisclient.Client
	logger observability.Logger
}

func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := w.handle(ctx, d); err != nil {
				w.logger.Error("failed to handle notification: ", err)
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) error {
	if d.MessageId != "" {
		fresh, err := w.redis.SetNX(ctx, "seen:"+d.MessageId, 1, seenTTL).Result()
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		w.logger.Error("malformed event payload, dropping: ", err)
		return nil
	}

	// Notification dispatch goes through the mail provider in production;
	// here the event is recorded structured so downstream systems can tail it.
	w.logger.WithFields(map[string]interface{}{
		"event_type": d.RoutingKey,
		"payload":    payload,
	}).Info("notification dispatched")
	return nil
}
