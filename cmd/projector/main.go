package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/posdesk/pos-core.git/internal/config"
	"github.com/posdesk/pos-core.git/internal/events"
	kafkax "github.com/posdesk/pos-core.git/internal/kafka"
	"github.com/posdesk/pos-core.git/internal/projector"
	"github.com/posdesk/pos-core.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required for the projector")
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := projector.NewService(rdb)

	group := getenv("PROJECTOR_GROUP", "pos-projector")
	workers := mustAtoi(os.Getenv("PROJECTOR_WORKERS"), "8")

	topics := []string{events.TopicPaymentSettled, events.TopicPaymentRefunded, events.TopicOrderClosed}
	for _, topic := range topics {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers)
		go func(topic string, cons *kafkax.Consumer) {
			log.Printf("projector consumer started: group=%s topic=%s workers=%d", group, topic, workers)
			if err := cons.Start(ctx, svc.Handle); err != nil {
				log.Printf("consumer %s exit: %v", topic, err)
				cancel()
			}
		}(topic, cons)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down projector...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
