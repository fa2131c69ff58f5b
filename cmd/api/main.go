package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/posdesk/pos-core.git/internal/config"
	"github.com/posdesk/pos-core.git/internal/discount"
	"github.com/posdesk/pos-core.git/internal/events"
	"github.com/posdesk/pos-core.git/internal/httpx"
	kafkax "github.com/posdesk/pos-core.git/internal/kafka"
	"github.com/posdesk/pos-core.git/internal/orders"
	"github.com/posdesk/pos-core.git/internal/payment"
	"github.com/posdesk/pos-core.git/internal/pos"
	"github.com/posdesk/pos-core.git/internal/postgres"
	"github.com/posdesk/pos-core.git/internal/redisx"
	"github.com/posdesk/pos-core.git/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var st pos.Store
	if cfg.Store == "memory" {
		st = store.NewMem()
		log.Println("using in-memory store")
	} else {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer db.Close()
		st = postgres.NewStore(db)
	}

	// Redis
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()
	}

	// Kafka producers, one per topic. Without brokers the emitter stays
	// a no-op and the API runs standalone.
	em := &events.Emitter{Service: cfg.ServiceName}
	var producers []*kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		pSettled := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicPaymentSettled, 1024)
		pRefunded := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicPaymentRefunded, 1024)
		pClosed := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderClosed, 1024)
		for _, p := range []*kafkax.Producer{pSettled, pRefunded, pClosed} {
			p.Start(ctx)
			producers = append(producers, p)
		}
		em.PaymentSettled = pSettled
		em.PaymentRefunded = pRefunded
		em.OrderClosed = pClosed
	}

	// Services
	ordSvc := orders.NewService(st, discount.NewEngine(), em)
	orch := payment.NewOrchestrator(st, payment.NewStubGateway(), payment.Config{
		Currency:   cfg.Currency,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	}, em)

	// HTTP
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Svc: ordSvc, Redis: rdb}
	oh.Register(router)
	ph := &httpx.PaymentsHandler{Orch: orch}
	ph.Register(router)
	wh := &httpx.WebhookHandler{Orch: orch, Redis: rdb}
	wh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close()
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
