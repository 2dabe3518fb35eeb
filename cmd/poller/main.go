package main

import (
	"context"
	"fmt"
	"time"

	"github.com/richardliu001/ledger-service/internal/config"
	"github.com/richardliu001/ledger-service/internal/logger"
	"github.com/richardliu001/ledger-service/internal/metrics"
	"github.com/richardliu001/ledger-service/internal/repo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/segmentio/kafka-go"
)

func main() {
	cfg, err := config.Load(config.Path("internal/config/config.yaml"))
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	// events of one apartment share a key, Hash keeps them on one partition
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{},
	}
	defer kw.Close()

	repo := repo.NewRepository(gdb, nil, kw, log)

	ticker := time.NewTicker(cfg.Ledger.PollInterval)
	defer ticker.Stop()

	log.Info("ledger-poller started")
	for range ticker.C {
		ctx := context.Background()
		events, err := repo.PollOutbox(ctx, cfg.Ledger.PollBatch)
		if err != nil {
			log.Errorf("poll outbox: %v", err)
			continue
		}
		for _, evt := range events {
			if err := repo.PublishEvent(ctx, evt); err != nil {
				metrics.OutboxPublished.WithLabelValues("error").Inc()
				log.Errorf("publish id=%d: %v", evt.ID, err)
				// keep per-apartment order: stop this batch at the first failure
				break
			}
			metrics.OutboxPublished.WithLabelValues("ok").Inc()
			if err := repo.MarkOutboxProcessed(ctx, evt.ID); err != nil {
				log.Errorf("mark processed id=%d: %v", evt.ID, err)
			} else {
				log.Infof("event %d sent", evt.ID)
			}
		}
	}
}
