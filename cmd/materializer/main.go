package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/richardliu001/ledger-service/internal/config"
	"github.com/richardliu001/ledger-service/internal/logger"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/richardliu001/ledger-service/internal/service"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// materializer consumes ledger events and recomputes apartment balances.
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer reader.Close()

	repository := repo.NewRepository(gdb, rdb, nil, log).WithBalanceTTL(cfg.Ledger.BalanceCacheTTL)
	worker := service.NewRecomputeWorker(service.NewMaterializer(repository, log), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("ledger-materializer consuming %s as %s", cfg.Kafka.Topic, cfg.Kafka.GroupID)
	if err := worker.Run(ctx, reader); err != nil {
		log.Fatalf("consume: %v", err)
	}
}
