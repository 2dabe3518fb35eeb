package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/richardliu001/ledger-service/internal/auth"
	"github.com/richardliu001/ledger-service/internal/config"
	"github.com/richardliu001/ledger-service/internal/logger"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/richardliu001/ledger-service/internal/service"
	httptransport "github.com/richardliu001/ledger-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load(config.Path("internal/config/config.yaml"))
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := repo.Migrate(gdb); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{},
	}
	defer kw.Close()

	// 6. repo & services
	repository := repo.NewRepository(gdb, rdb, kw, log).WithBalanceTTL(cfg.Ledger.BalanceCacheTTL)
	mat := service.NewMaterializer(repository, log)
	svc := httptransport.Services{
		Debts:       service.NewDebtService(repository, mat, cfg.Ledger.SyncMaterialize, log),
		Settlements: service.NewSettlementService(repository, mat, cfg.Ledger.SyncMaterialize, log),
		Balances: service.NewBalanceService(repository, mat, log,
			service.NewMaterializedSource(repository, log), service.NewHistorySource(repository)),
	}

	// 7. gin router
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 24*time.Hour)
	router := httptransport.NewRouter(svc, cfg.Server, cfg.RateLimit, jwtManager, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("ledger-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
