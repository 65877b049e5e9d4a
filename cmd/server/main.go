package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loanbook/internal/config"
	"loanbook/internal/handler"
	"loanbook/internal/infrastructure/cache"
	"loanbook/internal/infrastructure/database"
	"loanbook/internal/infrastructure/lock"
	"loanbook/internal/infrastructure/mq"
	"loanbook/internal/job"
	"loanbook/internal/repository"
	"loanbook/internal/service"
	"loanbook/pkg/dates"
	"loanbook/pkg/idgen"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadConfig("config/config.yaml")

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	idGen, err := idgen.New(cfg.Business.WorkerID)
	if err != nil {
		logrus.Fatalf("初始化ID生成器失败: %v", err)
	}

	calendar, err := dates.NewCalendar(cfg.Business.Timezone, cfg.Business.DailyCutoffHour)
	if err != nil {
		logrus.Fatalf("初始化业务日历失败: %v", err)
	}

	db := database.Init(&cfg.Database)

	// 单机默认进程内锁，开了 Redis 才切分布式锁
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Enabled {
		redisClient := cache.Init(&cfg.Redis)
		locker = lock.NewRedisLocker(redisClient)
	}

	var producer *mq.Producer
	if cfg.Kafka.Enabled {
		producer = mq.Init(&cfg.Kafka)
		defer producer.Close()
	}

	orderRepo := repository.NewOrderRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	incomeRepo := repository.NewIncomeRepository(db)
	expenseRepo := repository.NewExpenseRepository(db)
	operationRepo := repository.NewOperationRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	aggregator := service.NewAggregator(ledgerRepo)
	undoCounter := service.NewUndoCounter(cfg.Business.MaxUndoCount)

	orderService := service.NewOrderService(db, orderRepo, incomeRepo, operationRepo, outboxRepo,
		aggregator, calendar, idGen, undoCounter, cfg.Kafka.Topic.AdminNotify)
	incomeService := service.NewIncomeService(db, orderRepo, incomeRepo, expenseRepo, operationRepo, outboxRepo,
		aggregator, calendar, idGen, undoCounter, cfg.Kafka.Topic.AdminNotify)
	undoService := service.NewUndoService(db, orderRepo, incomeRepo, expenseRepo, operationRepo, outboxRepo,
		aggregator, calendar, idGen, locker, undoCounter, cfg.Kafka.Topic.AdminNotify)
	reconcileService := service.NewReconcileService(db, orderRepo, incomeRepo, ledgerRepo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(outboxRepo, producer)
	go outboxSender.Start(ctx)

	h := handler.NewHandler(orderService, incomeService, undoService, reconcileService, ledgerRepo, operationRepo, calendar)
	router := handler.SetupRouter(h)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logrus.Infof("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("正在关闭服务...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("服务关闭异常: %v", err)
	}

	logrus.Info("服务已关闭")
}
