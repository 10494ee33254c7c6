package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"exchange/internal/api"
	"exchange/internal/config"
	"exchange/internal/matching"
	"exchange/internal/notifier"
	"exchange/internal/repository"
	"exchange/internal/service"
	"exchange/internal/websocket"
	"exchange/pkg/ratelimit"
	"exchange/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	log.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Репозитории
	orderRepo := repository.NewOrderRepository(db)
	dealRepo := repository.NewDealRepository(db)
	pairRepo := repository.NewPairRepository(db)

	// Watchers ядра матчинга
	keeper := matching.NewDeletedOrdersKeeper(cfg.Matching.DeletedOrdersTTL)
	blocks := matching.NewExpireBlocksHandler(
		cfg.Matching.BlockTTL, cfg.Matching.ExpireCheckFreq, log)
	feeds := matching.NewFeedWatcher(
		cfg.Matching.LiquidityFeedTTL, cfg.Matching.FeedCheckFreq, log)

	// WebSocket hub
	hub := websocket.NewHub(log)
	go hub.Run()

	// Внешние получатели уведомлений
	hc := notifier.NewHTTPClient(notifier.DefaultHTTPClientConfig())

	var marketData *notifier.MarketDataClient
	if cfg.Notifiers.MarketDataURL != "" {
		marketData = notifier.NewMarketDataClient(cfg.Notifiers.MarketDataURL, hc, log)
	}

	var kafka *notifier.KafkaPublisher
	if len(cfg.Notifiers.KafkaBrokers) > 0 {
		kafka = notifier.NewKafkaPublisher(cfg.Notifiers.KafkaBrokers, cfg.Notifiers.KafkaTopic, log)
	}

	var gateway matching.LiquidityGateway
	if cfg.Notifiers.LiquidityURL != "" {
		gateway = notifier.NewLiquidityClient(cfg.Notifiers.LiquidityURL, hc)
	}

	reporter := notifier.NewReporter(hub, marketData, kafka, log)

	// Пулы матчинга
	pools := matching.NewPoolsHandler(matching.PoolDeps{
		Store:      orderRepo,
		Reporter:   reporter,
		Gateway:    gateway,
		Blocks:     blocks,
		Keeper:     keeper,
		Log:        log,
		ResultWait: cfg.Matching.ExternalResultTimeout,
	}, cfg.Matching.DrainTimeout, log)

	blocks.SetPools(pools)
	feeds.SetPools(pools)

	// Восстановление пулов по парам с открытыми ордерами
	if err := pools.Start(); err != nil {
		log.Fatal("failed to rehydrate matching pools", zap.Error(err))
	}

	watchCtx, stopWatchers := context.WithCancel(context.Background())
	go blocks.Run(watchCtx)
	go feeds.Run(watchCtx)

	// Сервисы
	orderService := service.NewOrderService(orderRepo, dealRepo, pairRepo, pools, log)
	liquidityService := service.NewLiquidityService(orderRepo, pools, keeper, feeds, log)

	// Фоновая доотправка сделок в сервис расчётов
	if cfg.Notifiers.DealEndingURL != "" {
		dealEnding := notifier.NewDealEndingClient(cfg.Notifiers.DealEndingURL, hc)
		sender := notifier.NewDealEndingSender(dealRepo, dealEnding, cfg.Notifiers.SenderInterval, log)
		go sender.Run(watchCtx)
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(&api.Dependencies{
		OrderService:     orderService,
		LiquidityService: liquidityService,
		Hub:              hub,
		Limiter:          ratelimit.NewRateLimiter(500, 1000),
		AdminTokenHash:   cfg.Security.AdminTokenHash,
		Logger:           log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		log.Info("starting server", zap.String("addr", server.Addr), zap.Bool("https", cfg.Server.UseHTTPS))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	// Сначала перестаём принимать запросы, затем даём пулам дорисовать
	// очереди и останавливаем фоновые воркеры
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	pools.Shutdown()
	stopWatchers()
	hub.Stop()

	if kafka != nil {
		if err := kafka.Close(); err != nil {
			log.Error("failed to close kafka publisher", zap.Error(err))
		}
	}
	hc.Close()

	log.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
