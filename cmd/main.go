package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"dexflow.io/internal/api"
	"dexflow.io/internal/config"
	"dexflow.io/internal/engine"
	"dexflow.io/internal/infra"
	"dexflow.io/internal/oracle"
	"dexflow.io/internal/protocol"
	"dexflow.io/internal/service"
	"dexflow.io/internal/store"
)

func main() {
	// 1. 加载配置
	cfg := config.LoadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// 2. 初始化基础设施
	// Postgres
	pg, err := infra.NewPostgresClient(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Redis
	rdb := infra.NewRedisClient(cfg.Redis)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// 3. 初始化价格源与链上客户端
	priceOracle := oracle.NewCoinGecko(cfg.Oracle, oracle.NewRedisCache(rdb), logger)

	client, err := protocol.NewClient(cfg.Chain, logger)
	if err != nil {
		log.Fatalf("Failed to create protocol client: %v", err)
	}

	// 4. 初始化引擎
	db := store.NewGormStore(pg.DB)
	eng := engine.New(cfg.Engine, db, priceOracle, client, logger)

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	// 5. 设置 Fiber 服务器
	strategySvc := service.NewStrategyService(pg.DB, eng, logger)
	orderSvc := service.NewOrderService(pg.DB, eng, logger)

	app := api.NewServer(cfg, eng, strategySvc, orderSvc, priceOracle)

	// 6. 启动服务器
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := app.Listen(cfg.Server.Port); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// 7. 等待退出信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	eng.Stop()
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
