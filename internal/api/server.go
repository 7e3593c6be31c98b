package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"dexflow.io/internal/config"
	"dexflow.io/internal/domain"
	"dexflow.io/internal/engine"
	"dexflow.io/internal/oracle"
)

func NewServer(
	cfg *config.Config,
	eng *engine.Engine,
	strategySvc domain.StrategyService,
	orderSvc domain.OrderService,
	priceOracle *oracle.CoinGecko,
) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: cfg.Server.AppName,
	})

	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"message": "Service is healthy",
		})
	})

	strategyHandler := NewStrategyHandler(strategySvc)
	orderHandler := NewOrderHandler(orderSvc)
	priceHandler := NewPriceHandler(priceOracle)

	api := app.Group("/api")

	// Strategy Routes
	api.Post("/strategies", strategyHandler.CreateStrategy)
	api.Get("/strategies/:id", strategyHandler.GetStrategy)
	api.Put("/strategies/:id", strategyHandler.UpdateStrategy)
	api.Delete("/strategies/:id", strategyHandler.DeleteStrategy)
	api.Post("/strategies/:id/pause", strategyHandler.PauseStrategy)
	api.Post("/strategies/:id/activate", strategyHandler.ActivateStrategy)
	api.Post("/strategies/:id/cancel", strategyHandler.CancelStrategy)
	api.Post("/strategies/:id/execute", strategyHandler.ExecuteStrategy)
	api.Get("/wallets/:wallet/strategies", strategyHandler.GetStrategies)

	// Order Routes
	api.Get("/orders", orderHandler.GetOrders)
	api.Post("/orders", orderHandler.CreateManualOrder)
	api.Get("/orders/:id", orderHandler.GetOrder)

	// Price Routes
	api.Get("/prices/tokens", priceHandler.GetSupportedTokens)
	api.Get("/prices/:base/:quote", priceHandler.GetPrice)

	// Engine Stats
	api.Get("/engine/stats", func(c *fiber.Ctx) error {
		return c.JSON(eng.Stats())
	})

	return app
}
