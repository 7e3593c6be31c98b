package api

import (
	"github.com/gofiber/fiber/v2"

	"dexflow.io/internal/oracle"
)

// PriceHandler 处理价格查询请求
type PriceHandler struct {
	oracle *oracle.CoinGecko
}

func NewPriceHandler(o *oracle.CoinGecko) *PriceHandler {
	return &PriceHandler{oracle: o}
}

// GetPrice 查询交易对现价
// GET /api/prices/:base/:quote
func (h *PriceHandler) GetPrice(c *fiber.Ctx) error {
	base := c.Params("base")
	quote := c.Params("quote")

	price, err := h.oracle.GetPrice(c.Context(), base, quote)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"Error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"Base":  base,
		"Quote": quote,
		"Price": price,
	})
}

// GetSupportedTokens 查询支持的代币列表
// GET /api/prices/tokens
func (h *PriceHandler) GetSupportedTokens(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"Tokens": h.oracle.SupportedTokens()})
}
