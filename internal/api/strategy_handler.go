package api

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"dexflow.io/internal/domain"
	"dexflow.io/internal/model"
)

// StrategyHandler 处理策略相关的 HTTP 请求
type StrategyHandler struct {
	strategySvc domain.StrategyService
}

func NewStrategyHandler(strategySvc domain.StrategyService) *StrategyHandler {
	return &StrategyHandler{strategySvc: strategySvc}
}

// CreateStrategy 创建策略
// POST /api/strategies
func (h *StrategyHandler) CreateStrategy(c *fiber.Ctx) error {
	var req struct {
		WalletAddress string             `json:"WalletAddress"`
		Name          string             `json:"Name"`
		Kind          model.StrategyKind `json:"Kind"`
		Conditions    json.RawMessage    `json:"Conditions"`
		Trade         json.RawMessage    `json:"Trade"`
		AutoExecute   *bool              `json:"AutoExecute"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"Error": "Invalid request body"})
	}

	autoExecute := true
	if req.AutoExecute != nil {
		autoExecute = *req.AutoExecute
	}

	strategy := &model.Strategy{
		WalletAddress: req.WalletAddress,
		Name:          req.Name,
		Kind:          req.Kind,
		Status:        model.StrategyStatusActive,
		Conditions:    req.Conditions,
		Trade:         req.Trade,
		AutoExecute:   autoExecute,
	}

	if err := h.strategySvc.CreateStrategy(c.Context(), strategy); err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(strategy)
}

// GetStrategies 获取钱包下的策略列表
// GET /api/wallets/:wallet/strategies
func (h *StrategyHandler) GetStrategies(c *fiber.Ctx) error {
	wallet := c.Params("wallet")
	page, pageSize := parsePaging(c)

	strategies, total, err := h.strategySvc.GetStrategies(c.Context(), wallet, page, pageSize)
	if err != nil {
		return handleError(c, err)
	}

	return SendPaginatedResponse(c, strategies, page, pageSize, total)
}

// GetStrategy 获取策略详情
// GET /api/strategies/:id
func (h *StrategyHandler) GetStrategy(c *fiber.Ctx) error {
	id, _ := strconv.ParseUint(c.Params("id"), 10, 32)

	strategy, err := h.strategySvc.GetStrategy(c.Context(), uint(id))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(strategy)
}

// UpdateStrategy 更新策略
// PUT /api/strategies/:id
func (h *StrategyHandler) UpdateStrategy(c *fiber.Ctx) error {
	id, _ := strconv.ParseUint(c.Params("id"), 10, 32)

	var req struct {
		Name       string          `json:"Name"`
		Conditions json.RawMessage `json:"Conditions"`
		Trade      json.RawMessage `json:"Trade"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"Error": "Invalid request body"})
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Conditions != nil {
		updates["conditions"] = req.Conditions
	}
	if req.Trade != nil {
		updates["trade"] = req.Trade
	}

	if err := h.strategySvc.UpdateStrategy(c.Context(), uint(id), updates); err != nil {
		return handleError(c, err)
	}

	strategy, _ := h.strategySvc.GetStrategy(c.Context(), uint(id))
	return c.JSON(strategy)
}

// PauseStrategy 暂停策略
// POST /api/strategies/:id/pause
func (h *StrategyHandler) PauseStrategy(c *fiber.Ctx) error {
	id, _ := strconv.ParseUint(c.Params("id"), 10, 32)

	if err := h.strategySvc.PauseStrategy(c.Context(), uint(id)); err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"Status": true, "Message": "Strategy paused"})
}

// ActivateStrategy 启动策略
// POST /api/strategies/:id/activate
func (h *StrategyHandler) ActivateStrategy(c *fiber.Ctx) error {
	id, _ := strconv.ParseUint(c.Params("id"), 10, 32)

	if err := h.strategySvc.ActivateStrategy(c.Context(), uint(id)); err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"Status": true, "Message": "Strategy activated"})
}

// CancelStrategy 取消策略
// POST /api/strategies/:id/cancel
func (h *StrategyHandler) CancelStrategy(c *fiber.Ctx) error {
	id, _ := strconv.ParseUint(c.Params("id"), 10, 32)

	if err := h.strategySvc.CancelStrategy(c.Context(), uint(id)); err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"Status": true, "Message": "Strategy cancelled"})
}

// DeleteStrategy 删除策略
// DELETE /api/strategies/:id
func (h *StrategyHandler) DeleteStrategy(c *fiber.Ctx) error {
	id, _ := strconv.ParseUint(c.Params("id"), 10, 32)

	if err := h.strategySvc.DeleteStrategy(c.Context(), uint(id)); err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"Status": true})
}

// ExecuteStrategy 立即执行一次
// POST /api/strategies/:id/execute
func (h *StrategyHandler) ExecuteStrategy(c *fiber.Ctx) error {
	id, _ := strconv.ParseUint(c.Params("id"), 10, 32)

	result, err := h.strategySvc.ExecuteStrategy(c.Context(), uint(id))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"Status": true, "Result": result})
}
