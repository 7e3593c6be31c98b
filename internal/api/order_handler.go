package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"dexflow.io/internal/domain"
)

// OrderHandler 处理订单相关的 HTTP 请求
type OrderHandler struct {
	orderSvc domain.OrderService
}

func NewOrderHandler(orderSvc domain.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// GetOrders 获取订单列表，支持 ?strategyId= 过滤
// GET /api/orders
func (h *OrderHandler) GetOrders(c *fiber.Ctx) error {
	page, pageSize := parsePaging(c)

	var strategyID *uint
	if raw := c.Query("strategyId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"Error": "Invalid strategyId"})
		}
		v := uint(id)
		strategyID = &v
	}

	orders, total, err := h.orderSvc.GetOrders(c.Context(), strategyID, page, pageSize)
	if err != nil {
		return handleError(c, err)
	}
	return SendPaginatedResponse(c, orders, page, pageSize, total)
}

// GetOrder 获取订单详情
// GET /api/orders/:id
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id, _ := strconv.ParseUint(c.Params("id"), 10, 32)

	order, err := h.orderSvc.GetOrder(c.Context(), uint(id))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(order)
}

// CreateManualOrder 创建手工订单
// POST /api/orders
func (h *OrderHandler) CreateManualOrder(c *fiber.Ctx) error {
	var req domain.ManualOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"Error": "Invalid request body"})
	}

	order, err := h.orderSvc.CreateManualOrder(c.Context(), &req)
	if err != nil {
		return handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}
