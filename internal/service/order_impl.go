package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dexflow.io/internal/domain"
	"dexflow.io/internal/engine"
	"dexflow.io/internal/model"
)

// OrderServiceImpl 实现 domain.OrderService 接口
type OrderServiceImpl struct {
	db     *gorm.DB
	engine *engine.Engine
	log    *zap.Logger
}

func NewOrderService(db *gorm.DB, eng *engine.Engine, logger *zap.Logger) *OrderServiceImpl {
	return &OrderServiceImpl{db: db, engine: eng, log: logger}
}

// GetOrders 获取订单列表，可按策略过滤
func (s *OrderServiceImpl) GetOrders(ctx context.Context, strategyID *uint, page, pageSize int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	offset := (page - 1) * pageSize
	query := s.db.WithContext(ctx).Model(&model.Order{})
	if strategyID != nil {
		query = query.Where("strategy_id = ?", *strategyID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to count orders", err)
	}
	if err := query.Order("created_at DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&orders).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to fetch orders", err)
	}
	return orders, total, nil
}

// GetOrder 获取订单详情
func (s *OrderServiceImpl) GetOrder(ctx context.Context, orderID uint) (*model.Order, error) {
	var order model.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		return nil, domain.NewNotFoundError("order not found")
	}
	return &order, nil
}

// CreateManualOrder 创建手工订单：无策略关联，立即构建并签名，不上链
func (s *OrderServiceImpl) CreateManualOrder(ctx context.Context, req *domain.ManualOrderRequest) (*model.Order, error) {
	order, err := s.engine.BuildManualOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	s.log.Info("manual order created",
		zap.Uint("order_id", order.ID),
		zap.String("order_hash", order.OrderHash))
	return order, nil
}

// 确保实现了接口
var _ domain.OrderService = (*OrderServiceImpl)(nil)
