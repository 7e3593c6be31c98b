package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"dexflow.io/internal/domain"
	"dexflow.io/internal/model"
)

// GormStore 基于 gorm 实现 domain.Store 持久化网关
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the underlying handle for the CRUD services.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// CreateOrder 创建订单记录
func (s *GormStore) CreateOrder(ctx context.Context, order *model.Order) error {
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError("order hash already exists")
		}
		return domain.NewInternalError("failed to create order", err)
	}
	return nil
}

// UpdateOrderFields 按 ID 更新订单字段
func (s *GormStore) UpdateOrderFields(ctx context.Context, orderID uint, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(fields)
	if result.Error != nil {
		return domain.NewInternalError("failed to update order", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("order not found")
	}
	return nil
}

// FindActiveStrategies 加载 ACTIVE 且未在执行中的策略
func (s *GormStore) FindActiveStrategies(ctx context.Context) ([]model.Strategy, error) {
	var strategies []model.Strategy
	err := s.db.WithContext(ctx).
		Where("status = ? AND is_executing = ?", model.StrategyStatusActive, false).
		Find(&strategies).Error
	if err != nil {
		return nil, domain.NewInternalError("failed to load active strategies", err)
	}
	return strategies, nil
}

// UpdateStrategyFields 按 ID 更新策略字段
func (s *GormStore) UpdateStrategyFields(ctx context.Context, strategyID uint, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&model.Strategy{}).
		Where("id = ?", strategyID).
		Updates(fields)
	if result.Error != nil {
		return domain.NewInternalError("failed to update strategy", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("strategy not found")
	}
	return nil
}

// 确保实现了接口
var _ domain.Store = (*GormStore)(nil)
