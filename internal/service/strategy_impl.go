package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dexflow.io/internal/domain"
	"dexflow.io/internal/engine"
	"dexflow.io/internal/model"
	"dexflow.io/internal/protocol"
)

// StrategyServiceImpl 实现 domain.StrategyService 接口
type StrategyServiceImpl struct {
	db     *gorm.DB
	engine *engine.Engine
	log    *zap.Logger
}

func NewStrategyService(db *gorm.DB, eng *engine.Engine, logger *zap.Logger) *StrategyServiceImpl {
	return &StrategyServiceImpl{db: db, engine: eng, log: logger}
}

// CreateStrategy 校验并创建策略；ACTIVE 的策略立即注册进引擎。
// 注册表只持有普通快照，持久层句柄不出服务层。
func (s *StrategyServiceImpl) CreateStrategy(ctx context.Context, strategy *model.Strategy) error {
	if err := validateStrategy(strategy); err != nil {
		return err
	}

	strategy.WalletAddress = model.NormalizeAddress(strategy.WalletAddress)
	if strategy.Status == "" {
		strategy.Status = model.StrategyStatusActive
	}
	strategy.IsExecuting = false

	if err := s.db.WithContext(ctx).Create(strategy).Error; err != nil {
		return domain.NewInternalError("failed to create strategy", err)
	}

	s.log.Info("strategy created",
		zap.Uint("strategy_id", strategy.ID),
		zap.String("kind", string(strategy.Kind)))

	if strategy.Status == model.StrategyStatusActive {
		s.engine.AddStrategy(strategy)
	}
	return nil
}

// validateStrategy 在入引擎前拒绝畸形输入；坏策略永远到不了调度器。
func validateStrategy(strategy *model.Strategy) error {
	if strategy.Kind == model.KindOptions {
		return domain.NewBadRequestError("OPTIONS strategies are not supported")
	}

	trade, err := strategy.ParseTrade()
	if err != nil {
		return domain.NewBadRequestError("malformed trade spec: " + err.Error())
	}
	if trade.MakerAsset == "" || trade.TakerAsset == "" {
		return domain.NewBadRequestError("trade requires maker and taker assets")
	}
	if trade.MakingAmount == "" || trade.TakingAmount == "" {
		return domain.NewBadRequestError("trade requires making and taking amounts")
	}

	cond, err := strategy.ParseConditions()
	if err != nil {
		return domain.NewBadRequestError("malformed conditions: " + err.Error())
	}

	switch strategy.Kind {
	case model.KindLimitOrder:
		// 价格条件可选，无条件即手动触发语义
	case model.KindTWAP:
		if cond.Intervals <= 0 || cond.Timeframe <= 0 {
			return domain.NewBadRequestError("TWAP requires positive intervals and timeframe")
		}
	case model.KindDCA:
		if cond.Interval <= 0 {
			return domain.NewBadRequestError("DCA requires a positive interval")
		}
	case model.KindGrid:
		if len(cond.GridLevels) == 0 {
			return domain.NewBadRequestError("GRID requires at least one level")
		}
		for i, level := range cond.GridLevels {
			if level.Side != model.GridSideBuy && level.Side != model.GridSideSell {
				return domain.NewBadRequestError(fmt.Sprintf("grid level %d has invalid side", i))
			}
			if level.Price.Sign() <= 0 {
				return domain.NewBadRequestError(fmt.Sprintf("grid level %d has invalid price", i))
			}
		}
	default:
		return domain.NewBadRequestError("unknown strategy kind: " + string(strategy.Kind))
	}
	return nil
}

// PauseStrategy 暂停策略并移出引擎
func (s *StrategyServiceImpl) PauseStrategy(ctx context.Context, strategyID uint) error {
	if err := s.setStatus(ctx, strategyID, model.StrategyStatusPaused); err != nil {
		return err
	}
	s.engine.RemoveStrategy(strategyID)
	return nil
}

// ActivateStrategy 启动策略并注册进引擎
func (s *StrategyServiceImpl) ActivateStrategy(ctx context.Context, strategyID uint) error {
	result := s.db.WithContext(ctx).Model(&model.Strategy{}).
		Where("id = ?", strategyID).
		Updates(map[string]interface{}{
			"status":       model.StrategyStatusActive,
			"is_executing": false,
		})
	if result.Error != nil {
		return domain.NewInternalError("failed to activate strategy", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("strategy not found")
	}

	strategy, err := s.GetStrategy(ctx, strategyID)
	if err != nil {
		return err
	}
	s.engine.AddStrategy(strategy)
	return nil
}

// CancelStrategy 取消策略并移出引擎
func (s *StrategyServiceImpl) CancelStrategy(ctx context.Context, strategyID uint) error {
	if err := s.setStatus(ctx, strategyID, model.StrategyStatusCancelled); err != nil {
		return err
	}
	s.engine.RemoveStrategy(strategyID)
	return nil
}

func (s *StrategyServiceImpl) setStatus(ctx context.Context, strategyID uint, status model.StrategyStatus) error {
	result := s.db.WithContext(ctx).Model(&model.Strategy{}).
		Where("id = ?", strategyID).
		Update("status", status)
	if result.Error != nil {
		return domain.NewInternalError("failed to update strategy status", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("strategy not found")
	}
	s.log.Info("strategy status changed",
		zap.Uint("strategy_id", strategyID),
		zap.String("status", string(status)))
	return nil
}

// GetStrategies 获取钱包下的策略列表
func (s *StrategyServiceImpl) GetStrategies(ctx context.Context, wallet string, page, pageSize int) ([]model.Strategy, int64, error) {
	var strategies []model.Strategy
	var total int64

	offset := (page - 1) * pageSize
	query := s.db.WithContext(ctx).Model(&model.Strategy{}).
		Where("wallet_address = ?", model.NormalizeAddress(wallet))

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to count strategies", err)
	}
	if err := query.Order("id DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&strategies).Error; err != nil {
		return nil, 0, domain.NewInternalError("failed to fetch strategies", err)
	}
	return strategies, total, nil
}

// GetStrategy 获取策略详情
func (s *StrategyServiceImpl) GetStrategy(ctx context.Context, strategyID uint) (*model.Strategy, error) {
	var strategy model.Strategy
	if err := s.db.WithContext(ctx).First(&strategy, strategyID).Error; err != nil {
		return nil, domain.NewNotFoundError("strategy not found")
	}
	return &strategy, nil
}

// UpdateStrategy 更新策略并同步引擎快照
func (s *StrategyServiceImpl) UpdateStrategy(ctx context.Context, strategyID uint, updates map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&model.Strategy{}).
		Where("id = ?", strategyID).
		Updates(updates)
	if result.Error != nil {
		return domain.NewInternalError("failed to update strategy", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("strategy not found")
	}

	strategy, err := s.GetStrategy(ctx, strategyID)
	if err != nil {
		return err
	}
	s.engine.UpdateStrategy(strategy)
	return nil
}

// DeleteStrategy 删除策略并移出引擎
func (s *StrategyServiceImpl) DeleteStrategy(ctx context.Context, strategyID uint) error {
	result := s.db.WithContext(ctx).Delete(&model.Strategy{}, strategyID)
	if result.Error != nil {
		return domain.NewInternalError("failed to delete strategy", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("strategy not found")
	}
	s.engine.RemoveStrategy(strategyID)
	return nil
}

// ExecuteStrategy 立即同步执行一次，绕过调度周期
func (s *StrategyServiceImpl) ExecuteStrategy(ctx context.Context, strategyID uint) (*protocol.SubmitResult, error) {
	strategy, err := s.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if strategy.Status != model.StrategyStatusActive {
		return nil, domain.NewBadRequestError("only ACTIVE strategies can be executed")
	}
	return s.engine.ExecuteStrategy(ctx, strategy)
}

// 确保实现了接口
var _ domain.StrategyService = (*StrategyServiceImpl)(nil)
