package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"dexflow.io/internal/config"
	"dexflow.io/internal/domain"
	"dexflow.io/internal/model"
	"dexflow.io/internal/protocol"
)

// Engine 是策略执行引擎：周期调度器 + 活跃策略注册表 + 按类型分发的处理器。
// 显式构造、注入 HTTP 层，没有全局单例。
type Engine struct {
	cfg    config.EngineConfig
	log    *zap.Logger
	store  domain.Store
	oracle domain.PriceOracle
	client domain.ProtocolClient

	registry *Registry

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(
	cfg config.EngineConfig,
	store domain.Store,
	oracle domain.PriceOracle,
	client domain.ProtocolClient,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		log:      logger,
		store:    store,
		oracle:   oracle,
		client:   client,
		registry: NewRegistry(),
	}
}

// Start 装载活跃策略并启动调度循环。存储不可用视为致命，启动失败。
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}

	strategies, err := e.store.FindActiveStrategies(ctx)
	if err != nil {
		e.running.Store(false)
		return fmt.Errorf("load active strategies: %w", err)
	}
	for i := range strategies {
		e.registry.Add(&strategies[i])
	}
	e.log.Info("engine started",
		zap.Int("active_strategies", len(strategies)),
		zap.Duration("poll_interval", e.cfg.PollInterval))

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(runCtx)
	return nil
}

// Stop 取消调度循环并等待当前 tick 结束
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.log.Info("engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick 迭代注册表并以受限并发分发处理。单个策略的失败不影响其他策略。
func (e *Engine) tick(ctx context.Context) {
	snapshot := e.registry.Snapshot()
	if len(snapshot) == 0 {
		return // 空注册表，本轮无事可做
	}

	workers := e.cfg.MaxConcurrency
	if workers < 1 {
		workers = 1
	}
	p := pool.New().WithMaxGoroutines(workers)
	for _, s := range snapshot {
		s := s
		p.Go(func() {
			if _, err := e.processStrategy(ctx, s.ID); err != nil &&
				!errors.Is(err, domain.ErrExecutionLocked) {
				e.log.Error("strategy processing failed",
					zap.Uint("strategy_id", s.ID),
					zap.String("kind", string(s.Kind)),
					zap.Error(err))
			}
		})
	}
	p.Wait()
}

// processStrategy 执行一个策略的一轮处理。
// 锁规则：isExecuting 先在注册表内 check-and-set，再落库；任何退出路径
// （包括 panic）都无条件释放。
func (e *Engine) processStrategy(ctx context.Context, id uint) (res *protocol.SubmitResult, err error) {
	if !e.registry.TryAcquire(id) {
		return nil, domain.ErrExecutionLocked
	}
	if uerr := e.store.UpdateStrategyFields(ctx, id, map[string]interface{}{"is_executing": true}); uerr != nil {
		e.log.Warn("failed to persist execution lock", zap.Uint("strategy_id", id), zap.Error(uerr))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
		e.registry.Release(id)
		if uerr := e.store.UpdateStrategyFields(ctx, id, map[string]interface{}{"is_executing": false}); uerr != nil {
			e.log.Warn("failed to release execution lock", zap.Uint("strategy_id", id), zap.Error(uerr))
		}
	}()

	// 取锁后重新读取条目：移除操作在下一次查找时生效
	s, ok := e.registry.Get(id)
	if !ok {
		return nil, nil
	}

	switch s.Kind {
	case model.KindLimitOrder:
		return e.processLimitOrder(ctx, s)
	case model.KindTWAP:
		return e.processTWAP(ctx, s)
	case model.KindDCA:
		return e.processDCA(ctx, s)
	case model.KindGrid:
		return e.processGrid(ctx, s)
	default:
		// OPTIONS 在创建时已被拒绝，这里兜底
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedKind, s.Kind)
	}
}

// ExecuteStrategy 立即执行一次，绕过调度周期，仍然遵守执行锁
func (e *Engine) ExecuteStrategy(ctx context.Context, s *model.Strategy) (*protocol.SubmitResult, error) {
	if _, ok := e.registry.Get(s.ID); !ok {
		e.registry.Add(s)
	}
	return e.processStrategy(ctx, s.ID)
}

// ===========================
// 注册表操作 (供 CRUD 协作方调用，策略本身的持久化由调用方负责)
// ===========================

func (e *Engine) AddStrategy(s *model.Strategy) {
	e.registry.Add(s)
	e.log.Info("strategy added to engine", zap.Uint("strategy_id", s.ID), zap.String("kind", string(s.Kind)))
}

func (e *Engine) RemoveStrategy(id uint) {
	e.registry.Remove(id)
	e.log.Info("strategy removed from engine", zap.Uint("strategy_id", id))
}

func (e *Engine) UpdateStrategy(s *model.Strategy) {
	e.registry.Update(s)
}

// ReloadAll 从存储重建注册表
func (e *Engine) ReloadAll(ctx context.Context) error {
	strategies, err := e.store.FindActiveStrategies(ctx)
	if err != nil {
		return err
	}
	for _, id := range e.registry.IDs() {
		e.registry.Remove(id)
	}
	for i := range strategies {
		e.registry.Add(&strategies[i])
	}
	e.log.Info("registry reloaded", zap.Int("active_strategies", len(strategies)))
	return nil
}

// Stats 引擎运行状态
type Stats struct {
	ActiveCount int    `json:"active_count"`
	Running     bool   `json:"running"`
	StrategyIDs []uint `json:"strategy_ids"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		ActiveCount: e.registry.Len(),
		Running:     e.running.Load(),
		StrategyIDs: e.registry.IDs(),
	}
}

// ===========================
// 处理器公共工具
// ===========================

// currentPrice 获取交易对现价。没有配置符号时返回 fetched=false。
func (e *Engine) currentPrice(ctx context.Context, trade *model.TradeSpec) (price decimal.Decimal, fetched bool, err error) {
	if trade.MakerSymbol == "" || trade.TakerSymbol == "" {
		return decimal.Zero, false, nil
	}
	price, err = e.oracle.GetPrice(ctx, trade.MakerSymbol, trade.TakerSymbol)
	if err != nil {
		return decimal.Zero, false, err
	}
	return price, true, nil
}

// evaluateTrigger 对配置了价格触发的策略求值；没有配置价格条件时恒为 true。
// 未知操作符记录日志且不触发。
func (e *Engine) evaluateTrigger(strategyID uint, cond *model.Conditions, trade *model.TradeSpec, price decimal.Decimal, fetched bool) (bool, error) {
	if !cond.HasPriceTrigger() {
		return true, nil
	}
	if !fetched {
		return false, domain.NewBadRequestError("price trigger configured but trade has no symbols")
	}
	fired, err := EvaluatePrice(cond, price)
	if err != nil {
		e.log.Error("condition evaluation failed",
			zap.Uint("strategy_id", strategyID),
			zap.String("operator", cond.Operator),
			zap.Error(err))
		return false, nil
	}
	return fired, nil
}

// tradeAmounts 解析 wei 数量字符串
func tradeAmounts(trade *model.TradeSpec) (making, taking *big.Int, err error) {
	making, ok := new(big.Int).SetString(trade.MakingAmount, 10)
	if !ok || making.Sign() <= 0 {
		return nil, nil, domain.NewBadRequestError("invalid making amount: " + trade.MakingAmount)
	}
	taking, ok = new(big.Int).SetString(trade.TakingAmount, 10)
	if !ok || taking.Sign() <= 0 {
		return nil, nil, domain.NewBadRequestError("invalid taking amount: " + trade.TakingAmount)
	}
	return making, taking, nil
}

// completeStrategy 标记策略完成并移出注册表（单次语义的终点）
func (e *Engine) completeStrategy(ctx context.Context, id uint) {
	now := time.Now()
	if err := e.store.UpdateStrategyFields(ctx, id, map[string]interface{}{
		"status":       model.StrategyStatusCompleted,
		"completed_at": now,
	}); err != nil {
		e.log.Error("failed to mark strategy completed", zap.Uint("strategy_id", id), zap.Error(err))
	}
	e.registry.Remove(id)
	e.log.Info("strategy completed", zap.Uint("strategy_id", id))
}
