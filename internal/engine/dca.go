package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dexflow.io/internal/domain"
	"dexflow.io/internal/model"
	"dexflow.io/internal/protocol"
)

// processDCA 定投策略：每隔固定 interval 提交一次完整配置量（不切片），
// 无限期运行。配置了价格条件时作为额外闸门，不满足则顺延到下一轮。
func (e *Engine) processDCA(ctx context.Context, s *model.Strategy) (*protocol.SubmitResult, error) {
	cond, err := s.ParseConditions()
	if err != nil {
		return nil, fmt.Errorf("parse conditions: %w", err)
	}
	trade, err := s.ParseTrade()
	if err != nil {
		return nil, fmt.Errorf("parse trade: %w", err)
	}

	if cond.Interval <= 0 {
		return nil, domain.NewBadRequestError("DCA requires a positive interval")
	}

	last := s.CreatedAt
	if s.LastExecutedAt != nil {
		last = *s.LastExecutedAt
	}
	if time.Since(last) < time.Duration(cond.Interval)*time.Millisecond {
		return nil, nil // 间隔未到
	}

	price, fetched, err := e.currentPrice(ctx, trade)
	if err != nil {
		return nil, err
	}
	fired, err := e.evaluateTrigger(s.ID, cond, trade, price, fetched)
	if err != nil {
		return nil, err
	}
	if !fired {
		// 不推进 lastExecutedAt，价格回到区间后立即补单
		return nil, nil
	}

	making, taking, err := tradeAmounts(trade)
	if err != nil {
		return nil, err
	}

	b, err := e.buildOrder(ctx, &s.ID, trade, s.Conditions, making, taking, price)
	if err != nil {
		return nil, err
	}

	var res *protocol.SubmitResult
	if s.AutoExecute {
		res = e.submitOrder(ctx, b, price)
		if !res.Success {
			// 失败不推进周期，下一轮自然重试
			return res, nil
		}
	}

	now := time.Now()
	if err := e.store.UpdateStrategyFields(ctx, s.ID, map[string]interface{}{
		"executed_intervals": s.ExecutedIntervals + 1,
		"last_executed_at":   now,
	}); err != nil {
		e.log.Error("failed to advance DCA cycle", zap.Uint("strategy_id", s.ID), zap.Error(err))
	}
	e.registry.Mutate(s.ID, func(m *model.Strategy) {
		m.ExecutedIntervals++
		m.LastExecutedAt = &now
	})

	e.log.Info("DCA cycle executed",
		zap.Uint("strategy_id", s.ID),
		zap.Int("cycle", s.ExecutedIntervals+1))
	return res, nil
}
