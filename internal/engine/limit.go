package engine

import (
	"context"
	"fmt"

	"dexflow.io/internal/model"
	"dexflow.io/internal/protocol"
)

// processLimitOrder 单次限价策略：条件满足即构建并提交一张订单，
// 成交后策略 COMPLETED 并移出注册表，永不二次触发。
func (e *Engine) processLimitOrder(ctx context.Context, s *model.Strategy) (*protocol.SubmitResult, error) {
	cond, err := s.ParseConditions()
	if err != nil {
		return nil, fmt.Errorf("parse conditions: %w", err)
	}
	trade, err := s.ParseTrade()
	if err != nil {
		return nil, fmt.Errorf("parse trade: %w", err)
	}

	price, fetched, err := e.currentPrice(ctx, trade)
	if err != nil {
		// 价格不可用：本轮静默放弃，下一轮重试
		return nil, err
	}

	fired, err := e.evaluateTrigger(s.ID, cond, trade, price, fetched)
	if err != nil {
		return nil, err
	}
	if !fired {
		return nil, nil // 条件未满足，正常跳过
	}

	making, taking, err := tradeAmounts(trade)
	if err != nil {
		return nil, err
	}

	b, err := e.buildOrder(ctx, &s.ID, trade, s.Conditions, making, taking, price)
	if err != nil {
		return nil, err
	}

	if !s.AutoExecute {
		// 只建单签名，不上链
		return nil, nil
	}

	res := e.submitOrder(ctx, b, price)
	if res.Success {
		e.completeStrategy(ctx, s.ID)
	}
	return res, nil
}
