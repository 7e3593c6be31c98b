package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"dexflow.io/internal/domain"
	"dexflow.io/internal/model"
	"dexflow.io/internal/protocol"
)

// 滑点保护：每个切片接受比名义值低 0.5% 的成交
var (
	slippageNum = big.NewInt(995)
	slippageDen = big.NewInt(1000)
)

// processTWAP 把总量均分成 N 个切片在 timeframe 内执行。
// currentInterval = floor(elapsed / (timeframe/N))，每个窗口最多成交一次；
// executedIntervals 单调不减且不超过 N，到 N 时策略完成。
func (e *Engine) processTWAP(ctx context.Context, s *model.Strategy) (*protocol.SubmitResult, error) {
	cond, err := s.ParseConditions()
	if err != nil {
		return nil, fmt.Errorf("parse conditions: %w", err)
	}
	trade, err := s.ParseTrade()
	if err != nil {
		return nil, fmt.Errorf("parse trade: %w", err)
	}

	n := cond.Intervals
	if n <= 0 || cond.Timeframe <= 0 {
		return nil, domain.NewBadRequestError("TWAP requires positive intervals and timeframe")
	}

	if s.ExecutedIntervals >= n {
		// 所有切片已消耗
		e.completeStrategy(ctx, s.ID)
		return nil, nil
	}

	intervalTime := time.Duration(cond.Timeframe/int64(n)) * time.Millisecond
	if intervalTime <= 0 {
		return nil, domain.NewBadRequestError("TWAP timeframe too small for interval count")
	}
	currentInterval := int(time.Since(s.CreatedAt) / intervalTime)
	if currentInterval <= s.ExecutedIntervals {
		return nil, nil // 本窗口已执行
	}
	if currentInterval > n {
		currentInterval = n
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
		return nil, nil
	}

	making, taking, err := tradeAmounts(trade)
	if err != nil {
		return nil, err
	}
	sliceMaking := new(big.Int).Div(making, big.NewInt(int64(n)))
	sliceTaking := new(big.Int).Div(taking, big.NewInt(int64(n)))
	sliceTaking.Div(sliceTaking.Mul(sliceTaking, slippageNum), slippageDen)
	if sliceMaking.Sign() <= 0 || sliceTaking.Sign() <= 0 {
		return nil, domain.NewBadRequestError("TWAP slice amount rounds to zero")
	}

	b, err := e.buildOrder(ctx, &s.ID, trade, s.Conditions, sliceMaking, sliceTaking, price)
	if err != nil {
		return nil, err
	}

	var res *protocol.SubmitResult
	if s.AutoExecute {
		res = e.submitOrder(ctx, b, price)
		if !res.Success {
			// 本切片未成交：不推进 executedIntervals，下一轮只重试这个切片
			return res, nil
		}
	}

	now := time.Now()
	if err := e.store.UpdateStrategyFields(ctx, s.ID, map[string]interface{}{
		"executed_intervals": currentInterval,
		"last_executed_at":   now,
	}); err != nil {
		e.log.Error("failed to advance TWAP interval", zap.Uint("strategy_id", s.ID), zap.Error(err))
	}
	e.registry.Mutate(s.ID, func(m *model.Strategy) {
		m.ExecutedIntervals = currentInterval
		m.LastExecutedAt = &now
	})

	e.log.Info("TWAP interval executed",
		zap.Uint("strategy_id", s.ID),
		zap.Int("interval", currentInterval),
		zap.Int("total", n))

	if currentInterval >= n {
		e.completeStrategy(ctx, s.ID)
	}
	return res, nil
}
