package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"go.uber.org/zap"

	"dexflow.io/internal/domain"
	"dexflow.io/internal/model"
	"dexflow.io/internal/protocol"
)

// processGrid 网格策略：价格触及尚未成交的档位时在该档位下单。
// 每个档位的成交状态持久化在 filled_levels，重启后不会重复成交；
// 全部档位成交后策略完成。
func (e *Engine) processGrid(ctx context.Context, s *model.Strategy) (*protocol.SubmitResult, error) {
	cond, err := s.ParseConditions()
	if err != nil {
		return nil, fmt.Errorf("parse conditions: %w", err)
	}
	trade, err := s.ParseTrade()
	if err != nil {
		return nil, fmt.Errorf("parse trade: %w", err)
	}

	levels := cond.GridLevels
	if len(levels) == 0 {
		return nil, domain.NewBadRequestError("GRID requires at least one level")
	}

	filled := s.ParseFilledLevels()
	if len(filled) >= len(levels) {
		e.completeStrategy(ctx, s.ID)
		return nil, nil
	}

	price, fetched, err := e.currentPrice(ctx, trade)
	if err != nil {
		return nil, err
	}
	if !fetched {
		return nil, domain.NewBadRequestError("GRID requires trade symbols for price lookups")
	}

	making, taking, err := tradeAmounts(trade)
	if err != nil {
		return nil, err
	}
	count := big.NewInt(int64(len(levels)))
	defaultMaking := new(big.Int).Div(making, count)
	levelTaking := new(big.Int).Div(taking, count)

	var lastRes *protocol.SubmitResult
	newFills := 0

	for i, level := range levels {
		if filled[i] {
			continue
		}

		// 买入档位在价格跌破时触发，卖出档位在价格突破时触发
		crossed := false
		switch level.Side {
		case model.GridSideBuy:
			crossed = price.LessThanOrEqual(level.Price)
		case model.GridSideSell:
			crossed = price.GreaterThanOrEqual(level.Price)
		default:
			e.log.Error("unknown grid side",
				zap.Uint("strategy_id", s.ID),
				zap.Int("level", i),
				zap.String("side", string(level.Side)))
			continue
		}
		if !crossed {
			continue
		}

		levelMaking := defaultMaking
		if level.Amount != "" {
			parsed, ok := new(big.Int).SetString(level.Amount, 10)
			if !ok || parsed.Sign() <= 0 {
				e.log.Error("invalid grid level amount",
					zap.Uint("strategy_id", s.ID), zap.Int("level", i), zap.String("amount", level.Amount))
				continue
			}
			levelMaking = parsed
		}

		b, berr := e.buildOrder(ctx, &s.ID, trade, s.Conditions, levelMaking, levelTaking, level.Price)
		if berr != nil {
			// 单个档位失败不阻塞其余档位
			e.log.Error("grid level build failed",
				zap.Uint("strategy_id", s.ID), zap.Int("level", i), zap.Error(berr))
			continue
		}

		if s.AutoExecute {
			res := e.submitOrder(ctx, b, level.Price)
			lastRes = res
			if !res.Success {
				continue // 该档位下一轮重试，fired 状态不记录
			}
		}

		filled[i] = true
		newFills++
		e.log.Info("grid level filled",
			zap.Uint("strategy_id", s.ID),
			zap.Int("level", i),
			zap.String("level_price", level.Price.String()))
	}

	if newFills > 0 {
		indexes := make([]int, 0, len(filled))
		for i := range filled {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		raw, _ := json.Marshal(indexes)

		now := time.Now()
		if err := e.store.UpdateStrategyFields(ctx, s.ID, map[string]interface{}{
			"filled_levels":      json.RawMessage(raw),
			"executed_intervals": len(indexes),
			"last_executed_at":   now,
		}); err != nil {
			e.log.Error("failed to persist grid fills", zap.Uint("strategy_id", s.ID), zap.Error(err))
		}
		e.registry.Mutate(s.ID, func(m *model.Strategy) {
			m.FilledLevels = raw
			m.ExecutedIntervals = len(indexes)
			m.LastExecutedAt = &now
		})
	}

	if len(filled) >= len(levels) {
		e.completeStrategy(ctx, s.ID)
	}
	return lastRes, nil
}
