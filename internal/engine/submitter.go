package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dexflow.io/internal/model"
	"dexflow.io/internal/protocol"
)

// submitOrder 把已签名订单交给协议客户端并落库结果。
// 状态机: PENDING → SUBMITTED → FILLED | FAILED，失败时策略保持 ACTIVE
// 由后续 tick 自然重试。
func (e *Engine) submitOrder(ctx context.Context, b *builtOrder, price decimal.Decimal) *protocol.SubmitResult {
	// 过期订单拒绝提交
	if b.row.ExpiresAt != nil && time.Now().After(*b.row.ExpiresAt) {
		if err := e.store.UpdateOrderFields(ctx, b.row.ID, map[string]interface{}{
			"status": model.OrderStatusExpired,
		}); err != nil {
			e.log.Error("failed to mark order expired", zap.Uint("order_id", b.row.ID), zap.Error(err))
		}
		return &protocol.SubmitResult{Success: false, Err: "order expired before submission"}
	}

	if err := e.store.UpdateOrderFields(ctx, b.row.ID, map[string]interface{}{
		"status": model.OrderStatusSubmitted,
	}); err != nil {
		e.log.Error("failed to mark order submitted", zap.Uint("order_id", b.row.ID), zap.Error(err))
	}

	res := e.client.Submit(ctx, b.proto, b.signature)

	if !res.Success {
		if err := e.store.UpdateOrderFields(ctx, b.row.ID, map[string]interface{}{
			"status":        model.OrderStatusFailed,
			"error_message": res.Err,
		}); err != nil {
			e.log.Error("failed to persist submission failure", zap.Uint("order_id", b.row.ID), zap.Error(err))
		}
		e.log.Warn("order submission failed",
			zap.String("order_hash", b.row.OrderHash),
			zap.String("error", res.Err))
		return res
	}

	now := time.Now()
	fields := map[string]interface{}{
		"status":       model.OrderStatusFilled,
		"tx_hash":      res.TxHash,
		"block_number": res.BlockNumber,
		"gas_used":     res.GasUsed,
		"gas_price":    res.GasPrice,
		"executed_at":  now,
	}
	if !price.IsZero() {
		fields["execution_price"] = price
	}
	if err := e.store.UpdateOrderFields(ctx, b.row.ID, fields); err != nil {
		e.log.Error("failed to persist fill", zap.Uint("order_id", b.row.ID), zap.Error(err))
	}

	e.log.Info("order filled",
		zap.String("order_hash", b.row.OrderHash),
		zap.String("tx_hash", res.TxHash),
		zap.Uint64("block", res.BlockNumber),
		zap.Uint64("gas_used", res.GasUsed))
	return res
}
