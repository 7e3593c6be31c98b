package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dexflow.io/internal/domain"
	"dexflow.io/internal/model"
	"dexflow.io/internal/protocol"
)

// builtOrder 一次构建的产物：持久化行 + 协议订单 + 签名
type builtOrder struct {
	row       *model.Order
	proto     *protocol.Order
	signature []byte
}

// buildOrder constructs the canonical protocol order, persists the PENDING row
// and then requests the signature. Persist-before-sign is deliberate: a crash
// after persistence leaves a recoverable PENDING order instead of a lost one.
func (e *Engine) buildOrder(
	ctx context.Context,
	strategyID *uint,
	trade *model.TradeSpec,
	conditions json.RawMessage,
	making, taking *big.Int,
	price decimal.Decimal,
) (*builtOrder, error) {
	maker := e.client.MakerAddress()
	receiver := maker
	if trade.Receiver != "" {
		receiver = common.HexToAddress(trade.Receiver)
	}

	var (
		po   *protocol.Order
		row  *model.Order
		err  error
		hash common.Hash
	)

	// salt 碰撞导致的唯一键冲突换一个 salt 重试一次
	for attempt := 0; attempt < 2; attempt++ {
		po = &protocol.Order{
			Salt:         protocol.NewSalt(),
			MakerAsset:   common.HexToAddress(trade.MakerAsset),
			TakerAsset:   common.HexToAddress(trade.TakerAsset),
			Maker:        maker,
			Receiver:     receiver,
			MakingAmount: making,
			TakingAmount: taking,
			Predicate:    hexutil.Bytes{},
			Permit:       hexutil.Bytes{},
			Interaction:  hexutil.Bytes{},
		}

		hash, err = e.client.OrderHash(po)
		if err != nil {
			return nil, fmt.Errorf("compute order hash: %w", err)
		}

		data, merr := po.MarshalData()
		if merr != nil {
			return nil, fmt.Errorf("marshal order data: %w", merr)
		}

		row = &model.Order{
			StrategyID:        strategyID,
			OrderHash:         hash.Hex(),
			OrderData:         data,
			TokenIn:           model.NormalizeAddress(trade.MakerAsset),
			TokenInSymbol:     trade.MakerSymbol,
			TokenOut:          model.NormalizeAddress(trade.TakerAsset),
			TokenOutSymbol:    trade.TakerSymbol,
			AmountIn:          decimal.NewFromBigInt(making, 0),
			AmountOut:         decimal.NewFromBigInt(taking, 0),
			PriceAtCreation:   price,
			Status:            model.OrderStatusPending,
			TriggerConditions: conditions,
		}

		err = e.store.CreateOrder(ctx, row)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			e.log.Warn("order hash collision, regenerating salt", zap.String("order_hash", hash.Hex()))
			continue
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	signature, serr := e.client.Sign(po)
	if serr != nil {
		// 签名失败不留悬空的 PENDING 单
		if uerr := e.store.UpdateOrderFields(ctx, row.ID, map[string]interface{}{
			"status":        model.OrderStatusFailed,
			"error_message": serr.Error(),
		}); uerr != nil {
			e.log.Error("failed to mark unsigned order failed", zap.Uint("order_id", row.ID), zap.Error(uerr))
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningFailed, serr)
	}

	e.log.Info("order built",
		zap.String("order_hash", row.OrderHash),
		zap.String("amount_in", making.String()),
		zap.String("amount_out", taking.String()))

	return &builtOrder{row: row, proto: po, signature: signature}, nil
}

// BuildManualOrder 构建并签名一张无策略关联的手工订单，只入库不上链。
func (e *Engine) BuildManualOrder(ctx context.Context, req *domain.ManualOrderRequest) (*model.Order, error) {
	trade := &model.TradeSpec{
		MakerAsset:   req.MakerAsset,
		TakerAsset:   req.TakerAsset,
		MakingAmount: req.MakingAmount,
		TakingAmount: req.TakingAmount,
		Receiver:     req.Receiver,
		MakerSymbol:  req.MakerSymbol,
		TakerSymbol:  req.TakerSymbol,
	}
	making, taking, err := tradeAmounts(trade)
	if err != nil {
		return nil, err
	}

	// 近似创建价：taking/making 比率
	price := decimal.NewFromBigInt(taking, 0).Div(decimal.NewFromBigInt(making, 0))

	b, err := e.buildOrder(ctx, nil, trade, nil, making, taking, price)
	if err != nil {
		return nil, err
	}
	return b.row, nil
}
