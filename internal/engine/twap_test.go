package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexflow.io/internal/model"
	"dexflow.io/internal/protocol"
)

// twapStrategy 4 切片、4 秒 timeframe（每窗口 1 秒）
func twapStrategy(id uint, age time.Duration, executed int) *model.Strategy {
	return &model.Strategy{
		ID:            id,
		WalletAddress: "0x1111111111111111111111111111111111111111",
		Kind:          model.KindTWAP,
		Status:        model.StrategyStatusActive,
		Conditions:    []byte(`{"intervals": 4, "timeframe": 4000}`),
		Trade: []byte(`{
			"makerAsset": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			"takerAsset": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			"makingAmount": "1000000",
			"takingAmount": "2000000"
		}`),
		AutoExecute:       true,
		ExecutedIntervals: executed,
		CreatedAt:         time.Now().Add(-age),
	}
}

func TestProcessTWAPExecutesOneSlicePerWindow(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	eng := newTestEngine(store, &fakeOracle{}, client)

	// 1.5 秒后处于第 1 个窗口
	eng.AddStrategy(twapStrategy(1, 1500*time.Millisecond, 0))

	res, err := eng.processStrategy(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)

	require.Equal(t, 1, store.orderCount())
	order := store.firstOrder()
	assert.Equal(t, model.OrderStatusFilled, order.Status)
	// 1000000/4 = 250000；taking 打 0.5% 滑点折扣: 500000*995/1000
	assert.Equal(t, "250000", order.AmountIn.String())
	assert.Equal(t, "497500", order.AmountOut.String())

	executed, ok := store.strategyField(1, "executed_intervals")
	require.True(t, ok)
	assert.Equal(t, 1, executed)

	// 同一窗口内再处理不会产生第二张订单
	res, err = eng.processStrategy(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, store.orderCount())
}

func TestProcessTWAPCompletesAtFinalInterval(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store, &fakeOracle{}, &fakeClient{})

	// timeframe 已全部走完，窗口号截断到 N 并直接完成
	eng.AddStrategy(twapStrategy(1, 10*time.Second, 3))

	_, err := eng.processStrategy(context.Background(), 1)
	require.NoError(t, err)

	executed, ok := store.strategyField(1, "executed_intervals")
	require.True(t, ok)
	assert.Equal(t, 4, executed)

	status, ok := store.strategyField(1, "status")
	require.True(t, ok)
	assert.Equal(t, model.StrategyStatusCompleted, status)
	_, ok = eng.registry.Get(1)
	assert.False(t, ok)
}

func TestProcessTWAPAlreadyExhausted(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{}
	eng := newTestEngine(store, &fakeOracle{}, client)

	eng.AddStrategy(twapStrategy(1, 10*time.Second, 4))

	_, err := eng.processStrategy(context.Background(), 1)
	require.NoError(t, err)

	// 所有切片已消耗：只收尾，不下单
	assert.Equal(t, 0, store.orderCount())
	status, _ := store.strategyField(1, "status")
	assert.Equal(t, model.StrategyStatusCompleted, status)
}

func TestProcessTWAPFailureDoesNotAdvance(t *testing.T) {
	store := newFakeStore()
	client := &fakeClient{results: []*protocol.SubmitResult{
		{Success: false, Err: "broadcast transaction: nonce too low"},
	}}
	eng := newTestEngine(store, &fakeOracle{}, client)

	eng.AddStrategy(twapStrategy(1, 1500*time.Millisecond, 0))

	res, err := eng.processStrategy(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)

	// 切片未成交：进度不推进，下一轮重试同一切片
	_, advanced := store.strategyField(1, "executed_intervals")
	assert.False(t, advanced)
	order := store.firstOrder()
	assert.Equal(t, model.OrderStatusFailed, order.Status)

	// 重试成功后才推进
	res, err = eng.processStrategy(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	executed, _ := store.strategyField(1, "executed_intervals")
	assert.Equal(t, 1, executed)
}

func TestProcessTWAPInvalidConfig(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store, &fakeOracle{}, &fakeClient{})

	s := twapStrategy(1, time.Second, 0)
	s.Conditions = []byte(`{"intervals": 0, "timeframe": 4000}`)
	eng.AddStrategy(s)

	_, err := eng.processStrategy(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, 0, store.orderCount())
}

func TestProcessTWAPWithPriceGate(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store, &fakeOracle{price: decimal.NewFromInt(3500)}, &fakeClient{})

	s := twapStrategy(1, 1500*time.Millisecond, 0)
	s.Conditions = []byte(`{"intervals": 4, "timeframe": 4000, "operator": "<=", "targetPrice": 3000}`)
	s.Trade = []byte(`{
		"makerAsset": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		"takerAsset": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"makingAmount": "1000000",
		"takingAmount": "2000000",
		"makerSymbol": "ETH",
		"takerSymbol": "USDC"
	}`)
	eng.AddStrategy(s)

	// 价格高于闸门：窗口到了也不下单
	res, err := eng.processStrategy(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 0, store.orderCount())
}
