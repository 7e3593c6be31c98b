package engine

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dexflow.io/internal/config"
	"dexflow.io/internal/domain"
	"dexflow.io/internal/model"
	"dexflow.io/internal/protocol"
)

// fakeStore 内存存储，把字段更新直接应用到订单/策略条目上
type fakeStore struct {
	mu             sync.Mutex
	nextID         uint
	orders         map[uint]*model.Order
	strategyFields map[uint]map[string]interface{}
	active         []model.Strategy

	createErr   error
	findErr     error
	conflictsAt int // 模拟前 N 次 CreateOrder 唯一键冲突
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:         make(map[uint]*model.Order),
		strategyFields: make(map[uint]map[string]interface{}),
	}
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.conflictsAt > 0 {
		f.conflictsAt--
		return domain.NewConflictError("order hash already exists")
	}
	f.nextID++
	order.ID = f.nextID
	snapshot := *order
	f.orders[order.ID] = &snapshot
	return nil
}

func (f *fakeStore) UpdateOrderFields(ctx context.Context, orderID uint, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d not found", orderID)
	}
	for k, v := range fields {
		switch k {
		case "status":
			o.Status = v.(model.OrderStatus)
		case "error_message":
			o.ErrorMessage = v.(string)
		case "tx_hash":
			s := v.(string)
			o.TxHash = &s
		case "block_number":
			n := v.(uint64)
			o.BlockNumber = &n
		case "gas_used":
			n := v.(uint64)
			o.GasUsed = &n
		case "gas_price":
			n := v.(uint64)
			o.GasPrice = &n
		case "executed_at":
			ts := v.(time.Time)
			o.ExecutedAt = &ts
		case "execution_price":
			p := v.(decimal.Decimal)
			o.ExecutionPrice = &p
		}
	}
	return nil
}

func (f *fakeStore) FindActiveStrategies(ctx context.Context) ([]model.Strategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.active, nil
}

func (f *fakeStore) UpdateStrategyFields(ctx context.Context, strategyID uint, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	merged, ok := f.strategyFields[strategyID]
	if !ok {
		merged = make(map[string]interface{})
		f.strategyFields[strategyID] = merged
	}
	for k, v := range fields {
		merged[k] = v
	}
	return nil
}

// strategyField 读取最近一次落库的策略字段值
func (f *fakeStore) strategyField(id uint, key string) (interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, ok := f.strategyFields[id]
	if !ok {
		return nil, false
	}
	v, ok := fields[key]
	return v, ok
}

func (f *fakeStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeStore) firstOrder() *model.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	var min uint
	var first *model.Order
	for id, o := range f.orders {
		if first == nil || id < min {
			min = id
			first = o
		}
	}
	if first == nil {
		return nil
	}
	snapshot := *first
	return &snapshot
}

var _ domain.Store = (*fakeStore)(nil)

// fakeOracle 返回固定价格或固定错误
type fakeOracle struct {
	price decimal.Decimal
	err   error
}

func (f *fakeOracle) GetPrice(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.price, nil
}

var _ domain.PriceOracle = (*fakeOracle)(nil)

// fakeClient 离线协议客户端：真实哈希语义（随 salt 变化），可注入签名/提交结果
type fakeClient struct {
	mu      sync.Mutex
	signErr error
	results []*protocol.SubmitResult // 依次消费，耗尽后默认成功
	submits int
}

func (f *fakeClient) OrderHash(o *protocol.Order) (common.Hash, error) {
	return crypto.Keccak256Hash(o.Salt.Bytes(), o.MakerAsset.Bytes(), o.MakingAmount.Bytes()), nil
}

func (f *fakeClient) Sign(o *protocol.Order) ([]byte, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	sig := bytes.Repeat([]byte{0xab}, 65)
	sig[64] = 27
	return sig, nil
}

func (f *fakeClient) Submit(ctx context.Context, o *protocol.Order, signature []byte) *protocol.SubmitResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if len(f.results) > 0 {
		res := f.results[0]
		f.results = f.results[1:]
		return res
	}
	return &protocol.SubmitResult{
		Success:     true,
		TxHash:      "0xdeadbeef",
		BlockNumber: 123,
		GasUsed:     21000,
		GasPrice:    5,
	}
}

func (f *fakeClient) MakerAddress() common.Address {
	return common.HexToAddress("0x1111111111111111111111111111111111111111")
}

func (f *fakeClient) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

var _ domain.ProtocolClient = (*fakeClient)(nil)

func newTestEngine(store *fakeStore, oracle *fakeOracle, client *fakeClient) *Engine {
	cfg := config.EngineConfig{PollInterval: time.Hour, MaxConcurrency: 4}
	return New(cfg, store, oracle, client, zap.NewNop())
}

// limitStrategy 一条标准的 ETH→USDC 限价策略
func limitStrategy(id uint, conditions string) *model.Strategy {
	return &model.Strategy{
		ID:            id,
		WalletAddress: "0x1111111111111111111111111111111111111111",
		Kind:          model.KindLimitOrder,
		Status:        model.StrategyStatusActive,
		Conditions:    []byte(conditions),
		Trade: []byte(`{
			"makerAsset": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			"takerAsset": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			"makingAmount": "1000000000000000000",
			"takingAmount": "3000000000",
			"makerSymbol": "ETH",
			"takerSymbol": "USDC"
		}`),
		AutoExecute: true,
		CreatedAt:   time.Now(),
	}
}
