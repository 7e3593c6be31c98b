package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"dexflow.io/internal/model"
	"dexflow.io/internal/protocol"
)

// ===========================
// 持久化网关接口
// ===========================

// Store 是执行引擎消费的持久化网关。引擎只通过这四个操作访问存储，
// 其余 CRUD 属于 HTTP 层的服务。
type Store interface {
	// 创建订单记录
	CreateOrder(ctx context.Context, order *model.Order) error
	// 按 ID 更新订单字段
	UpdateOrderFields(ctx context.Context, orderID uint, fields map[string]interface{}) error
	// 加载所有 ACTIVE 且未在执行中的策略 (用于启动时)
	FindActiveStrategies(ctx context.Context) ([]model.Strategy, error)
	// 按 ID 更新策略字段
	UpdateStrategyFields(ctx context.Context, strategyID uint, fields map[string]interface{}) error
}

// ===========================
// 价格预言机接口
// ===========================

// PriceOracle returns the current price of base quoted in quote, e.g.
// GetPrice(ctx, "ETH", "USDC") ≈ 3000. May serve a stale cached value on
// transient upstream failure.
type PriceOracle interface {
	GetPrice(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// ===========================
// 协议客户端接口
// ===========================

// ProtocolClient 定义与链上撮合协议交互的操作
type ProtocolClient interface {
	// 计算规范订单哈希 (EIP-712)
	OrderHash(o *protocol.Order) (common.Hash, error)
	// 签名订单
	Sign(o *protocol.Order) ([]byte, error)
	// 上链提交，结果统一归一化，不抛异常
	Submit(ctx context.Context, o *protocol.Order, signature []byte) *protocol.SubmitResult
	// 引擎签名钱包地址
	MakerAddress() common.Address
}

// ===========================
// 策略服务接口
// ===========================

// StrategyService 定义策略相关的业务操作
type StrategyService interface {
	// 创建策略
	CreateStrategy(ctx context.Context, strategy *model.Strategy) error
	// 暂停策略
	PauseStrategy(ctx context.Context, strategyID uint) error
	// 启动策略
	ActivateStrategy(ctx context.Context, strategyID uint) error
	// 取消策略
	CancelStrategy(ctx context.Context, strategyID uint) error
	// 获取钱包下的策略列表
	GetStrategies(ctx context.Context, wallet string, page, pageSize int) ([]model.Strategy, int64, error)
	// 获取策略详情
	GetStrategy(ctx context.Context, strategyID uint) (*model.Strategy, error)
	// 更新策略
	UpdateStrategy(ctx context.Context, strategyID uint, updates map[string]interface{}) error
	// 删除策略
	DeleteStrategy(ctx context.Context, strategyID uint) error
	// 立即执行一次 (绕过调度)
	ExecuteStrategy(ctx context.Context, strategyID uint) (*protocol.SubmitResult, error)
}

// ===========================
// 订单服务接口
// ===========================

// OrderService 定义订单相关的业务操作
type OrderService interface {
	// 获取订单列表 (按策略过滤可选)
	GetOrders(ctx context.Context, strategyID *uint, page, pageSize int) ([]model.Order, int64, error)
	// 获取订单详情
	GetOrder(ctx context.Context, orderID uint) (*model.Order, error)
	// 创建手工订单 (无策略，无条件立即构建并签名)
	CreateManualOrder(ctx context.Context, req *ManualOrderRequest) (*model.Order, error)
}

// ManualOrderRequest 手工下单参数
type ManualOrderRequest struct {
	MakerAsset   string `json:"makerAsset"`
	TakerAsset   string `json:"takerAsset"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
	Receiver     string `json:"receiver,omitempty"`
	MakerSymbol  string `json:"makerSymbol,omitempty"`
	TakerSymbol  string `json:"takerSymbol,omitempty"`
}
