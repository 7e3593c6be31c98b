package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StrategyKind defines the supported strategy types.
type StrategyKind string

const (
	KindLimitOrder StrategyKind = "LIMIT_ORDER"
	KindTWAP       StrategyKind = "TWAP"
	KindDCA        StrategyKind = "DCA"
	KindGrid       StrategyKind = "GRID"
	KindOptions    StrategyKind = "OPTIONS"
)

// StrategyStatus defines the lifecycle status of a strategy.
type StrategyStatus string

const (
	StrategyStatusDraft     StrategyStatus = "DRAFT"
	StrategyStatusActive    StrategyStatus = "ACTIVE"
	StrategyStatusPaused    StrategyStatus = "PAUSED"
	StrategyStatusCompleted StrategyStatus = "COMPLETED"
	StrategyStatusCancelled StrategyStatus = "CANCELLED"
	StrategyStatusFailed    StrategyStatus = "FAILED"
)

// Strategy represents a user's conditional trade rule: a trigger plus the trade
// to execute when it fires.
type Strategy struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	WalletAddress string `gorm:"index;not null" json:"wallet_address"`
	Name          string `gorm:"size:100" json:"name"`

	Kind   StrategyKind   `gorm:"index;not null" json:"kind"`
	Status StrategyStatus `gorm:"index;default:'DRAFT'" json:"status"`

	// Trigger spec, fields vary by kind.
	// LIMIT_ORDER: {"operator": ">=", "targetPrice": 3000}
	// TWAP:        {"intervals": 4, "timeframe": 3600000}
	// DCA:         {"interval": 86400000}
	// GRID:        {"gridLevels": [{"price": 2900, "amount": "1000000", "side": "buy"}]}
	Conditions json.RawMessage `gorm:"type:jsonb" json:"conditions"`

	// Asset pair and amounts to exchange when triggered.
	Trade json.RawMessage `gorm:"type:jsonb;not null" json:"trade"`

	// 互斥标记：一次处理进行中时为 true，兼作跨实例的轻量锁（落库）
	IsExecuting bool `gorm:"default:false" json:"is_executing"`

	// AutoExecute 为 false 时只构建并持久化订单，不上链
	AutoExecute bool `gorm:"default:true" json:"auto_execute"`

	// Progress bookkeeping for interval-based kinds.
	ExecutedIntervals int             `gorm:"default:0" json:"executed_intervals"`
	FilledLevels      json.RawMessage `gorm:"type:jsonb" json:"filled_levels,omitempty"`
	LastExecutedAt    *time.Time      `json:"last_executed_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GridSide 网格档位方向
type GridSide string

const (
	GridSideBuy  GridSide = "buy"
	GridSideSell GridSide = "sell"
)

// GridLevel is one price level of a GRID strategy.
type GridLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount string          `json:"amount,omitempty"` // maker amount in wei; empty = equal split
	Side   GridSide        `json:"side"`
}

// Conditions is the parsed form of Strategy.Conditions.
type Conditions struct {
	Operator    string          `json:"operator,omitempty"`
	TargetPrice decimal.Decimal `json:"targetPrice,omitempty"`
	Intervals   int             `json:"intervals,omitempty"`
	Timeframe   int64           `json:"timeframe,omitempty"` // milliseconds
	Interval    int64           `json:"interval,omitempty"`  // milliseconds
	GridLevels  []GridLevel     `json:"gridLevels,omitempty"`
}

// UnmarshalJSON accepts both "targetPrice" and the shorter "value" alias used by
// older clients.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	type alias Conditions
	aux := struct {
		*alias
		Value *decimal.Decimal `json:"value,omitempty"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if c.TargetPrice.IsZero() && aux.Value != nil {
		c.TargetPrice = *aux.Value
	}
	return nil
}

// HasPriceTrigger reports whether a price condition is configured.
func (c *Conditions) HasPriceTrigger() bool {
	return c != nil && c.Operator != "" && !c.TargetPrice.IsZero()
}

// ParseConditions decodes the stored trigger spec. An absent spec decodes to an
// empty Conditions (unconditional trigger).
func (s *Strategy) ParseConditions() (*Conditions, error) {
	cond := &Conditions{}
	if len(s.Conditions) == 0 {
		return cond, nil
	}
	if err := json.Unmarshal(s.Conditions, cond); err != nil {
		return nil, err
	}
	return cond, nil
}

// TradeSpec is the parsed form of Strategy.Trade.
type TradeSpec struct {
	MakerAsset   string `json:"makerAsset"`
	TakerAsset   string `json:"takerAsset"`
	MakingAmount string `json:"makingAmount"` // wei
	TakingAmount string `json:"takingAmount"` // wei
	Receiver     string `json:"receiver,omitempty"`
	MakerSymbol  string `json:"makerSymbol,omitempty"`
	TakerSymbol  string `json:"takerSymbol,omitempty"`
}

// UnmarshalJSON resolves the several input shapes accepted at the CRUD boundary:
// makerAsset/tokenIn/from, makingAmount/amountIn/input and so on.
func (t *TradeSpec) UnmarshalJSON(data []byte) error {
	type alias TradeSpec
	aux := struct {
		*alias
		TokenIn       string `json:"tokenIn,omitempty"`
		From          string `json:"from,omitempty"`
		TokenOut      string `json:"tokenOut,omitempty"`
		To            string `json:"to,omitempty"`
		AmountIn      string `json:"amountIn,omitempty"`
		Input         string `json:"input,omitempty"`
		AmountOut     string `json:"amountOut,omitempty"`
		Output        string `json:"output,omitempty"`
		TokenInSymbol string `json:"tokenInSymbol,omitempty"`
		TokenOutSym   string `json:"tokenOutSymbol,omitempty"`
	}{alias: (*alias)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	t.MakerAsset = firstNonEmpty(t.MakerAsset, aux.TokenIn, aux.From)
	t.TakerAsset = firstNonEmpty(t.TakerAsset, aux.TokenOut, aux.To)
	t.MakingAmount = firstNonEmpty(t.MakingAmount, aux.AmountIn, aux.Input)
	t.TakingAmount = firstNonEmpty(t.TakingAmount, aux.AmountOut, aux.Output)
	t.MakerSymbol = firstNonEmpty(t.MakerSymbol, aux.TokenInSymbol)
	t.TakerSymbol = firstNonEmpty(t.TakerSymbol, aux.TokenOutSym)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseTrade decodes the stored trade parameters.
func (s *Strategy) ParseTrade() (*TradeSpec, error) {
	trade := &TradeSpec{}
	if err := json.Unmarshal(s.Trade, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

// ParseFilledLevels decodes the fired grid level indexes.
func (s *Strategy) ParseFilledLevels() map[int]bool {
	filled := make(map[int]bool)
	if len(s.FilledLevels) == 0 {
		return filled
	}
	var indexes []int
	if err := json.Unmarshal(s.FilledLevels, &indexes); err != nil {
		return filled
	}
	for _, i := range indexes {
		filled[i] = true
	}
	return filled
}

// NormalizeAddress lowercases an EVM address for storage and comparison.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
