package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus defines the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusFailed          OrderStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired, OrderStatusFailed:
		return true
	}
	return false
}

// Order is one concrete trade instruction derived from a strategy firing once.
// Orders are never deleted, only superseded by new orders for recurring kinds.
type Order struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Nullable: manually issued orders carry no strategy.
	StrategyID *uint `gorm:"index" json:"strategy_id,omitempty"`

	// EIP-712 hash of the protocol order, the canonical identity on-chain.
	OrderHash string `gorm:"uniqueIndex;size:66;not null" json:"order_hash"`

	// Full protocol order payload (salt, assets, amounts, maker, aux bytes).
	OrderData json.RawMessage `gorm:"type:jsonb;not null" json:"order_data"`

	TokenIn        string `gorm:"size:42;index:idx_orders_pair;not null" json:"token_in"`
	TokenInSymbol  string `gorm:"size:10" json:"token_in_symbol"`
	TokenOut       string `gorm:"size:42;index:idx_orders_pair;not null" json:"token_out"`
	TokenOutSymbol string `gorm:"size:10" json:"token_out_symbol"`

	AmountIn  decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"amount_in"`
	AmountOut decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"amount_out"`

	PriceAtCreation decimal.Decimal `gorm:"type:numeric(36,18)" json:"price_at_creation"`

	Status OrderStatus `gorm:"index;default:'PENDING'" json:"status"`

	// Conditions that triggered the order, for auditability.
	TriggerConditions json.RawMessage `gorm:"type:jsonb" json:"trigger_conditions,omitempty"`

	// Populated only after successful submission.
	ExecutionPrice *decimal.Decimal `gorm:"type:numeric(36,18)" json:"execution_price,omitempty"`
	GasUsed        *uint64          `json:"gas_used,omitempty"`
	GasPrice       *uint64          `json:"gas_price,omitempty"`
	TxHash         *string          `gorm:"size:66" json:"tx_hash,omitempty"`
	BlockNumber    *uint64          `json:"block_number,omitempty"`
	ExecutedAt     *time.Time       `json:"executed_at,omitempty"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Populated on FAILED.
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
