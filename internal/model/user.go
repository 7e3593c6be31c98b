package model

import "time"

// User is the owner of strategies, keyed by wallet address. Authentication is
// out of scope; the record exists so strategies and orders can be listed per
// wallet.
type User struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	WalletAddress string `gorm:"uniqueIndex;size:42;not null" json:"wallet_address"`
	Nonce         string `gorm:"size:64" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
