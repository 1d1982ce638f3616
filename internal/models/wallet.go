package models

import "time"

// Wallet is a Kromer account. Balance, TotalIn and TotalOut are maintained
// exclusively by the ledger primitive (internal/ledger) and the store's
// check constraint on Balance >= 0; nothing else writes them directly.
type Wallet struct {
	ID        int64     `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	Address   string    `json:"address" gorm:"column:address;uniqueIndex;not null"`
	Balance   float64   `json:"balance" gorm:"column:balance;not null;default:0;check:balance >= 0"`
	TotalIn   float64   `json:"total_in" gorm:"column:total_in;not null;default:0"`
	TotalOut  float64   `json:"total_out" gorm:"column:total_out;not null;default:0"`
	Locked    bool      `json:"locked" gorm:"column:locked;not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (Wallet) TableName() string { return "wallets" }
