package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPending  SubscriptionStatus = "pending"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription is a payer's enrollment in a Contract. LapsedAt is the next
// time internal/scheduler must act on it; nil iff Status == canceled
// (spec.md §3 invariant 3).
type Subscription struct {
	SubscriptionID int64              `json:"subscription_id" gorm:"column:subscription_id;primaryKey;autoIncrement"`
	ContractID     int64              `json:"contract_id" gorm:"column:contract_id;not null;index"`
	PayerAddress   string             `json:"payer_address" gorm:"column:payer_address;not null;index"`
	Status         SubscriptionStatus `json:"status" gorm:"column:status;not null;default:active"`
	LapsedAt       *time.Time         `json:"lapsed_at" gorm:"column:lapsed_at;index"`
	StartedAt      time.Time          `json:"started_at" gorm:"column:started_at;autoCreateTime"`
}

func (Subscription) TableName() string { return "subscriptions" }

// SubscriptionWithContract is the joined row ProcessOneLapsed reads: the
// subscription plus the fields of its contract and payer wallet needed to
// decide the action (spec.md §4.F).
type SubscriptionWithContract struct {
	Subscription
	ContractStatus   ContractStatus
	ContractPrice    float64
	ContractOwner    string
	ContractCronExpr string
	ContractAllow    AllowList
	PayerBalance     float64
	PayerWalletFound bool
}
