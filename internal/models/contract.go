package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ContractStatus string

const (
	ContractOpen     ContractStatus = "open"
	ContractClosed   ContractStatus = "closed"
	ContractCanceled ContractStatus = "canceled"
)

// AllowList is a nullable set of addresses, stored as a JSON array in a
// single text column. A nil AllowList means "no restriction" per spec.md
// §3; a non-nil, possibly empty, AllowList restricts ContinueSub (§4.F) to
// payers present in the set.
type AllowList []string

func (a AllowList) Contains(address string) bool {
	for _, entry := range a {
		if entry == address {
			return true
		}
	}
	return false
}

func (a AllowList) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *AllowList) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models: cannot scan %T into AllowList", src)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}
	*a = list
	return nil
}

// Contract is a recurring-payment offer created by its owner; Subscriptions
// (below) reference it and are advanced by internal/scheduler.
type Contract struct {
	ContractID     int64          `json:"contract_id" gorm:"column:contract_id;primaryKey;autoIncrement"`
	OwnerAddress   string         `json:"owner_address" gorm:"column:owner_address;not null"`
	Status         ContractStatus `json:"status" gorm:"column:status;not null;default:open"`
	Title          string         `json:"title" gorm:"column:title;not null"`
	Description    *string        `json:"description" gorm:"column:description"`
	Price          float64        `json:"price" gorm:"column:price;not null;check:price > 0"`
	CronExpr       string         `json:"cron_expr" gorm:"column:cron_expr;not null"`
	MaxSubscribers *int64         `json:"max_subscribers" gorm:"column:max_subscribers"`
	AllowList      AllowList      `json:"allow_list" gorm:"column:allow_list;type:text"`
	CreatedAt      time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Contract) TableName() string { return "contracts" }

const (
	MinTitleLen       = 1
	MaxTitleLen       = 64
	MaxDescriptionLen = 500
)
