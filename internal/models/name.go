package models

import "time"

// Name is a globally unique, lowercased handle that can be attached to
// transactions as a convenience address and carries an optional "a" record
// (a single metadata string resolved by legacy Krist clients).
type Name struct {
	ID              int64      `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Name            string     `json:"name" gorm:"column:name;uniqueIndex;not null"`
	Owner           string     `json:"owner" gorm:"column:owner;not null"`
	OriginalOwner   string     `json:"original_owner" gorm:"column:original_owner;not null"`
	TimeRegistered  time.Time  `json:"time_registered" gorm:"column:time_registered;autoCreateTime"`
	LastUpdated     *time.Time `json:"last_updated" gorm:"column:last_updated"`
	LastTransferred *time.Time `json:"last_transferred" gorm:"column:last_transferred"`
	Unpaid          int64      `json:"unpaid" gorm:"column:unpaid;not null;default:0"`
	Metadata        *string    `json:"metadata" gorm:"column:metadata"`
}

func (Name) TableName() string { return "names" }
