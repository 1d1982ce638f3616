package models

import "time"

// TransactionType discriminates the append-only transactions ledger.
type TransactionType string

const (
	TransactionMined        TransactionType = "mined"
	TransactionTransfer     TransactionType = "transfer"
	TransactionNamePurchase TransactionType = "name_purchase"
	TransactionNameARecord  TransactionType = "name_a_record"
	TransactionNameTransfer TransactionType = "name_transfer"
	TransactionUnknown      TransactionType = "unknown"
)

// Transaction is an append-only ledger row. From is nil for mined/welfare
// credits that have no sender.
type Transaction struct {
	ID           int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	From         *string         `json:"from" gorm:"column:from_address"`
	To           string          `json:"to" gorm:"column:to_address;not null"`
	Amount       float64         `json:"amount" gorm:"column:amount;not null"`
	Type         TransactionType `json:"type" gorm:"column:type;not null"`
	Date         time.Time       `json:"date" gorm:"column:date;autoCreateTime"`
	Metadata     *string         `json:"metadata" gorm:"column:metadata"`
	Name         *string         `json:"name" gorm:"column:name"`
	SentName     *string         `json:"sent_name" gorm:"column:sent_name"`
	SentMetaname *string         `json:"sent_metaname" gorm:"column:sent_metaname"`
}

func (Transaction) TableName() string { return "transactions" }
