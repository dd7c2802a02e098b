package models

import "time"

// Account owns one Track per service type. Rows are created at signup and never deleted here.
type Account struct {
	AccountID string    `gorm:"column:account_id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Account) TableName() string { return "billing_accounts" }
