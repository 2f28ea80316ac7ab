package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SalesFact is one sales transaction. The table is append-only.
type SalesFact struct {
	ID              snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TransactionID   string       `gorm:"size:64;not null;uniqueIndex" json:"transaction_id"`
	SoldOn          time.Time    `gorm:"not null;index" json:"sold_on"`
	CustomerID      string       `gorm:"size:64;not null;index" json:"customer_id"`
	CustomerName    string       `gorm:"size:255;not null" json:"customer_name"`
	CustomerAddress string       `gorm:"size:512" json:"customer_address,omitempty"`
	RegionID        string       `gorm:"size:64;not null" json:"region_id"`
	RegionName      string       `gorm:"size:255;not null" json:"region_name"`
	CategoryID      string       `gorm:"size:64;not null" json:"category_id"`
	CategoryName    string       `gorm:"size:255;not null" json:"category_name"`
	ProductID       string       `gorm:"size:64;not null" json:"product_id"`
	ProductName     string       `gorm:"size:255;not null" json:"product_name"`
	Quantity        int64        `gorm:"not null" json:"quantity"`
	UnitPrice       int64        `gorm:"not null" json:"unit_price"`
	Discount        int64        `gorm:"not null;default:0" json:"discount"`
	Amount          int64        `gorm:"not null" json:"amount"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
}

func (SalesFact) TableName() string { return "sales_facts" }

// InsertTransactionRequest is one transaction as submitted. Money fields are
// minor currency units.
type InsertTransactionRequest struct {
	TransactionID   string    `json:"transaction_id"`
	SoldOn          time.Time `json:"sold_on"`
	CustomerID      string    `json:"customer_id"`
	CustomerName    string    `json:"customer_name"`
	CustomerAddress string    `json:"customer_address"`
	RegionID        string    `json:"region_id"`
	RegionName      string    `json:"region_name"`
	CategoryID      string    `json:"category_id"`
	CategoryName    string    `json:"category_name"`
	ProductID       string    `json:"product_id"`
	ProductName     string    `json:"product_name"`
	Quantity        int64     `json:"quantity"`
	UnitPrice       int64     `json:"unit_price"`
	Discount        int64     `json:"discount"`
	Amount          int64     `json:"amount"`
}

// AddressChange is a customer's address as first observed on a date.
type AddressChange struct {
	CustomerID    string    `json:"customer_id"`
	Address       string    `json:"address"`
	EffectiveDate time.Time `json:"effective_date"`
}

type FeedFormat string

const (
	FeedCSV  FeedFormat = "csv"
	FeedXLSX FeedFormat = "xlsx"
)

type ImportResult struct {
	Rows int `json:"rows"`
}
