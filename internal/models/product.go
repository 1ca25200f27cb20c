package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry.
// Price and stock are guarded by CHECK constraints so that the store rejects
// negative values even when validation is skipped.
type Product struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	SKU           string          `json:"sku" gorm:"size:80;not null"`
	Name          string          `json:"name" gorm:"size:120;not null;index"`
	Description   string          `json:"description" gorm:"type:text"`
	Price         decimal.Decimal `json:"price" gorm:"type:numeric(10,2);not null;check:chk_products_price,price >= 0"`
	Category      string          `json:"category" gorm:"size:80"`
	ImageURL      string          `json:"image_url" gorm:"size:255"`
	StockQuantity int             `json:"stock_quantity" gorm:"not null;check:chk_products_stock_quantity,stock_quantity >= 0"`
	IsActive      bool            `json:"is_active" gorm:"not null"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName pins the table name used by the product store.
func (Product) TableName() string {
	return "products"
}
