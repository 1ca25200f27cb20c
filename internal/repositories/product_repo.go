package repositories

import (
	"catalog/internal/models"
)

// ProductRepository defines the interface for product data access.
// SKU lookups are case-insensitive.
type ProductRepository interface {
	List(offset, limit int) ([]models.Product, int64, error)
	GetBySKU(sku string) (*models.Product, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	Delete(id uint) error
	// WithinTransaction runs fn against a repository bound to a single
	// transaction. The transaction is committed when fn returns nil and
	// rolled back otherwise.
	WithinTransaction(fn func(repo ProductRepository) error) error
}
