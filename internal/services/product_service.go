package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"catalog/internal/logger"
	"catalog/internal/models"
	"catalog/internal/repositories"
)

var (
	// ErrProductNotFound is returned when no product matches the SKU.
	ErrProductNotFound = errors.New("product not found")
	// ErrConflict is returned when a write hits a uniqueness or constraint
	// violation. The write has been rolled back.
	ErrConflict = errors.New("conflict")
	// ErrDuplicateSKU is the conflict raised for a SKU already in use.
	ErrDuplicateSKU = fmt.Errorf("%w: SKU already exists", ErrConflict)
)

const maxPageSize = 100

// Catalog event types published after a successful commit.
const (
	EventProductCreated = "product.created"
	EventProductUpdated = "product.updated"
	EventProductDeleted = "product.deleted"
)

// EventPublisher delivers catalog events to interested consumers.
type EventPublisher interface {
	Publish(eventType string, body []byte) error
}

// ProductEvent is the payload of a catalog event.
type ProductEvent struct {
	Type       string    `json:"type"`
	ProductID  uint      `json:"product_id"`
	SKU        string    `json:"sku"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ProductPage is one page of the catalog listing.
type ProductPage struct {
	Items    []models.Product
	Page     int
	PageSize int
	Total    int64
}

// Pages returns the number of pages needed for Total items.
func (p *ProductPage) Pages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

func (p *ProductPage) HasPrev() bool { return p.Page > 1 }
func (p *ProductPage) HasNext() bool { return p.Page < p.Pages() }
func (p *ProductPage) PrevPage() int { return p.Page - 1 }
func (p *ProductPage) NextPage() int { return p.Page + 1 }

// ProductService orchestrates validation and persistence of products.
type ProductService struct {
	repo      repositories.ProductRepository
	validator *ProductValidator
	events    EventPublisher
	pageSize  int
	log       *logger.Logger
}

// NewProductService creates a new ProductService. events may be nil.
func NewProductService(repo repositories.ProductRepository, events EventPublisher, pageSize int, log *logger.Logger) *ProductService {
	return &ProductService{
		repo:      repo,
		validator: NewProductValidator(repo),
		events:    events,
		pageSize:  pageSize,
		log:       log,
	}
}

// List returns a page of products ordered by name. Pages past the end are empty.
func (s *ProductService) List(page, pageSize int) (*ProductPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = s.pageSize
	}
	// keep the offset representable; such pages are empty anyway
	if maxPage := math.MaxInt32 / pageSize; page > maxPage {
		page = maxPage
	}

	items, total, err := s.repo.List((page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return &ProductPage{Items: items, Page: page, PageSize: pageSize, Total: total}, nil
}

// GetBySKU retrieves a product by SKU, ignoring case.
func (s *ProductService) GetBySKU(sku string) (*models.Product, error) {
	product, err := s.repo.GetBySKU(sku)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
		}
		return nil, err
	}
	return product, nil
}

// Create validates and stores a new product. It returns ValidationErrors for
// bad input and an ErrConflict-wrapped error when the SKU is taken at commit.
func (s *ProductService) Create(in ProductInput) (*models.Product, error) {
	product, err := s.validator.ValidateCreate(in)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithinTransaction(func(tx repositories.ProductRepository) error {
		// the form check ran outside this transaction
		if err := ensureSKUFree(tx, product.SKU, 0); err != nil {
			return err
		}
		return tx.Create(product)
	})
	if err != nil {
		return nil, s.writeError("create", product.SKU, err)
	}

	s.publish(EventProductCreated, product)
	return product, nil
}

// Update applies in to the product stored under sku. Changing the SKU is
// allowed as long as the new one is free.
func (s *ProductService) Update(sku string, in ProductInput) (*models.Product, error) {
	existing, err := s.GetBySKU(sku)
	if err != nil {
		return nil, err
	}

	product, err := s.validator.ValidateUpdate(existing.SKU, in)
	if err != nil {
		return nil, err
	}
	product.ID = existing.ID
	product.CreatedAt = existing.CreatedAt

	err = s.repo.WithinTransaction(func(tx repositories.ProductRepository) error {
		if !strings.EqualFold(product.SKU, existing.SKU) {
			if err := ensureSKUFree(tx, product.SKU, existing.ID); err != nil {
				return err
			}
		}
		return tx.Update(product)
	})
	if err != nil {
		return nil, s.writeError("update", existing.SKU, err)
	}

	s.publish(EventProductUpdated, product)
	return product, nil
}

// Delete removes the product stored under sku and returns it.
func (s *ProductService) Delete(sku string) (*models.Product, error) {
	existing, err := s.GetBySKU(sku)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithinTransaction(func(tx repositories.ProductRepository) error {
		return tx.Delete(existing.ID)
	})
	if err != nil {
		return nil, s.writeError("delete", existing.SKU, err)
	}

	s.publish(EventProductDeleted, existing)
	return existing, nil
}

func ensureSKUFree(tx repositories.ProductRepository, sku string, ownID uint) error {
	other, err := tx.GetBySKU(sku)
	switch {
	case err == nil && other.ID != ownID:
		return ErrDuplicateSKU
	case err == nil, errors.Is(err, repositories.ErrNotFound):
		return nil
	default:
		return err
	}
}

// writeError turns a failed, already rolled back write into a typed outcome.
func (s *ProductService) writeError(op, sku string, err error) error {
	switch {
	case errors.Is(err, ErrConflict):
		s.log.Info().Str("op", op).Str("sku", sku).Msg("product write conflict")
		return err
	case errors.Is(err, repositories.ErrDuplicateKey):
		s.log.Info().Str("op", op).Str("sku", sku).Err(err).Msg("unique constraint rejected product write")
		return fmt.Errorf("%w: %v", ErrDuplicateSKU, err)
	case errors.Is(err, repositories.ErrConstraintViolation):
		s.log.Warn().Str("op", op).Str("sku", sku).Err(err).Msg("check constraint rejected product write")
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrProductNotFound, sku)
	default:
		s.log.Error().Str("op", op).Str("sku", sku).Err(err).Msg("product write failed")
		return fmt.Errorf("failed to %s product %s: %w", op, sku, err)
	}
}

func (s *ProductService) publish(eventType string, product *models.Product) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(ProductEvent{
		Type:       eventType,
		ProductID:  product.ID,
		SKU:        product.SKU,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal product event")
		return
	}
	if err := s.events.Publish(eventType, body); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Str("sku", product.SKU).Msg("failed to publish product event")
	}
}
