package services_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"catalog/internal/logger"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func skuNotFound(sku string) error {
	return fmt.Errorf("product with SKU %s not found: %w", sku, repositories.ErrNotFound)
}

func validInput() services.ProductInput {
	return services.ProductInput{
		SKU:           "TEST001",
		Name:          "Test Product",
		Description:   "A product used in tests",
		Price:         "99.99",
		Category:      "Testing",
		StockQuantity: "10",
		IsActive:      true,
	}
}

func TestProductService_List(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo, nil, 10, logger.Nop())

	products := []models.Product{
		{ID: 1, SKU: "A-1", Name: "Alpha"},
		{ID: 2, SKU: "B-1", Name: "Beta"},
	}
	mockRepo.On("List", 10, 10).Return(products, int64(12), nil).Once()

	page, err := service.List(2, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.Pages())
	assert.True(t, page.HasPrev())
	assert.False(t, page.HasNext())
	assert.Equal(t, 1, page.PrevPage())

	// page below 1 is treated as the first page
	mockRepo.On("List", 0, 5).Return([]models.Product{}, int64(0), nil).Once()
	page, err = service.List(-3, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Pages())
	assert.False(t, page.HasNext())

	// huge page numbers must not overflow the offset
	mockRepo.On("List", mock.MatchedBy(func(offset int) bool { return offset >= 0 }), 10).
		Return([]models.Product{}, int64(12), nil).Once()
	page, err = service.List(math.MaxInt, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasNext())

	mockRepo.On("List", 0, 10).Return([]models.Product{}, int64(0), errors.New("boom")).Once()
	_, err = service.List(1, 1000)
	assert.Error(t, err)

	mockRepo.AssertExpectations(t)
}

func TestProductService_GetBySKU(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo, nil, 10, logger.Nop())

	mockRepo.On("GetBySKU", "test001").Return(&models.Product{ID: 1, SKU: "TEST001"}, nil).Once()
	product, err := service.GetBySKU("test001")
	require.NoError(t, err)
	assert.Equal(t, "TEST001", product.SKU)

	mockRepo.On("GetBySKU", "missing").Return(nil, skuNotFound("missing")).Once()
	_, err = service.GetBySKU("missing")
	assert.ErrorIs(t, err, services.ErrProductNotFound)

	mockRepo.AssertExpectations(t)
}

func TestProductService_Create(t *testing.T) {
	mockRepo := new(MockProductRepository)
	publisher := new(MockPublisher)
	service := services.NewProductService(mockRepo, publisher, 10, logger.Nop())

	mockRepo.On("GetBySKU", "TEST001").Return(nil, skuNotFound("TEST001")).Twice()
	mockRepo.On("WithinTransaction").Return().Once()
	mockRepo.On("Create", mock.AnythingOfType("*models.Product")).Run(func(args mock.Arguments) {
		args.Get(0).(*models.Product).ID = 5
	}).Return(nil).Once()
	publisher.On("Publish", services.EventProductCreated, mock.Anything).Run(func(args mock.Arguments) {
		var event services.ProductEvent
		require.NoError(t, json.Unmarshal(args.Get(1).([]byte), &event))
		assert.Equal(t, services.EventProductCreated, event.Type)
		assert.Equal(t, uint(5), event.ProductID)
		assert.Equal(t, "TEST001", event.SKU)
	}).Return(nil).Once()

	product, err := service.Create(validInput())
	require.NoError(t, err)
	assert.Equal(t, "TEST001", product.SKU)
	assert.True(t, product.Price.Equal(decimal.RequireFromString("99.99")))
	assert.Equal(t, 10, product.StockQuantity)
	assert.True(t, product.IsActive)

	mockRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestProductService_Create_DuplicateSKU(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo, nil, 10, logger.Nop())

	mockRepo.On("GetBySKU", "TEST001").Return(&models.Product{ID: 1, SKU: "test001"}, nil).Once()

	_, err := service.Create(validInput())
	var verrs services.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{"This SKU is already taken. Please choose a different one."}, verrs["sku"])
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestProductService_Create_RaceAtCommit(t *testing.T) {
	mockRepo := new(MockProductRepository)
	publisher := new(MockPublisher)
	service := services.NewProductService(mockRepo, publisher, 10, logger.Nop())

	// free during validation, taken by a concurrent writer before commit
	mockRepo.On("GetBySKU", "TEST001").Return(nil, skuNotFound("TEST001")).Once()
	mockRepo.On("GetBySKU", "TEST001").Return(&models.Product{ID: 9, SKU: "test001"}, nil).Once()
	mockRepo.On("WithinTransaction").Return().Once()

	_, err := service.Create(validInput())
	assert.ErrorIs(t, err, services.ErrDuplicateSKU)
	assert.ErrorIs(t, err, services.ErrConflict)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestProductService_Create_StoreErrors(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		want    error
	}{
		{"unique index", fmt.Errorf("wrap: %w", repositories.ErrDuplicateKey), services.ErrDuplicateSKU},
		{"check constraint", fmt.Errorf("wrap: %w", repositories.ErrConstraintViolation), services.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockProductRepository)
			service := services.NewProductService(mockRepo, nil, 10, logger.Nop())

			mockRepo.On("GetBySKU", "TEST001").Return(nil, skuNotFound("TEST001")).Twice()
			mockRepo.On("WithinTransaction").Return().Once()
			mockRepo.On("Create", mock.AnythingOfType("*models.Product")).Return(tt.repoErr).Once()

			_, err := service.Create(validInput())
			assert.ErrorIs(t, err, tt.want)
			mockRepo.AssertExpectations(t)
		})
	}

	t.Run("unexpected failure", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		service := services.NewProductService(mockRepo, nil, 10, logger.Nop())

		boom := errors.New("disk I/O error")
		mockRepo.On("GetBySKU", "TEST001").Return(nil, skuNotFound("TEST001")).Twice()
		mockRepo.On("WithinTransaction").Return().Once()
		mockRepo.On("Create", mock.AnythingOfType("*models.Product")).Return(boom).Once()

		_, err := service.Create(validInput())
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, services.ErrConflict)
	})
}

func TestProductService_Create_PublishFailureIgnored(t *testing.T) {
	mockRepo := new(MockProductRepository)
	publisher := new(MockPublisher)
	service := services.NewProductService(mockRepo, publisher, 10, logger.Nop())

	mockRepo.On("GetBySKU", "TEST001").Return(nil, skuNotFound("TEST001")).Twice()
	mockRepo.On("WithinTransaction").Return().Once()
	mockRepo.On("Create", mock.AnythingOfType("*models.Product")).Return(nil).Once()
	publisher.On("Publish", services.EventProductCreated, mock.Anything).Return(errors.New("channel closed")).Once()

	_, err := service.Create(validInput())
	assert.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestProductService_Update(t *testing.T) {
	mockRepo := new(MockProductRepository)
	publisher := new(MockPublisher)
	service := services.NewProductService(mockRepo, publisher, 10, logger.Nop())

	existing := &models.Product{ID: 3, SKU: "TEST001", Name: "Old", Price: decimal.NewFromInt(1)}
	mockRepo.On("GetBySKU", "test001").Return(existing, nil).Once()
	mockRepo.On("WithinTransaction").Return().Once()
	mockRepo.On("Update", mock.MatchedBy(func(p *models.Product) bool {
		return p.ID == 3 && p.Name == "Renamed" && p.SKU == "test001"
	})).Return(nil).Once()
	publisher.On("Publish", services.EventProductUpdated, mock.Anything).Return(nil).Once()

	// same SKU in another case skips the uniqueness lookup
	in := validInput()
	in.SKU = "test001"
	in.Name = "Renamed"
	product, err := service.Update("test001", in)
	require.NoError(t, err)
	assert.Equal(t, uint(3), product.ID)

	mockRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestProductService_Update_ChangeSKU(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo, nil, 10, logger.Nop())

	existing := &models.Product{ID: 3, SKU: "TEST001"}
	mockRepo.On("GetBySKU", "TEST001").Return(existing, nil).Once()
	mockRepo.On("GetBySKU", "TEST002").Return(&models.Product{ID: 4, SKU: "TEST002"}, nil).Once()

	in := validInput()
	in.SKU = "TEST002"
	_, err := service.Update("TEST001", in)
	var verrs services.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("sku"))
	mockRepo.AssertNotCalled(t, "Update", mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestProductService_Update_NotFound(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := services.NewProductService(mockRepo, nil, 10, logger.Nop())

	mockRepo.On("GetBySKU", "NOPE").Return(nil, skuNotFound("NOPE")).Once()
	_, err := service.Update("NOPE", validInput())
	assert.ErrorIs(t, err, services.ErrProductNotFound)
}

func TestProductService_Delete(t *testing.T) {
	mockRepo := new(MockProductRepository)
	publisher := new(MockPublisher)
	service := services.NewProductService(mockRepo, publisher, 10, logger.Nop())

	existing := &models.Product{ID: 3, SKU: "TEST001"}
	mockRepo.On("GetBySKU", "test001").Return(existing, nil).Once()
	mockRepo.On("WithinTransaction").Return().Once()
	mockRepo.On("Delete", uint(3)).Return(nil).Once()
	publisher.On("Publish", services.EventProductDeleted, mock.Anything).Return(nil).Once()

	deleted, err := service.Delete("test001")
	require.NoError(t, err)
	assert.Equal(t, "TEST001", deleted.SKU)

	// Test delete failure
	mockRepo.On("GetBySKU", "test001").Return(existing, nil).Once()
	mockRepo.On("WithinTransaction").Return().Once()
	mockRepo.On("Delete", uint(3)).Return(errors.New("foreign key")).Once()
	_, err = service.Delete("test001")
	assert.Error(t, err)

	// Test missing product
	mockRepo.On("GetBySKU", "gone").Return(nil, skuNotFound("gone")).Once()
	_, err = service.Delete("gone")
	assert.ErrorIs(t, err, services.ErrProductNotFound)

	mockRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}
