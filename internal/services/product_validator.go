package services

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"catalog/internal/models"
	"catalog/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const msgSKUTaken = "This SKU is already taken. Please choose a different one."

// ValidationErrors collects user-correctable problems keyed by form field.
type ValidationErrors map[string][]string

// Add records msg against field.
func (v ValidationErrors) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

// Has reports whether field has at least one error.
func (v ValidationErrors) Has(field string) bool {
	return len(v[field]) > 0
}

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(v[f], " ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ProductInput is a product form submission as received from the client.
// Numeric fields stay strings so that parse failures become field errors.
type ProductInput struct {
	SKU           string
	Name          string
	Description   string
	Price         string
	Category      string
	ImageURL      string
	StockQuantity string
	IsActive      bool
}

// productFields holds the parsed input with one rule set per field.
type productFields struct {
	SKU           string          `field:"sku" validate:"required,min=3,max=80"`
	Name          string          `field:"name" validate:"required,min=3,max=120"`
	Description   string          `field:"description" validate:"omitempty,max=5000"`
	Price         decimal.Decimal `field:"price" validate:"gte=0"`
	Category      string          `field:"category" validate:"omitempty,max=80"`
	ImageURL      string          `field:"image_url" validate:"omitempty,url,max=255"`
	StockQuantity int             `field:"stock_quantity" validate:"gte=0"`
}

// ProductValidator applies field rules and the SKU uniqueness check.
type ProductValidator struct {
	repo     repositories.ProductRepository
	validate *validator.Validate
}

// NewProductValidator creates a validator that checks SKUs against repo.
func NewProductValidator(repo repositories.ProductRepository) *ProductValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("field")
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return &ProductValidator{repo: repo, validate: v}
}

// ValidateCreate checks a new product. Any existing SKU equal ignoring case is a duplicate.
func (v *ProductValidator) ValidateCreate(in ProductInput) (*models.Product, error) {
	return v.check(in, "")
}

// ValidateUpdate checks an edit of the product currently stored as existingSKU.
// Resubmitting the same SKU in any case skips the uniqueness lookup.
func (v *ProductValidator) ValidateUpdate(existingSKU string, in ProductInput) (*models.Product, error) {
	return v.check(in, existingSKU)
}

func (v *ProductValidator) check(in ProductInput, existingSKU string) (*models.Product, error) {
	product, errs := v.validateFields(in)

	if !errs.Has("sku") && (existingSKU == "" || !strings.EqualFold(product.SKU, existingSKU)) {
		taken, err := v.skuTaken(product.SKU)
		if err != nil {
			return nil, err
		}
		if taken {
			errs.Add("sku", msgSKUTaken)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return product, nil
}

func (v *ProductValidator) skuTaken(sku string) (bool, error) {
	_, err := v.repo.GetBySKU(sku)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repositories.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check SKU uniqueness: %w", err)
	}
}

// validateFields parses and checks every field independently; errors accumulate.
func (v *ProductValidator) validateFields(in ProductInput) (*models.Product, ValidationErrors) {
	errs := ValidationErrors{}
	fields := productFields{
		SKU:         strings.TrimSpace(in.SKU),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		ImageURL:    strings.TrimSpace(in.ImageURL),
	}

	if raw := strings.TrimSpace(in.Price); raw == "" {
		errs.Add("price", "This field is required.")
	} else if d, err := decimal.NewFromString(raw); err != nil {
		errs.Add("price", "Not a valid decimal value.")
	} else if d.IsNegative() {
		// checked before rounding so -0.004 does not become 0.00
		errs.Add("price", "Number must be at least 0.")
	} else {
		fields.Price = d.Round(2)
	}

	if raw := strings.TrimSpace(in.StockQuantity); raw == "" {
		errs.Add("stock_quantity", "This field is required.")
	} else if n, err := strconv.Atoi(raw); err != nil {
		errs.Add("stock_quantity", "Not a valid integer value.")
	} else {
		fields.StockQuantity = n
	}

	if err := v.validate.Struct(fields); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if !errs.Has(fe.Field()) {
					errs.Add(fe.Field(), ruleMessage(fe))
				}
			}
		} else {
			errs.Add("form", err.Error())
		}
	}

	return &models.Product{
		SKU:           fields.SKU,
		Name:          fields.Name,
		Description:   fields.Description,
		Price:         fields.Price,
		Category:      fields.Category,
		ImageURL:      fields.ImageURL,
		StockQuantity: fields.StockQuantity,
		IsActive:      in.IsActive,
	}, errs
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "min":
		return fmt.Sprintf("Field must be at least %s characters long.", fe.Param())
	case "max":
		return fmt.Sprintf("Field cannot be longer than %s characters.", fe.Param())
	case "gte":
		return fmt.Sprintf("Number must be at least %s.", fe.Param())
	case "url":
		return "Invalid URL."
	default:
		return fmt.Sprintf("Failed on the '%s' rule.", fe.Tag())
	}
}
