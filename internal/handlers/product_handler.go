package handlers

import (
	"errors"
	"fmt"
	"net/url"

	"catalog/internal/logger"
	"catalog/internal/models"
	"catalog/internal/services"
	"catalog/internal/session"

	"github.com/gofiber/fiber/v2"
)

const listPath = "/products/"

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service  *services.ProductService
	sessions *session.Manager
	render   *Renderer
	log      *logger.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService, sessions *session.Manager, render *Renderer, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		service:  service,
		sessions: sessions,
		render:   render,
		log:      log,
	}
}

// RegisterRoutes registers the product routes behind requireLogin.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, requireLogin fiber.Handler) {
	productRoutes := router.Group("/products", requireLogin)
	productRoutes.Get("/", h.HandleList)
	productRoutes.Get("/add", h.HandleAddForm)
	productRoutes.Post("/add", h.HandleAdd)
	productRoutes.Get("/:sku", h.HandleView)
	productRoutes.Get("/:sku/edit", h.HandleEditForm)
	productRoutes.Post("/:sku/edit", h.HandleEdit)
	productRoutes.Post("/:sku/delete", h.HandleDelete)
}

// productForm is the submitted product form.
type productForm struct {
	SKU           string `form:"sku"`
	Name          string `form:"name"`
	Description   string `form:"description"`
	Price         string `form:"price"`
	Category      string `form:"category"`
	ImageURL      string `form:"image_url"`
	StockQuantity string `form:"stock_quantity"`
	IsActive      string `form:"is_active"`
}

func (f productForm) input() services.ProductInput {
	return services.ProductInput{
		SKU:           f.SKU,
		Name:          f.Name,
		Description:   f.Description,
		Price:         f.Price,
		Category:      f.Category,
		ImageURL:      f.ImageURL,
		StockQuantity: f.StockQuantity,
		IsActive:      f.IsActive != "",
	}
}

func inputFromProduct(p *models.Product) services.ProductInput {
	return services.ProductInput{
		SKU:           p.SKU,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price.StringFixed(2),
		Category:      p.Category,
		ImageURL:      p.ImageURL,
		StockQuantity: fmt.Sprint(p.StockQuantity),
		IsActive:      p.IsActive,
	}
}

func productNotFound(sku string) error {
	return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("Product %s not found", sku))
}

func (h *ProductHandler) renderForm(c *fiber.Ctx, title, action string, in services.ProductInput, errs map[string][]string, product *models.Product) error {
	return h.render.Render(c, fiber.StatusOK, "form.html", &pageData{
		Title:      title,
		Form:       in,
		FormAction: action,
		Errors:     errs,
		Product:    product,
	})
}

// HandleList shows one page of products ordered by name.
func (h *ProductHandler) HandleList(c *fiber.Ctx) error {
	page, err := h.service.List(c.QueryInt("page", 1), 0)
	if err != nil {
		h.log.Error().Err(err).Msg("error listing products")
		return err
	}
	return h.render.Render(c, fiber.StatusOK, "list.html", &pageData{
		Title:    "Products",
		Products: page,
	})
}

// HandleAddForm shows an empty product form.
func (h *ProductHandler) HandleAddForm(c *fiber.Ctx) error {
	return h.renderForm(c, "Add New Product", "/products/add", services.ProductInput{IsActive: true}, nil, nil)
}

// HandleAdd creates a product from the submitted form.
func (h *ProductHandler) HandleAdd(c *fiber.Ctx) error {
	const title, action = "Add New Product", "/products/add"

	var form productForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid form submission")
	}
	in := form.input()

	product, err := h.service.Create(in)
	if err != nil {
		var validationErrors services.ValidationErrors
		switch {
		case errors.As(err, &validationErrors):
			return h.renderForm(c, title, action, in, validationErrors, nil)
		case errors.Is(err, services.ErrConflict):
			return h.flashAndRenderForm(c, "SKU already exists.", title, action, in, nil)
		default:
			h.log.Error().Err(err).Str("sku", in.SKU).Msg("error creating product")
			return h.flashAndRenderForm(c, "An error occurred. Please try again.", title, action, in, nil)
		}
	}

	if err := h.sessions.Flash(c, "success", fmt.Sprintf("Product %s added successfully!", product.SKU)); err != nil {
		return err
	}
	return c.Redirect(listPath, fiber.StatusFound)
}

func (h *ProductHandler) flashAndRenderForm(c *fiber.Ctx, msg, title, action string, in services.ProductInput, product *models.Product) error {
	if err := h.sessions.Flash(c, "danger", msg); err != nil {
		return err
	}
	return h.renderForm(c, title, action, in, nil, product)
}

// HandleView shows a single product, looked up by SKU ignoring case.
func (h *ProductHandler) HandleView(c *fiber.Ctx) error {
	sku := c.Params("sku")
	product, err := h.service.GetBySKU(sku)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			return productNotFound(sku)
		}
		return err
	}
	return h.render.Render(c, fiber.StatusOK, "view.html", &pageData{
		Title:   "View " + product.Name,
		Product: product,
	})
}

// HandleEditForm shows the form pre-filled with the stored product.
func (h *ProductHandler) HandleEditForm(c *fiber.Ctx) error {
	sku := c.Params("sku")
	product, err := h.service.GetBySKU(sku)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			return productNotFound(sku)
		}
		return err
	}
	return h.renderForm(c, "Edit Product", editAction(product.SKU), inputFromProduct(product), nil, product)
}

// HandleEdit applies the submitted form to the stored product.
func (h *ProductHandler) HandleEdit(c *fiber.Ctx) error {
	const title = "Edit Product"
	sku := c.Params("sku")

	var form productForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid form submission")
	}
	in := form.input()

	product, err := h.service.Update(sku, in)
	if err != nil {
		var validationErrors services.ValidationErrors
		switch {
		case errors.Is(err, services.ErrProductNotFound):
			return productNotFound(sku)
		case errors.As(err, &validationErrors):
			return h.renderForm(c, title, editAction(sku), in, validationErrors, nil)
		case errors.Is(err, services.ErrConflict):
			return h.flashAndRenderForm(c, "SKU already exists.", title, editAction(sku), in, nil)
		default:
			h.log.Error().Err(err).Str("sku", sku).Msg("error updating product")
			return h.flashAndRenderForm(c, "An error occurred. Please try again.", title, editAction(sku), in, nil)
		}
	}

	if err := h.sessions.Flash(c, "success", fmt.Sprintf("Product %s updated successfully!", product.SKU)); err != nil {
		return err
	}
	return c.Redirect(listPath, fiber.StatusFound)
}

// HandleDelete removes a product and returns to the list.
func (h *ProductHandler) HandleDelete(c *fiber.Ctx) error {
	sku := c.Params("sku")

	product, err := h.service.Delete(sku)
	switch {
	case errors.Is(err, services.ErrProductNotFound):
		return productNotFound(sku)
	case err != nil:
		h.log.Error().Err(err).Str("sku", sku).Msg("error deleting product")
		if err := h.sessions.Flash(c, "danger", fmt.Sprintf("Error deleting product %s.", sku)); err != nil {
			return err
		}
	default:
		if err := h.sessions.Flash(c, "success", fmt.Sprintf("Product %s deleted.", product.SKU)); err != nil {
			return err
		}
	}
	return c.Redirect(listPath, fiber.StatusFound)
}

func editAction(sku string) string {
	return "/products/" + url.PathEscape(sku) + "/edit"
}
