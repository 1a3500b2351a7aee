package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/service"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/response"
)

// ProductHandler exposes accessory store endpoints.
type ProductHandler struct {
	products *service.ProductService
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(products *service.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// List godoc
// @Summary List products with per-branch stock
// @Tags Products
// @Produce json
// @Security BearerAuth
// @Param category query string false "Filter by category"
// @Param active query bool false "Filter by active state"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /products [get]
func (h *ProductHandler) List(c *gin.Context) {
	var filter models.ProductFilter
	filter.Category = c.Query("category")
	filter.Active = parseBoolQuery(c, "active")
	filter.Skip, filter.Limit = parsePage(c)

	products, pagination, err := h.products.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, products, pagination)
}

// Get godoc
// @Summary Get product detail
// @Tags Products
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Success 200 {object} response.Envelope
// @Router /products/{id} [get]
func (h *ProductHandler) Get(c *gin.Context) {
	product, err := h.products.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// Create godoc
// @Summary Create a product
// @Tags Products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateProductRequest true "Product payload"
// @Success 201 {object} response.Envelope
// @Router /products [post]
func (h *ProductHandler) Create(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	product, err := h.products.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, product)
}

// Update godoc
// @Summary Update a product
// @Tags Products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Param payload body service.UpdateProductRequest true "Product payload"
// @Success 200 {object} response.Envelope
// @Router /products/{id} [put]
func (h *ProductHandler) Update(c *gin.Context) {
	var req service.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	product, err := h.products.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// Restock godoc
// @Summary Add stock for a product at a branch
// @Tags Products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Param payload body service.RestockRequest true "Restock payload"
// @Success 204
// @Router /products/{id}/restock [post]
func (h *ProductHandler) Restock(c *gin.Context) {
	var req service.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.products.Restock(c.Request.Context(), actorFromContext(c), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Purchase godoc
// @Summary Sell a product to a student
// @Tags Products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.PurchaseRequest true "Purchase payload"
// @Success 201 {object} response.Envelope
// @Router /products/purchase [post]
func (h *ProductHandler) Purchase(c *gin.Context) {
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	purchase, err := h.products.Purchase(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, purchase)
}

// ListPurchases godoc
// @Summary List sales
// @Tags Products
// @Produce json
// @Security BearerAuth
// @Param student_id query string false "Filter by student"
// @Param product_id query string false "Filter by product"
// @Param branch_id query string false "Filter by branch"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /products/purchases [get]
func (h *ProductHandler) ListPurchases(c *gin.Context) {
	var filter models.PurchaseFilter
	filter.StudentID = c.Query("student_id")
	filter.ProductID = c.Query("product_id")
	filter.BranchID = c.Query("branch_id")
	filter.DateFrom = parseDateQuery(c, "from")
	filter.DateTo = parseDateQuery(c, "to")
	filter.Skip, filter.Limit = parsePage(c)

	purchases, pagination, err := h.products.ListPurchases(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, purchases, pagination)
}

// LowStock godoc
// @Summary List stock entries at or below the alert threshold
// @Tags Products
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /products/low-stock [get]
func (h *ProductHandler) LowStock(c *gin.Context) {
	stock, err := h.products.LowStock(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stock, nil)
}
