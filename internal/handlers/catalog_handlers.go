package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/FacetBaths/stock-man-sub005/internal/models"
	"github.com/FacetBaths/stock-man-sub005/internal/services"
)

// CatalogHandler exposes SKU CRUD and the stock-receipt entry point.
type CatalogHandler struct {
	catalog *services.CatalogService
}

func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// CreateSKU creates a new SKU
func (h *CatalogHandler) CreateSKU(c *gin.Context) {
	var req models.CreateSKURequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	sku, err := h.catalog.CreateSKU(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.SKUResponse{
		Success: true,
		Data:    sku,
		Message: stringPtr("SKU created successfully"),
	})
}

// GetSKU retrieves a SKU by ID
func (h *CatalogHandler) GetSKU(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "SKU")
		return
	}

	sku, err := h.catalog.GetSKU(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SKUResponse{
		Success: true,
		Data:    sku,
	})
}

// ListSKUs retrieves SKUs with pagination
func (h *CatalogHandler) ListSKUs(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	page, limit := parsePagination(c)

	skus, total, err := h.catalog.ListSKUs(c.Request.Context(), activeOnly, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SKUListResponse{
		Success:    true,
		Data:       skus,
		Pagination: paginationMeta(page, limit, total),
	})
}

// UpdateSKU updates SKU fields and thresholds
func (h *CatalogHandler) UpdateSKU(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "SKU")
		return
	}

	var req models.UpdateSKURequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	sku, err := h.catalog.UpdateSKU(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SKUResponse{
		Success: true,
		Data:    sku,
		Message: stringPtr("SKU updated successfully"),
	})
}

// ArchiveSKU soft deletes a SKU without allocated instances
func (h *CatalogHandler) ArchiveSKU(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "SKU")
		return
	}

	if err := h.catalog.ArchiveSKU(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: stringPtr("SKU archived successfully"),
	})
}

// ReceiveStock adds new instances for a SKU
func (h *CatalogHandler) ReceiveStock(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "SKU")
		return
	}

	var req models.ReceiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	ids, err := h.catalog.ReceiveStock(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.ReceiveStockResponse{
		Success:     true,
		InstanceIDs: ids,
		Message:     stringPtr("Stock received successfully"),
	})
}
