package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/FacetBaths/stock-man-sub005/internal/models"
	"github.com/FacetBaths/stock-man-sub005/internal/services"
)

// InventoryHandler serves the aggregate stock view.
type InventoryHandler struct {
	snapshots *services.SnapshotService
}

func NewInventoryHandler(snapshots *services.SnapshotService) *InventoryHandler {
	return &InventoryHandler{snapshots: snapshots}
}

// GetSnapshot returns the aggregate view for one SKU
func (h *InventoryHandler) GetSnapshot(c *gin.Context) {
	skuID, err := uuid.Parse(c.Param("sku_id"))
	if err != nil {
		respondInvalidID(c, "SKU")
		return
	}

	snap, err := h.snapshots.Compute(c.Request.Context(), skuID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SnapshotResponse{
		Success: true,
		Data:    snap,
	})
}

// ListSnapshots returns aggregate views for the catalog
func (h *InventoryHandler) ListSnapshots(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	page, limit := parsePagination(c)

	snapshots, total, err := h.snapshots.ComputeAll(c.Request.Context(), activeOnly, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SnapshotListResponse{
		Success:    true,
		Data:       snapshots,
		Pagination: paginationMeta(page, limit, total),
	})
}
