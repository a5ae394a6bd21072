package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/FacetBaths/stock-man-sub005/internal/models"
	"github.com/FacetBaths/stock-man-sub005/internal/services"
)

// LedgerHandler exposes the allocation, fulfillment, and cancellation
// operations over HTTP.
type LedgerHandler struct {
	ledger *services.LedgerService
}

func NewLedgerHandler(ledger *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// Allocate creates a new tag or extends an existing active one
func (h *LedgerHandler) Allocate(c *gin.Context) {
	var req models.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	tag, err := h.ledger.Allocate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.TagResponse{
		Success: true,
		Data:    tag,
		Message: stringPtr("Instances allocated successfully"),
	})
}

// Fulfill consumes allocated instances from a tag
func (h *LedgerHandler) Fulfill(c *gin.Context) {
	tagID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "tag")
		return
	}

	var req models.FulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	result, err := h.ledger.Fulfill(c.Request.Context(), tagID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	// Per-line validation failures mean nothing was applied; the result
	// tells the caller exactly which lines to correct and retry.
	if len(result.Failed) > 0 {
		c.JSON(http.StatusUnprocessableEntity, models.FulfillmentResponse{
			Success: false,
			Data:    result,
			Message: stringPtr("No fulfillments applied; see failed entries"),
		})
		return
	}

	c.JSON(http.StatusOK, models.FulfillmentResponse{
		Success: true,
		Data:    result,
	})
}

// Cancel releases a tag's instances back to the unallocated pool
func (h *LedgerHandler) Cancel(c *gin.Context) {
	tagID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "tag")
		return
	}

	var req models.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	tag, err := h.ledger.Cancel(c.Request.Context(), tagID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.TagResponse{
		Success: true,
		Data:    tag,
		Message: stringPtr("Tag cancelled"),
	})
}

// GetTag retrieves a tag with resolved entries
func (h *LedgerHandler) GetTag(c *gin.Context) {
	tagID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondInvalidID(c, "tag")
		return
	}

	tag, err := h.ledger.GetTag(c.Request.Context(), tagID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.TagResponse{
		Success: true,
		Data:    tag,
	})
}

// ListTags retrieves tags with optional status/type filters
func (h *LedgerHandler) ListTags(c *gin.Context) {
	var status *models.TagStatus
	if statusStr := c.Query("status"); statusStr != "" {
		s := models.TagStatus(statusStr)
		status = &s
	}

	var tagType *models.AllocationType
	if typeStr := c.Query("tag_type"); typeStr != "" {
		t := models.AllocationType(typeStr)
		tagType = &t
	}

	page, limit := parsePagination(c)

	tags, total, err := h.ledger.ListTags(c.Request.Context(), status, tagType, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.TagListResponse{
		Success:    true,
		Data:       tags,
		Pagination: paginationMeta(page, limit, total),
	})
}
