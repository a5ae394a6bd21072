package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/FacetBaths/stock-man-sub005/internal/apperrors"
	"github.com/FacetBaths/stock-man-sub005/internal/models"
)

// respondError maps ledger errors to their wire code and status; anything
// else is an internal error the caller cannot correct.
func respondError(c *gin.Context, err error) {
	if le, ok := apperrors.AsLedgerError(err); ok {
		c.JSON(le.Status, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    le.Code,
				Message: le.Message,
			},
		})
		return
	}
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "INTERNAL_ERROR",
			Message: "An unexpected error occurred",
		},
	})
}

func respondValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "VALIDATION_ERROR",
			Message: err.Error(),
		},
	})
}

func respondInvalidID(c *gin.Context, what string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "INVALID_ID",
			Message: "Invalid " + what + " ID",
		},
	})
}

// parsePagination reads page/limit query params; zero values mean
// "unpaginated" and list endpoints return everything.
func parsePagination(c *gin.Context) (page, limit int) {
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := parseInt(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := parseInt(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	return page, limit
}

func paginationMeta(page, limit int, total int64) *models.PaginationMeta {
	if page <= 0 || limit <= 0 {
		return nil
	}
	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}
	return &models.PaginationMeta{
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
