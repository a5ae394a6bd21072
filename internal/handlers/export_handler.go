package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/FacetBaths/stock-man-sub005/internal/models"
	"github.com/FacetBaths/stock-man-sub005/internal/services"
)

// ExportHandler serves spreadsheet exports of the aggregate stock view.
type ExportHandler struct {
	snapshots *services.SnapshotService
}

func NewExportHandler(snapshots *services.SnapshotService) *ExportHandler {
	return &ExportHandler{snapshots: snapshots}
}

// ExportInventory streams an XLSX with one row per SKU, carrying the same
// numbers as the JSON snapshot view.
func (h *ExportHandler) ExportInventory(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	snapshots, _, err := h.snapshots.ComputeAll(c.Request.Context(), activeOnly, 0, 0)
	if err != nil {
		respondError(c, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Inventory"
	f.SetSheetName("Sheet1", sheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})

	headers := []string{
		"SKU Code", "SKU ID", "Total", "Available", "Reserved", "Broken",
		"Loaned", "Low Stock", "Out of Stock", "Overstock", "Needs Reorder",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}
	f.SetColWidth(sheet, "A", "B", 20)
	f.SetColWidth(sheet, "C", "K", 14)

	for rowIdx, snap := range snapshots {
		values := []interface{}{
			snap.SKUCode,
			snap.SKUID.String(),
			snap.TotalQuantity,
			snap.AvailableQuantity,
			snap.ReservedQuantity,
			snap.BrokenQuantity,
			snap.LoanedQuantity,
			snap.IsLowStock,
			snap.IsOutOfStock,
			snap.IsOverstock,
			snap.NeedsReorder,
		}
		for colIdx, value := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	filename := fmt.Sprintf("inventory_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "EXPORT_FAILED",
				Message: "Failed to generate export file",
			},
		})
	}
}
