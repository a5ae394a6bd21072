package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FacetBaths/stock-man-sub005/internal/models"
	"github.com/FacetBaths/stock-man-sub005/internal/repository"
	"github.com/FacetBaths/stock-man-sub005/internal/services"
)

type testServer struct {
	router  *gin.Engine
	catalog *services.CatalogService
	ledger  *services.LedgerService
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryLedgerRepository()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	snapshots := services.NewSnapshotService(repo, nil, logger)
	ledger := services.NewLedgerService(repo, snapshots, nil, nil, logger)
	catalog := services.NewCatalogService(repo, snapshots, nil, logger)

	ledgerHandler := NewLedgerHandler(ledger)
	catalogHandler := NewCatalogHandler(catalog)
	inventoryHandler := NewInventoryHandler(snapshots)

	router := gin.New()
	api := router.Group("/api/v1")
	tags := api.Group("/tags")
	{
		tags.POST("/allocate", ledgerHandler.Allocate)
		tags.GET("", ledgerHandler.ListTags)
		tags.GET("/:id", ledgerHandler.GetTag)
		tags.POST("/:id/fulfill", ledgerHandler.Fulfill)
		tags.POST("/:id/cancel", ledgerHandler.Cancel)
	}
	skus := api.Group("/skus")
	{
		skus.POST("", catalogHandler.CreateSKU)
		skus.GET("", catalogHandler.ListSKUs)
		skus.GET("/:id", catalogHandler.GetSKU)
		skus.PUT("/:id", catalogHandler.UpdateSKU)
		skus.DELETE("/:id", catalogHandler.ArchiveSKU)
		skus.POST("/:id/receive", catalogHandler.ReceiveStock)
	}
	inventory := api.Group("/inventory")
	{
		inventory.GET("", inventoryHandler.ListSnapshots)
		inventory.GET("/:sku_id", inventoryHandler.GetSnapshot)
	}

	return &testServer{router: router, catalog: catalog, ledger: ledger}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) seedSKU(t *testing.T, code string, count int) *models.SKU {
	t.Helper()
	sku, err := s.catalog.CreateSKU(context.Background(), models.CreateSKURequest{
		Code: code,
		Name: "Test " + code,
		Cost: decimal.RequireFromString("15"),
	})
	require.NoError(t, err)
	if count > 0 {
		acquired := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		_, err = s.catalog.ReceiveStock(context.Background(), sku.ID, models.ReceiveStockRequest{
			Count:           count,
			AcquisitionDate: &acquired,
		})
		require.NoError(t, err)
	}
	return sku
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestAllocateEndpoint(t *testing.T) {
	srv := newTestServer()
	sku := srv.seedSKU(t, "TUB-60", 3)

	w := srv.do(t, http.MethodPost, "/api/v1/tags/allocate", models.AllocateRequest{
		SKUID:           sku.ID,
		Quantity:        2,
		SelectionMethod: models.SelectionMethodFIFO,
		AllocationType:  models.AllocationTypeReserved,
		CustomerName:    "Hartley Remodel",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.TagResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, models.TagStatusActive, resp.Data.Status)
	require.Len(t, resp.Data.SKUItems, 1)
	assert.Equal(t, 2, resp.Data.SKUItems[0].Quantity())

	// quantity is emitted on the wire even though it is never stored.
	var raw map[string]interface{}
	decode(t, w, &raw)
	items := raw["data"].(map[string]interface{})["sku_items"].([]interface{})
	assert.EqualValues(t, 2, items[0].(map[string]interface{})["quantity"])
}

func TestAllocateEndpointErrors(t *testing.T) {
	srv := newTestServer()
	sku := srv.seedSKU(t, "TUB-60", 1)

	t.Run("insufficient stock", func(t *testing.T) {
		w := srv.do(t, http.MethodPost, "/api/v1/tags/allocate", models.AllocateRequest{
			SKUID:           sku.ID,
			Quantity:        5,
			SelectionMethod: models.SelectionMethodFIFO,
			AllocationType:  models.AllocationTypeReserved,
			CustomerName:    "Too Many",
		})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var resp models.ErrorResponse
		decode(t, w, &resp)
		assert.False(t, resp.Success)
		assert.Equal(t, "INSUFFICIENT_STOCK", resp.Error.Code)
	})

	t.Run("unknown SKU", func(t *testing.T) {
		w := srv.do(t, http.MethodPost, "/api/v1/tags/allocate", models.AllocateRequest{
			SKUID:           uuid.New(),
			Quantity:        1,
			SelectionMethod: models.SelectionMethodFIFO,
			AllocationType:  models.AllocationTypeReserved,
			CustomerName:    "Ghost",
		})
		require.Equal(t, http.StatusNotFound, w.Code)

		var resp models.ErrorResponse
		decode(t, w, &resp)
		assert.Equal(t, "SKU_NOT_FOUND", resp.Error.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tags/allocate", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestFulfillEndpoint(t *testing.T) {
	srv := newTestServer()
	sku := srv.seedSKU(t, "TUB-60", 2)

	tag, err := srv.ledger.Allocate(context.Background(), models.AllocateRequest{
		SKUID: sku.ID, Quantity: 2,
		SelectionMethod: models.SelectionMethodFIFO,
		AllocationType:  models.AllocationTypeReserved,
		CustomerName:    "Install",
	})
	require.NoError(t, err)

	w := srv.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tags/%s/fulfill", tag.ID), models.FulfillRequest{
		Fulfillments: []models.FulfillmentLine{{SKUID: sku.ID, QuantityFulfilled: 2}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.FulfillmentResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, models.TagStatusFulfilled, resp.Data.TagStatus)
	assert.Len(t, resp.Data.InstancesRemoved, 2)
}

func TestFulfillEndpointReportsFailedLines(t *testing.T) {
	srv := newTestServer()
	sku := srv.seedSKU(t, "TUB-60", 2)

	tag, err := srv.ledger.Allocate(context.Background(), models.AllocateRequest{
		SKUID: sku.ID, Quantity: 2,
		SelectionMethod: models.SelectionMethodFIFO,
		AllocationType:  models.AllocationTypeReserved,
		CustomerName:    "Install",
	})
	require.NoError(t, err)

	w := srv.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tags/%s/fulfill", tag.ID), models.FulfillRequest{
		Fulfillments: []models.FulfillmentLine{{SKUID: sku.ID, QuantityFulfilled: 9}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp models.FulfillmentResponse
	decode(t, w, &resp)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Data)
	require.Len(t, resp.Data.Failed, 1)
	assert.Equal(t, "OVER_FULFILLMENT", resp.Data.Failed[0].Code)
	assert.Empty(t, resp.Data.InstancesRemoved)
}

func TestCancelEndpoint(t *testing.T) {
	srv := newTestServer()
	sku := srv.seedSKU(t, "TUB-60", 1)

	tag, err := srv.ledger.Allocate(context.Background(), models.AllocateRequest{
		SKUID: sku.ID, Quantity: 1,
		SelectionMethod: models.SelectionMethodFIFO,
		AllocationType:  models.AllocationTypeReserved,
		CustomerName:    "Changed Mind",
	})
	require.NoError(t, err)

	// Reason is mandatory.
	w := srv.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tags/%s/cancel", tag.ID), models.CancelRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tags/%s/cancel", tag.ID), models.CancelRequest{
		Reason: "customer backed out",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.TagResponse
	decode(t, w, &resp)
	assert.Equal(t, models.TagStatusCancelled, resp.Data.Status)

	// A second cancel conflicts.
	w = srv.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tags/%s/cancel", tag.ID), models.CancelRequest{
		Reason: "again",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetTagEndpoint(t *testing.T) {
	srv := newTestServer()

	w := srv.do(t, http.MethodGet, "/api/v1/tags/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/tags/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInventoryEndpoints(t *testing.T) {
	srv := newTestServer()
	sku := srv.seedSKU(t, "TUB-60", 4)

	_, err := srv.ledger.Allocate(context.Background(), models.AllocateRequest{
		SKUID: sku.ID, Quantity: 1,
		SelectionMethod: models.SelectionMethodFIFO,
		AllocationType:  models.AllocationTypeLoaned,
		CustomerName:    "Showroom",
	})
	require.NoError(t, err)

	w := srv.do(t, http.MethodGet, "/api/v1/inventory/"+sku.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.SnapshotResponse
	decode(t, w, &resp)
	require.NotNil(t, resp.Data)
	assert.Equal(t, 4, resp.Data.TotalQuantity)
	assert.Equal(t, 3, resp.Data.AvailableQuantity)
	assert.Equal(t, 1, resp.Data.LoanedQuantity)

	w = srv.do(t, http.MethodGet, "/api/v1/inventory", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.SnapshotListResponse
	decode(t, w, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "TUB-60", list.Data[0].SKUCode)
}

func TestSKUEndpoints(t *testing.T) {
	srv := newTestServer()

	w := srv.do(t, http.MethodPost, "/api/v1/skus", models.CreateSKURequest{
		Code: "VAN-36",
		Name: "36in Vanity",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.SKUResponse
	decode(t, w, &created)
	require.NotNil(t, created.Data)

	w = srv.do(t, http.MethodPost, fmt.Sprintf("/api/v1/skus/%s/receive", created.Data.ID), models.ReceiveStockRequest{
		Count: 3,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var received models.ReceiveStockResponse
	decode(t, w, &received)
	assert.Len(t, received.InstanceIDs, 3)

	// Missing count fails binding.
	w = srv.do(t, http.MethodPost, fmt.Sprintf("/api/v1/skus/%s/receive", created.Data.ID), models.ReceiveStockRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/skus?active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list models.SKUListResponse
	decode(t, w, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "VAN-36", list.Data[0].Code)
}
