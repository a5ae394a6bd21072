package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/FacetBaths/stock-man-sub005/internal/apperrors"
	"github.com/FacetBaths/stock-man-sub005/internal/events"
	"github.com/FacetBaths/stock-man-sub005/internal/models"
	"github.com/FacetBaths/stock-man-sub005/internal/repository"
)

// CatalogService owns the SKU catalog and the stock-receipt entry point.
// Receiving is the only way instances enter the ledger, so aggregates stay
// reconcilable with the instance rows.
type CatalogService struct {
	repo      repository.LedgerRepositoryInterface
	snapshots *SnapshotService
	publisher *events.Publisher
	logger    *logrus.Entry
}

func NewCatalogService(repo repository.LedgerRepositoryInterface, snapshots *SnapshotService, publisher *events.Publisher, logger *logrus.Logger) *CatalogService {
	log := logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CatalogService{
		repo:      repo,
		snapshots: snapshots,
		publisher: publisher,
		logger:    log.WithField("component", "catalog"),
	}
}

func (s *CatalogService) CreateSKU(ctx context.Context, req models.CreateSKURequest) (*models.SKU, error) {
	sku := &models.SKU{
		Code:                  req.Code,
		Name:                  req.Name,
		Description:           req.Description,
		IsActive:              true,
		Cost:                  req.Cost,
		UnderstockedThreshold: req.UnderstockedThreshold,
		OverstockedThreshold:  req.OverstockedThreshold,
		ReorderPoint:          req.ReorderPoint,
	}
	if req.IsActive != nil {
		sku.IsActive = *req.IsActive
	}
	if err := s.repo.CreateSKU(ctx, sku); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"skuId": sku.ID, "code": sku.Code}).Info("Created SKU")
	return sku, nil
}

func (s *CatalogService) GetSKU(ctx context.Context, id uuid.UUID) (*models.SKU, error) {
	sku, err := s.repo.GetSKUByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.ErrSKUNotFound
		}
		return nil, err
	}
	return sku, nil
}

func (s *CatalogService) ListSKUs(ctx context.Context, activeOnly bool, page, limit int) ([]models.SKU, int64, error) {
	return s.repo.ListSKUs(ctx, activeOnly, page, limit)
}

func (s *CatalogService) UpdateSKU(ctx context.Context, id uuid.UUID, req models.UpdateSKURequest) (*models.SKU, error) {
	if _, err := s.GetSKU(ctx, id); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Cost != nil {
		updates["cost"] = *req.Cost
	}
	if req.UnderstockedThreshold != nil {
		updates["understocked_threshold"] = *req.UnderstockedThreshold
	}
	if req.OverstockedThreshold != nil {
		updates["overstocked_threshold"] = *req.OverstockedThreshold
	}
	if req.ReorderPoint != nil {
		updates["reorder_point"] = *req.ReorderPoint
	}
	if len(updates) > 0 {
		if err := s.repo.UpdateSKU(ctx, id, updates); err != nil {
			return nil, err
		}
		// Threshold changes move the derived flags.
		s.snapshots.Invalidate(ctx, id)
	}
	return s.GetSKU(ctx, id)
}

// ArchiveSKU soft deletes a SKU. Refused while any of its instances is still
// allocated, since active tags would keep referencing it.
func (s *CatalogService) ArchiveSKU(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetSKU(ctx, id); err != nil {
		return err
	}
	allocated, err := s.repo.CountAllocatedForSKU(ctx, id)
	if err != nil {
		return err
	}
	if allocated > 0 {
		return apperrors.Newf(apperrors.ErrSKUInUse,
			"SKU has %d allocated instances", allocated)
	}
	if err := s.repo.DeleteSKU(ctx, id); err != nil {
		return err
	}
	s.snapshots.Invalidate(ctx, id)
	s.logger.WithField("skuId", id).Info("Archived SKU")
	return nil
}

// ReceiveStock creates count new instances for a SKU and returns their ids.
// Cost defaults to the SKU's unit cost, acquisition date to now.
func (s *CatalogService) ReceiveStock(ctx context.Context, skuID uuid.UUID, req models.ReceiveStockRequest) ([]uuid.UUID, error) {
	sku, err := s.GetSKU(ctx, skuID)
	if err != nil {
		return nil, err
	}
	if !sku.IsActive {
		return nil, apperrors.Newf(apperrors.ErrSKUInactive, "cannot receive stock for inactive SKU %s", sku.Code)
	}

	cost := sku.Cost
	if req.Cost != nil {
		cost = *req.Cost
	}
	acquired := time.Now()
	if req.AcquisitionDate != nil {
		acquired = *req.AcquisitionDate
	}

	instances := make([]*models.Instance, req.Count)
	for i := range instances {
		instances[i] = &models.Instance{
			SKUID:           sku.ID,
			AcquisitionDate: acquired,
			Cost:            cost,
			Location:        req.Location,
			Supplier:        req.Supplier,
			Notes:           req.Notes,
		}
	}
	if err := s.repo.CreateInstances(ctx, instances); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}

	s.snapshots.Invalidate(ctx, sku.ID)
	if s.publisher != nil {
		if err := s.publisher.StockReceived(ctx, sku.ID, sku.Code, len(ids)); err != nil {
			s.logger.WithError(err).Warn("Failed to publish stock received event")
		}
	}
	s.logger.WithFields(logrus.Fields{
		"skuId": sku.ID,
		"count": len(ids),
	}).Info("Received stock")
	return ids, nil
}
