package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/FacetBaths/stock-man-sub005/internal/apperrors"
	"github.com/FacetBaths/stock-man-sub005/internal/models"
	"github.com/FacetBaths/stock-man-sub005/internal/repository"
)

const (
	// SnapshotCacheTTL bounds staleness when an invalidation is lost; the
	// instance rows stay the only source of truth.
	SnapshotCacheTTL = 5 * time.Minute

	snapshotKeyPrefix = "stockman:inventory:snapshot:"
)

// SnapshotService is the read-side aggregator. Every snapshot is recomputed
// from the live instance rows; redis is strictly a read-through cache that
// the write path invalidates per SKU.
type SnapshotService struct {
	repo   repository.LedgerRepositoryInterface
	redis  *redis.Client
	logger *logrus.Entry
}

func NewSnapshotService(repo repository.LedgerRepositoryInterface, redisClient *redis.Client, logger *logrus.Logger) *SnapshotService {
	log := logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SnapshotService{
		repo:   repo,
		redis:  redisClient,
		logger: log.WithField("component", "snapshots"),
	}
}

// Compute returns the aggregate view for one SKU.
func (s *SnapshotService) Compute(ctx context.Context, skuID uuid.UUID) (*models.InventorySnapshot, error) {
	if s.redis != nil {
		val, err := s.redis.Get(ctx, snapshotKeyPrefix+skuID.String()).Result()
		if err == nil {
			var snap models.InventorySnapshot
			if err := json.Unmarshal([]byte(val), &snap); err == nil {
				return &snap, nil
			}
		}
	}

	sku, err := s.repo.GetSKUByID(ctx, skuID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.ErrSKUNotFound
		}
		return nil, err
	}
	return s.computeForSKU(ctx, sku)
}

// ComputeAll returns snapshots for the catalog, paginated like every other
// list endpoint.
func (s *SnapshotService) ComputeAll(ctx context.Context, activeOnly bool, page, limit int) ([]models.InventorySnapshot, int64, error) {
	skus, total, err := s.repo.ListSKUs(ctx, activeOnly, page, limit)
	if err != nil {
		return nil, 0, err
	}

	snapshots := make([]models.InventorySnapshot, 0, len(skus))
	for i := range skus {
		snap, err := s.computeForSKU(ctx, &skus[i])
		if err != nil {
			return nil, 0, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, total, nil
}

// Invalidate drops the cached snapshot for a SKU. Called by every write that
// touches the SKU's instances or thresholds.
func (s *SnapshotService) Invalidate(ctx context.Context, skuID uuid.UUID) {
	if s == nil || s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, snapshotKeyPrefix+skuID.String()).Err(); err != nil {
		s.logger.WithError(err).WithField("skuId", skuID).Warn("Failed to invalidate snapshot cache")
	}
}

func (s *SnapshotService) computeForSKU(ctx context.Context, sku *models.SKU) (*models.InventorySnapshot, error) {
	counts, err := s.repo.SnapshotCounts(ctx, sku.ID)
	if err != nil {
		return nil, err
	}
	snap := buildSnapshot(sku, counts)

	if s.redis != nil {
		if data, err := json.Marshal(snap); err == nil {
			s.redis.Set(ctx, snapshotKeyPrefix+sku.ID.String(), data, SnapshotCacheTTL)
		}
	}
	return snap, nil
}

// buildSnapshot folds the raw counts into the aggregate view. The five
// allocation types map onto four buckets: imperfect units count as broken,
// plain stock holds count as reserved. available plus the three buckets
// always equals total.
func buildSnapshot(sku *models.SKU, counts *repository.SnapshotCounts) *models.InventorySnapshot {
	reserved := counts.ByType[models.AllocationTypeReserved] + counts.ByType[models.AllocationTypeStock]
	broken := counts.ByType[models.AllocationTypeBroken] + counts.ByType[models.AllocationTypeImperfect]
	loaned := counts.ByType[models.AllocationTypeLoaned]
	available := counts.Total - counts.Allocated()

	snap := &models.InventorySnapshot{
		SKUID:             sku.ID,
		SKUCode:           sku.Code,
		TotalQuantity:     counts.Total,
		AvailableQuantity: available,
		ReservedQuantity:  reserved,
		BrokenQuantity:    broken,
		LoanedQuantity:    loaned,
		ComputedAt:        time.Now(),
	}

	snap.IsOutOfStock = available == 0
	// Thresholds at zero mean "not configured" and never trip a flag.
	snap.IsLowStock = sku.UnderstockedThreshold > 0 && available > 0 && available <= sku.UnderstockedThreshold
	snap.IsOverstock = sku.OverstockedThreshold > 0 && counts.Total >= sku.OverstockedThreshold
	snap.NeedsReorder = available <= sku.ReorderPoint
	return snap
}
