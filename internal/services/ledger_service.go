package services

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/FacetBaths/stock-man-sub005/internal/apperrors"
	"github.com/FacetBaths/stock-man-sub005/internal/events"
	"github.com/FacetBaths/stock-man-sub005/internal/models"
	"github.com/FacetBaths/stock-man-sub005/internal/repository"
	"github.com/FacetBaths/stock-man-sub005/internal/selection"
)

const (
	// allocationLockTTL bounds how long one allocator can hold a SKU.
	allocationLockTTL = 30 * time.Second

	// maxClaimAttempts caps retry-with-reselection when a concurrent
	// allocator steals candidates between selection and claim.
	maxClaimAttempts = 3
)

// LedgerService implements the allocation, fulfillment, and cancellation
// engines. It is the only writer of instance/tag state; the aggregate view
// is invalidated after every successful write.
type LedgerService struct {
	repo      repository.LedgerRepositoryInterface
	snapshots *SnapshotService
	publisher *events.Publisher
	locker    *redislock.Client
	logger    *logrus.Entry
}

func NewLedgerService(repo repository.LedgerRepositoryInterface, snapshots *SnapshotService, publisher *events.Publisher, locker *redislock.Client, logger *logrus.Logger) *LedgerService {
	log := logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LedgerService{
		repo:      repo,
		snapshots: snapshots,
		publisher: publisher,
		locker:    locker,
		logger:    log.WithField("component", "ledger"),
	}
}

// Allocate validates availability and creates or extends a tag. Either all
// requested instances end up allocated to one entry, or nothing changes.
func (s *LedgerService) Allocate(ctx context.Context, req models.AllocateRequest) (*models.Tag, error) {
	if !req.AllocationType.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "unknown allocation type %q", req.AllocationType)
	}
	if !req.SelectionMethod.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "unknown selection method %q", req.SelectionMethod)
	}
	manual := req.SelectionMethod == models.SelectionMethodManual
	if manual && len(req.SelectedInstanceIDs) == 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "manual selection requires selected_instance_ids")
	}
	if !manual && req.Quantity <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "quantity must be positive")
	}
	if req.TagID == nil && req.CustomerName == "" {
		return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "customer_name is required for a new tag")
	}

	sku, err := s.repo.GetSKUByID(ctx, req.SKUID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.ErrSKUNotFound
		}
		return nil, err
	}
	if !sku.IsActive {
		return nil, apperrors.Newf(apperrors.ErrSKUInactive, "SKU %s is not active", sku.Code)
	}

	// Serialize allocators for this SKU when redis is available. The
	// conditional claim below stays the correctness backstop either way.
	release, err := s.lockSKU(ctx, sku.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	var tagID uuid.UUID
	var allocated int
	for attempt := 1; ; attempt++ {
		tagID, allocated, err = s.allocateOnce(ctx, sku, req, manual)
		if err == nil {
			break
		}
		if errors.Is(err, apperrors.ErrAllocationRace) && !manual && attempt < maxClaimAttempts {
			s.logger.WithFields(logrus.Fields{
				"skuId":   sku.ID,
				"attempt": attempt,
			}).Warn("Allocation claim conflict, reselecting")
			continue
		}
		return nil, err
	}

	s.snapshots.Invalidate(ctx, sku.ID)
	tag, err := s.GetTag(ctx, tagID)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.TagAllocated(ctx, tag, sku.ID, allocated); err != nil {
			s.logger.WithError(err).Warn("Failed to publish tag allocated event")
		}
	}
	s.notifyStockState(ctx, sku.ID)

	s.logger.WithFields(logrus.Fields{
		"tagId":    tag.ID,
		"skuId":    sku.ID,
		"quantity": allocated,
		"method":   req.SelectionMethod,
		"tagType":  req.AllocationType,
	}).Info("Allocated instances to tag")
	return tag, nil
}

// allocateOnce runs one select-and-claim round inside a transaction. A claim
// shortfall rolls the whole round back and surfaces as ErrAllocationRace.
func (s *LedgerService) allocateOnce(ctx context.Context, sku *models.SKU, req models.AllocateRequest, manual bool) (uuid.UUID, int, error) {
	var tagID uuid.UUID
	var allocated int

	err := s.repo.WithTransaction(ctx, func(tx repository.LedgerRepositoryInterface) error {
		var tag *models.Tag
		if req.TagID != nil {
			existing, err := tx.GetTagByID(ctx, *req.TagID)
			if err != nil {
				if repository.IsNotFound(err) {
					return apperrors.ErrTagNotFound
				}
				return err
			}
			if existing.Status != models.TagStatusActive {
				return apperrors.Newf(apperrors.ErrInvalidTagState,
					"cannot allocate onto a %s tag", existing.Status)
			}
			tag = existing
		} else {
			tag = &models.Tag{
				CustomerName: req.CustomerName,
				TagType:      req.AllocationType,
				Status:       models.TagStatusActive,
				DueDate:      req.DueDate,
				Notes:        req.Notes,
			}
			if err := tx.CreateTag(ctx, tag); err != nil {
				return err
			}
		}
		tagID = tag.ID

		var ids []uuid.UUID
		var err error
		if manual {
			resolved, rerr := tx.GetInstancesByIDs(ctx, req.SelectedInstanceIDs)
			if rerr != nil {
				return rerr
			}
			ids, err = selection.ValidateManual(sku.ID, req.SelectedInstanceIDs, resolved)
		} else {
			candidates, lerr := tx.ListUnallocated(ctx, sku.ID)
			if lerr != nil {
				return lerr
			}
			ids, err = selection.Pick(req.SelectionMethod, candidates, req.Quantity)
		}
		if err != nil {
			return err
		}

		item, err := s.entryFor(ctx, tx, tag, sku.ID, req.SelectionMethod)
		if err != nil {
			return err
		}

		claimed, err := tx.ClaimInstances(ctx, ids, item.ID)
		if err != nil {
			return err
		}
		if claimed != int64(len(ids)) {
			if manual {
				return apperrors.Newf(apperrors.ErrInvalidSelection,
					"a selected instance was allocated concurrently")
			}
			return apperrors.ErrAllocationRace
		}
		allocated = len(ids)
		return nil
	})
	return tagID, allocated, err
}

// entryFor reuses the tag's entry for a SKU when the selection method
// matches, otherwise appends a new one.
func (s *LedgerService) entryFor(ctx context.Context, tx repository.LedgerRepositoryInterface, tag *models.Tag, skuID uuid.UUID, method models.SelectionMethod) (*models.TagSKUItem, error) {
	for i := range tag.SKUItems {
		if tag.SKUItems[i].SKUID == skuID && tag.SKUItems[i].SelectionMethod == method {
			return &tag.SKUItems[i], nil
		}
	}
	item := &models.TagSKUItem{
		TagID:           tag.ID,
		SKUID:           skuID,
		SelectionMethod: method,
	}
	if err := tx.CreateTagItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Fulfill consumes allocated instances from a tag, oldest first. All lines
// are validated before anything is deleted; when any line fails, the result
// reports every failing line and no state changes.
func (s *LedgerService) Fulfill(ctx context.Context, tagID uuid.UUID, req models.FulfillRequest) (*models.FulfillmentResult, error) {
	result := &models.FulfillmentResult{
		Fulfilled:        []models.FulfillmentLine{},
		Failed:           []models.FulfillmentFailure{},
		InstancesRemoved: []uuid.UUID{},
	}
	touchedSKUs := make(map[uuid.UUID]bool)

	err := s.repo.WithTransaction(ctx, func(tx repository.LedgerRepositoryInterface) error {
		tag, err := tx.GetTagByID(ctx, tagID)
		if err != nil {
			if repository.IsNotFound(err) {
				return apperrors.ErrTagNotFound
			}
			return err
		}
		if tag.Status != models.TagStatusActive {
			return apperrors.Newf(apperrors.ErrInvalidTagState,
				"cannot fulfill a %s tag", tag.Status)
		}

		// A SKU can appear in more than one entry (different selection
		// methods); fulfillment drains the union oldest-first.
		bySKU := make(map[uuid.UUID][]models.Instance)
		remainingPerItem := make(map[uuid.UUID]int)
		for _, item := range tag.SKUItems {
			instances, err := tx.InstancesForItem(ctx, item.ID)
			if err != nil {
				return err
			}
			bySKU[item.SKUID] = append(bySKU[item.SKUID], instances...)
			remainingPerItem[item.ID] = len(instances)
		}

		// Validation pass over every line before any deletion.
		pool := make(map[uuid.UUID][]models.Instance, len(bySKU))
		for skuID, instances := range bySKU {
			pool[skuID] = instances
		}
		var toDelete []models.Instance
		for _, line := range req.Fulfillments {
			instances, ok := pool[line.SKUID]
			if !ok {
				result.Failed = append(result.Failed, models.FulfillmentFailure{
					SKUID:   line.SKUID,
					Code:    apperrors.ErrNotAllocated.Code,
					Message: "SKU is not allocated on this tag",
				})
				continue
			}
			if line.QuantityFulfilled > len(instances) {
				result.Failed = append(result.Failed, models.FulfillmentFailure{
					SKUID:   line.SKUID,
					Code:    apperrors.ErrOverFulfillment.Code,
					Message: "requested quantity exceeds remaining allocation",
				})
				continue
			}
			chosen := selection.OldestFirst(instances, line.QuantityFulfilled)
			toDelete = append(toDelete, chosen...)
			pool[line.SKUID] = subtract(instances, chosen)
			result.Fulfilled = append(result.Fulfilled, line)
		}

		if len(result.Failed) > 0 {
			// All-or-nothing at the call granularity: report the
			// failures, apply nothing.
			result.Fulfilled = result.Fulfilled[:0]
			result.TagStatus = tag.Status
			return nil
		}

		ids := make([]uuid.UUID, len(toDelete))
		for i, inst := range toDelete {
			ids[i] = inst.ID
			touchedSKUs[inst.SKUID] = true
			if inst.TagItemID != nil {
				remainingPerItem[*inst.TagItemID]--
			}
		}
		if err := tx.DeleteInstances(ctx, ids); err != nil {
			return err
		}
		result.InstancesRemoved = ids

		remaining := 0
		for _, n := range remainingPerItem {
			remaining += n
		}
		result.TagStatus = models.TagStatusActive
		if remaining == 0 {
			updates := map[string]interface{}{
				"status":       models.TagStatusFulfilled,
				"fulfilled_at": time.Now(),
			}
			if req.FulfilledBy != nil {
				updates["fulfilled_by"] = *req.FulfilledBy
			}
			if err := tx.UpdateTag(ctx, tag.ID, updates); err != nil {
				return err
			}
			result.TagStatus = models.TagStatusFulfilled
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for skuID := range touchedSKUs {
		s.snapshots.Invalidate(ctx, skuID)
	}

	if len(result.InstancesRemoved) > 0 {
		if s.publisher != nil {
			if err := s.publisher.TagFulfilled(ctx, tagID, result); err != nil {
				s.logger.WithError(err).Warn("Failed to publish tag fulfilled event")
			}
		}
		for skuID := range touchedSKUs {
			s.notifyStockState(ctx, skuID)
		}
		s.logger.WithFields(logrus.Fields{
			"tagId":     tagID,
			"removed":   len(result.InstancesRemoved),
			"tagStatus": result.TagStatus,
		}).Info("Fulfilled tag lines")
	}
	return result, nil
}

// Cancel releases every allocated instance back to the unallocated pool and
// marks the tag cancelled. Instances are never deleted on cancellation; the
// entries keep an audit snapshot of the ids they held.
func (s *LedgerService) Cancel(ctx context.Context, tagID uuid.UUID, reason string) (*models.Tag, error) {
	touchedSKUs := make(map[uuid.UUID]bool)

	err := s.repo.WithTransaction(ctx, func(tx repository.LedgerRepositoryInterface) error {
		tag, err := tx.GetTagByID(ctx, tagID)
		if err != nil {
			if repository.IsNotFound(err) {
				return apperrors.ErrTagNotFound
			}
			return err
		}
		if tag.Status != models.TagStatusActive {
			return apperrors.Newf(apperrors.ErrInvalidTagState,
				"cannot cancel a %s tag", tag.Status)
		}

		for _, item := range tag.SKUItems {
			held := make([]string, len(item.SelectedInstanceIDs))
			for i, id := range item.SelectedInstanceIDs {
				held[i] = id.String()
			}
			audit := models.JSON{"instance_ids": held}
			if err := tx.UpdateTagItem(ctx, item.ID, map[string]interface{}{
				"audit_instance_ids": &audit,
			}); err != nil {
				return err
			}
			if _, err := tx.ReleaseItemInstances(ctx, item.ID); err != nil {
				return err
			}
			touchedSKUs[item.SKUID] = true
		}

		return tx.UpdateTag(ctx, tag.ID, map[string]interface{}{
			"status":        models.TagStatusCancelled,
			"cancel_reason": reason,
			"cancelled_at":  time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	for skuID := range touchedSKUs {
		s.snapshots.Invalidate(ctx, skuID)
	}

	tag, err := s.GetTag(ctx, tagID)
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		if err := s.publisher.TagCancelled(ctx, tag, reason); err != nil {
			s.logger.WithError(err).Warn("Failed to publish tag cancelled event")
		}
	}
	s.logger.WithFields(logrus.Fields{
		"tagId":  tagID,
		"reason": reason,
	}).Info("Cancelled tag")
	return tag, nil
}

// GetTag returns a tag with resolved entries.
func (s *LedgerService) GetTag(ctx context.Context, tagID uuid.UUID) (*models.Tag, error) {
	tag, err := s.repo.GetTagByID(ctx, tagID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.ErrTagNotFound
		}
		return nil, err
	}
	return tag, nil
}

// ListTags returns tags filtered by status and type.
func (s *LedgerService) ListTags(ctx context.Context, status *models.TagStatus, tagType *models.AllocationType, page, limit int) ([]models.Tag, int64, error) {
	return s.repo.ListTags(ctx, status, tagType, page, limit)
}

func (s *LedgerService) lockSKU(ctx context.Context, skuID uuid.UUID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lock, err := s.locker.Obtain(ctx, "stockman:allocate:"+skuID.String(), allocationLockTTL, nil)
	if err == redislock.ErrNotObtained {
		return nil, apperrors.Newf(apperrors.ErrAllocationRace,
			"another allocation for this SKU is in progress")
	}
	if err != nil {
		// Redis trouble must not block allocation; the conditional claim
		// still guarantees correctness.
		s.logger.WithError(err).Warn("Failed to obtain allocation lock, continuing without it")
		return func() {}, nil
	}
	return func() { _ = lock.Release(ctx) }, nil
}

// notifyStockState publishes a low/out-of-stock event when a write left the
// SKU at or below its thresholds.
func (s *LedgerService) notifyStockState(ctx context.Context, skuID uuid.UUID) {
	if s.publisher == nil || s.snapshots == nil {
		return
	}
	snap, err := s.snapshots.Compute(ctx, skuID)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to compute snapshot for stock alert")
		return
	}
	if snap.IsOutOfStock || snap.IsLowStock {
		if err := s.publisher.LowStock(ctx, snap); err != nil {
			s.logger.WithError(err).Warn("Failed to publish low stock event")
		}
	}
}

// subtract removes the chosen instances from a slice by id.
func subtract(instances, chosen []models.Instance) []models.Instance {
	drop := make(map[uuid.UUID]bool, len(chosen))
	for _, inst := range chosen {
		drop[inst.ID] = true
	}
	out := instances[:0:0]
	for _, inst := range instances {
		if !drop[inst.ID] {
			out = append(out, inst)
		}
	}
	return out
}
