package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/FacetBaths/stock-man-sub005/internal/models"
)

// MemoryLedgerRepository is an in-memory LedgerRepositoryInterface used by
// tests and local development. It mirrors the postgres implementation's
// semantics: soft-deleted SKUs disappear from reads, claims are conditional,
// and transactions roll back on error.
type MemoryLedgerRepository struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryState struct {
	skus      map[uuid.UUID]*models.SKU
	instances map[uuid.UUID]*models.Instance
	tags      map[uuid.UUID]*models.Tag
	items     map[uuid.UUID]*models.TagSKUItem
}

var _ LedgerRepositoryInterface = (*MemoryLedgerRepository)(nil)

func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{state: &memoryState{
		skus:      make(map[uuid.UUID]*models.SKU),
		instances: make(map[uuid.UUID]*models.Instance),
		tags:      make(map[uuid.UUID]*models.Tag),
		items:     make(map[uuid.UUID]*models.TagSKUItem),
	}}
}

// WithTransaction runs fn against a copy of the store and commits the copy
// only when fn succeeds, so a failed round leaves no partial writes behind.
func (r *MemoryLedgerRepository) WithTransaction(ctx context.Context, fn func(LedgerRepositoryInterface) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &MemoryLedgerRepository{state: r.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		skus:      make(map[uuid.UUID]*models.SKU, len(s.skus)),
		instances: make(map[uuid.UUID]*models.Instance, len(s.instances)),
		tags:      make(map[uuid.UUID]*models.Tag, len(s.tags)),
		items:     make(map[uuid.UUID]*models.TagSKUItem, len(s.items)),
	}
	for id, sku := range s.skus {
		cp := *sku
		out.skus[id] = &cp
	}
	for id, inst := range s.instances {
		cp := *inst
		out.instances[id] = &cp
	}
	for id, tag := range s.tags {
		cp := *tag
		cp.SKUItems = nil
		out.tags[id] = &cp
	}
	for id, item := range s.items {
		cp := *item
		cp.SelectedInstanceIDs = nil
		out.items[id] = &cp
	}
	return out
}

// ========== SKU Catalog Operations ==========

func (r *MemoryLedgerRepository) CreateSKU(ctx context.Context, sku *models.SKU) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.state.skus {
		if existing.DeletedAt == nil && existing.Code == sku.Code {
			return fmt.Errorf("duplicate SKU code %q", sku.Code)
		}
	}
	if sku.ID == uuid.Nil {
		sku.ID = uuid.New()
	}
	sku.CreatedAt = time.Now()
	sku.UpdatedAt = time.Now()
	cp := *sku
	r.state.skus[sku.ID] = &cp
	return nil
}

func (r *MemoryLedgerRepository) GetSKUByID(ctx context.Context, id uuid.UUID) (*models.SKU, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sku, ok := r.state.skus[id]
	if !ok || sku.DeletedAt != nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sku
	return &cp, nil
}

func (r *MemoryLedgerRepository) ListSKUs(ctx context.Context, activeOnly bool, page, limit int) ([]models.SKU, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var skus []models.SKU
	for _, sku := range r.state.skus {
		if sku.DeletedAt != nil {
			continue
		}
		if activeOnly && !sku.IsActive {
			continue
		}
		skus = append(skus, *sku)
	}
	sort.Slice(skus, func(a, b int) bool { return skus[a].Code < skus[b].Code })

	total := int64(len(skus))
	skus = paginate(skus, page, limit)
	return skus, total, nil
}

func (r *MemoryLedgerRepository) UpdateSKU(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sku, ok := r.state.skus[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for col, val := range updates {
		switch col {
		case "name":
			sku.Name = val.(string)
		case "description":
			v := val.(string)
			sku.Description = &v
		case "is_active":
			sku.IsActive = val.(bool)
		case "cost":
			sku.Cost = val.(decimal.Decimal)
		case "understocked_threshold":
			sku.UnderstockedThreshold = val.(int)
		case "overstocked_threshold":
			sku.OverstockedThreshold = val.(int)
		case "reorder_point":
			sku.ReorderPoint = val.(int)
		case "updated_at":
			sku.UpdatedAt = val.(time.Time)
		}
	}
	return nil
}

func (r *MemoryLedgerRepository) DeleteSKU(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sku, ok := r.state.skus[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	deleted := gorm.DeletedAt{Time: time.Now(), Valid: true}
	sku.DeletedAt = &deleted
	return nil
}

// ========== Instance Store Operations ==========

func (r *MemoryLedgerRepository) CreateInstances(ctx context.Context, instances []*models.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, inst := range instances {
		if inst.ID == uuid.Nil {
			inst.ID = uuid.New()
		}
		inst.CreatedAt = now
		inst.UpdatedAt = now
		cp := *inst
		r.state.instances[inst.ID] = &cp
	}
	return nil
}

func (r *MemoryLedgerRepository) ListUnallocated(ctx context.Context, skuID uuid.UUID) ([]models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var instances []models.Instance
	for _, inst := range r.state.instances {
		if inst.SKUID == skuID && inst.TagItemID == nil {
			instances = append(instances, *inst)
		}
	}
	sortByAcquisition(instances)
	return instances, nil
}

func (r *MemoryLedgerRepository) GetInstancesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var instances []models.Instance
	for _, id := range ids {
		if inst, ok := r.state.instances[id]; ok {
			instances = append(instances, *inst)
		}
	}
	return instances, nil
}

func (r *MemoryLedgerRepository) InstancesForItem(ctx context.Context, itemID uuid.UUID) ([]models.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instancesForItemLocked(itemID), nil
}

func (r *MemoryLedgerRepository) instancesForItemLocked(itemID uuid.UUID) []models.Instance {
	var instances []models.Instance
	for _, inst := range r.state.instances {
		if inst.TagItemID != nil && *inst.TagItemID == itemID {
			instances = append(instances, *inst)
		}
	}
	sortByAcquisition(instances)
	return instances
}

func (r *MemoryLedgerRepository) CountAllocatedForSKU(ctx context.Context, skuID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, inst := range r.state.instances {
		if inst.SKUID == skuID && inst.TagItemID != nil {
			count++
		}
	}
	return count, nil
}

func (r *MemoryLedgerRepository) ClaimInstances(ctx context.Context, ids []uuid.UUID, itemID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var claimed int64
	for _, id := range ids {
		inst, ok := r.state.instances[id]
		if !ok || inst.TagItemID != nil {
			continue
		}
		ref := itemID
		inst.TagItemID = &ref
		inst.UpdatedAt = time.Now()
		claimed++
	}
	return claimed, nil
}

func (r *MemoryLedgerRepository) ReleaseItemInstances(ctx context.Context, itemID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var released int64
	for _, inst := range r.state.instances {
		if inst.TagItemID != nil && *inst.TagItemID == itemID {
			inst.TagItemID = nil
			inst.UpdatedAt = time.Now()
			released++
		}
	}
	return released, nil
}

func (r *MemoryLedgerRepository) DeleteInstances(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		delete(r.state.instances, id)
	}
	return nil
}

// ========== Tag Operations ==========

func (r *MemoryLedgerRepository) CreateTag(ctx context.Context, tag *models.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tag.ID == uuid.Nil {
		tag.ID = uuid.New()
	}
	if tag.Status == "" {
		tag.Status = models.TagStatusActive
	}
	tag.CreatedAt = time.Now()
	tag.UpdatedAt = time.Now()
	cp := *tag
	cp.SKUItems = nil
	r.state.tags[tag.ID] = &cp
	return nil
}

func (r *MemoryLedgerRepository) CreateTagItem(ctx context.Context, item *models.TagSKUItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()
	cp := *item
	cp.SelectedInstanceIDs = nil
	r.state.items[item.ID] = &cp
	return nil
}

func (r *MemoryLedgerRepository) GetTagByID(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag, ok := r.state.tags[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *tag
	cp.SKUItems = r.itemsForTagLocked(id)
	return &cp, nil
}

func (r *MemoryLedgerRepository) ListTags(ctx context.Context, status *models.TagStatus, tagType *models.AllocationType, page, limit int) ([]models.Tag, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tags []models.Tag
	for _, tag := range r.state.tags {
		if status != nil && tag.Status != *status {
			continue
		}
		if tagType != nil && tag.TagType != *tagType {
			continue
		}
		cp := *tag
		cp.SKUItems = r.itemsForTagLocked(tag.ID)
		tags = append(tags, cp)
	}
	sort.Slice(tags, func(a, b int) bool { return tags[a].CreatedAt.After(tags[b].CreatedAt) })

	total := int64(len(tags))
	tags = paginate(tags, page, limit)
	return tags, total, nil
}

func (r *MemoryLedgerRepository) UpdateTag(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag, ok := r.state.tags[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for col, val := range updates {
		switch col {
		case "status":
			tag.Status = val.(models.TagStatus)
		case "fulfilled_by":
			v := val.(string)
			tag.FulfilledBy = &v
		case "fulfilled_at":
			v := val.(time.Time)
			tag.FulfilledAt = &v
		case "cancel_reason":
			v := val.(string)
			tag.CancelReason = &v
		case "cancelled_at":
			v := val.(time.Time)
			tag.CancelledAt = &v
		case "updated_at":
			tag.UpdatedAt = val.(time.Time)
		}
	}
	return nil
}

func (r *MemoryLedgerRepository) UpdateTagItem(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.state.items[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for col, val := range updates {
		switch col {
		case "audit_instance_ids":
			item.AuditInstanceIDs = val.(*models.JSON)
		case "updated_at":
			item.UpdatedAt = val.(time.Time)
		}
	}
	return nil
}

func (r *MemoryLedgerRepository) itemsForTagLocked(tagID uuid.UUID) []models.TagSKUItem {
	var items []models.TagSKUItem
	for _, item := range r.state.items {
		if item.TagID != tagID {
			continue
		}
		cp := *item
		cp.SelectedInstanceIDs = []uuid.UUID{}
		for _, inst := range r.instancesForItemLocked(item.ID) {
			cp.SelectedInstanceIDs = append(cp.SelectedInstanceIDs, inst.ID)
		}
		items = append(items, cp)
	}
	sort.Slice(items, func(a, b int) bool {
		if !items[a].CreatedAt.Equal(items[b].CreatedAt) {
			return items[a].CreatedAt.Before(items[b].CreatedAt)
		}
		return items[a].ID.String() < items[b].ID.String()
	})
	return items
}

// ========== Aggregation ==========

func (r *MemoryLedgerRepository) SnapshotCounts(ctx context.Context, skuID uuid.UUID) (*SnapshotCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := &SnapshotCounts{ByType: make(map[models.AllocationType]int)}
	for _, inst := range r.state.instances {
		if inst.SKUID != skuID {
			continue
		}
		counts.Total++
		if inst.TagItemID == nil {
			continue
		}
		item, ok := r.state.items[*inst.TagItemID]
		if !ok {
			continue
		}
		tag, ok := r.state.tags[item.TagID]
		if !ok || tag.Status != models.TagStatusActive {
			continue
		}
		counts.ByType[tag.TagType]++
	}
	return counts, nil
}

func sortByAcquisition(instances []models.Instance) {
	sort.Slice(instances, func(a, b int) bool {
		if !instances[a].AcquisitionDate.Equal(instances[b].AcquisitionDate) {
			return instances[a].AcquisitionDate.Before(instances[b].AcquisitionDate)
		}
		return instances[a].ID.String() < instances[b].ID.String()
	})
}

func paginate[T any](items []T, page, limit int) []T {
	if page <= 0 || limit <= 0 {
		return items
	}
	offset := (page - 1) * limit
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
