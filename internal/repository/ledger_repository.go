package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/FacetBaths/stock-man-sub005/internal/models"
)

// SnapshotCounts are the raw per-SKU counts the aggregator derives its view
// from. ByType only counts instances whose allocation resolves to an active
// tag; everything else is part of the unallocated pool.
type SnapshotCounts struct {
	Total  int
	ByType map[models.AllocationType]int
}

// Allocated returns the number of instances held by active tags.
func (c *SnapshotCounts) Allocated() int {
	n := 0
	for _, v := range c.ByType {
		n += v
	}
	return n
}

// LedgerRepositoryInterface is the storage contract the ledger services run
// against. The gorm implementation below is the production store; tests use
// an in-memory implementation.
type LedgerRepositoryInterface interface {
	WithTransaction(ctx context.Context, fn func(LedgerRepositoryInterface) error) error

	// SKU catalog
	CreateSKU(ctx context.Context, sku *models.SKU) error
	GetSKUByID(ctx context.Context, id uuid.UUID) (*models.SKU, error)
	ListSKUs(ctx context.Context, activeOnly bool, page, limit int) ([]models.SKU, int64, error)
	UpdateSKU(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteSKU(ctx context.Context, id uuid.UUID) error

	// Instance store
	CreateInstances(ctx context.Context, instances []*models.Instance) error
	ListUnallocated(ctx context.Context, skuID uuid.UUID) ([]models.Instance, error)
	GetInstancesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Instance, error)
	InstancesForItem(ctx context.Context, itemID uuid.UUID) ([]models.Instance, error)
	CountAllocatedForSKU(ctx context.Context, skuID uuid.UUID) (int64, error)
	ClaimInstances(ctx context.Context, ids []uuid.UUID, itemID uuid.UUID) (int64, error)
	ReleaseItemInstances(ctx context.Context, itemID uuid.UUID) (int64, error)
	DeleteInstances(ctx context.Context, ids []uuid.UUID) error

	// Tags
	CreateTag(ctx context.Context, tag *models.Tag) error
	CreateTagItem(ctx context.Context, item *models.TagSKUItem) error
	GetTagByID(ctx context.Context, id uuid.UUID) (*models.Tag, error)
	ListTags(ctx context.Context, status *models.TagStatus, tagType *models.AllocationType, page, limit int) ([]models.Tag, int64, error)
	UpdateTag(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateTagItem(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error

	// Aggregation
	SnapshotCounts(ctx context.Context, skuID uuid.UUID) (*SnapshotCounts, error)
}

// LedgerRepository is the gorm/postgres implementation.
type LedgerRepository struct {
	db *gorm.DB
}

var _ LedgerRepositoryInterface = (*LedgerRepository)(nil)

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithTransaction runs fn against a repository bound to one database
// transaction. Returning an error rolls everything back.
func (r *LedgerRepository) WithTransaction(ctx context.Context, fn func(LedgerRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&LedgerRepository{db: tx})
	})
}

// ========== SKU Catalog Operations ==========

func (r *LedgerRepository) CreateSKU(ctx context.Context, sku *models.SKU) error {
	sku.CreatedAt = time.Now()
	sku.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Create(sku).Error
}

func (r *LedgerRepository) GetSKUByID(ctx context.Context, id uuid.UUID) (*models.SKU, error) {
	var sku models.SKU
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sku).Error
	if err != nil {
		return nil, err
	}
	return &sku, nil
}

func (r *LedgerRepository) ListSKUs(ctx context.Context, activeOnly bool, page, limit int) ([]models.SKU, int64, error) {
	var skus []models.SKU
	var total int64
	query := r.db.WithContext(ctx).Model(&models.SKU{})

	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page > 0 && limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	err := query.Order("code ASC").Find(&skus).Error
	return skus, total, err
}

func (r *LedgerRepository) UpdateSKU(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	return r.db.WithContext(ctx).Model(&models.SKU{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DeleteSKU soft deletes a SKU
func (r *LedgerRepository) DeleteSKU(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.SKU{}).Error
}

// ========== Instance Store Operations ==========

func (r *LedgerRepository) CreateInstances(ctx context.Context, instances []*models.Instance) error {
	now := time.Now()
	for _, inst := range instances {
		inst.CreatedAt = now
		inst.UpdatedAt = now
	}
	return r.db.WithContext(ctx).Create(instances).Error
}

// ListUnallocated returns the unallocated pool for a SKU ordered oldest
// first. Ordering here is only a convenience; policies re-sort on their own.
func (r *LedgerRepository) ListUnallocated(ctx context.Context, skuID uuid.UUID) ([]models.Instance, error) {
	var instances []models.Instance
	err := r.db.WithContext(ctx).
		Where("sku_id = ? AND tag_item_id IS NULL", skuID).
		Order("acquisition_date ASC, id ASC").
		Find(&instances).Error
	return instances, err
}

func (r *LedgerRepository) GetInstancesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Instance, error) {
	var instances []models.Instance
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&instances).Error
	return instances, err
}

func (r *LedgerRepository) InstancesForItem(ctx context.Context, itemID uuid.UUID) ([]models.Instance, error) {
	var instances []models.Instance
	err := r.db.WithContext(ctx).
		Where("tag_item_id = ?", itemID).
		Order("acquisition_date ASC, id ASC").
		Find(&instances).Error
	return instances, err
}

func (r *LedgerRepository) CountAllocatedForSKU(ctx context.Context, skuID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Instance{}).
		Where("sku_id = ? AND tag_item_id IS NOT NULL", skuID).
		Count(&count).Error
	return count, err
}

// ClaimInstances flips the given instances from unallocated to allocated in
// one conditional update. The tag_item_id IS NULL guard makes selection and
// marking indivisible per instance: a row claimed by a concurrent allocator
// is simply not matched, and the caller compares RowsAffected against
// len(ids) to detect the conflict and reselect.
func (r *LedgerRepository) ClaimInstances(ctx context.Context, ids []uuid.UUID, itemID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Instance{}).
		Where("id IN ? AND tag_item_id IS NULL", ids).
		Updates(map[string]interface{}{
			"tag_item_id": itemID,
			"updated_at":  time.Now(),
		})
	return result.RowsAffected, result.Error
}

// ReleaseItemInstances returns every instance held by a tag entry to the
// unallocated pool.
func (r *LedgerRepository) ReleaseItemInstances(ctx context.Context, itemID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Instance{}).
		Where("tag_item_id = ?", itemID).
		Updates(map[string]interface{}{
			"tag_item_id": nil,
			"updated_at":  time.Now(),
		})
	return result.RowsAffected, result.Error
}

// DeleteInstances permanently removes consumed instances. Only fulfillment
// calls this.
func (r *LedgerRepository) DeleteInstances(ctx context.Context, ids []uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Instance{}).Error
}

// ========== Tag Operations ==========

func (r *LedgerRepository) CreateTag(ctx context.Context, tag *models.Tag) error {
	tag.CreatedAt = time.Now()
	tag.UpdatedAt = time.Now()
	if tag.Status == "" {
		tag.Status = models.TagStatusActive
	}
	return r.db.WithContext(ctx).Create(tag).Error
}

func (r *LedgerRepository) CreateTagItem(ctx context.Context, item *models.TagSKUItem) error {
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Create(item).Error
}

// GetTagByID loads a tag with its entries and resolves each entry's
// selected_instance_ids from the instance rows, oldest first.
func (r *LedgerRepository) GetTagByID(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	var tag models.Tag
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Preload("SKUItems").
		First(&tag).Error
	if err != nil {
		return nil, err
	}
	if err := r.resolveItems(ctx, tag.SKUItems); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *LedgerRepository) ListTags(ctx context.Context, status *models.TagStatus, tagType *models.AllocationType, page, limit int) ([]models.Tag, int64, error) {
	var tags []models.Tag
	var total int64
	query := r.db.WithContext(ctx).Model(&models.Tag{})

	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if tagType != nil {
		query = query.Where("tag_type = ?", *tagType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page > 0 && limit > 0 {
		offset := (page - 1) * limit
		query = query.Offset(offset).Limit(limit)
	}

	err := query.Preload("SKUItems").Order("created_at DESC").Find(&tags).Error
	if err != nil {
		return nil, 0, err
	}

	for i := range tags {
		if err := r.resolveItems(ctx, tags[i].SKUItems); err != nil {
			return nil, 0, err
		}
	}
	return tags, total, nil
}

func (r *LedgerRepository) UpdateTag(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	return r.db.WithContext(ctx).Model(&models.Tag{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *LedgerRepository) UpdateTagItem(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	return r.db.WithContext(ctx).Model(&models.TagSKUItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// resolveItems populates SelectedInstanceIDs for a set of tag entries with a
// single instance query.
func (r *LedgerRepository) resolveItems(ctx context.Context, items []models.TagSKUItem) error {
	if len(items) == 0 {
		return nil
	}

	itemIDs := make([]uuid.UUID, len(items))
	for i := range items {
		itemIDs[i] = items[i].ID
		items[i].SelectedInstanceIDs = []uuid.UUID{}
	}

	var instances []models.Instance
	err := r.db.WithContext(ctx).
		Where("tag_item_id IN ?", itemIDs).
		Order("acquisition_date ASC, id ASC").
		Find(&instances).Error
	if err != nil {
		return err
	}

	byItem := make(map[uuid.UUID][]uuid.UUID, len(items))
	for _, inst := range instances {
		byItem[*inst.TagItemID] = append(byItem[*inst.TagItemID], inst.ID)
	}
	for i := range items {
		if ids, ok := byItem[items[i].ID]; ok {
			items[i].SelectedInstanceIDs = ids
		}
	}
	return nil
}

// ========== Aggregation ==========

// SnapshotCounts recomputes the raw counts for one SKU straight from the
// instance rows. Allocations only count toward a bucket while their tag is
// still active.
func (r *LedgerRepository) SnapshotCounts(ctx context.Context, skuID uuid.UUID) (*SnapshotCounts, error) {
	counts := &SnapshotCounts{ByType: make(map[models.AllocationType]int)}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Instance{}).
		Where("sku_id = ?", skuID).
		Count(&total).Error; err != nil {
		return nil, err
	}
	counts.Total = int(total)

	var rows []struct {
		TagType models.AllocationType
		Count   int
	}
	err := r.db.WithContext(ctx).Model(&models.Instance{}).
		Select("tags.tag_type as tag_type, count(*) as count").
		Joins("JOIN tag_sku_items ON tag_sku_items.id = instances.tag_item_id").
		Joins("JOIN tags ON tags.id = tag_sku_items.tag_id").
		Where("instances.sku_id = ? AND tags.status = ?", skuID, models.TagStatusActive).
		Group("tags.tag_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts.ByType[row.TagType] = row.Count
	}
	return counts, nil
}

// IsNotFound reports whether err is the store's record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
