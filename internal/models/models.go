package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// JSON type for PostgreSQL JSONB
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// AllocationType is the semantic bucket a tag represents. It decides which
// aggregate counter the tag's instances contribute to.
type AllocationType string

const (
	AllocationTypeReserved  AllocationType = "reserved"
	AllocationTypeBroken    AllocationType = "broken"
	AllocationTypeImperfect AllocationType = "imperfect"
	AllocationTypeLoaned    AllocationType = "loaned"
	AllocationTypeStock     AllocationType = "stock"
)

// Valid reports whether t is one of the closed set of allocation types.
func (t AllocationType) Valid() bool {
	switch t {
	case AllocationTypeReserved, AllocationTypeBroken, AllocationTypeImperfect,
		AllocationTypeLoaned, AllocationTypeStock:
		return true
	}
	return false
}

// TagStatus represents the lifecycle state of a tag
type TagStatus string

const (
	TagStatusActive    TagStatus = "active"
	TagStatusFulfilled TagStatus = "fulfilled"
	TagStatusCancelled TagStatus = "cancelled"
)

// SelectionMethod represents how instances are picked for an allocation
type SelectionMethod string

const (
	SelectionMethodFIFO     SelectionMethod = "fifo"
	SelectionMethodCostLow  SelectionMethod = "cost_low"
	SelectionMethodCostHigh SelectionMethod = "cost_high"
	SelectionMethodManual   SelectionMethod = "manual"
)

// Valid reports whether m is one of the closed set of selection methods.
func (m SelectionMethod) Valid() bool {
	switch m {
	case SelectionMethodFIFO, SelectionMethodCostLow, SelectionMethodCostHigh,
		SelectionMethodManual:
		return true
	}
	return false
}

// SKU is a catalogued product definition, not a physical unit.
// The ledger treats it as read-only reference data; the catalog handlers own
// its lifecycle.
type SKU struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Code        string    `json:"code" gorm:"type:varchar(50);not null;uniqueIndex"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	Description *string   `json:"description,omitempty" gorm:"type:text"`
	IsActive    bool      `json:"is_active" gorm:"not null;default:true"`

	Cost decimal.Decimal `json:"cost" gorm:"type:decimal(20,4);not null;default:0"`

	// Stock thresholds driving the derived snapshot flags
	UnderstockedThreshold int `json:"understocked_threshold" gorm:"not null;default:0"`
	OverstockedThreshold  int `json:"overstocked_threshold" gorm:"not null;default:0"`
	ReorderPoint          int `json:"reorder_point" gorm:"not null;default:0"`

	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// Instance is one physical, individually tracked unit of a SKU.
// TagItemID is the allocation reference: nil means the instance sits in the
// unallocated pool. Instances are only ever deleted by fulfillment.
type Instance struct {
	ID    uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SKUID uuid.UUID `json:"sku_id" gorm:"type:uuid;not null;index"`

	TagItemID *uuid.UUID `json:"tag_item_id,omitempty" gorm:"type:uuid;index"`

	AcquisitionDate time.Time       `json:"acquisition_date" gorm:"not null;index"`
	Cost            decimal.Decimal `json:"cost" gorm:"type:decimal(20,4);not null;default:0"`

	Location *string `json:"location,omitempty" gorm:"type:varchar(255)"`
	Supplier *string `json:"supplier,omitempty" gorm:"type:varchar(255)"`
	Notes    *string `json:"notes,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAllocated reports whether the instance is currently held by a tag entry.
func (i *Instance) IsAllocated() bool {
	return i.TagItemID != nil
}

// Tag is an allocation record grouping instances under a customer/project
// label and an allocation type.
type Tag struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CustomerName string         `json:"customer_name" gorm:"type:varchar(255);not null"`
	TagType      AllocationType `json:"tag_type" gorm:"type:varchar(20);not null;index"`
	Status       TagStatus      `json:"status" gorm:"type:varchar(20);not null;default:'active';index"`

	DueDate *time.Time `json:"due_date,omitempty"`
	Notes   *string    `json:"notes,omitempty" gorm:"type:text"`

	FulfilledBy  *string    `json:"fulfilled_by,omitempty" gorm:"type:varchar(255)"`
	FulfilledAt  *time.Time `json:"fulfilled_at,omitempty"`
	CancelReason *string    `json:"cancel_reason,omitempty" gorm:"type:text"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SKUItems []TagSKUItem `json:"sku_items" gorm:"foreignKey:TagID"`
}

// TagSKUItem is one SKU entry on a tag. The allocated set is derived from the
// instance rows that point at the entry; quantity is always the length of
// that set and is never stored.
type TagSKUItem struct {
	ID    uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TagID uuid.UUID `json:"tag_id" gorm:"type:uuid;not null;index"`
	SKUID uuid.UUID `json:"sku_id" gorm:"type:uuid;not null;index"`

	SelectionMethod SelectionMethod `json:"selection_method" gorm:"type:varchar(20);not null"`

	// Audit snapshot of the ids held at cancellation. Never used for
	// quantity math; the live set is always derived from instance rows.
	AuditInstanceIDs *JSON `json:"audit_instance_ids,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Resolved from instance rows, ordered by acquisition date ascending.
	SelectedInstanceIDs []uuid.UUID `json:"selected_instance_ids" gorm:"-"`
}

// Quantity is the apparent size of the entry, derived from the allocated set.
func (i *TagSKUItem) Quantity() int {
	return len(i.SelectedInstanceIDs)
}

// MarshalJSON emits quantity as a computed field so the wire shape never
// carries an independently-settable count.
func (i TagSKUItem) MarshalJSON() ([]byte, error) {
	type alias TagSKUItem
	return json.Marshal(struct {
		alias
		Quantity int `json:"quantity"`
	}{
		alias:    alias(i),
		Quantity: len(i.SelectedInstanceIDs),
	})
}

// InventorySnapshot is the derived per-SKU aggregate view. It is recomputed
// from instance rows and cached, never maintained as a counter of record.
type InventorySnapshot struct {
	SKUID   uuid.UUID `json:"sku_id"`
	SKUCode string    `json:"sku_code"`

	TotalQuantity     int `json:"total_quantity"`
	AvailableQuantity int `json:"available_quantity"`
	ReservedQuantity  int `json:"reserved_quantity"`
	BrokenQuantity    int `json:"broken_quantity"`
	LoanedQuantity    int `json:"loaned_quantity"`

	IsLowStock   bool `json:"is_low_stock"`
	IsOutOfStock bool `json:"is_out_of_stock"`
	IsOverstock  bool `json:"is_overstock"`
	NeedsReorder bool `json:"needs_reorder"`

	ComputedAt time.Time `json:"computed_at"`
}

// TableName implementations
func (SKU) TableName() string {
	return "skus"
}

func (Instance) TableName() string {
	return "instances"
}

func (Tag) TableName() string {
	return "tags"
}

func (TagSKUItem) TableName() string {
	return "tag_sku_items"
}

// Request models

type AllocateRequest struct {
	SKUID    uuid.UUID `json:"sku_id" binding:"required"`
	Quantity int       `json:"quantity" binding:"omitempty,gt=0"`

	SelectedInstanceIDs []uuid.UUID     `json:"selected_instance_ids,omitempty"`
	SelectionMethod     SelectionMethod `json:"selection_method" binding:"required"`
	AllocationType      AllocationType  `json:"allocation_type" binding:"required"`

	// TagID extends an existing active tag instead of creating a new one.
	TagID        *uuid.UUID `json:"tag_id,omitempty"`
	CustomerName string     `json:"customer_name"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

type FulfillmentLine struct {
	SKUID             uuid.UUID `json:"sku_id" binding:"required"`
	QuantityFulfilled int       `json:"quantity_fulfilled" binding:"required,gt=0"`
}

type FulfillRequest struct {
	Fulfillments []FulfillmentLine `json:"fulfillments" binding:"required,min=1"`
	FulfilledBy  *string           `json:"fulfilled_by,omitempty"`
}

type FulfillmentFailure struct {
	SKUID   uuid.UUID `json:"sku_id"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// FulfillmentResult reports per-line outcomes. The operation is all-or-
// nothing per call: Failed is only populated when nothing was applied.
type FulfillmentResult struct {
	Fulfilled        []FulfillmentLine    `json:"fulfilled"`
	Failed           []FulfillmentFailure `json:"failed"`
	InstancesRemoved []uuid.UUID          `json:"instances_removed"`
	TagStatus        TagStatus            `json:"tag_status"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"required,min=1"`
}

type CreateSKURequest struct {
	Code        string  `json:"code" binding:"required,min=1,max=50"`
	Name        string  `json:"name" binding:"required,min=1,max=255"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`

	Cost                  decimal.Decimal `json:"cost"`
	UnderstockedThreshold int             `json:"understocked_threshold" binding:"gte=0"`
	OverstockedThreshold  int             `json:"overstocked_threshold" binding:"gte=0"`
	ReorderPoint          int             `json:"reorder_point" binding:"gte=0"`
}

type UpdateSKURequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`

	Cost                  *decimal.Decimal `json:"cost,omitempty"`
	UnderstockedThreshold *int             `json:"understocked_threshold,omitempty"`
	OverstockedThreshold  *int             `json:"overstocked_threshold,omitempty"`
	ReorderPoint          *int             `json:"reorder_point,omitempty"`
}

type ReceiveStockRequest struct {
	Count           int              `json:"count" binding:"required,gt=0"`
	Cost            *decimal.Decimal `json:"cost,omitempty"`
	AcquisitionDate *time.Time       `json:"acquisition_date,omitempty"`
	Location        *string          `json:"location,omitempty"`
	Supplier        *string          `json:"supplier,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
}

// Response models

type TagResponse struct {
	Success bool    `json:"success"`
	Data    *Tag    `json:"data,omitempty"`
	Message *string `json:"message,omitempty"`
}

type TagListResponse struct {
	Success    bool            `json:"success"`
	Data       []Tag           `json:"data"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

type FulfillmentResponse struct {
	Success bool               `json:"success"`
	Data    *FulfillmentResult `json:"data,omitempty"`
	Message *string            `json:"message,omitempty"`
}

type SKUResponse struct {
	Success bool    `json:"success"`
	Data    *SKU    `json:"data,omitempty"`
	Message *string `json:"message,omitempty"`
}

type SKUListResponse struct {
	Success    bool            `json:"success"`
	Data       []SKU           `json:"data"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

type ReceiveStockResponse struct {
	Success     bool        `json:"success"`
	InstanceIDs []uuid.UUID `json:"instance_ids"`
	Message     *string     `json:"message,omitempty"`
}

type SnapshotResponse struct {
	Success bool               `json:"success"`
	Data    *InventorySnapshot `json:"data,omitempty"`
}

type SnapshotListResponse struct {
	Success    bool                `json:"success"`
	Data       []InventorySnapshot `json:"data"`
	Pagination *PaginationMeta     `json:"pagination,omitempty"`
}

type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}

// PaginationMeta represents pagination metadata
type PaginationMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}
