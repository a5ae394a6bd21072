// Package selection implements the pure instance-picking policies used by
// the allocation engine. Policies never mutate state; they choose ids from a
// candidate set of currently unallocated instances for one SKU.
package selection

import (
	"sort"

	"github.com/google/uuid"

	"github.com/FacetBaths/stock-man-sub005/internal/apperrors"
	"github.com/FacetBaths/stock-man-sub005/internal/models"
)

// Pick returns exactly quantity instance ids drawn from candidates under the
// given policy. Candidates must already be scoped to one SKU and unallocated.
func Pick(method models.SelectionMethod, candidates []models.Instance, quantity int) ([]uuid.UUID, error) {
	if quantity <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "quantity must be positive, got %d", quantity)
	}
	if len(candidates) < quantity {
		return nil, apperrors.Newf(apperrors.ErrInsufficientStock,
			"requested %d but only %d unallocated instances exist", quantity, len(candidates))
	}

	ordered := make([]models.Instance, len(candidates))
	copy(ordered, candidates)

	switch method {
	case models.SelectionMethodFIFO:
		sort.SliceStable(ordered, func(a, b int) bool {
			return byAcquisition(ordered[a], ordered[b])
		})
	case models.SelectionMethodCostLow:
		sort.SliceStable(ordered, func(a, b int) bool {
			if c := ordered[a].Cost.Cmp(ordered[b].Cost); c != 0 {
				return c < 0
			}
			return byAcquisition(ordered[a], ordered[b])
		})
	case models.SelectionMethodCostHigh:
		sort.SliceStable(ordered, func(a, b int) bool {
			if c := ordered[a].Cost.Cmp(ordered[b].Cost); c != 0 {
				return c > 0
			}
			return byAcquisition(ordered[a], ordered[b])
		})
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "unsupported selection method %q", method)
	}

	ids := make([]uuid.UUID, quantity)
	for i := 0; i < quantity; i++ {
		ids[i] = ordered[i].ID
	}
	return ids, nil
}

// ValidateManual checks a caller-supplied id set against the instances the
// store resolved for those ids. Every id must exist, belong to skuID, and be
// unallocated. Returns the ids in the caller's order.
func ValidateManual(skuID uuid.UUID, requested []uuid.UUID, resolved []models.Instance) ([]uuid.UUID, error) {
	if len(requested) == 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "manual selection requires at least one instance id")
	}

	byID := make(map[uuid.UUID]models.Instance, len(resolved))
	for _, inst := range resolved {
		byID[inst.ID] = inst
	}

	seen := make(map[uuid.UUID]bool, len(requested))
	for _, id := range requested {
		if seen[id] {
			return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "instance %s listed more than once", id)
		}
		seen[id] = true

		inst, ok := byID[id]
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "instance %s does not exist", id)
		}
		if inst.SKUID != skuID {
			return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "instance %s belongs to a different SKU", id)
		}
		if inst.IsAllocated() {
			return nil, apperrors.Newf(apperrors.ErrInvalidSelection, "instance %s is already allocated", id)
		}
	}
	return requested, nil
}

// OldestFirst returns the quantity oldest instances by acquisition date.
// Fulfillment always drains the longest-held stock first regardless of the
// original selection policy.
func OldestFirst(instances []models.Instance, quantity int) []models.Instance {
	ordered := make([]models.Instance, len(instances))
	copy(ordered, instances)
	sort.SliceStable(ordered, func(a, b int) bool {
		return byAcquisition(ordered[a], ordered[b])
	})
	if quantity > len(ordered) {
		quantity = len(ordered)
	}
	return ordered[:quantity]
}

// byAcquisition orders by acquisition date ascending, breaking ties by id so
// repeated runs over the same data pick the same instances.
func byAcquisition(a, b models.Instance) bool {
	if !a.AcquisitionDate.Equal(b.AcquisitionDate) {
		return a.AcquisitionDate.Before(b.AcquisitionDate)
	}
	return a.ID.String() < b.ID.String()
}
