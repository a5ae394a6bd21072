package selection

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FacetBaths/stock-man-sub005/internal/apperrors"
	"github.com/FacetBaths/stock-man-sub005/internal/models"
)

func makeInstance(skuID uuid.UUID, acquired time.Time, cost string) models.Instance {
	return models.Instance{
		ID:              uuid.New(),
		SKUID:           skuID,
		AcquisitionDate: acquired,
		Cost:            decimal.RequireFromString(cost),
	}
}

func TestPickFIFO(t *testing.T) {
	skuID := uuid.New()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	oldest := makeInstance(skuID, base, "10")
	middle := makeInstance(skuID, base.AddDate(0, 0, 5), "10")
	newest := makeInstance(skuID, base.AddDate(0, 0, 9), "10")

	// Candidate order must not matter.
	candidates := []models.Instance{newest, oldest, middle}

	ids, err := Pick(models.SelectionMethodFIFO, candidates, 2)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{oldest.ID, middle.ID}, ids)
}

func TestPickCostLow(t *testing.T) {
	skuID := uuid.New()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	cheap := makeInstance(skuID, base.AddDate(0, 0, 3), "5.50")
	pricey := makeInstance(skuID, base, "20")
	mid := makeInstance(skuID, base.AddDate(0, 0, 1), "9.99")

	ids, err := Pick(models.SelectionMethodCostLow, []models.Instance{pricey, mid, cheap}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{cheap.ID, mid.ID}, ids)
}

func TestPickCostHigh(t *testing.T) {
	skuID := uuid.New()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	cheap := makeInstance(skuID, base, "5.50")
	pricey := makeInstance(skuID, base.AddDate(0, 0, 3), "20")

	ids, err := Pick(models.SelectionMethodCostHigh, []models.Instance{cheap, pricey}, 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{pricey.ID}, ids)
}

func TestPickCostTieBreaksByAcquisition(t *testing.T) {
	skuID := uuid.New()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	older := makeInstance(skuID, base, "10")
	newer := makeInstance(skuID, base.AddDate(0, 0, 2), "10.00")

	ids, err := Pick(models.SelectionMethodCostLow, []models.Instance{newer, older}, 1)
	require.NoError(t, err)
	assert.Equal(t, older.ID, ids[0], "equal cost should fall back to oldest acquisition")

	ids, err = Pick(models.SelectionMethodCostHigh, []models.Instance{newer, older}, 1)
	require.NoError(t, err)
	assert.Equal(t, older.ID, ids[0])
}

func TestPickIsDeterministicOnFullTies(t *testing.T) {
	skuID := uuid.New()
	acquired := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	a := makeInstance(skuID, acquired, "10")
	b := makeInstance(skuID, acquired, "10")

	first, err := Pick(models.SelectionMethodFIFO, []models.Instance{a, b}, 1)
	require.NoError(t, err)
	second, err := Pick(models.SelectionMethodFIFO, []models.Instance{b, a}, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second, "identical candidates should always resolve the same way")
}

func TestPickInsufficientStock(t *testing.T) {
	skuID := uuid.New()
	candidates := []models.Instance{
		makeInstance(skuID, time.Now(), "10"),
	}

	_, err := Pick(models.SelectionMethodFIFO, candidates, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
}

func TestPickRejectsBadInput(t *testing.T) {
	skuID := uuid.New()
	candidates := []models.Instance{makeInstance(skuID, time.Now(), "10")}

	_, err := Pick(models.SelectionMethodFIFO, candidates, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSelection)

	_, err = Pick(models.SelectionMethod("nearest"), candidates, 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSelection)
}

func TestValidateManual(t *testing.T) {
	skuID := uuid.New()
	otherSKU := uuid.New()
	itemID := uuid.New()

	free := makeInstance(skuID, time.Now(), "10")
	foreign := makeInstance(otherSKU, time.Now(), "10")
	held := makeInstance(skuID, time.Now(), "10")
	held.TagItemID = &itemID

	t.Run("valid selection keeps caller order", func(t *testing.T) {
		other := makeInstance(skuID, time.Now(), "10")
		ids, err := ValidateManual(skuID, []uuid.UUID{other.ID, free.ID}, []models.Instance{free, other})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{other.ID, free.ID}, ids)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := ValidateManual(skuID, []uuid.UUID{uuid.New()}, []models.Instance{free})
		assert.ErrorIs(t, err, apperrors.ErrInvalidSelection)
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := ValidateManual(skuID, []uuid.UUID{free.ID, free.ID}, []models.Instance{free})
		assert.ErrorIs(t, err, apperrors.ErrInvalidSelection)
	})

	t.Run("wrong SKU", func(t *testing.T) {
		_, err := ValidateManual(skuID, []uuid.UUID{foreign.ID}, []models.Instance{foreign})
		assert.ErrorIs(t, err, apperrors.ErrInvalidSelection)
	})

	t.Run("already allocated", func(t *testing.T) {
		_, err := ValidateManual(skuID, []uuid.UUID{held.ID}, []models.Instance{held})
		assert.ErrorIs(t, err, apperrors.ErrInvalidSelection)
	})
}

func TestOldestFirst(t *testing.T) {
	skuID := uuid.New()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	oldest := makeInstance(skuID, base, "10")
	newer := makeInstance(skuID, base.AddDate(0, 0, 1), "10")
	newest := makeInstance(skuID, base.AddDate(0, 0, 2), "10")

	chosen := OldestFirst([]models.Instance{newest, oldest, newer}, 2)
	require.Len(t, chosen, 2)
	assert.Equal(t, oldest.ID, chosen[0].ID)
	assert.Equal(t, newer.ID, chosen[1].ID)

	// Asking for more than exists caps at the pool size.
	chosen = OldestFirst([]models.Instance{oldest}, 5)
	assert.Len(t, chosen, 1)
}
