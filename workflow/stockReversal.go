package workflow

import (
	"context"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/models"
	"github.com/facturino/books_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReverseMovement appends a compensating movement for an existing ledger row.
// The original row is never altered beyond its reversed-by backlink.
//
// Pricing is asymmetric on purpose. Reversing an inbound movement issues stock
// out at the current average, since the item may have changed cost since the
// receipt. Reversing an outbound movement restores stock at that movement's own
// recorded cost, so exactly the value that left comes back.
func ReverseMovement(ctx context.Context, movementId int, reason string) (*models.StockMovement, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, utils.NewValidationError("company id is required")
	}

	// Pre-lock fetch only resolves the triple for lock ordering; the
	// already-reversed check must not rely on it, another writer may be
	// mid-reversal on a different connection.
	original, err := utils.FetchModel[models.StockMovement](ctx, companyId, movementId)
	if err != nil {
		return nil, err
	}
	if original.ReversedById != nil && *original.ReversedById > 0 {
		return nil, utils.NewValidationError("movement %d is already reversed", original.ID)
	}

	key := stockLockKey(companyId, original.WarehouseId, original.ItemId)
	unlock := lockStockKeys(key)
	defer unlock()

	releaseRedis, err := utils.StockLock(ctx, key, moduleName, "ReverseMovement")
	if err != nil {
		return nil, err
	}
	defer releaseRedis()

	db := config.GetDB()
	var reversal *models.StockMovement
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		if err := AcquireStockPostingLocks(tx, key); err != nil {
			return err
		}
		defer ReleaseStockPostingLocks(tx, key)

		// Re-read under the posting lock. A concurrent reversal that committed
		// between the pre-lock fetch and here is visible now, and the triple is
		// serialized from this point, so exactly one caller can win.
		var current models.StockMovement
		if err := tx.Where("company_id = ?", companyId).
			First(&current, original.ID).Error; err != nil {
			return err
		}
		if current.ReversedById != nil && *current.ReversedById > 0 {
			return utils.NewValidationError("movement %d is already reversed", current.ID)
		}

		spec := movementSpec{
			warehouseId:  current.WarehouseId,
			itemId:       current.ItemId,
			qty:          current.Qty.Neg(),
			sourceType:   current.SourceType,
			sourceId:     current.SourceId,
			movementDate: time.Now().UTC(),
			note:         reason,
			meta:         models.Meta{"reverses_id": current.ID},
			isReversal:   true,
			reversesId:   &current.ID,
		}
		if current.Qty.Sign() < 0 {
			// Inbound reversal of an outbound row: unit cost is the original's own
			// total over quantity, the average in effect when it was posted.
			unitCost := decimal.NewFromInt(current.TotalCost).Div(current.Qty.Abs())
			spec.unitCost = decimal.NullDecimal{Decimal: unitCost, Valid: true}
		}

		var err error
		reversal, err = appendMovement(tx, companyId, spec)
		if err != nil {
			return err
		}

		// Backlink only; the original's quantities and costs stay untouched.
		return tx.Model(&models.StockMovement{}).
			Where("id = ?", current.ID).
			Update("reversed_by_id", reversal.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return reversal, nil
}
