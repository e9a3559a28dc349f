package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/models"
	"github.com/facturino/books_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StockTransferInput struct {
	FromWarehouseId int             `json:"from_warehouse_id" binding:"required"`
	ToWarehouseId   int             `json:"to_warehouse_id" binding:"required"`
	ItemId          int             `json:"item_id" binding:"required"`
	Qty             decimal.Decimal `json:"qty" binding:"required"`
	MovementDate    time.Time       `json:"movement_date"`
	Note            string          `json:"note"`
}

type StockTransferResult struct {
	Out *models.StockMovement `json:"out"`
	In  *models.StockMovement `json:"in"`
}

func (input *StockTransferInput) validate() error {
	if input.FromWarehouseId == input.ToWarehouseId {
		return utils.NewValidationError("source and destination warehouse must differ")
	}
	if input.Qty.Sign() <= 0 {
		return utils.NewValidationError("transfer qty must be positive")
	}
	return nil
}

// TransferStock atomically moves quantity between two warehouses. The source's
// average cost is captured once, before any write, and the inbound side is priced
// with that same captured value, so total recorded value across warehouses is
// conserved exactly. Either both movements exist or neither does.
func TransferStock(ctx context.Context, input *StockTransferInput) (*StockTransferResult, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, utils.NewValidationError("company id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[models.Warehouse](ctx, companyId, input.FromWarehouseId); err != nil {
		return nil, utils.NewValidationError("source warehouse not found")
	}
	if err := utils.ValidateResourceId[models.Warehouse](ctx, companyId, input.ToWarehouseId); err != nil {
		return nil, utils.NewValidationError("destination warehouse not found")
	}

	item, err := models.GetItem(ctx, companyId, input.ItemId)
	if err != nil {
		return nil, err
	}
	if !item.IsTrackable() {
		return nil, utils.ErrItemNotTrackable
	}

	movementDate := input.MovementDate
	if movementDate.IsZero() {
		movementDate = time.Now().UTC()
	}

	// Both triples are locked for the whole posting, in sorted key order so two
	// opposite-direction transfers cannot deadlock.
	outKey := stockLockKey(companyId, input.FromWarehouseId, input.ItemId)
	inKey := stockLockKey(companyId, input.ToWarehouseId, input.ItemId)
	keys := []string{outKey, inKey}
	sort.Strings(keys)

	unlock := lockStockKeys(keys...)
	defer unlock()

	for _, key := range keys {
		releaseRedis, err := utils.StockLock(ctx, key, moduleName, "TransferStock")
		if err != nil {
			return nil, err
		}
		defer releaseRedis()
	}

	db := config.GetDB()
	var result StockTransferResult
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		if err := AcquireStockPostingLocks(tx, keys...); err != nil {
			return err
		}
		defer ReleaseStockPostingLocks(tx, keys...)

		source, err := models.FirstOrCreateStockBalance(tx, companyId, input.FromWarehouseId, input.ItemId)
		if err != nil {
			return err
		}
		if source.Quantity.LessThan(input.Qty) {
			return &utils.InsufficientStockError{
				Available: source.Quantity,
				Requested: input.Qty,
			}
		}

		// Captured once; both sides round the same qty x wac expression.
		wac := models.ExactWac(source.Quantity, source.Value)

		out, err := appendMovement(tx, companyId, movementSpec{
			warehouseId:  input.FromWarehouseId,
			itemId:       input.ItemId,
			qty:          input.Qty.Neg(),
			sourceType:   models.StockSourceTransferOut,
			movementDate: movementDate,
			note:         input.Note,
		})
		if err != nil {
			return err
		}

		in, err := appendMovement(tx, companyId, movementSpec{
			warehouseId:  input.ToWarehouseId,
			itemId:       input.ItemId,
			qty:          input.Qty,
			unitCost:     decimal.NullDecimal{Decimal: wac, Valid: true},
			sourceType:   models.StockSourceTransferIn,
			movementDate: movementDate,
			note:         input.Note,
			meta:         models.Meta{"transfer_out_id": out.ID},
		})
		if err != nil {
			return err
		}

		// Metadata-only backlink; balances and costs are already final.
		out.Meta = models.Meta{"transfer_in_id": in.ID}
		if err := tx.Model(&models.StockMovement{}).
			Where("id = ?", out.ID).
			Update("meta", out.Meta).Error; err != nil {
			return err
		}

		result.Out = out
		result.In = in
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
