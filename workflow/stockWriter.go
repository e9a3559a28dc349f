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

const moduleName = "StockWorkflow"

// StockMovementInput is the direct ledger write API. Qty is signed: positive
// inbound, negative outbound. UnitCost is whole smallest-currency units per unit
// of quantity, required for inbound movements and forbidden for outbound ones,
// whose cost is always derived from the running average.
type StockMovementInput struct {
	WarehouseId  int                    `json:"warehouse_id"`
	ItemId       int                    `json:"item_id" binding:"required"`
	Qty          decimal.Decimal        `json:"qty" binding:"required"`
	UnitCost     *int64                 `json:"unit_cost"`
	SourceType   models.StockSourceType `json:"source_type" binding:"required"`
	SourceId     int                    `json:"source_id"`
	MovementDate time.Time              `json:"movement_date"`
	Note         string                 `json:"note"`
	Meta         models.Meta            `json:"meta"`
}

// movementSpec is the internal, fully resolved form of one ledger append. The
// unit cost keeps fractional precision so transfer-in rows can carry the source
// warehouse's exact average cost (see TransferStock).
type movementSpec struct {
	warehouseId  int
	itemId       int
	qty          decimal.Decimal
	unitCost     decimal.NullDecimal
	sourceType   models.StockSourceType
	sourceId     int
	movementDate time.Time
	note         string
	meta         models.Meta
	isReversal   bool
	reversesId   *int
}

func (input *StockMovementInput) validate() error {
	if input.Qty.IsZero() {
		return utils.NewValidationError("qty must be nonzero")
	}
	if !input.SourceType.IsValid() {
		return utils.NewValidationError("invalid source type %q", input.SourceType)
	}
	if input.SourceType.IsTransfer() {
		return utils.NewValidationError("transfer movements must be created through the transfer API")
	}
	if input.Qty.Sign() > 0 {
		if input.UnitCost == nil {
			return utils.NewValidationError("inbound movement requires a unit cost")
		}
		if *input.UnitCost < 0 {
			return utils.NewValidationError("unit cost must not be negative")
		}
	} else if input.UnitCost != nil {
		return utils.NewValidationError("outbound movement cost is derived, do not supply a unit cost")
	}
	return nil
}

func (input *StockMovementInput) toSpec() movementSpec {
	spec := movementSpec{
		warehouseId:  input.WarehouseId,
		itemId:       input.ItemId,
		qty:          input.Qty,
		sourceType:   input.SourceType,
		sourceId:     input.SourceId,
		movementDate: input.MovementDate,
		note:         input.Note,
		meta:         input.Meta,
	}
	if input.UnitCost != nil {
		spec.unitCost = decimal.NullDecimal{Decimal: decimal.NewFromInt(*input.UnitCost), Valid: true}
	}
	if spec.movementDate.IsZero() {
		spec.movementDate = time.Now().UTC()
	}
	return spec
}

// RecordMovement appends exactly one immutable ledger row and rolls the triple's
// running balance forward. The whole step is serialized per (company, warehouse,
// item) and atomic: any failure leaves no partial state.
func RecordMovement(ctx context.Context, input *StockMovementInput) (*models.StockMovement, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, utils.NewValidationError("company id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	item, err := models.GetItem(ctx, companyId, input.ItemId)
	if err != nil {
		return nil, err
	}
	if !item.IsTrackable() {
		return nil, utils.ErrItemNotTrackable
	}

	spec := input.toSpec()
	db := config.GetDB()

	if spec.warehouseId == 0 {
		warehouse, err := models.GetOrCreateDefaultWarehouse(db.WithContext(ctx), companyId)
		if err != nil {
			return nil, err
		}
		spec.warehouseId = warehouse.ID
	} else if err := utils.ValidateResourceId[models.Warehouse](ctx, companyId, spec.warehouseId); err != nil {
		return nil, utils.NewValidationError("warehouse not found")
	}

	// Locks are held through commit: the keyed mutex serializes writers in this
	// process, the advisory lock inside the transaction covers other instances.
	key := stockLockKey(companyId, spec.warehouseId, spec.itemId)
	unlock := lockStockKeys(key)
	defer unlock()

	releaseRedis, err := utils.StockLock(ctx, key, moduleName, "RecordMovement")
	if err != nil {
		return nil, err
	}
	defer releaseRedis()

	var movement *models.StockMovement
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireStockPostingLocks(tx, key); err != nil {
			return err
		}
		defer ReleaseStockPostingLocks(tx, key)

		var err error
		movement, err = appendMovement(tx, companyId, spec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// appendMovement runs the balance math and the writes. Callers must already hold
// the triple's locks and be inside the posting transaction.
func appendMovement(tx *gorm.DB, companyId int, spec movementSpec) (*models.StockMovement, error) {

	balance, err := models.FirstOrCreateStockBalance(tx, companyId, spec.warehouseId, spec.itemId)
	if err != nil {
		return nil, err
	}
	currentQty := balance.Quantity
	currentValue := balance.Value

	var totalCost int64
	var newValue int64
	storedUnitCost := spec.unitCost

	if spec.qty.Sign() > 0 {
		// Inbound: value in at the supplied cost. Transfer-in carries the exact
		// average captured at the source, so both sides round identically.
		if !spec.unitCost.Valid {
			return nil, utils.NewValidationError("inbound movement requires a unit cost")
		}
		totalCost = utils.RoundCents(spec.qty.Mul(spec.unitCost.Decimal))
		newValue = currentValue + totalCost
	} else {
		// Outbound: cost out at the average in effect immediately before this
		// movement. Never caller-supplied, so COGS reflects acquisition cost.
		wac := models.ExactWac(currentQty, currentValue)
		totalCost = utils.RoundCents(spec.qty.Abs().Mul(wac))
		newValue = currentValue - totalCost
		if newValue < 0 {
			logger := config.GetLogger()
			logger.WithFields(map[string]interface{}{
				"module":       moduleName,
				"company_id":   companyId,
				"warehouse_id": spec.warehouseId,
				"item_id":      spec.itemId,
				"balance":      currentValue,
				"total_cost":   totalCost,
			}).Warn("outbound cost exceeds recorded value, clamping balance to zero")
			newValue = 0
		}
		if currentQty.Sign() > 0 {
			storedUnitCost = decimal.NullDecimal{Decimal: wac, Valid: true}
		}
	}

	newQty := currentQty.Add(spec.qty)

	movement := &models.StockMovement{
		CompanyId:       companyId,
		WarehouseId:     spec.warehouseId,
		ItemId:          spec.itemId,
		SourceType:      spec.sourceType,
		SourceId:        spec.sourceId,
		MovementDate:    spec.movementDate,
		Qty:             spec.qty,
		UnitCost:        storedUnitCost,
		TotalCost:       totalCost,
		BalanceQuantity: newQty,
		BalanceValue:    newValue,
		Note:            spec.note,
		Meta:            spec.meta,
		IsReversal:      spec.isReversal,
		ReversesId:      spec.reversesId,
	}
	if err := tx.Create(movement).Error; err != nil {
		return nil, err
	}

	if err := models.UpdateStockBalance(tx, balance.ID, newQty, newValue, movement.ID); err != nil {
		return nil, err
	}
	if err := models.RefreshItemQuantity(tx, companyId, spec.itemId); err != nil {
		return nil, err
	}
	return movement, nil
}
