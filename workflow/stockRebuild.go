package workflow

import (
	"context"
	"fmt"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/models"
	"github.com/facturino/books_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RebuildStockForItemWarehouse replays one triple's ledger in (movement_date, id)
// order and rewrites every row's running balance plus the cached balance row and
// the item's quantity mirror. Used after data repair, never in normal posting:
// the ledger rows' qty/cost are the source of truth and are not touched, only the
// derived running totals are.
func RebuildStockForItemWarehouse(tx *gorm.DB, logger *logrus.Logger, companyId int, warehouseId int, itemId int) error {
	if tx == nil {
		return fmt.Errorf("rebuild stock: tx is nil")
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	if companyId <= 0 || warehouseId <= 0 || itemId <= 0 {
		return fmt.Errorf("rebuild stock: invalid scope")
	}

	key := stockLockKey(companyId, warehouseId, itemId)
	unlock := lockStockKeys(key)
	defer unlock()
	if err := AcquireStockPostingLocks(tx, key); err != nil {
		return err
	}
	defer ReleaseStockPostingLocks(tx, key)

	var movements []*models.StockMovement
	err := tx.Where("company_id = ? AND warehouse_id = ? AND item_id = ?",
		companyId, warehouseId, itemId).
		Order("movement_date, id").
		Find(&movements).Error
	if err != nil {
		return err
	}

	runningQty := decimal.Zero
	runningValue := int64(0)
	rewritten := 0
	for _, m := range movements {
		runningQty = runningQty.Add(m.Qty)
		if m.Qty.Sign() > 0 {
			runningValue += m.TotalCost
		} else {
			runningValue -= m.TotalCost
			if runningValue < 0 {
				runningValue = 0
			}
		}
		if m.BalanceQuantity.Equal(runningQty) && m.BalanceValue == runningValue {
			continue
		}
		if err := tx.Model(&models.StockMovement{}).
			Where("id = ?", m.ID).
			Updates(map[string]interface{}{
				"balance_quantity": runningQty,
				"balance_value":    runningValue,
			}).Error; err != nil {
			return err
		}
		rewritten++
	}

	balance, err := models.FirstOrCreateStockBalance(tx, companyId, warehouseId, itemId)
	if err != nil {
		return err
	}
	lastId := 0
	if n := len(movements); n > 0 {
		lastId = movements[n-1].ID
	}
	if err := models.UpdateStockBalance(tx, balance.ID, runningQty, runningValue, lastId); err != nil {
		return err
	}
	if err := models.RefreshItemQuantity(tx, companyId, itemId); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"company_id":   companyId,
		"warehouse_id": warehouseId,
		"item_id":      itemId,
		"movements":    len(movements),
		"rewritten":    rewritten,
	}).Info("stock.rebuild.done")
	return nil
}

// RebuildStockForCompany rebuilds every (warehouse, item) pair that has ledger rows.
func RebuildStockForCompany(ctx context.Context, companyId int) error {
	if companyId <= 0 {
		return utils.NewValidationError("company id is required")
	}

	db := config.GetDB()
	type pair struct {
		WarehouseId int
		ItemId      int
	}
	var pairs []pair
	err := db.WithContext(ctx).Model(&models.StockMovement{}).
		Select("DISTINCT warehouse_id, item_id").
		Where("company_id = ?", companyId).
		Scan(&pairs).Error
	if err != nil {
		return err
	}

	logger := config.GetLogger()
	for _, p := range pairs {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return RebuildStockForItemWarehouse(tx, logger, companyId, p.WarehouseId, p.ItemId)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
