package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockBalance caches the current (quantity, value) per (company, warehouse, item)
// so posting does not rescan history. The append-only movement ledger stays the
// source of truth; this row is updated inside the same locked transaction as the
// append and can be rebuilt from the ledger at any time.
type StockBalance struct {
	ID             int             `gorm:"primary_key" json:"id"`
	CompanyId      int             `gorm:"uniqueIndex:idx_stock_balance_triple;not null" json:"company_id"`
	WarehouseId    int             `gorm:"uniqueIndex:idx_stock_balance_triple;not null" json:"warehouse_id"`
	ItemId         int             `gorm:"uniqueIndex:idx_stock_balance_triple;not null" json:"item_id"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	Value          int64           `gorm:"not null;default:0" json:"value"`
	LastMovementId int             `gorm:"default:0" json:"last_movement_id"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FirstOrCreateStockBalance loads (or creates) the triple's balance row under a
// row lock. FOR UPDATE is dialect-gated: sqlite serializes writers on its own.
func FirstOrCreateStockBalance(tx *gorm.DB, companyId int, warehouseId int, itemId int) (*StockBalance, error) {
	balance := StockBalance{
		CompanyId:   companyId,
		WarehouseId: warehouseId,
		ItemId:      itemId,
	}
	query := tx
	if tx.Dialector.Name() == "mysql" {
		query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	result := query.Where("company_id = ? AND warehouse_id = ? AND item_id = ?",
		companyId, warehouseId, itemId).
		FirstOrCreate(&balance)
	if result.Error != nil {
		return nil, result.Error
	}
	return &balance, nil
}

// UpdateStockBalance persists the new running totals for the triple.
func UpdateStockBalance(tx *gorm.DB, balanceId int, qty decimal.Decimal, value int64, lastMovementId int) error {
	return tx.Model(&StockBalance{}).
		Where("id = ?", balanceId).
		Updates(map[string]interface{}{
			"quantity":         qty,
			"value":            value,
			"last_movement_id": lastMovementId,
		}).Error
}
