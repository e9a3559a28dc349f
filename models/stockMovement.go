package models

import (
	"context"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement is one immutable ledger row. Rows are only ever appended; corrections
// are new adjustment or reversal rows, never edits to history.
//
// Money columns (UnitCost, TotalCost, BalanceValue) are denominated in the smallest
// currency unit. UnitCost keeps fractional precision so a transfer-in can carry the
// source warehouse's exact average cost and both sides round to the same total.
type StockMovement struct {
	ID           int                 `gorm:"primary_key" json:"id"`
	CompanyId    int                 `gorm:"index;not null" json:"company_id"`
	WarehouseId  int                 `gorm:"index;not null" json:"warehouse_id"`
	ItemId       int                 `gorm:"index;not null" json:"item_id"`
	SourceType   StockSourceType     `gorm:"size:20;not null" json:"source_type"`
	SourceId     int                 `gorm:"index" json:"source_id"`
	MovementDate time.Time           `gorm:"index;not null" json:"movement_date"`
	Qty          decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitCost     decimal.NullDecimal `gorm:"type:decimal(20,6)" json:"unit_cost"`
	TotalCost    int64               `gorm:"not null;default:0" json:"total_cost"`
	// Running totals after this movement is applied.
	BalanceQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_quantity"`
	BalanceValue    int64           `gorm:"not null;default:0" json:"balance_value"`
	Note            string          `gorm:"type:text" json:"note"`
	Meta            Meta            `gorm:"type:json" json:"meta"`
	IsReversal      bool            `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesId      *int            `gorm:"index" json:"reverses_id"`
	ReversedById    *int            `gorm:"index" json:"reversed_by_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ItemStock is the balance/WAC query result for one item, per warehouse or aggregated.
type ItemStock struct {
	ItemId      int             `json:"item_id"`
	WarehouseId int             `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	TotalValue  int64           `json:"total_value"`
	Wac         int64           `json:"wac"`
}

// WacFor returns the whole-cent average cost for a (quantity, value) balance pair,
// 0 when nothing is on hand.
func WacFor(qty decimal.Decimal, value int64) int64 {
	if qty.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(value).Div(qty).Round(0).IntPart()
}

// ExactWac returns value/quantity without rounding, for internal cost derivation.
func ExactWac(qty decimal.Decimal, value int64) decimal.Decimal {
	if qty.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(value).Div(qty)
}

// GetLatestMovement returns the most recent ledger row for one triple by
// (movement_date desc, id desc), or nil when the item has no history in that warehouse.
func GetLatestMovement(tx *gorm.DB, companyId int, warehouseId int, itemId int) (*StockMovement, error) {
	var movement StockMovement
	err := tx.Where("company_id = ? AND warehouse_id = ? AND item_id = ?",
		companyId, warehouseId, itemId).
		Order("movement_date DESC, id DESC").
		First(&movement).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

// GetItemStockForWarehouse reads one triple's latest balance. Zeroes when no movement exists.
func GetItemStockForWarehouse(ctx context.Context, companyId int, warehouseId int, itemId int) (*ItemStock, error) {
	db := config.GetDB()
	movement, err := GetLatestMovement(db.WithContext(ctx), companyId, warehouseId, itemId)
	if err != nil {
		return nil, err
	}
	stock := ItemStock{ItemId: itemId, WarehouseId: warehouseId, Quantity: decimal.Zero}
	if movement != nil {
		stock.Quantity = movement.BalanceQuantity
		stock.TotalValue = movement.BalanceValue
		stock.Wac = WacFor(movement.BalanceQuantity, movement.BalanceValue)
	}
	return &stock, nil
}

// GetItemStock aggregates the item's latest balance across all warehouses.
// Only the most recent row per warehouse is meaningful, so the query ranks rows
// per warehouse and sums rank 1 only.
func GetItemStock(ctx context.Context, companyId int, itemId int) (*ItemStock, error) {
	sql := `
SELECT
    COALESCE(SUM(balance_quantity), 0) AS quantity,
    COALESCE(SUM(balance_value), 0) AS total_value
FROM
    (
        SELECT
            ROW_NUMBER() OVER (
                PARTITION BY warehouse_id
                ORDER BY movement_date DESC, id DESC
            ) AS rn,
            balance_quantity,
            balance_value
        FROM
            stock_movements
        WHERE
            company_id = @companyId
            AND item_id = @itemId
    ) AS ranked
WHERE
    rn = 1
`
	db := config.GetDB()
	var row struct {
		Quantity   decimal.Decimal
		TotalValue int64
	}
	err := db.WithContext(ctx).Raw(sql,
		map[string]interface{}{"companyId": companyId, "itemId": itemId}).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &ItemStock{
		ItemId:     itemId,
		Quantity:   row.Quantity,
		TotalValue: row.TotalValue,
		Wac:        WacFor(row.Quantity, row.TotalValue),
	}, nil
}

// GetMovementHistory lists an item's ledger rows in movement order, newest first.
// warehouseId 0 means all warehouses; a zero from/to leaves that bound open.
func GetMovementHistory(ctx context.Context, companyId int, warehouseId int, itemId int, from time.Time, to time.Time, limit int) ([]*StockMovement, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).
		Where("company_id = ? AND item_id = ?", companyId, itemId).
		Order("movement_date DESC, id DESC")
	if warehouseId > 0 {
		query = query.Where("warehouse_id = ?", warehouseId)
	}
	if !from.IsZero() {
		query = query.Where("movement_date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("movement_date <= ?", to)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var movements []*StockMovement
	if err := query.Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
