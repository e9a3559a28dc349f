package models

import (
	"context"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/utils"
	"github.com/shopspring/decimal"
)

// Bill is a purchase document; its lines carry the acquisition cost that enters
// the weighted average when the bill is posted to stock.
type Bill struct {
	ID           int         `gorm:"primary_key" json:"id"`
	CompanyId    int         `gorm:"index;not null" json:"company_id"`
	BillNumber   string      `gorm:"size:50;not null" json:"bill_number"`
	BillDate     time.Time   `gorm:"not null" json:"bill_date"`
	SupplierName string      `gorm:"size:100" json:"supplier_name"`
	TotalAmount  int64       `gorm:"not null;default:0" json:"total_amount"`
	Items        []*BillItem `gorm:"foreignKey:BillId" json:"items"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type BillItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	CompanyId   int             `gorm:"index;not null" json:"company_id"`
	BillId      int             `gorm:"index;not null" json:"bill_id"`
	ItemId      int             `gorm:"index;not null" json:"item_id"`
	WarehouseId int             `gorm:"index" json:"warehouse_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost    int64           `gorm:"not null;default:0" json:"unit_cost"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetBill(ctx context.Context, companyId int, id int) (*Bill, error) {
	return utils.FetchModel[Bill](ctx, companyId, id, "Items")
}

func GetBillItems(ctx context.Context, companyId int, billId int) ([]*BillItem, error) {
	db := config.GetDB()
	var items []*BillItem
	err := db.WithContext(ctx).
		Where("company_id = ? AND bill_id = ?", companyId, billId).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
