package models

import (
	"context"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/utils"
	"github.com/shopspring/decimal"
)

// Invoice is a sales document. Full invoice workflows live outside this service;
// the ledger only needs the line shape to post sale issues and attribute costs.
type Invoice struct {
	ID            int            `gorm:"primary_key" json:"id"`
	CompanyId     int            `gorm:"index;not null" json:"company_id"`
	InvoiceNumber string         `gorm:"size:50;not null" json:"invoice_number"`
	InvoiceDate   time.Time      `gorm:"not null" json:"invoice_date"`
	CustomerName  string         `gorm:"size:100" json:"customer_name"`
	TotalAmount   int64          `gorm:"not null;default:0" json:"total_amount"`
	Items         []*InvoiceItem `gorm:"foreignKey:InvoiceId" json:"items"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	CompanyId   int             `gorm:"index;not null" json:"company_id"`
	InvoiceId   int             `gorm:"index;not null" json:"invoice_id"`
	ItemId      int             `gorm:"index;not null" json:"item_id"`
	WarehouseId int             `gorm:"index" json:"warehouse_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice   int64           `gorm:"not null;default:0" json:"unit_price"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetInvoice(ctx context.Context, companyId int, id int) (*Invoice, error) {
	return utils.FetchModel[Invoice](ctx, companyId, id, "Items")
}

func GetInvoiceItems(ctx context.Context, companyId int, invoiceId int) ([]*InvoiceItem, error) {
	db := config.GetDB()
	var items []*InvoiceItem
	err := db.WithContext(ctx).
		Where("company_id = ? AND invoice_id = ?", companyId, invoiceId).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
