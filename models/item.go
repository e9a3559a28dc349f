package models

import (
	"context"
	"errors"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Item struct {
	ID            int    `gorm:"primary_key" json:"id"`
	CompanyId     int    `gorm:"index;not null" json:"company_id"`
	Name          string `gorm:"size:100;not null" json:"name" binding:"required"`
	Sku           string `gorm:"index;size:100" json:"sku"`
	Unit          string `gorm:"size:20" json:"unit"`
	TrackQuantity *bool  `gorm:"not null;default:false" json:"track_quantity"`
	// Quantity mirrors the ledger's cross-warehouse total; refreshed after every movement.
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	MinimumQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"minimum_quantity"`
	SalesPrice      int64           `gorm:"not null;default:0" json:"sales_price"`
	PurchasePrice   int64           `gorm:"not null;default:0" json:"purchase_price"`
	IsActive        *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewItem struct {
	Name            string          `json:"name" binding:"required"`
	Sku             string          `json:"sku"`
	Unit            string          `json:"unit"`
	TrackQuantity   bool            `json:"track_quantity"`
	MinimumQuantity decimal.Decimal `json:"minimum_quantity"`
	SalesPrice      int64           `json:"sales_price"`
	PurchasePrice   int64           `json:"purchase_price"`
}

func (item *Item) IsTrackable() bool {
	return item.TrackQuantity != nil && *item.TrackQuantity
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}

	track := input.TrackQuantity
	item := Item{
		CompanyId:       companyId,
		Name:            input.Name,
		Sku:             input.Sku,
		Unit:            input.Unit,
		TrackQuantity:   &track,
		MinimumQuantity: input.MinimumQuantity,
		SalesPrice:      input.SalesPrice,
		PurchasePrice:   input.PurchasePrice,
		IsActive:        utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func GetItem(ctx context.Context, companyId int, id int) (*Item, error) {
	return utils.FetchModel[Item](ctx, companyId, id)
}

// RefreshItemQuantity recomputes the item's denormalized quantity from the ledger,
// summing the latest balance of every warehouse. Must run inside the same locked
// posting transaction that appended the movement.
func RefreshItemQuantity(tx *gorm.DB, companyId int, itemId int) error {
	var total decimal.NullDecimal
	err := tx.Model(&StockBalance{}).
		Select("SUM(quantity)").
		Where("company_id = ? AND item_id = ?", companyId, itemId).
		Scan(&total).Error
	if err != nil {
		return err
	}
	qty := decimal.Zero
	if total.Valid {
		qty = total.Decimal
	}
	return tx.Model(&Item{}).
		Where("company_id = ? AND id = ?", companyId, itemId).
		Update("quantity", qty).Error
}

type LowStockItem struct {
	ItemId          int             `json:"item_id"`
	Name            string          `json:"name"`
	Sku             string          `json:"sku"`
	Quantity        decimal.Decimal `json:"quantity"`
	MinimumQuantity decimal.Decimal `json:"minimum_quantity"`
}

// GetLowStockItems lists trackable items whose mirrored quantity has fallen to or
// below their configured minimum.
func GetLowStockItems(ctx context.Context, companyId int) ([]*LowStockItem, error) {
	db := config.GetDB()
	var records []*LowStockItem
	err := db.WithContext(ctx).Model(&Item{}).
		Select("id AS item_id, name, sku, quantity, minimum_quantity").
		Where("company_id = ? AND track_quantity = ? AND is_active = ?", companyId, true, true).
		Where("minimum_quantity > 0 AND quantity <= minimum_quantity").
		Order("name").
		Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
