package models

import (
	"context"
	"errors"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/utils"
	"gorm.io/gorm"
)

const DefaultWarehouseName = "Main warehouse"

type Warehouse struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId int       `gorm:"index;not null" json:"company_id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Address   string    `gorm:"type:text" json:"address"`
	City      string    `gorm:"size:100" json:"city"`
	IsDefault *bool     `gorm:"not null;default:false" json:"is_default"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWarehouse struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
	City    string `json:"city"`
}

func CreateWarehouse(ctx context.Context, input *NewWarehouse) (*Warehouse, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}

	warehouse := Warehouse{
		CompanyId: companyId,
		Name:      input.Name,
		Address:   input.Address,
		City:      input.City,
		IsDefault: utils.NewFalse(),
		IsActive:  utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&warehouse).Error
	if err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func GetWarehouses(ctx context.Context) ([]*Warehouse, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, errors.New("company id is required")
	}
	return utils.FetchAllModels[Warehouse](ctx, companyId)
}

// GetOrCreateDefaultWarehouse resolves the company's default warehouse, provisioning
// one lazily on first use. Stock postings that do not name a warehouse land here.
func GetOrCreateDefaultWarehouse(tx *gorm.DB, companyId int) (*Warehouse, error) {
	var warehouse Warehouse
	err := tx.Where("company_id = ? AND is_default = ?", companyId, true).
		First(&warehouse).Error
	if err == nil {
		return &warehouse, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	warehouse = Warehouse{
		CompanyId: companyId,
		Name:      DefaultWarehouseName,
		IsDefault: utils.NewTrue(),
		IsActive:  utils.NewTrue(),
	}
	if err := tx.Create(&warehouse).Error; err != nil {
		return nil, err
	}
	return &warehouse, nil
}
