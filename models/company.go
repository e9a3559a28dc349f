package models

import (
	"context"
	"time"

	"github.com/facturino/books_backend/utils"
)

type Company struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	TaxNumber string    `gorm:"size:20" json:"tax_number"`
	Address   string    `gorm:"type:text" json:"address"`
	City      string    `gorm:"size:100" json:"city"`
	Country   string    `gorm:"size:100;default:MK" json:"country"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetCompanyById(ctx context.Context, id int) (*Company, error) {
	return utils.FetchSingleModel[Company](ctx, id)
}
