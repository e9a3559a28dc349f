package models_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/models"
	"github.com/facturino/books_backend/utils"
	"github.com/facturino/books_backend/workflow"
	"github.com/shopspring/decimal"
)

func newTestDB(t *testing.T) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:models_%s?mode=memory&cache=shared", name)
	if err := config.ConnectSqlite(dsn); err != nil {
		t.Fatalf("ConnectSqlite: %v", err)
	}
	models.MigrateTable()
}

func TestGetLowStockItems(t *testing.T) {
	newTestDB(t)
	db := config.GetDB()

	company := models.Company{Name: "Alerts Co"}
	if err := db.Create(&company).Error; err != nil {
		t.Fatalf("create company: %v", err)
	}
	ctx := utils.SetCompanyIdInContext(context.Background(), company.ID)

	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Main"})
	if err != nil {
		t.Fatalf("create warehouse: %v", err)
	}

	low, err := models.CreateItem(ctx, &models.NewItem{
		Name: "Running low", TrackQuantity: true,
		MinimumQuantity: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	healthy, err := models.CreateItem(ctx, &models.NewItem{
		Name: "Plenty", TrackQuantity: true,
		MinimumQuantity: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	noMinimum, err := models.CreateItem(ctx, &models.NewItem{
		Name: "No threshold", TrackQuantity: true,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	post := func(itemId int, q int64) {
		t.Helper()
		unitCost := int64(10)
		_, err := workflow.RecordMovement(ctx, &workflow.StockMovementInput{
			WarehouseId: warehouse.ID,
			ItemId:      itemId,
			Qty:         decimal.NewFromInt(q),
			UnitCost:    &unitCost,
			SourceType:  models.StockSourceInitialStock,
		})
		if err != nil {
			t.Fatalf("post stock: %v", err)
		}
	}
	post(low.ID, 3)
	post(healthy.ID, 50)
	post(noMinimum.ID, 1)

	records, err := models.GetLowStockItems(ctx, company.ID)
	if err != nil {
		t.Fatalf("GetLowStockItems: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("low stock items = %d, want 1", len(records))
	}
	if records[0].ItemId != low.ID {
		t.Errorf("low stock item = %d, want %d", records[0].ItemId, low.ID)
	}
	if !records[0].Quantity.Equal(decimal.NewFromInt(3)) {
		t.Errorf("reported quantity = %s, want 3", records[0].Quantity)
	}
}
