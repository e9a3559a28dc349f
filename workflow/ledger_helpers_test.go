package workflow_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/models"
	"github.com/facturino/books_backend/utils"
	"github.com/facturino/books_backend/workflow"
	"github.com/shopspring/decimal"
)

// newTestDB points the global DB at a fresh in-memory database. Shared cache keeps
// the database alive across the test's connections; the unique name isolates tests.
func newTestDB(t *testing.T) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	if err := config.ConnectSqlite(dsn); err != nil {
		t.Fatalf("ConnectSqlite: %v", err)
	}
	models.MigrateTable()
}

func newTestCompany(t *testing.T, name string) context.Context {
	t.Helper()
	db := config.GetDB()
	company := models.Company{Name: name}
	if err := db.Create(&company).Error; err != nil {
		t.Fatalf("create company: %v", err)
	}
	return utils.SetCompanyIdInContext(context.Background(), company.ID)
}

func newTestWarehouse(t *testing.T, ctx context.Context, name string) *models.Warehouse {
	t.Helper()
	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: name})
	if err != nil {
		t.Fatalf("create warehouse %s: %v", name, err)
	}
	return warehouse
}

func newTestItem(t *testing.T, ctx context.Context, name string, trackQuantity bool) *models.Item {
	t.Helper()
	item, err := models.CreateItem(ctx, &models.NewItem{
		Name:          name,
		TrackQuantity: trackQuantity,
	})
	if err != nil {
		t.Fatalf("create item %s: %v", name, err)
	}
	return item
}

func mustRecord(t *testing.T, ctx context.Context, input *workflow.StockMovementInput) *models.StockMovement {
	t.Helper()
	movement, err := workflow.RecordMovement(ctx, input)
	if err != nil {
		t.Fatalf("RecordMovement: %v", err)
	}
	return movement
}

func qty(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func cents(v int64) *int64 {
	return &v
}

func warehouseStock(t *testing.T, ctx context.Context, warehouseId int, itemId int) *models.ItemStock {
	t.Helper()
	companyId, _ := utils.GetCompanyIdFromContext(ctx)
	stock, err := models.GetItemStockForWarehouse(ctx, companyId, warehouseId, itemId)
	if err != nil {
		t.Fatalf("GetItemStockForWarehouse: %v", err)
	}
	return stock
}

func totalStock(t *testing.T, ctx context.Context, itemId int) *models.ItemStock {
	t.Helper()
	companyId, _ := utils.GetCompanyIdFromContext(ctx)
	stock, err := models.GetItemStock(ctx, companyId, itemId)
	if err != nil {
		t.Fatalf("GetItemStock: %v", err)
	}
	return stock
}

func assertStock(t *testing.T, stock *models.ItemStock, wantQty string, wantValue int64) {
	t.Helper()
	if !stock.Quantity.Equal(qty(wantQty)) {
		t.Errorf("quantity = %s, want %s", stock.Quantity, wantQty)
	}
	if stock.TotalValue != wantValue {
		t.Errorf("total value = %d, want %d", stock.TotalValue, wantValue)
	}
}

func movementDate(daysAgo int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -daysAgo)
}
