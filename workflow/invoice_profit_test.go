package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/models"
	"github.com/facturino/books_backend/utils"
	"github.com/facturino/books_backend/workflow"
)

func newTestInvoice(t *testing.T, ctx context.Context, lines ...*models.InvoiceItem) *models.Invoice {
	t.Helper()
	companyId, _ := utils.GetCompanyIdFromContext(ctx)
	invoice := models.Invoice{
		CompanyId:     companyId,
		InvoiceNumber: "IV-0001",
		InvoiceDate:   time.Now().UTC(),
	}
	if err := config.GetDB().Create(&invoice).Error; err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	for _, line := range lines {
		line.CompanyId = companyId
		line.InvoiceId = invoice.ID
		if err := config.GetDB().Create(line).Error; err != nil {
			t.Fatalf("create invoice item: %v", err)
		}
	}
	return &invoice
}

func TestResolveLineCost_UsesMovementCostFirst(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "Margin Co")
	warehouse := newTestWarehouse(t, ctx, "Main")
	item := newTestItem(t, ctx, "Cable 10m", true)
	companyId, _ := utils.GetCompanyIdFromContext(ctx)

	mustRecord(t, ctx, &workflow.StockMovementInput{
		WarehouseId: warehouse.ID, ItemId: item.ID,
		Qty: qty("10"), UnitCost: cents(100),
		SourceType: models.StockSourcePurchaseReceipt, MovementDate: movementDate(3),
	})

	line := &models.InvoiceItem{ItemId: item.ID, WarehouseId: warehouse.ID, Quantity: qty("4"), UnitPrice: 250}
	newTestInvoice(t, ctx, line)

	// Post the sale line, then shift the average so the chain's rungs diverge.
	movement, err := workflow.ProcessStockFromInvoiceItem(ctx, line, movementDate(2).Truncate(time.Second))
	if err != nil {
		t.Fatalf("ProcessStockFromInvoiceItem: %v", err)
	}
	if movement == nil {
		t.Fatal("expected a movement for a trackable item")
	}
	mustRecord(t, ctx, &workflow.StockMovementInput{
		WarehouseId: warehouse.ID, ItemId: item.ID,
		Qty: qty("6"), UnitCost: cents(500),
		SourceType: models.StockSourcePurchaseReceipt, MovementDate: movementDate(1),
	})

	cost, err := workflow.ResolveLineCost(ctx, companyId, line)
	if err != nil {
		t.Fatalf("ResolveLineCost: %v", err)
	}
	if cost.Source != workflow.CostSourceMovement {
		t.Errorf("source = %s, want movement", cost.Source)
	}
	if !cost.Available || cost.UnitCost != 100 || cost.TotalCost != 400 {
		t.Errorf("cost = %+v, want unit 100 total 400", cost)
	}
}

func TestResolveLineCost_FallsBackToPriorBalance(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "Legacy Ledger Co")
	warehouse := newTestWarehouse(t, ctx, "Main")
	item := newTestItem(t, ctx, "Old stock", true)
	companyId, _ := utils.GetCompanyIdFromContext(ctx)
	db := config.GetDB()

	line := &models.InvoiceItem{ItemId: item.ID, WarehouseId: warehouse.ID, Quantity: qty("2"), UnitPrice: 300}
	newTestInvoice(t, ctx, line)

	// Hand-written rows the way the legacy importer produced them: the sale row
	// carries no unit cost, only the preceding balance is usable.
	prior := models.StockMovement{
		CompanyId: companyId, WarehouseId: warehouse.ID, ItemId: item.ID,
		SourceType: models.StockSourceInitialStock, MovementDate: movementDate(3),
		Qty: qty("10"), TotalCost: 1200,
		BalanceQuantity: qty("10"), BalanceValue: 1200,
	}
	if err := db.Create(&prior).Error; err != nil {
		t.Fatalf("seed prior movement: %v", err)
	}
	sale := models.StockMovement{
		CompanyId: companyId, WarehouseId: warehouse.ID, ItemId: item.ID,
		SourceType: models.StockSourceSaleIssue, SourceId: line.ID, MovementDate: movementDate(2),
		Qty: qty("-2"), TotalCost: 0,
		BalanceQuantity: qty("8"), BalanceValue: 1200,
	}
	if err := db.Create(&sale).Error; err != nil {
		t.Fatalf("seed sale movement: %v", err)
	}

	cost, err := workflow.ResolveLineCost(ctx, companyId, line)
	if err != nil {
		t.Fatalf("ResolveLineCost: %v", err)
	}
	if cost.Source != workflow.CostSourcePriorBalance {
		t.Errorf("source = %s, want prior_balance", cost.Source)
	}
	// Prior balance 1200 over 10 units: 120/unit, 240 for the line.
	if !cost.Available || cost.UnitCost != 120 || cost.TotalCost != 240 {
		t.Errorf("cost = %+v, want unit 120 total 240", cost)
	}
}

func TestResolveLineCost_FallsBackToCurrentAverage(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "No Movement Co")
	warehouse := newTestWarehouse(t, ctx, "Main")
	item := newTestItem(t, ctx, "Unposted sale", true)
	companyId, _ := utils.GetCompanyIdFromContext(ctx)

	// Stock exists but the sale line was never posted to the ledger.
	mustRecord(t, ctx, &workflow.StockMovementInput{
		WarehouseId: warehouse.ID, ItemId: item.ID,
		Qty: qty("5"), UnitCost: cents(80),
		SourceType: models.StockSourceInitialStock, MovementDate: movementDate(1),
	})

	line := &models.InvoiceItem{ItemId: item.ID, WarehouseId: warehouse.ID, Quantity: qty("3"), UnitPrice: 150}
	newTestInvoice(t, ctx, line)

	cost, err := workflow.ResolveLineCost(ctx, companyId, line)
	if err != nil {
		t.Fatalf("ResolveLineCost: %v", err)
	}
	if cost.Source != workflow.CostSourceCurrentWac {
		t.Errorf("source = %s, want current_wac", cost.Source)
	}
	if !cost.Available || cost.UnitCost != 80 || cost.TotalCost != 240 {
		t.Errorf("cost = %+v, want unit 80 total 240", cost)
	}
}

func TestGetInvoiceProfit_NoCostIsNeverZeroMargin(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "Unknown Cost Co")
	warehouse := newTestWarehouse(t, ctx, "Main")
	tracked := newTestItem(t, ctx, "Known item", true)
	phantom := newTestItem(t, ctx, "Phantom item", true)

	mustRecord(t, ctx, &workflow.StockMovementInput{
		WarehouseId: warehouse.ID, ItemId: tracked.ID,
		Qty: qty("10"), UnitCost: cents(100),
		SourceType: models.StockSourceInitialStock, MovementDate: movementDate(2),
	})

	knownLine := &models.InvoiceItem{ItemId: tracked.ID, WarehouseId: warehouse.ID, Quantity: qty("2"), UnitPrice: 400}
	// No ledger history at all for the phantom item: its line must surface as
	// cost-unavailable, never as a 100% margin.
	unknownLine := &models.InvoiceItem{ItemId: phantom.ID, WarehouseId: warehouse.ID, Quantity: qty("1"), UnitPrice: 500}
	invoice := newTestInvoice(t, ctx, knownLine, unknownLine)

	if _, err := workflow.ProcessStockFromInvoiceItem(ctx, knownLine, movementDate(1)); err != nil {
		t.Fatalf("post sale line: %v", err)
	}

	profit, err := workflow.GetInvoiceProfit(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoiceProfit: %v", err)
	}
	if profit.CostAvailable {
		t.Error("aggregate cost reported available despite a no_cost line")
	}
	if profit.Revenue != 2*400+500 {
		t.Errorf("revenue = %d, want 1300", profit.Revenue)
	}

	var unknown *workflow.InvoiceProfitLine
	for _, line := range profit.Lines {
		if line.ItemId == phantom.ID {
			unknown = line
		}
	}
	if unknown == nil {
		t.Fatal("phantom line missing from profit result")
	}
	if unknown.CostAvailable || unknown.CostSource != workflow.CostSourceNone {
		t.Errorf("phantom line = %+v, want explicit no_cost", unknown)
	}
	if unknown.GrossProfit != 0 || unknown.Cost != 0 {
		t.Errorf("phantom line must not carry a defaulted margin: %+v", unknown)
	}
}
