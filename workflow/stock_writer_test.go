package workflow_test

import (
	"errors"
	"testing"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/models"
	"github.com/facturino/books_backend/utils"
	"github.com/facturino/books_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestRecordMovement_InboundOutboundAverageCost(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "Writer Co")
	warehouse := newTestWarehouse(t, ctx, "Main")
	item := newTestItem(t, ctx, "Flour 1kg", true)

	// Receive 10 at 100: quantity 10, value 1000, average 100.
	in := mustRecord(t, ctx, &workflow.StockMovementInput{
		WarehouseId:  warehouse.ID,
		ItemId:       item.ID,
		Qty:          qty("10"),
		UnitCost:     cents(100),
		SourceType:   models.StockSourcePurchaseReceipt,
		MovementDate: movementDate(3),
	})
	if in.TotalCost != 1000 {
		t.Errorf("inbound total cost = %d, want 1000", in.TotalCost)
	}
	stock := warehouseStock(t, ctx, warehouse.ID, item.ID)
	assertStock(t, stock, "10", 1000)
	if stock.Wac != 100 {
		t.Errorf("wac = %d, want 100", stock.Wac)
	}

	// Issue 4: cost is derived from the average, 4 x 100 = 400.
	out := mustRecord(t, ctx, &workflow.StockMovementInput{
		WarehouseId:  warehouse.ID,
		ItemId:       item.ID,
		Qty:          qty("-4"),
		SourceType:   models.StockSourceSaleIssue,
		MovementDate: movementDate(2),
	})
	if out.TotalCost != 400 {
		t.Errorf("outbound total cost = %d, want 400", out.TotalCost)
	}
	assertStock(t, warehouseStock(t, ctx, warehouse.ID, item.ID), "6", 600)

	// Receive 5 at 220: value 600 + 1100 = 1700 over 11 units.
	mustRecord(t, ctx, &workflow.StockMovementInput{
		WarehouseId:  warehouse.ID,
		ItemId:       item.ID,
		Qty:          qty("5"),
		UnitCost:     cents(220),
		SourceType:   models.StockSourcePurchaseReceipt,
		MovementDate: movementDate(1),
	})
	stock = warehouseStock(t, ctx, warehouse.ID, item.ID)
	assertStock(t, stock, "11", 1700)
	if stock.Wac != 155 {
		t.Errorf("wac = %d, want 155 (round(1700/11))", stock.Wac)
	}
}

func TestRecordMovement_SequenceInvariant(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "Sequence Co")
	warehouse := newTestWarehouse(t, ctx, "Main")
	item := newTestItem(t, ctx, "Sugar", true)

	quantities := []string{"10", "-3", "7", "-5", "2.5", "-1.5"}
	for i, q := range quantities {
		input := &workflow.StockMovementInput{
			WarehouseId:  warehouse.ID,
			ItemId:       item.ID,
			Qty:          qty(q),
			SourceType:   models.StockSourceAdjustment,
			MovementDate: movementDate(len(quantities) - i),
		}
		if qty(q).Sign() > 0 {
			input.UnitCost = cents(50)
		}
		mustRecord(t, ctx, input)
	}

	companyId, _ := utils.GetCompanyIdFromContext(ctx)
	movements, err := models.GetMovementHistory(ctx, companyId, warehouse.ID, item.ID, time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("GetMovementHistory: %v", err)
	}
	if len(movements) != len(quantities) {
		t.Fatalf("movement count = %d, want %d", len(movements), len(quantities))
	}

	// Sum of quantity deltas must equal the latest running balance.
	sum := decimal.Zero
	for _, m := range movements {
		sum = sum.Add(m.Qty)
	}
	latest := movements[0]
	if !latest.BalanceQuantity.Equal(sum) {
		t.Errorf("balance quantity %s != sum of deltas %s", latest.BalanceQuantity, sum)
	}

	// The item mirror reflects the same total.
	refreshed, err := models.GetItem(ctx, companyId, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !refreshed.Quantity.Equal(sum) {
		t.Errorf("item quantity mirror %s != %s", refreshed.Quantity, sum)
	}
}

func TestRecordMovement_Validation(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "Validation Co")
	warehouse := newTestWarehouse(t, ctx, "Main")
	item := newTestItem(t, ctx, "Salt", true)

	cases := []struct {
		name  string
		input *workflow.StockMovementInput
	}{
		{"zero qty", &workflow.StockMovementInput{
			WarehouseId: warehouse.ID, ItemId: item.ID,
			Qty: decimal.Zero, SourceType: models.StockSourceAdjustment,
		}},
		{"inbound without cost", &workflow.StockMovementInput{
			WarehouseId: warehouse.ID, ItemId: item.ID,
			Qty: qty("5"), SourceType: models.StockSourcePurchaseReceipt,
		}},
		{"inbound with negative cost", &workflow.StockMovementInput{
			WarehouseId: warehouse.ID, ItemId: item.ID,
			Qty: qty("5"), UnitCost: cents(-10), SourceType: models.StockSourcePurchaseReceipt,
		}},
		{"outbound with caller cost", &workflow.StockMovementInput{
			WarehouseId: warehouse.ID, ItemId: item.ID,
			Qty: qty("-5"), UnitCost: cents(10), SourceType: models.StockSourceSaleIssue,
		}},
		{"unknown source type", &workflow.StockMovementInput{
			WarehouseId: warehouse.ID, ItemId: item.ID,
			Qty: qty("5"), UnitCost: cents(10), SourceType: "something_else",
		}},
		{"transfer through direct api", &workflow.StockMovementInput{
			WarehouseId: warehouse.ID, ItemId: item.ID,
			Qty: qty("5"), UnitCost: cents(10), SourceType: models.StockSourceTransferIn,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := workflow.RecordMovement(ctx, tc.input)
			var validationErr *utils.ValidationError
			if !errors.As(err, &validationErr) {
				t.Errorf("error = %v, want ValidationError", err)
			}
		})
	}

	// Nothing was written.
	var count int64
	config.GetDB().Model(&models.StockMovement{}).Count(&count)
	if count != 0 {
		t.Errorf("movement rows = %d, want 0", count)
	}
}

func TestRecordMovement_NotTrackable(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "Untracked Co")
	warehouse := newTestWarehouse(t, ctx, "Main")
	service := newTestItem(t, ctx, "Consulting hour", false)

	// The direct API raises.
	_, err := workflow.RecordMovement(ctx, &workflow.StockMovementInput{
		WarehouseId: warehouse.ID,
		ItemId:      service.ID,
		Qty:         qty("5"),
		UnitCost:    cents(10),
		SourceType:  models.StockSourcePurchaseReceipt,
	})
	if !errors.Is(err, utils.ErrItemNotTrackable) {
		t.Errorf("error = %v, want ErrItemNotTrackable", err)
	}

	// The document-posting path passes through silently.
	billItem := &models.BillItem{
		ItemId:      service.ID,
		WarehouseId: warehouse.ID,
		Quantity:    qty("5"),
		UnitCost:    10,
	}
	movement, err := workflow.ProcessStockFromBillItem(ctx, billItem, movementDate(0))
	if err != nil {
		t.Fatalf("ProcessStockFromBillItem: %v", err)
	}
	if movement != nil {
		t.Errorf("expected pass-through, got movement %d", movement.ID)
	}
}

func TestRecordMovement_DefaultWarehouseProvisioned(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "Lazy Warehouse Co")
	item := newTestItem(t, ctx, "Rice", true)

	movement := mustRecord(t, ctx, &workflow.StockMovementInput{
		ItemId:     item.ID,
		Qty:        qty("2"),
		UnitCost:   cents(30),
		SourceType: models.StockSourceInitialStock,
	})
	if movement.WarehouseId == 0 {
		t.Fatal("movement has no warehouse")
	}

	var warehouse models.Warehouse
	if err := config.GetDB().First(&warehouse, movement.WarehouseId).Error; err != nil {
		t.Fatalf("load warehouse: %v", err)
	}
	if warehouse.IsDefault == nil || !*warehouse.IsDefault {
		t.Error("auto-provisioned warehouse is not marked default")
	}

	// A second post reuses it.
	second := mustRecord(t, ctx, &workflow.StockMovementInput{
		ItemId:     item.ID,
		Qty:        qty("1"),
		UnitCost:   cents(30),
		SourceType: models.StockSourceInitialStock,
	})
	if second.WarehouseId != movement.WarehouseId {
		t.Errorf("second movement warehouse = %d, want %d", second.WarehouseId, movement.WarehouseId)
	}
}

func TestRecordMovement_BalanceValueNeverNegative(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "Clamp Co")
	warehouse := newTestWarehouse(t, ctx, "Main")
	item := newTestItem(t, ctx, "Oil", true)

	mustRecord(t, ctx, &workflow.StockMovementInput{
		WarehouseId:  warehouse.ID,
		ItemId:       item.ID,
		Qty:          qty("3"),
		UnitCost:     cents(100),
		SourceType:   models.StockSourceInitialStock,
		MovementDate: movementDate(2),
	})

	// Issue more than is on hand. Quantity may go negative (backorder-style data
	// is tolerated) but recorded value is clamped at zero.
	mustRecord(t, ctx, &workflow.StockMovementInput{
		WarehouseId:  warehouse.ID,
		ItemId:       item.ID,
		Qty:          qty("-5"),
		SourceType:   models.StockSourceSaleIssue,
		MovementDate: movementDate(1),
	})

	stock := warehouseStock(t, ctx, warehouse.ID, item.ID)
	if !stock.Quantity.Equal(qty("-2")) {
		t.Errorf("quantity = %s, want -2", stock.Quantity)
	}
	if stock.TotalValue < 0 {
		t.Errorf("total value = %d, must never be negative", stock.TotalValue)
	}
	if stock.Wac != 0 {
		t.Errorf("wac = %d, want 0 for non-positive quantity", stock.Wac)
	}
}

func TestGetStock_ReadIdempotence(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "Idempotent Co")
	warehouse := newTestWarehouse(t, ctx, "Main")
	item := newTestItem(t, ctx, "Beans", true)

	mustRecord(t, ctx, &workflow.StockMovementInput{
		WarehouseId: warehouse.ID,
		ItemId:      item.ID,
		Qty:         qty("7"),
		UnitCost:    cents(42),
		SourceType:  models.StockSourceInitialStock,
	})

	first := totalStock(t, ctx, item.ID)
	second := totalStock(t, ctx, item.ID)
	if !first.Quantity.Equal(second.Quantity) || first.TotalValue != second.TotalValue || first.Wac != second.Wac {
		t.Errorf("consecutive reads differ: %+v vs %+v", first, second)
	}
}

func TestGetStock_EmptyItemReturnsZeros(t *testing.T) {
	newTestDB(t)
	ctx := newTestCompany(t, "Empty Co")
	warehouse := newTestWarehouse(t, ctx, "Main")
	item := newTestItem(t, ctx, "Nothing yet", true)

	stock := warehouseStock(t, ctx, warehouse.ID, item.ID)
	assertStock(t, stock, "0", 0)
	if stock.Wac != 0 {
		t.Errorf("wac = %d, want 0", stock.Wac)
	}

	aggregate := totalStock(t, ctx, item.ID)
	assertStock(t, aggregate, "0", 0)
}
