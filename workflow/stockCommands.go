package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/models"
	"github.com/facturino/books_backend/utils"
	"github.com/shopspring/decimal"
)

// Convenience wrappers over RecordMovement for the document flows that feed the
// ledger. The direct API raises on non-trackable items; the document-posting
// paths below no-op instead, since most catalog items simply do not participate
// in inventory. That pass-through also applies when stock keeping is disabled
// for the deployment.

func RecordInitialStock(ctx context.Context, itemId int, warehouseId int, qty decimal.Decimal, unitCost int64, movementDate time.Time, note string) (*models.StockMovement, error) {
	return RecordMovement(ctx, &StockMovementInput{
		WarehouseId:  warehouseId,
		ItemId:       itemId,
		Qty:          qty,
		UnitCost:     &unitCost,
		SourceType:   models.StockSourceInitialStock,
		MovementDate: movementDate,
		Note:         note,
	})
}

// RecordStockIn posts a generic receipt at an explicit unit cost.
func RecordStockIn(ctx context.Context, itemId int, warehouseId int, qty decimal.Decimal, unitCost int64, movementDate time.Time, note string) (*models.StockMovement, error) {
	return RecordMovement(ctx, &StockMovementInput{
		WarehouseId:  warehouseId,
		ItemId:       itemId,
		Qty:          qty.Abs(),
		UnitCost:     &unitCost,
		SourceType:   models.StockSourcePurchaseReceipt,
		MovementDate: movementDate,
		Note:         note,
	})
}

// RecordStockOut posts a generic issue costed at the running average.
func RecordStockOut(ctx context.Context, itemId int, warehouseId int, qty decimal.Decimal, movementDate time.Time, note string) (*models.StockMovement, error) {
	return RecordMovement(ctx, &StockMovementInput{
		WarehouseId:  warehouseId,
		ItemId:       itemId,
		Qty:          qty.Abs().Neg(),
		SourceType:   models.StockSourceSaleIssue,
		MovementDate: movementDate,
		Note:         note,
	})
}

// RecordAdjustment posts a manual correction. Positive adjustments require an
// explicit unit cost; negative ones are costed from the running average and must
// not supply one.
func RecordAdjustment(ctx context.Context, itemId int, warehouseId int, qty decimal.Decimal, unitCost *int64, note string) (*models.StockMovement, error) {
	return RecordMovement(ctx, &StockMovementInput{
		WarehouseId: warehouseId,
		ItemId:      itemId,
		Qty:         qty,
		UnitCost:    unitCost,
		SourceType:  models.StockSourceAdjustment,
		Note:        note,
	})
}

// ProcessStockFromBillItem posts one purchase line as an inbound movement.
// Returns the movement, or nil when the line was deliberately passed through.
func ProcessStockFromBillItem(ctx context.Context, billItem *models.BillItem, movementDate time.Time) (*models.StockMovement, error) {
	if !config.StockV1Enabled() {
		return nil, nil
	}
	unitCost := billItem.UnitCost
	movement, err := RecordMovement(ctx, &StockMovementInput{
		WarehouseId:  billItem.WarehouseId,
		ItemId:       billItem.ItemId,
		Qty:          billItem.Quantity,
		UnitCost:     &unitCost,
		SourceType:   models.StockSourcePurchaseReceipt,
		SourceId:     billItem.ID,
		MovementDate: movementDate,
	})
	if errors.Is(err, utils.ErrItemNotTrackable) {
		return nil, nil
	}
	return movement, err
}

// ProcessStockFromInvoiceItem posts one sale line as an outbound movement. Cost
// is never taken from the sale price; the writer derives it from the average.
func ProcessStockFromInvoiceItem(ctx context.Context, invoiceItem *models.InvoiceItem, movementDate time.Time) (*models.StockMovement, error) {
	if !config.StockV1Enabled() {
		return nil, nil
	}
	movement, err := RecordMovement(ctx, &StockMovementInput{
		WarehouseId:  invoiceItem.WarehouseId,
		ItemId:       invoiceItem.ItemId,
		Qty:          invoiceItem.Quantity.Neg(),
		SourceType:   models.StockSourceSaleIssue,
		SourceId:     invoiceItem.ID,
		MovementDate: movementDate,
	})
	if errors.Is(err, utils.ErrItemNotTrackable) {
		return nil, nil
	}
	return movement, err
}

// ProcessStockFromBill posts every line of a bill.
func ProcessStockFromBill(ctx context.Context, bill *models.Bill) error {
	for _, line := range bill.Items {
		if _, err := ProcessStockFromBillItem(ctx, line, bill.BillDate); err != nil {
			return err
		}
	}
	return nil
}

// ProcessStockFromInvoice posts every line of an invoice.
func ProcessStockFromInvoice(ctx context.Context, invoice *models.Invoice) error {
	for _, line := range invoice.Items {
		if _, err := ProcessStockFromInvoiceItem(ctx, line, invoice.InvoiceDate); err != nil {
			return err
		}
	}
	return nil
}
