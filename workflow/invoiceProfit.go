package workflow

import (
	"context"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/models"
	"github.com/facturino/books_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CostSource says which rung of the attribution chain produced a line's cost.
// Consumers must treat CostSourceNone as "margin unavailable", never as zero cost.
type CostSource string

const (
	CostSourceMovement     CostSource = "movement"
	CostSourcePriorBalance CostSource = "prior_balance"
	CostSourceCurrentWac   CostSource = "current_wac"
	CostSourceNone         CostSource = "no_cost"
)

type LineCost struct {
	UnitCost  int64      `json:"unit_cost"`
	TotalCost int64      `json:"total_cost"`
	Source    CostSource `json:"source"`
	Available bool       `json:"available"`
}

// ResolveLineCost attributes a per-unit cost to one sold line, preferring the
// most historically accurate source and degrading explicitly:
//
//  1. the line's own outbound movement, which froze the average at time of sale
//  2. the ledger balance immediately preceding that movement
//  3. the item's current average, which reflects present cost, not cost-at-sale
//  4. no_cost, an explicit unavailable result
func ResolveLineCost(ctx context.Context, companyId int, line *models.InvoiceItem) (*LineCost, error) {

	db := config.GetDB()
	qty := line.Quantity.Abs()

	var movement models.StockMovement
	err := db.WithContext(ctx).
		Where("company_id = ? AND source_type = ? AND source_id = ? AND is_reversal = ?",
			companyId, models.StockSourceSaleIssue, line.ID, false).
		Order("id DESC").
		First(&movement).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if err == nil {
		if movement.UnitCost.Valid {
			return &LineCost{
				UnitCost:  movement.UnitCost.Decimal.Round(0).IntPart(),
				TotalCost: movement.TotalCost,
				Source:    CostSourceMovement,
				Available: true,
			}, nil
		}

		prior, err := priorMovement(db.WithContext(ctx), &movement)
		if err != nil {
			return nil, err
		}
		if prior != nil && prior.BalanceQuantity.Sign() > 0 {
			wac := models.ExactWac(prior.BalanceQuantity, prior.BalanceValue)
			return &LineCost{
				UnitCost:  wac.Round(0).IntPart(),
				TotalCost: utils.RoundCents(qty.Mul(wac)),
				Source:    CostSourcePriorBalance,
				Available: true,
			}, nil
		}
	}

	stock, err := models.GetItemStock(ctx, companyId, line.ItemId)
	if err != nil {
		return nil, err
	}
	if stock.Quantity.Sign() > 0 {
		wac := models.ExactWac(stock.Quantity, stock.TotalValue)
		return &LineCost{
			UnitCost:  stock.Wac,
			TotalCost: utils.RoundCents(qty.Mul(wac)),
			Source:    CostSourceCurrentWac,
			Available: true,
		}, nil
	}

	return &LineCost{Source: CostSourceNone, Available: false}, nil
}

// priorMovement returns the row immediately preceding m in its triple's
// (movement_date, id) order, or nil when m is the first.
func priorMovement(tx *gorm.DB, m *models.StockMovement) (*models.StockMovement, error) {
	var prior models.StockMovement
	err := tx.Where("company_id = ? AND warehouse_id = ? AND item_id = ?",
		m.CompanyId, m.WarehouseId, m.ItemId).
		Where("movement_date < ? OR (movement_date = ? AND id < ?)",
			m.MovementDate, m.MovementDate, m.ID).
		Order("movement_date DESC, id DESC").
		First(&prior).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prior, nil
}

type InvoiceProfitLine struct {
	InvoiceItemId int             `json:"invoice_item_id"`
	ItemId        int             `json:"item_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Revenue       int64           `json:"revenue"`
	Cost          int64           `json:"cost"`
	CostSource    CostSource      `json:"cost_source"`
	CostAvailable bool            `json:"cost_available"`
	GrossProfit   int64           `json:"gross_profit"`
}

type InvoiceProfit struct {
	InvoiceId     int                  `json:"invoice_id"`
	Revenue       int64                `json:"revenue"`
	Cost          int64                `json:"cost"`
	GrossProfit   int64                `json:"gross_profit"`
	CostAvailable bool                 `json:"cost_available"`
	Lines         []*InvoiceProfitLine `json:"lines"`
}

// GetInvoiceProfit computes revenue, COGS and gross margin per line and in
// aggregate. If any line resolves to no_cost, the aggregate is flagged
// unavailable rather than understated.
func GetInvoiceProfit(ctx context.Context, invoiceId int) (*InvoiceProfit, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == 0 {
		return nil, utils.NewValidationError("company id is required")
	}

	invoice, err := models.GetInvoice(ctx, companyId, invoiceId)
	if err != nil {
		return nil, err
	}

	profit := InvoiceProfit{
		InvoiceId:     invoice.ID,
		CostAvailable: true,
	}
	for _, line := range invoice.Items {
		cost, err := ResolveLineCost(ctx, companyId, line)
		if err != nil {
			return nil, err
		}
		revenue := utils.RoundCents(line.Quantity.Mul(decimal.NewFromInt(line.UnitPrice)))
		profitLine := InvoiceProfitLine{
			InvoiceItemId: line.ID,
			ItemId:        line.ItemId,
			Quantity:      line.Quantity,
			Revenue:       revenue,
			CostSource:    cost.Source,
			CostAvailable: cost.Available,
		}
		profit.Revenue += revenue
		if cost.Available {
			profitLine.Cost = cost.TotalCost
			profitLine.GrossProfit = revenue - cost.TotalCost
			profit.Cost += cost.TotalCost
		} else {
			profit.CostAvailable = false
		}
		profit.Lines = append(profit.Lines, &profitLine)
	}
	if profit.CostAvailable {
		profit.GrossProfit = profit.Revenue - profit.Cost
	}
	return &profit, nil
}
