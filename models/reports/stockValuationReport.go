package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/facturino/books_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type StockValuationResponse struct {
	ItemId      int             `json:"itemId"`
	ItemName    string          `json:"itemName"`
	Sku         string          `json:"sku"`
	StockOnHand decimal.Decimal `json:"stockOnHand"`
	AssetValue  int64           `json:"assetValue"`
	Wac         int64           `json:"wac"`
}

// GetStockValuationReport values every tracked item at its latest ledger balance,
// summed across warehouses. Only the most recent movement per (warehouse, item)
// carries a meaningful balance, so rows are ranked per partition and rank 1 summed.
func GetStockValuationReport(ctx context.Context, companyId int, asOf time.Time, warehouseId int) ([]*StockValuationResponse, error) {

	cacheKey := fmt.Sprintf("report:stock_valuation:%d:%d:%s", companyId, warehouseId, asOf.Format("2006-01-02"))
	if reportCacheEnabled() {
		var cached []*StockValuationResponse
		if ok, err := cacheGet(cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}
	started := time.Now()

	sql := `
SELECT
    i.id AS item_id,
    i.name AS item_name,
    i.sku,
    COALESCE(h.stock_on_hand, 0) AS stock_on_hand,
    COALESCE(h.asset_value, 0) AS asset_value
FROM
    items i
    LEFT JOIN (
        SELECT
            item_id,
            SUM(balance_quantity) AS stock_on_hand,
            SUM(balance_value) AS asset_value
        FROM
            (
                SELECT
                    ROW_NUMBER() OVER (
                        PARTITION BY warehouse_id, item_id
                        ORDER BY movement_date DESC, id DESC
                    ) AS rn,
                    item_id,
                    balance_quantity,
                    balance_value
                FROM
                    stock_movements
                WHERE
                    company_id = @companyId
                    AND movement_date <= @asOf
                    AND (@warehouseId = 0 OR warehouse_id = @warehouseId)
            ) AS ranked
        WHERE
            rn = 1
        GROUP BY
            item_id
    ) AS h ON h.item_id = i.id
WHERE
    i.company_id = @companyId
    AND i.track_quantity = true
    AND (COALESCE(h.stock_on_hand, 0) != 0 OR COALESCE(h.asset_value, 0) != 0)
ORDER BY
    i.name
`

	db := config.GetDB()
	var records []*StockValuationResponse
	err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"companyId":   companyId,
		"asOf":        asOf,
		"warehouseId": warehouseId,
	}).Scan(&records).Error
	if err != nil {
		return nil, err
	}

	for _, r := range records {
		if r.StockOnHand.Sign() > 0 {
			r.Wac = decimal.NewFromInt(r.AssetValue).Div(r.StockOnHand).Round(0).IntPart()
		}
	}

	logSlowReport(ctx, "stock_valuation", started, map[string]any{"warehouseId": warehouseId})
	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, records, reportCacheTTL())
	}
	return records, nil
}

// ExportStockValuationXlsx writes the valuation report as an xlsx workbook.
func ExportStockValuationXlsx(ctx context.Context, companyId int, asOf time.Time, warehouseId int, w io.Writer) error {
	records, err := GetStockValuationReport(ctx, companyId, asOf, warehouseId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Sheet1"

	f.SetCellValue(sheet, "A1", "Item")
	f.SetCellValue(sheet, "B1", "SKU")
	f.SetCellValue(sheet, "C1", "StockOnHand")
	f.SetCellValue(sheet, "D1", "AverageCost")
	f.SetCellValue(sheet, "E1", "AssetValue")

	for i, r := range records {
		row := i + 2
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), r.ItemName)
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), r.Sku)
		f.SetCellValue(sheet, "C"+fmt.Sprint(row), r.StockOnHand.InexactFloat64())
		f.SetCellValue(sheet, "D"+fmt.Sprint(row), r.Wac)
		f.SetCellValue(sheet, "E"+fmt.Sprint(row), r.AssetValue)
	}

	return f.Write(w)
}
