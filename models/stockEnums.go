package models

// StockSourceType tags each stock movement with the document event that produced it.
// Cost derivation and reversal pricing branch on this, so the set is closed.
type StockSourceType string

const (
	StockSourcePurchaseReceipt StockSourceType = "purchase_receipt"
	StockSourceSaleIssue       StockSourceType = "sale_issue"
	StockSourceAdjustment      StockSourceType = "adjustment"
	StockSourceInitialStock    StockSourceType = "initial_stock"
	StockSourceTransferOut     StockSourceType = "transfer_out"
	StockSourceTransferIn      StockSourceType = "transfer_in"
)

var stockSourceTypes = map[StockSourceType]bool{
	StockSourcePurchaseReceipt: true,
	StockSourceSaleIssue:       true,
	StockSourceAdjustment:      true,
	StockSourceInitialStock:    true,
	StockSourceTransferOut:     true,
	StockSourceTransferIn:      true,
}

func (t StockSourceType) IsValid() bool {
	return stockSourceTypes[t]
}

func (t StockSourceType) IsTransfer() bool {
	return t == StockSourceTransferOut || t == StockSourceTransferIn
}
