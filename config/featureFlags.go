package config

import (
	"os"
	"strings"
)

// StockV1Enabled gates the document-posting convenience paths of the stock module.
// The core ledger API is always available; this flag only controls whether bill and
// invoice postings automatically produce stock movements.
//
// Set via env:
// - STOCK_V1_ENABLED=false to disable (default: enabled)
func StockV1Enabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STOCK_V1_ENABLED")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// StrictLedgerSchema enables strict schema enforcement for stock_movements on startup.
//
// Set via env:
// - LEDGER_STRICT_SCHEMA=false to skip (default: enabled)
func StrictLedgerSchema() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("LEDGER_STRICT_SCHEMA")))
	return v != "false" && v != "0" && v != "no"
}
