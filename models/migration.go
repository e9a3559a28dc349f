package models

import (
	"log"

	"github.com/facturino/books_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Company{}, &Warehouse{}, &Item{},
		&StockMovement{}, &StockBalance{},
		&Invoice{}, &InvoiceItem{},
		&Bill{}, &BillItem{},
	)
	if err != nil {
		log.Fatal(err)
	}

	// AutoMigrate adds columns but never errors on drift it cannot fix. The
	// running-balance columns are load-bearing for every posting, so refuse to
	// start if they are missing.
	if config.StrictLedgerSchema() {
		for _, column := range []string{"balance_quantity", "balance_value", "total_cost", "source_type"} {
			if !db.Migrator().HasColumn(&StockMovement{}, column) {
				log.Fatalf("stock_movements is missing column %s", column)
			}
		}
	}
}
