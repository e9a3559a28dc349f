package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	companyID := flag.Int("company-id", 0, "Required: company id")
	itemID := flag.Int("item-id", 0, "Optional: item id (requires --warehouse-id)")
	warehouseID := flag.Int("warehouse-id", 0, "Optional: warehouse id")
	flag.Parse()

	if *companyID <= 0 {
		fmt.Fprintln(os.Stderr, "--company-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	if *itemID > 0 && *warehouseID > 0 {
		err := db.Transaction(func(tx *gorm.DB) error {
			return workflow.RebuildStockForItemWarehouse(tx, logger, *companyID, *warehouseID, *itemID)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("stock ledger rebuilt")
		return
	}

	if *itemID > 0 || *warehouseID > 0 {
		fmt.Fprintln(os.Stderr, "--item-id and --warehouse-id must be given together")
		os.Exit(1)
	}

	if err := workflow.RebuildStockForCompany(context.Background(), *companyID); err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("stock ledger rebuilt")
}
