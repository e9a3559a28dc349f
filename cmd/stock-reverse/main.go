package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/facturino/books_backend/config"
	"github.com/facturino/books_backend/models"
	"github.com/facturino/books_backend/utils"
	"github.com/facturino/books_backend/workflow"
	"gorm.io/gorm"
)

func main() {
	companyID := flag.Int("company-id", 0, "Required: company id")
	movementID := flag.Int("movement-id", 0, "Required: stock_movements.id to reverse")
	reason := flag.String("reason", "Manual ledger correction", "Reversal reason")
	dryRun := flag.Bool("dry-run", true, "Show record only (no writes)")
	confirm := flag.String("confirm", "", "Type REVERSE to proceed when dry-run=false")
	flag.Parse()

	if *companyID <= 0 || *movementID <= 0 {
		fmt.Fprintln(os.Stderr, "--company-id and --movement-id are required")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "REVERSE" {
		fmt.Fprintln(os.Stderr, "set --confirm=REVERSE to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	if *dryRun {
		printRecord(db, *companyID, *movementID)
		return
	}

	ctx := utils.SetCompanyIdInContext(context.Background(), *companyID)
	reversal, err := workflow.ReverseMovement(ctx, *movementID, *reason)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reverse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("movement %d reversed by %d\n", *movementID, reversal.ID)
}

func printRecord(db *gorm.DB, companyID int, movementID int) {
	var movement models.StockMovement
	err := db.Where("company_id = ? AND id = ?", companyID, movementID).
		First(&movement).Error
	if err != nil {
		fmt.Fprintf(os.Stderr, "not found: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(movement, "", "  ")
	fmt.Println(string(out))
}
