package dto

import (
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// MaxPageSize bounds TransactionFilters.PageSize.
const MaxPageSize = 500

type TransactionFilters struct {
	Query     string // item name or barcode, case-insensitive
	Type      model.TransactionType
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int // 0 returns every match
}

// Movement is a transaction flattened with the item it belongs to.
type Movement struct {
	model.Transaction
	ItemID      string `json:"itemId"`
	ItemName    string `json:"itemName"`
	ItemBarcode string `json:"itemBarcode"`
}

type SaleResult struct {
	Transactions []model.Transaction `json:"transactions"`
	Items        []model.Item        `json:"items"`
}

type RemovalResult struct {
	Removed    int      `json:"removed"`
	Items      []string `json:"items"`
	NotMatched []string `json:"notMatched,omitempty"`
}
