package dto

import "github.com/shopspring/decimal"

type CreateItemInput struct {
	Barcode     string           `json:"barcode"`
	StockCode   string           `json:"stockCode"`
	Name        string           `json:"name"`
	Image       string           `json:"image"`
	Description string           `json:"description"`
	Brand       string           `json:"brand"`
	VatRate     *decimal.Decimal `json:"vatRate"`
	BuyPrice    decimal.Decimal  `json:"buyPrice"`
	SellPrice   decimal.Decimal  `json:"sellPrice"`
	Quantity    int              `json:"quantity"` // recorded as an initial IN transaction
}

// UpdateItemInput carries descriptive and pricing fields. Nil fields are left
// unchanged. Quantity is not editable here.
type UpdateItemInput struct {
	ID          string           `json:"-"`
	Barcode     *string          `json:"barcode"`
	StockCode   *string          `json:"stockCode"`
	Name        *string          `json:"name"`
	Image       *string          `json:"image"`
	Description *string          `json:"description"`
	Brand       *string          `json:"brand"`
	VatRate     *decimal.Decimal `json:"vatRate"`
	BuyPrice    *decimal.Decimal `json:"buyPrice"`
	SellPrice   *decimal.Decimal `json:"sellPrice"`
}

// ImportRow is one already-typed spreadsheet row.
type ImportRow struct {
	Barcode   string           `json:"barcode"`
	StockCode string           `json:"stockCode"`
	Name      string           `json:"name"`
	Brand     string           `json:"brand"`
	VatRate   *decimal.Decimal `json:"vatRate"`
	BuyPrice  decimal.Decimal  `json:"buyPrice"`
	SellPrice decimal.Decimal  `json:"sellPrice"`
	Quantity  int              `json:"quantity"`
}
