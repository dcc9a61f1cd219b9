package model

import "github.com/shopspring/decimal"

// DefaultVatRate applies when an item is created without an explicit VAT rate.
var DefaultVatRate = decimal.NewFromInt(20)

// Item is a catalog entry. Quantity is a cached projection of Transactions and
// only changes through the ledger.
type Item struct {
	BaseModel
	Barcode      string          `db:"barcode" json:"barcode"`
	StockCode    string          `db:"stock_code" json:"stockCode,omitempty"`
	Name         string          `db:"name" json:"name"`
	Image        string          `db:"image" json:"image,omitempty"`
	Description  string          `db:"description" json:"description,omitempty"`
	Brand        string          `db:"brand" json:"brand,omitempty"`
	VatRate      decimal.Decimal `db:"vat_rate" json:"vatRate"`
	BuyPrice     decimal.Decimal `db:"buy_price" json:"buyPrice"`
	SellPrice    decimal.Decimal `db:"sell_price" json:"sellPrice"`
	Quantity     int             `db:"quantity" json:"quantity"`
	Transactions []Transaction   `db:"-" json:"transactions"`
}

// Clone returns a copy that shares no transaction storage with i.
func (i Item) Clone() Item {
	c := i
	if i.Transactions != nil {
		c.Transactions = make([]Transaction, len(i.Transactions))
		copy(c.Transactions, i.Transactions)
	}
	return c
}
