package dto

import "time"

type PostTransactionInput struct {
	ItemID   string
	Type     string
	Quantity int
	Channel  string
	Date     *time.Time // defaults to now
}

type ReceiveInput struct {
	Barcode  string
	Quantity int // defaults to 1
}

type SaleLine struct {
	ItemID   string `json:"itemId"`
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
}

type SaleInput struct {
	Lines   []SaleLine
	Channel string // defaults to Marketplace
	Date    *time.Time
}
