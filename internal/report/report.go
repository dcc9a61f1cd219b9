// Package report derives read-only aggregates from item snapshots. Every
// function accepts an empty catalog and returns zero values for it.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/ledger/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// UnbrandedLabel names the bucket for items without a brand.
const UnbrandedLabel = "Unbranded"

// DefaultUnassignedChannel receives OUT transactions that carry no channel.
const DefaultUnassignedChannel = model.ChannelRetail

const (
	DefaultTurnoverLimit    = 10
	DefaultTopProductsLimit = 8
	DefaultNoSalesLimit     = 6
	DefaultRecentLimit      = 5
	DefaultRecentSalesLimit = 8
	DefaultCriticalStock    = 5
)

func qty(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

type SalesSummary struct {
	Period           Period          `json:"period"`
	Revenue          decimal.Decimal `json:"revenue"`
	Quantity         int             `json:"quantity"`
	AverageUnitPrice decimal.Decimal `json:"averageUnitPrice"`
	TransactionCount int             `json:"transactionCount"`
}

// PeriodSales sums quantity × sellPrice over OUT transactions in p.
func PeriodSales(items []model.Item, p Period) SalesSummary {
	s := SalesSummary{Period: p, Revenue: decimal.Zero, AverageUnitPrice: decimal.Zero}
	for _, it := range items {
		for _, tx := range it.Transactions {
			if tx.Type != model.TransactionOut || !p.Contains(tx.Date) {
				continue
			}
			s.Revenue = s.Revenue.Add(qty(tx.Quantity).Mul(it.SellPrice))
			s.Quantity += tx.Quantity
			s.TransactionCount++
		}
	}
	if s.Quantity > 0 {
		s.AverageUnitPrice = s.Revenue.DivRound(qty(s.Quantity), 2)
	}
	return s
}

type PurchaseSummary struct {
	Period           Period          `json:"period"`
	Cost             decimal.Decimal `json:"cost"`
	Quantity         int             `json:"quantity"`
	TransactionCount int             `json:"transactionCount"`
}

// PeriodPurchases sums quantity × buyPrice over IN transactions in p.
func PeriodPurchases(items []model.Item, p Period) PurchaseSummary {
	s := PurchaseSummary{Period: p, Cost: decimal.Zero}
	for _, it := range items {
		for _, tx := range it.Transactions {
			if tx.Type != model.TransactionIn || !p.Contains(tx.Date) {
				continue
			}
			s.Cost = s.Cost.Add(qty(tx.Quantity).Mul(it.BuyPrice))
			s.Quantity += tx.Quantity
			s.TransactionCount++
		}
	}
	return s
}

type ValuationLine struct {
	ItemID   string          `json:"itemId"`
	Name     string          `json:"name"`
	Barcode  string          `json:"barcode"`
	Quantity int             `json:"quantity"`
	BuyPrice decimal.Decimal `json:"buyPrice"`
	Value    decimal.Decimal `json:"value"`
}

type Valuation struct {
	AsOf          time.Time       `json:"asOf"`
	Lines         []ValuationLine `json:"lines"`
	TotalValue    decimal.Decimal `json:"totalValue"`
	TotalQuantity int             `json:"totalQuantity"`
	ProductCount  int             `json:"productCount"`
}

// InventoryAsOf reconstructs stock at cutoff. Only items with a positive
// reconstructed quantity are counted.
func InventoryAsOf(items []model.Item, cutoff time.Time) Valuation {
	v := Valuation{AsOf: cutoff, Lines: []ValuationLine{}, TotalValue: decimal.Zero}
	for _, it := range items {
		q := ledger.QuantityAsOf(it, cutoff)
		if q <= 0 {
			continue
		}
		value := qty(q).Mul(it.BuyPrice)
		v.Lines = append(v.Lines, ValuationLine{
			ItemID:   it.ID,
			Name:     it.Name,
			Barcode:  it.Barcode,
			Quantity: q,
			BuyPrice: it.BuyPrice,
			Value:    value,
		})
		v.TotalValue = v.TotalValue.Add(value)
		v.TotalQuantity += q
		v.ProductCount++
	}
	return v
}

// Weights balance velocity against raw volume in the turnover score.
type Weights struct {
	Velocity float64 `json:"velocity"`
	Volume   float64 `json:"volume"`
}

var DefaultWeights = Weights{Velocity: 0.7, Volume: 0.3}

type TurnoverEntry struct {
	ItemID       string          `json:"itemId"`
	Name         string          `json:"name"`
	Brand        string          `json:"brand,omitempty"`
	InQty        int             `json:"inQty"`
	OutQty       int             `json:"outQty"`
	StartQty     int             `json:"startQty"`
	CurrentQty   int             `json:"currentQty"`
	AvgStock     float64         `json:"avgStock"`
	TurnoverRate float64         `json:"turnoverRate"`
	Revenue      decimal.Decimal `json:"revenue"`
	Score        int             `json:"score"`
}

// Turnover ranks items by sell-through in p. Items with no OUT movement are
// left out; the best remaining item scores 100. Ties keep catalog order.
func Turnover(items []model.Item, p Period, w Weights, limit int) []TurnoverEntry {
	entries := []TurnoverEntry{}
	for _, it := range items {
		e := TurnoverEntry{ItemID: it.ID, Name: it.Name, Brand: it.Brand, CurrentQty: it.Quantity}
		for _, tx := range it.Transactions {
			if !p.Contains(tx.Date) {
				continue
			}
			switch tx.Type {
			case model.TransactionIn:
				e.InQty += tx.Quantity
			case model.TransactionOut:
				e.OutQty += tx.Quantity
			}
		}
		if e.OutQty == 0 {
			continue
		}
		e.StartQty = e.CurrentQty - e.InQty + e.OutQty
		e.AvgStock = math.Max(1, float64(e.StartQty+e.CurrentQty)/2)
		e.TurnoverRate = float64(e.OutQty) / e.AvgStock
		e.Revenue = qty(e.OutQty).Mul(it.SellPrice)
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return entries
	}

	var maxRate, maxOut float64
	for _, e := range entries {
		maxRate = math.Max(maxRate, e.TurnoverRate)
		maxOut = math.Max(maxOut, float64(e.OutQty))
	}
	raw := make([]float64, len(entries))
	var maxRaw float64
	for i, e := range entries {
		raw[i] = w.Velocity*(e.TurnoverRate/nonZero(maxRate)) + w.Volume*(float64(e.OutQty)/nonZero(maxOut))
		maxRaw = math.Max(maxRaw, raw[i])
	}
	for i := range entries {
		entries[i].Score = int(math.Round(100 * raw[i] / nonZero(maxRaw)))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return capped(entries, limit)
}

func nonZero(f float64) float64 {
	if f == 0 {
		return 1
	}
	return f
}

func capped[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

type ProductSales struct {
	ItemID   string          `json:"itemId"`
	Name     string          `json:"name"`
	Image    string          `json:"image,omitempty"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// TopProducts groups OUT transactions in p per item, best sellers first.
func TopProducts(items []model.Item, p Period, limit int) []ProductSales {
	out := []ProductSales{}
	for _, it := range items {
		ps := ProductSales{ItemID: it.ID, Name: it.Name, Image: it.Image, Revenue: decimal.Zero}
		for _, tx := range it.Transactions {
			if tx.Type == model.TransactionOut && p.Contains(tx.Date) {
				ps.Quantity += tx.Quantity
				ps.Revenue = ps.Revenue.Add(qty(tx.Quantity).Mul(it.SellPrice))
			}
		}
		if ps.Quantity > 0 {
			out = append(out, ps)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Quantity > out[j].Quantity
	})
	return capped(out, limit)
}

type BrandBucket struct {
	Brand          string          `json:"brand"`
	ProductCount   int             `json:"productCount"`
	TotalQuantity  int             `json:"totalQuantity"`
	TotalBuyValue  decimal.Decimal `json:"totalBuyValue"`
	TotalSellValue decimal.Decimal `json:"totalSellValue"`
}

// BrandSummary buckets items by brand, largest buckets first.
func BrandSummary(items []model.Item) []BrandBucket {
	out := []BrandBucket{}
	index := map[string]int{}
	for _, it := range items {
		brand := it.Brand
		if brand == "" {
			brand = UnbrandedLabel
		}
		i, ok := index[brand]
		if !ok {
			i = len(out)
			index[brand] = i
			out = append(out, BrandBucket{Brand: brand, TotalBuyValue: decimal.Zero, TotalSellValue: decimal.Zero})
		}
		b := &out[i]
		b.ProductCount++
		b.TotalQuantity += it.Quantity
		b.TotalBuyValue = b.TotalBuyValue.Add(qty(it.Quantity).Mul(it.BuyPrice))
		b.TotalSellValue = b.TotalSellValue.Add(qty(it.Quantity).Mul(it.SellPrice))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProductCount > out[j].ProductCount
	})
	return out
}

type ChannelTotals struct {
	Channel   model.Channel   `json:"channel"`
	Quantity  int             `json:"quantity"`
	BuyTotal  decimal.Decimal `json:"buyTotal"`
	SellTotal decimal.Decimal `json:"sellTotal"`
}

// ChannelSummary splits OUT transactions in p by channel. Every known channel
// is present in the result, in model.Channels order.
func ChannelSummary(items []model.Item, p Period) []ChannelTotals {
	out := make([]ChannelTotals, len(model.Channels))
	index := map[model.Channel]int{}
	for i, c := range model.Channels {
		out[i] = ChannelTotals{Channel: c, BuyTotal: decimal.Zero, SellTotal: decimal.Zero}
		index[c] = i
	}
	for _, it := range items {
		for _, tx := range it.Transactions {
			if tx.Type != model.TransactionOut || !p.Contains(tx.Date) {
				continue
			}
			c := tx.Channel
			if c == model.ChannelNone {
				c = DefaultUnassignedChannel
			}
			i, ok := index[c]
			if !ok {
				continue
			}
			out[i].Quantity += tx.Quantity
			out[i].BuyTotal = out[i].BuyTotal.Add(qty(tx.Quantity).Mul(it.BuyPrice))
			out[i].SellTotal = out[i].SellTotal.Add(qty(tx.Quantity).Mul(it.SellPrice))
		}
	}
	return out
}

type ItemRef struct {
	ItemID   string `json:"itemId"`
	Name     string `json:"name"`
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
}

func refOf(it model.Item) ItemRef {
	return ItemRef{ItemID: it.ID, Name: it.Name, Barcode: it.Barcode, Quantity: it.Quantity}
}

type StockHealthSummary struct {
	Threshold       int             `json:"threshold"`
	Critical        int             `json:"critical"`
	OutOfStock      int             `json:"outOfStock"`
	InStock         int             `json:"inStock"`
	AverageBuyPrice decimal.Decimal `json:"averageBuyPrice"`
	MaxSellPrice    decimal.Decimal `json:"maxSellPrice"`
	CriticalItems   []ItemRef       `json:"criticalItems"`
}

// StockHealth counts critical (0 < q ≤ threshold), out of stock (q ≤ 0) and
// in stock (q > 0) items.
func StockHealth(items []model.Item, threshold int) StockHealthSummary {
	s := StockHealthSummary{
		Threshold:       threshold,
		AverageBuyPrice: decimal.Zero,
		MaxSellPrice:    decimal.Zero,
		CriticalItems:   []ItemRef{},
	}
	sumBuy := decimal.Zero
	for _, it := range items {
		switch {
		case it.Quantity <= 0:
			s.OutOfStock++
		case it.Quantity <= threshold:
			s.Critical++
			s.InStock++
			s.CriticalItems = append(s.CriticalItems, refOf(it))
		default:
			s.InStock++
		}
		sumBuy = sumBuy.Add(it.BuyPrice)
		if it.SellPrice.GreaterThan(s.MaxSellPrice) {
			s.MaxSellPrice = it.SellPrice
		}
	}
	if len(items) > 0 {
		s.AverageBuyPrice = sumBuy.DivRound(qty(len(items)), 2)
	}
	return s
}

// NoSales lists items without any OUT transaction in p, in catalog order.
func NoSales(items []model.Item, p Period, limit int) []ItemRef {
	out := []ItemRef{}
	for _, it := range items {
		sold := false
		for _, tx := range it.Transactions {
			if tx.Type == model.TransactionOut && p.Contains(tx.Date) {
				sold = true
				break
			}
		}
		if !sold {
			out = append(out, refOf(it))
		}
	}
	return capped(out, limit)
}

type OverviewSummary struct {
	ItemCount          int             `json:"itemCount"`
	TotalQuantity      int             `json:"totalQuantity"`
	TotalBuyValue      decimal.Decimal `json:"totalBuyValue"`
	PotentialSellValue decimal.Decimal `json:"potentialSellValue"`
}

func Overview(items []model.Item) OverviewSummary {
	s := OverviewSummary{ItemCount: len(items), TotalBuyValue: decimal.Zero, PotentialSellValue: decimal.Zero}
	for _, it := range items {
		s.TotalQuantity += it.Quantity
		s.TotalBuyValue = s.TotalBuyValue.Add(qty(it.Quantity).Mul(it.BuyPrice))
		s.PotentialSellValue = s.PotentialSellValue.Add(qty(it.Quantity).Mul(it.SellPrice))
	}
	return s
}

// RecentTransactions returns the newest movements across the catalog. With
// onlyOut set, untagged sales are shown under DefaultUnassignedChannel.
func RecentTransactions(items []model.Item, limit int, onlyOut bool) []dto.Movement {
	out := []dto.Movement{}
	for _, it := range items {
		for _, tx := range it.Transactions {
			if onlyOut {
				if tx.Type != model.TransactionOut {
					continue
				}
				if tx.Channel == model.ChannelNone {
					tx.Channel = DefaultUnassignedChannel
				}
			}
			out = append(out, dto.Movement{Transaction: tx, ItemID: it.ID, ItemName: it.Name, ItemBarcode: it.Barcode})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return capped(out, limit)
}
