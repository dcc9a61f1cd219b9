package model

import (
	"strings"
	"time"
)

type TransactionType string

const (
	TransactionIn  TransactionType = "IN"
	TransactionOut TransactionType = "OUT"
)

func (t TransactionType) Valid() bool {
	return t == TransactionIn || t == TransactionOut
}

// Channel classifies an OUT transaction for reporting. The zero value means untagged.
type Channel string

const (
	ChannelNone        Channel = ""
	ChannelMarketplace Channel = "Marketplace"
	ChannelRetail      Channel = "Retail"
	ChannelWholesale   Channel = "Wholesale"
)

// Channels lists every known channel in report order.
var Channels = []Channel{ChannelMarketplace, ChannelRetail, ChannelWholesale}

// legacyChannels maps labels stored by the previous Turkish-language frontend.
var legacyChannels = map[string]Channel{
	"pazaryeri": ChannelMarketplace,
	"perakende": ChannelRetail,
	"toptan":    ChannelWholesale,
}

// ParseChannel accepts canonical names case-insensitively as well as legacy
// labels. ok is false for anything else.
func ParseChannel(s string) (Channel, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChannelNone, true
	}
	for _, c := range Channels {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	if c, ok := legacyChannels[strings.ToLower(s)]; ok {
		return c, true
	}
	return ChannelNone, false
}

type Transaction struct {
	ID        string          `db:"id" json:"id"`
	ItemID    string          `db:"item_id" json:"-"`
	Date      time.Time       `db:"date" json:"date"`
	Type      TransactionType `db:"type" json:"type"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Channel   Channel         `db:"channel" json:"channel,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}
