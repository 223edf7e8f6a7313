// Package model holds the plain data types shared across the pipeline:
// instruments, decoded ticks, and the snapshot rows built from them.
//
// Prices are carried as integers in hundredths of the quoted currency
// throughout the pipeline. Conversion to decimal happens only at the
// rendering boundary (internal/view, internal/alert) to avoid accumulated
// float error in threshold comparisons.
package model

import "time"

// Mode identifies which fields a decoded Tick carries, inferred from the
// wire frame's length.
type Mode int

const (
	ModeLTP Mode = iota
	ModeIndexQuote
	ModeQuote
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeLTP:
		return "ltp"
	case ModeIndexQuote:
		return "index_quote"
	case ModeQuote:
		return "quote"
	case ModeFull:
		return "full"
	default:
		return "unknown"
	}
}

// SubscriptionMode is the wire-level mode name sent in a `{"a":"mode",...}`
// control frame. It is coarser than Mode: the broker only distinguishes
// ltp/quote/full, never index_quote (that mode is a server-side artifact
// of index instruments, not something a client requests).
type SubscriptionMode string

const (
	SubModeLTP   SubscriptionMode = "ltp"
	SubModeQuote SubscriptionMode = "quote"
	SubModeFull  SubscriptionMode = "full"
)

// Instrument is immutable after catalog load.
type Instrument struct {
	Token  uint32
	Symbol string
	Name   string
}

// OHLC holds the current session's open/high/low/close, each a fixed-point
// integer price in hundredths.
type OHLC struct {
	Open  int64
	High  int64
	Low   int64
	Close int64
}

// DepthLevel is a single bid/ask level: quantity, fixed-point price, and
// the number of resting orders at that price.
type DepthLevel struct {
	Quantity   uint32
	Price      int64
	OrderCount uint16
}

// Depth holds the broker's 5-level order book snapshot on each side.
type Depth struct {
	Buy  [5]DepthLevel
	Sell [5]DepthLevel
}

// Tick is one decoded market-data record for one instrument.
//
// Which fields beyond Token/Mode/LastPrice are populated depends on Mode:
// QUOTE and above populate LastTradedQty..Change; FULL additionally
// populates LastTradeTime..Depth.
type Tick struct {
	Token     uint32
	Mode      Mode
	LastPrice int64 // hundredths

	LastTradedQty  uint32
	AvgTradedPrice int64 // hundredths
	VolumeTraded   uint32
	TotalBuyQty    uint32
	TotalSellQty   uint32
	OHLC           OHLC
	Change         int64 // hundredths; LastPrice - OHLC.Close

	LastTradeTime     time.Time
	OI                uint32
	OIDayHigh         uint32
	OIDayLow          uint32
	ExchangeTimestamp time.Time
	Depth             Depth
}

// SnapshotEntry is the most recently observed state for one instrument,
// keyed by Token in the snapshot store.
type SnapshotEntry struct {
	Instrument Instrument
	LastPrice  int64 // hundredths
	Change     int64 // hundredths
	Volume     uint32
	OHLC       OHLC
	Depth      Depth
	BuyQty     uint32
	SellQty    uint32
	AvgPrice   int64 // hundredths
	LastQty    uint32
	ObservedAt time.Time
}

// Delta is the result of applying a new Tick over a pre-existing
// SnapshotEntry: the prior state and the newly-applied state.
type Delta struct {
	Old SnapshotEntry
	New SnapshotEntry
}
