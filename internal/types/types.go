// Package types defines the fixed-point numeric types and identifiers
// shared by the order book, position tracker, feed adapter, and
// scenario driver.
package types

import "time"

// Price is a signed fixed-point integer in ticks. One tick is 1/10000
// of a dollar.
type Price int64

// TicksPerDollar is the fixed-point scale: one dollar equals this many
// ticks.
const TicksPerDollar Price = 10000

// PriceFromDollars converts a decimal-dollar float into Price ticks.
func PriceFromDollars(dollars float64) Price {
	return Price(dollars*float64(TicksPerDollar) + 0.5)
}

// Dollars converts Price ticks back into a decimal-dollar float.
func (p Price) Dollars() float64 {
	return float64(p) / float64(TicksPerDollar)
}

// Quantity is shares, always non-negative.
type Quantity uint32

// PnL is signed, in the same unit as Price*Quantity (ticks * shares).
type PnL int64

// OrderId identifies an order within a book for its lifetime.
type OrderId uint64

// SymbolId identifies a symbol across the book registry, position
// tracker, feed adapter, and scenario driver.
type SymbolId uint16

// Timestamp is nanoseconds from a monotonic source.
type Timestamp uint64

// processStart anchors Now to the monotonic clock reading taken when
// the package is initialized.
var processStart = time.Now()

// Now returns the current Timestamp using the monotonic clock, as
// nanoseconds elapsed since processStart.
func Now() Timestamp {
	return Timestamp(time.Since(processStart))
}

// OrderSide is buy or sell.
type OrderSide uint8

const (
	Buy OrderSide = iota
	Sell
)

func (s OrderSide) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// OrderType distinguishes limit, market, and stop orders. Stop is
// carried for completeness; nothing in this repository triggers a
// stop order.
type OrderType uint8

const (
	Limit OrderType = iota
	Market
	Stop
)

// OrderStatus tracks an order's lifecycle within a book.
type OrderStatus uint8

const (
	Pending OrderStatus = iota
	Active
	Filled
	Cancelled
	Rejected
)
