// Package position implements the position and P&L tracker: per-symbol
// long/short inventory carried as independent legs, weighted-average
// cost bases, realized and unrealized P&L, pre-trade limit checks, and
// an append-only trade journal.
package position

import "github.com/abhivetukuri/marketmaker/internal/types"

// Position holds one symbol's running inventory. Long and short legs
// are tracked independently and are never netted against each other on
// a trade -- only update_position's own side changes.
type Position struct {
	Symbol        types.SymbolId
	LongQuantity  types.Quantity
	ShortQuantity types.Quantity
	AvgLongPrice  types.Price
	AvgShortPrice types.Price
	RealizedPnL   types.PnL
	UnrealizedPnL types.PnL
	LastUpdate    types.Timestamp
}

// NetPosition returns long minus short (positive is net long).
func (p Position) NetPosition() int64 {
	return int64(p.LongQuantity) - int64(p.ShortQuantity)
}

// TotalPosition returns the sum of both legs' sizes.
func (p Position) TotalPosition() types.Quantity {
	return p.LongQuantity + p.ShortQuantity
}

// IsFlat reports whether both legs are zero.
func (p Position) IsFlat() bool {
	return p.LongQuantity == 0 && p.ShortQuantity == 0
}

// IsLong reports whether the long leg outweighs the short leg.
func (p Position) IsLong() bool { return p.LongQuantity > p.ShortQuantity }

// IsShort reports whether the short leg outweighs the long leg.
func (p Position) IsShort() bool { return p.ShortQuantity > p.LongQuantity }

// Trade is one journal entry recorded per accepted record_trade call.
type Trade struct {
	Symbol    types.SymbolId
	Price     types.Price
	Quantity  types.Quantity
	Side      types.OrderSide
	Timestamp types.Timestamp
	OrderId   types.OrderId
}

// Limits configures pre-trade admission and portfolio-level risk
// checks.
type Limits struct {
	MaxPositionSize  types.Quantity
	MaxLongPosition  types.Quantity
	MaxShortPosition types.Quantity
	MaxDailyLoss     types.PnL
	MaxDrawdown      types.PnL
}

// DefaultLimits returns a conservative starting set of risk limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:  1_000_000,
		MaxLongPosition:  500_000,
		MaxShortPosition: 500_000,
		MaxDailyLoss:     1_000_000,
		MaxDrawdown:      500_000,
	}
}

// Stats summarizes the tracker's book of positions across all symbols.
type Stats struct {
	TotalSymbols          int
	ActivePositions       int
	TotalRealizedPnL      types.PnL
	TotalUnrealizedPnL    types.PnL
	TotalPnL              types.PnL
	MaxPositionSize       types.Quantity
	LargestPositionSymbol types.SymbolId
}
