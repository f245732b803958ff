package position

import (
	"sort"
	"sync"

	"github.com/abhivetukuri/marketmaker/internal/types"
)

// Tracker is the position and P&L tracker. Its mutex is independent of
// any order book's mutex and must never be held while acquiring one --
// callers (the scenario driver, the feed adapter) invoke book
// operations and RecordTrade as separate, sequential calls.
type Tracker struct {
	mu            sync.Mutex
	positions     map[types.SymbolId]*Position
	tradeHistory  map[types.SymbolId][]Trade
	limits        Limits
}

// NewTracker creates a tracker with the given limits.
func NewTracker(limits Limits) *Tracker {
	return &Tracker{
		positions:    make(map[types.SymbolId]*Position),
		tradeHistory: make(map[types.SymbolId][]Trade),
		limits:       limits,
	}
}

// RecordTrade appends a journal entry, computes realized P&L against
// the pre-trade opposite-side average price, and updates the traded
// side's weighted-average price and quantity. Always returns true.
func (t *Tracker) RecordTrade(symbol types.SymbolId, price types.Price, qty types.Quantity, side types.OrderSide, orderId types.OrderId) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := types.Now()
	t.tradeHistory[symbol] = append(t.tradeHistory[symbol], Trade{
		Symbol: symbol, Price: price, Quantity: qty, Side: side, Timestamp: now, OrderId: orderId,
	})

	pos := t.positionLocked(symbol)
	realized := calculateRealizedPnL(pos, price, qty, side)
	pos.RealizedPnL += realized

	updatePositionLeg(pos, price, qty, side)
	pos.LastUpdate = now

	return true
}

// RestorePosition installs pos for symbol directly, bypassing trade-by-
// trade P&L accumulation. Used only to rebuild the position map from a
// snapshot, where every field -- including RealizedPnL -- is already
// known and must be reproduced exactly rather than recomputed.
func (t *Tracker) RestorePosition(symbol types.SymbolId, pos Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos.Symbol = symbol
	t.positions[symbol] = &pos
}

func (t *Tracker) positionLocked(symbol types.SymbolId) *Position {
	pos, ok := t.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		t.positions[symbol] = pos
	}
	return pos
}

// calculateRealizedPnL computes P&L from closing the opposite,
// untouched side. Buying against an outstanding short realizes
// (avg_short - price) * min(qty, short_qty); selling against an
// outstanding long realizes (price - avg_long) * min(qty, long_qty).
func calculateRealizedPnL(pos *Position, price types.Price, qty types.Quantity, side types.OrderSide) types.PnL {
	if side == types.Buy {
		if pos.ShortQuantity == 0 {
			return 0
		}
		cover := qty
		if pos.ShortQuantity < cover {
			cover = pos.ShortQuantity
		}
		return types.PnL(pos.AvgShortPrice-price) * types.PnL(cover)
	}
	if pos.LongQuantity == 0 {
		return 0
	}
	sell := qty
	if pos.LongQuantity < sell {
		sell = pos.LongQuantity
	}
	return types.PnL(price-pos.AvgLongPrice) * types.PnL(sell)
}

// updatePositionLeg applies the trade to the same side being traded,
// leaving the opposite leg untouched -- long and short are independent.
func updatePositionLeg(pos *Position, price types.Price, qty types.Quantity, side types.OrderSide) {
	if side == types.Buy {
		if pos.LongQuantity == 0 {
			pos.AvgLongPrice = price
		} else {
			totalValue := types.PnL(pos.AvgLongPrice)*types.PnL(pos.LongQuantity) + types.PnL(price)*types.PnL(qty)
			pos.AvgLongPrice = types.Price(totalValue / types.PnL(pos.LongQuantity+qty))
		}
		pos.LongQuantity += qty
		return
	}
	if pos.ShortQuantity == 0 {
		pos.AvgShortPrice = price
	} else {
		totalValue := types.PnL(pos.AvgShortPrice)*types.PnL(pos.ShortQuantity) + types.PnL(price)*types.PnL(qty)
		pos.AvgShortPrice = types.Price(totalValue / types.PnL(pos.ShortQuantity+qty))
	}
	pos.ShortQuantity += qty
}

// UpdateUnrealizedPnL marks a single symbol's open legs to currentPrice.
func (t *Tracker) UpdateUnrealizedPnL(symbol types.SymbolId, currentPrice types.Price) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.positions[symbol]
	if !ok {
		return
	}
	pos.UnrealizedPnL = calculateUnrealizedPnL(pos, currentPrice)
	pos.LastUpdate = types.Now()
}

// UpdateAllUnrealizedPnL marks every symbol present in prices.
func (t *Tracker) UpdateAllUnrealizedPnL(prices map[types.SymbolId]types.Price) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for symbol, pos := range t.positions {
		if price, ok := prices[symbol]; ok {
			pos.UnrealizedPnL = calculateUnrealizedPnL(pos, price)
			pos.LastUpdate = types.Now()
		}
	}
}

func calculateUnrealizedPnL(pos *Position, currentPrice types.Price) types.PnL {
	var pnl types.PnL
	if pos.LongQuantity > 0 {
		pnl += types.PnL(currentPrice-pos.AvgLongPrice) * types.PnL(pos.LongQuantity)
	}
	if pos.ShortQuantity > 0 {
		pnl += types.PnL(pos.AvgShortPrice-currentPrice) * types.PnL(pos.ShortQuantity)
	}
	return pnl
}

// Position returns a copy of a symbol's position, or false if none
// exists yet.
func (t *Tracker) Position(symbol types.SymbolId) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// AllPositions returns a copy of every tracked position.
func (t *Tracker) AllPositions() map[types.SymbolId]Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[types.SymbolId]Position, len(t.positions))
	for s, p := range t.positions {
		out[s] = *p
	}
	return out
}

// TotalRealizedPnL sums realized P&L across all symbols.
func (t *Tracker) TotalRealizedPnL() types.PnL {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total types.PnL
	for _, p := range t.positions {
		total += p.RealizedPnL
	}
	return total
}

// TotalUnrealizedPnL sums unrealized P&L across all symbols.
func (t *Tracker) TotalUnrealizedPnL() types.PnL {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total types.PnL
	for _, p := range t.positions {
		total += p.UnrealizedPnL
	}
	return total
}

// TotalPnL returns realized plus unrealized P&L across all symbols.
func (t *Tracker) TotalPnL() types.PnL {
	return t.TotalRealizedPnL() + t.TotalUnrealizedPnL()
}

// CheckPositionLimits reports whether taking on qty more of side would
// keep symbol within the configured limits.
func (t *Tracker) CheckPositionLimits(symbol types.SymbolId, qty types.Quantity, side types.OrderSide) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[symbol]
	if !ok {
		return qty <= t.limits.MaxPositionSize
	}

	net := pos.NetPosition()
	if side == types.Buy {
		if net+int64(qty) > int64(t.limits.MaxLongPosition) {
			return false
		}
	} else {
		if net-int64(qty) < -int64(t.limits.MaxShortPosition) {
			return false
		}
	}

	if pos.TotalPosition()+qty > t.limits.MaxPositionSize {
		return false
	}
	return true
}

// CheckRiskLimits reports whether the portfolio remains within the
// configured daily-loss and drawdown limits.
func (t *Tracker) CheckRiskLimits() bool {
	total := t.TotalPnL()
	if total < -t.limits.MaxDailyLoss {
		return false
	}
	if total < -t.limits.MaxDrawdown {
		return false
	}
	return true
}

// Limits returns the tracker's current limits.
func (t *Tracker) Limits() Limits {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits
}

// SetLimits replaces the tracker's limits.
func (t *Tracker) SetLimits(l Limits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits = l
}

// TradeHistory returns a symbol's journal entries.
func (t *Tracker) TradeHistory(symbol types.SymbolId) []Trade {
	t.mu.Lock()
	defer t.mu.Unlock()
	trades := t.tradeHistory[symbol]
	out := make([]Trade, len(trades))
	copy(out, trades)
	return out
}

// AllTradeHistory returns every journal entry across all symbols,
// sorted by timestamp.
func (t *Tracker) AllTradeHistory() []Trade {
	t.mu.Lock()
	defer t.mu.Unlock()

	var all []Trade
	for _, trades := range t.tradeHistory {
		all = append(all, trades...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })
	return all
}

// ClearTradeHistory clears the journal only, leaving positions intact.
func (t *Tracker) ClearTradeHistory() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tradeHistory = make(map[types.SymbolId][]Trade)
}

// Stats reports aggregate counts and totals across all symbols.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Stats{TotalSymbols: len(t.positions)}
	for symbol, pos := range t.positions {
		if !pos.IsFlat() {
			stats.ActivePositions++
		}
		stats.TotalRealizedPnL += pos.RealizedPnL
		stats.TotalUnrealizedPnL += pos.UnrealizedPnL

		total := pos.TotalPosition()
		if total > stats.MaxPositionSize {
			stats.MaxPositionSize = total
			stats.LargestPositionSymbol = symbol
		}
	}
	stats.TotalPnL = stats.TotalRealizedPnL + stats.TotalUnrealizedPnL
	return stats
}

// Reset clears every position and the trade journal.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions = make(map[types.SymbolId]*Position)
	t.tradeHistory = make(map[types.SymbolId][]Trade)
}
