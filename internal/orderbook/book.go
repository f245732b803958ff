// Package orderbook implements a per-symbol limit order book with
// price-time aggregation and a matching engine. Order and price-level
// records live in handle-based object pools and are reused after
// release; the price index's tree nodes and the order table's map
// entries are ordinary heap allocations.
package orderbook

import (
	"sync"

	"github.com/abhivetukuri/marketmaker/internal/pool"
	"github.com/abhivetukuri/marketmaker/internal/types"
)

// LevelSnapshot is a read-only copy of a PriceLevel returned by Bids/Asks.
type LevelSnapshot struct {
	Price      types.Price
	TotalQty   types.Quantity
	OrderCount uint32
}

// Stats summarizes a book's current depth and best prices.
type Stats struct {
	TotalOrders  int
	ActiveOrders int
	BidLevels    int
	AskLevels    int
	BestBid      types.Price
	BestAsk      types.Price
	MidPrice     types.Price
	Spread       types.Price
}

// MaxOrderBookDepth bounds Bids/Asks when no explicit depth is requested.
const MaxOrderBookDepth = 10

// Book is a single symbol's order book. All exported methods acquire
// mu; every method named with a "Locked" suffix assumes the caller
// already holds mu and must never itself attempt to acquire it. This
// separation exists specifically so that composite read operations
// (Stats, MidPrice, Spread) never re-enter the mutex they are already
// holding -- a naive get_stats() that calls back into a locking
// helper deadlocks here.
type Book struct {
	mu sync.Mutex

	symbol types.SymbolId

	bids *priceIndex // descending
	asks *priceIndex // ascending

	orderPool *pool.Pool[Order]
	levelPool *pool.Pool[PriceLevel]

	orderTable map[types.OrderId]pool.Handle
}

// NewBook creates an empty book for symbol.
func NewBook(symbol types.SymbolId) *Book {
	return &Book{
		symbol:     symbol,
		bids:       newPriceIndex(true),
		asks:       newPriceIndex(false),
		orderPool:  pool.New[Order](),
		levelPool:  pool.New[PriceLevel](),
		orderTable: make(map[types.OrderId]pool.Handle),
	}
}

// Symbol returns the book's symbol id.
func (b *Book) Symbol() types.SymbolId { return b.symbol }

func (b *Book) sideIndex(side types.OrderSide) *priceIndex {
	if side == types.Buy {
		return b.bids
	}
	return b.asks
}

// AddOrder adds a new order to the book. It rejects (returns false)
// when order_id already exists; otherwise it links the order to its
// price level (creating the level lazily) and returns true.
func (b *Book) AddOrder(id types.OrderId, price types.Price, qty types.Quantity, side types.OrderSide, orderType types.OrderType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addOrderLocked(id, price, qty, side, orderType)
}

func (b *Book) addOrderLocked(id types.OrderId, price types.Price, qty types.Quantity, side types.OrderSide, orderType types.OrderType) bool {
	if _, exists := b.orderTable[id]; exists {
		return false
	}

	levelHandle := b.getOrCreateLevelLocked(price, side)

	oh, order := b.orderPool.Allocate()
	order.Id = id
	order.Symbol = b.symbol
	order.Price = price
	order.Quantity = qty
	order.FilledQuantity = 0
	order.Side = side
	order.Type = orderType
	order.Status = types.Active
	order.Timestamp = types.Now()
	order.Level = levelHandle

	b.orderTable[id] = oh

	b.updateLevelStatsLocked(levelHandle, qty, true)
	return true
}

// CancelOrder cancels up to qty of an active order (all remaining
// quantity when qty is zero). It fails when the order is unknown or
// not active.
//
// Note: cancellation bumps FilledQuantity rather than a separate
// cancelled-quantity counter; a caller inspecting FilledQuantity after
// a partial cancel sees "no longer active" quantity, not fills in the
// execution sense.
func (b *Book) CancelOrder(id types.OrderId, qty types.Quantity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelOrderLocked(id, qty)
}

func (b *Book) cancelOrderLocked(id types.OrderId, qty types.Quantity) bool {
	oh, ok := b.orderTable[id]
	if !ok {
		return false
	}
	order := b.orderPool.Get(oh)
	if order == nil || order.Status != types.Active {
		return false
	}

	remaining := order.Remaining()
	effective := remaining
	if qty != 0 && qty < remaining {
		effective = qty
	}

	order.FilledQuantity += effective
	b.updateLevelStatsLocked(order.Level, effective, false)

	if order.FilledQuantity >= order.Quantity {
		order.Status = types.Cancelled
		b.unlinkOrderLocked(order)
		delete(b.orderTable, id)
		b.orderPool.Deallocate(oh)
	}
	return true
}

// ModifyOrder changes an active order's price and quantity, moving it
// to the price level for the new price. No price-time priority is
// preserved across a modify: its timestamp is reset, and a level keeps
// no per-order queue.
func (b *Book) ModifyOrder(id types.OrderId, newPrice types.Price, newQty types.Quantity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modifyOrderLocked(id, newPrice, newQty)
}

func (b *Book) modifyOrderLocked(id types.OrderId, newPrice types.Price, newQty types.Quantity) bool {
	oh, ok := b.orderTable[id]
	if !ok {
		return false
	}
	order := b.orderPool.Get(oh)
	if order == nil || order.Status != types.Active {
		return false
	}

	oldRemaining := order.Remaining()
	b.updateLevelStatsLocked(order.Level, oldRemaining, false)
	b.decrementOrderCountLocked(order.Level)
	b.removeLevelIfEmptyLocked(order.Level, order.Side)

	order.Price = newPrice
	order.Quantity = newQty
	order.Timestamp = types.Now()

	newLevel := b.getOrCreateLevelLocked(newPrice, order.Side)
	order.Level = newLevel
	b.updateLevelStatsLocked(newLevel, order.Remaining(), true)

	return true
}

// ExecuteTrade matches an incoming order of the given aggressor side
// against resident price levels on the opposite side, consuming
// quantity from the best-priced level outward while levels remain
// acceptable at price.
// It returns true iff any quantity was consumed.
func (b *Book) ExecuteTrade(price types.Price, qty types.Quantity, aggressorSide types.OrderSide) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executeTradeLocked(price, qty, aggressorSide)
}

func (b *Book) executeTradeLocked(price types.Price, qty types.Quantity, aggressorSide types.OrderSide) bool {
	victimSide := b.asks
	acceptable := func(levelPrice types.Price) bool { return levelPrice <= price }
	if aggressorSide == types.Sell {
		victimSide = b.bids
		acceptable = func(levelPrice types.Price) bool { return levelPrice >= price }
	}

	remaining := qty
	anyFilled := false

	for remaining > 0 {
		levelPrice, lh, ok := victimSide.best()
		if !ok || !acceptable(levelPrice) {
			break
		}
		level := b.levelPool.Get(lh)
		if level == nil {
			victimSide.remove(levelPrice)
			continue
		}

		consume := level.TotalQty
		if remaining < consume {
			consume = remaining
		}
		if consume == 0 {
			break
		}

		b.consumeAtLevelLocked(lh, consume)
		remaining -= consume
		anyFilled = true

		if b.levelPool.Get(lh).TotalQty == 0 {
			victimSide.remove(levelPrice)
		}
	}

	return anyFilled
}

// consumeAtLevelLocked applies consume shares of fill across the
// resident active orders at lh, in map-iteration order (no price-time
// priority is guaranteed within a level).
func (b *Book) consumeAtLevelLocked(lh pool.Handle, consume types.Quantity) {
	level := b.levelPool.Get(lh)
	remaining := consume

	for id, oh := range b.orderTable {
		if remaining == 0 {
			break
		}
		order := b.orderPool.Get(oh)
		if order == nil || order.Status != types.Active || order.Level != lh {
			continue
		}
		avail := order.Remaining()
		if avail == 0 {
			continue
		}
		take := avail
		if remaining < take {
			take = remaining
		}
		order.FilledQuantity += take
		remaining -= take

		if order.FilledQuantity >= order.Quantity {
			order.Status = types.Filled
			delete(b.orderTable, id)
			b.orderPool.Deallocate(oh)
			if level.OrderCount > 0 {
				level.OrderCount--
			}
		}
	}

	level.TotalQty -= consume
	level.LastUpdate = types.Now()
}

// BestBid returns the highest bid price and its aggregated quantity, or
// (0, 0) when the bid side is empty.
func (b *Book) BestBid() (types.Price, types.Quantity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bestBidLocked()
}

func (b *Book) bestBidLocked() (types.Price, types.Quantity) {
	price, h, ok := b.bids.best()
	if !ok {
		return 0, 0
	}
	level := b.levelPool.Get(h)
	if level == nil {
		return 0, 0
	}
	return price, level.TotalQty
}

// BestAsk returns the lowest ask price and its aggregated quantity, or
// (0, 0) when the ask side is empty.
func (b *Book) BestAsk() (types.Price, types.Quantity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bestAskLocked()
}

func (b *Book) bestAskLocked() (types.Price, types.Quantity) {
	price, h, ok := b.asks.best()
	if !ok {
		return 0, 0
	}
	level := b.levelPool.Get(h)
	if level == nil {
		return 0, 0
	}
	return price, level.TotalQty
}

// MidPrice returns (bid+ask)/2 with integer truncation, or 0 unless
// both sides are non-empty.
func (b *Book) MidPrice() types.Price {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.midPriceLocked()
}

func (b *Book) midPriceLocked() types.Price {
	bid, _ := b.bestBidLocked()
	ask, _ := b.bestAskLocked()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread returns ask-bid, or 0 unless both sides are non-empty.
func (b *Book) Spread() types.Price {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spreadLocked()
}

func (b *Book) spreadLocked() types.Price {
	bid, _ := b.bestBidLocked()
	ask, _ := b.bestAskLocked()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// Bids returns up to depth (price, aggregated quantity) pairs from the
// best bid outward. depth<=0 uses MaxOrderBookDepth.
func (b *Book) Bids(depth int) []LevelSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levelsLocked(b.bids, depth)
}

// Asks returns up to depth (price, aggregated quantity) pairs from the
// best ask outward. depth<=0 uses MaxOrderBookDepth.
func (b *Book) Asks(depth int) []LevelSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levelsLocked(b.asks, depth)
}

func (b *Book) levelsLocked(idx *priceIndex, depth int) []LevelSnapshot {
	if depth <= 0 {
		depth = MaxOrderBookDepth
	}
	prices := idx.depth(depth)
	out := make([]LevelSnapshot, 0, len(prices))
	for _, p := range prices {
		h, _ := idx.get(p)
		level := b.levelPool.Get(h)
		if level == nil {
			continue
		}
		out = append(out, LevelSnapshot{Price: level.Price, TotalQty: level.TotalQty, OrderCount: level.OrderCount})
	}
	return out
}

// GetOrder returns a read-only snapshot of an order, or false if it is
// unknown.
func (b *Book) GetOrder(id types.OrderId) (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	oh, ok := b.orderTable[id]
	if !ok {
		return Snapshot{}, false
	}
	order := b.orderPool.Get(oh)
	if order == nil {
		return Snapshot{}, false
	}
	return snapshotOf(order), true
}

// Orders returns a snapshot of every order currently resting in the
// book, in arbitrary order. Intended for periodic persistence.
func (b *Book) Orders() []Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Snapshot, 0, len(b.orderTable))
	for _, oh := range b.orderTable {
		if order := b.orderPool.Get(oh); order != nil {
			out = append(out, snapshotOf(order))
		}
	}
	return out
}

// RestoreOrder re-inserts a previously persisted order into the book
// and its price level through addOrderLocked, resting its remaining
// quantity; an id already in the table is ignored.
func (b *Book) RestoreOrder(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addOrderLocked(s.Id, s.Price, s.Remaining(), s.Side, s.Type)
}

// Empty reports whether both sides of the book have no resting levels.
func (b *Book) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bids.len() == 0 && b.asks.len() == 0
}

// OrderCount returns the number of orders currently in the order table.
func (b *Book) OrderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orderTable)
}

// LevelCount returns the total number of resting price levels across
// both sides.
func (b *Book) LevelCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bids.len() + b.asks.len()
}

// Stats composes the locked accessors directly so it never re-enters
// the mutex it already holds.
func (b *Book) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	bid, _ := b.bestBidLocked()
	ask, _ := b.bestAskLocked()

	return Stats{
		TotalOrders:  b.orderPool.Stats().TotalAllocated,
		ActiveOrders: len(b.orderTable),
		BidLevels:    b.bids.len(),
		AskLevels:    b.asks.len(),
		BestBid:      bid,
		BestAsk:      ask,
		MidPrice:     b.midPriceLocked(),
		Spread:       b.spreadLocked(),
	}
}

func (b *Book) getOrCreateLevelLocked(price types.Price, side types.OrderSide) pool.Handle {
	idx := b.sideIndex(side)
	if h, ok := idx.get(price); ok {
		return h
	}
	h, level := b.levelPool.Allocate()
	level.Price = price
	level.TotalQty = 0
	level.OrderCount = 0
	level.LastUpdate = types.Now()
	idx.insert(price, h)
	return h
}

func (b *Book) removeLevelIfEmptyLocked(h pool.Handle, side types.OrderSide) {
	level := b.levelPool.Get(h)
	if level == nil || level.TotalQty != 0 {
		return
	}
	b.sideIndex(side).remove(level.Price)
	b.levelPool.Deallocate(h)
}

func (b *Book) updateLevelStatsLocked(h pool.Handle, delta types.Quantity, addOrder bool) {
	level := b.levelPool.Get(h)
	if level == nil {
		return
	}
	if addOrder {
		level.TotalQty += delta
		level.OrderCount++
	} else {
		if delta > level.TotalQty {
			level.TotalQty = 0
		} else {
			level.TotalQty -= delta
		}
	}
	level.LastUpdate = types.Now()
}

func (b *Book) decrementOrderCountLocked(h pool.Handle) {
	level := b.levelPool.Get(h)
	if level == nil || level.OrderCount == 0 {
		return
	}
	level.OrderCount--
}

func (b *Book) unlinkOrderLocked(order *Order) {
	b.decrementOrderCountLocked(order.Level)
	b.removeLevelIfEmptyLocked(order.Level, order.Side)
}
