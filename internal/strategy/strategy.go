// Package strategy implements market-making quote logic driven off an
// order book registry and a position tracker.
package strategy

import (
	"github.com/abhivetukuri/marketmaker/internal/orderbook"
	"github.com/abhivetukuri/marketmaker/internal/position"
	"github.com/abhivetukuri/marketmaker/internal/types"
)

// MaxStrategySymbols bounds the number of symbols any one strategy
// instance quotes, backed by a fixed-size per-symbol state array.
const MaxStrategySymbols = 16

// Strategy is implemented by every market-making algorithm. UpdateQuotes
// is called on a timer to refresh resting quotes; OnTrade and
// OnPositionUpdate are notifications a caller may deliver as trades and
// position changes occur.
type Strategy interface {
	UpdateQuotes(books *orderbook.Registry, positions *position.Tracker, now types.Timestamp)
	OnTrade(symbol types.SymbolId, price types.Price, qty types.Quantity, side types.OrderSide, now types.Timestamp)
	OnPositionUpdate(symbol types.SymbolId, pos position.Position, stats position.Stats, now types.Timestamp)
}

type symbolQuoteState struct {
	bidOrderId types.OrderId
	askOrderId types.OrderId
	lastBid    types.Price
	lastAsk    types.Price
	lastQty    types.Quantity
}

// FixedSpreadConfig configures FixedSpreadStrategy.
type FixedSpreadConfig struct {
	BasePrice types.Price
	Spread    types.Price
	QuoteSize types.Quantity
	Symbols   []types.SymbolId
}

// FixedSpreadStrategy quotes a constant spread around a fixed mid
// price, replacing its resting orders on an UpdateQuotes call only when
// the desired bid, ask or size has changed. It never reacts to trades
// or position updates.
type FixedSpreadStrategy struct {
	cfg   FixedSpreadConfig
	state [MaxStrategySymbols]symbolQuoteState
}

// NewFixedSpreadStrategy creates a FixedSpreadStrategy, truncating cfg's
// symbol list to MaxStrategySymbols.
func NewFixedSpreadStrategy(cfg FixedSpreadConfig) *FixedSpreadStrategy {
	if len(cfg.Symbols) > MaxStrategySymbols {
		cfg.Symbols = cfg.Symbols[:MaxStrategySymbols]
	}
	return &FixedSpreadStrategy{cfg: cfg}
}

func (s *FixedSpreadStrategy) UpdateQuotes(books *orderbook.Registry, _ *position.Tracker, _ types.Timestamp) {
	for i, symbol := range s.cfg.Symbols {
		st := &s.state[i]
		mid := s.cfg.BasePrice
		bid := mid - s.cfg.Spread/2
		ask := mid + s.cfg.Spread/2
		qty := s.cfg.QuoteSize

		if st.bidOrderId != 0 && bid == st.lastBid && ask == st.lastAsk && qty == st.lastQty {
			continue
		}

		if st.bidOrderId != 0 {
			books.CancelOrder(symbol, st.bidOrderId, 0)
		}
		if st.askOrderId != 0 {
			books.CancelOrder(symbol, st.askOrderId, 0)
		}

		// Deterministic order ids, distinct from the inventory-skewed
		// strategy's 20000-based range.
		st.bidOrderId = types.OrderId(10000 + i*2 + 1)
		st.askOrderId = types.OrderId(10000 + i*2 + 2)
		books.AddOrder(symbol, st.bidOrderId, bid, qty, types.Buy, types.Limit)
		books.AddOrder(symbol, st.askOrderId, ask, qty, types.Sell, types.Limit)
		st.lastBid, st.lastAsk, st.lastQty = bid, ask, qty
	}
}

func (s *FixedSpreadStrategy) OnTrade(types.SymbolId, types.Price, types.Quantity, types.OrderSide, types.Timestamp) {
}

func (s *FixedSpreadStrategy) OnPositionUpdate(types.SymbolId, position.Position, position.Stats, types.Timestamp) {
}

type inventorySymbolState struct {
	symbolQuoteState
	inventory int64
}

// InventorySkewedConfig configures InventorySkewedStrategy.
type InventorySkewedConfig struct {
	BasePrice    types.Price
	MinSpread    types.Price
	MaxSpread    types.Price
	QuoteSize    types.Quantity
	MaxInventory types.Quantity
	Symbols      []types.SymbolId
}

// InventorySkewedStrategy widens its spread and shifts its mid price
// away from the side it is already loaded on, using net inventory as
// the skew signal.
type InventorySkewedStrategy struct {
	cfg   InventorySkewedConfig
	state [MaxStrategySymbols]inventorySymbolState
}

// NewInventorySkewedStrategy creates an InventorySkewedStrategy,
// truncating cfg's symbol list to MaxStrategySymbols.
func NewInventorySkewedStrategy(cfg InventorySkewedConfig) *InventorySkewedStrategy {
	if len(cfg.Symbols) > MaxStrategySymbols {
		cfg.Symbols = cfg.Symbols[:MaxStrategySymbols]
	}
	return &InventorySkewedStrategy{cfg: cfg}
}

func (s *InventorySkewedStrategy) UpdateQuotes(books *orderbook.Registry, positions *position.Tracker, _ types.Timestamp) {
	for i, symbol := range s.cfg.Symbols {
		st := &s.state[i]

		inv := int64(0)
		if pos, ok := positions.Position(symbol); ok {
			inv = pos.NetPosition()
		}
		st.inventory = inv

		skew := float64(inv) / float64(s.cfg.MaxInventory)
		mid := s.cfg.BasePrice - types.Price(skew*float64(s.cfg.MaxSpread)/2)
		absSkew := skew
		if absSkew < 0 {
			absSkew = -absSkew
		}
		spread := s.cfg.MinSpread + types.Price(absSkew*float64(s.cfg.MaxSpread-s.cfg.MinSpread))
		bid := mid - spread/2
		ask := mid + spread/2
		qty := s.cfg.QuoteSize

		if st.bidOrderId != 0 && bid == st.lastBid && ask == st.lastAsk && qty == st.lastQty {
			continue
		}

		if st.bidOrderId != 0 {
			books.CancelOrder(symbol, st.bidOrderId, 0)
		}
		if st.askOrderId != 0 {
			books.CancelOrder(symbol, st.askOrderId, 0)
		}

		st.bidOrderId = types.OrderId(20000 + i*2 + 1)
		st.askOrderId = types.OrderId(20000 + i*2 + 2)
		books.AddOrder(symbol, st.bidOrderId, bid, qty, types.Buy, types.Limit)
		books.AddOrder(symbol, st.askOrderId, ask, qty, types.Sell, types.Limit)
		st.lastBid, st.lastAsk, st.lastQty = bid, ask, qty
	}
}

func (s *InventorySkewedStrategy) OnTrade(types.SymbolId, types.Price, types.Quantity, types.OrderSide, types.Timestamp) {
}

func (s *InventorySkewedStrategy) OnPositionUpdate(types.SymbolId, position.Position, position.Stats, types.Timestamp) {
}
