// Package feed adapts inbound binary market-data records into calls
// against an order book registry and a position tracker. It owns the
// mapping from wire-level stock locate codes to internal SymbolIds and
// the raw-integer-to-tick price conversion.
package feed

import (
	"sync"

	"github.com/abhivetukuri/marketmaker/internal/itch"
	"github.com/abhivetukuri/marketmaker/internal/orderbook"
	"github.com/abhivetukuri/marketmaker/internal/position"
	"github.com/abhivetukuri/marketmaker/internal/types"
)

// priceScale converts the feed's raw integer price into ticks
// (1/10000 dollar). The feed encodes price as an integer number of
// cents; multiplying by 100 yields ticks.
const priceScale = 100

// Stats tracks records processed and rejected, split out by cause.
type Stats struct {
	RecordsProcessed int64
	RecordsMalformed int64
	RecordsUnknown   int64
	SymbolsAssigned  int64
	OrdersAdded      int64
	OrdersExecuted   int64
	OrdersCancelled  int64
	OrdersDeleted    int64
	OrdersReplaced   int64
	Trades           int64
}

// Adapter feeds decoded records into a book registry and position
// tracker, assigning SymbolIds to stock locate codes on first sight.
//
// MapExecutions controls whether OrderExecuted/OrderCancel/OrderDelete/
// OrderReplace records are applied as book mutations (the default) or
// merely counted -- some deployments only want add_order and trade feed
// straight through, leaving lifecycle bookkeeping to whatever produced
// the feed.
type Adapter struct {
	mu            sync.Mutex
	books         *orderbook.Registry
	positions     *position.Tracker
	locateToSym   map[uint16]types.SymbolId
	nextSymbol    types.SymbolId
	MapExecutions bool
	stats         Stats
}

// NewAdapter creates a feed adapter over the given registry and
// tracker. MapExecutions defaults to true.
func NewAdapter(books *orderbook.Registry, positions *position.Tracker) *Adapter {
	return &Adapter{
		books:         books,
		positions:     positions,
		locateToSym:   make(map[uint16]types.SymbolId),
		nextSymbol:    1,
		MapExecutions: true,
	}
}

// Ingest decodes one wire record and applies it. Malformed or unknown
// records are counted and skipped rather than returned as errors --
// a feed adapter must keep running across bad records.
func (a *Adapter) Ingest(record []byte) {
	msg, err := itch.DecodeBinary(record)
	if err != nil {
		a.mu.Lock()
		switch err.(type) {
		case *itch.ErrMalformed:
			a.stats.RecordsMalformed++
		default:
			a.stats.RecordsUnknown++
		}
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	a.stats.RecordsProcessed++
	a.mu.Unlock()

	switch msg.Type {
	case itch.MsgStockDirectory:
		a.handleStockDirectory(msg)
	case itch.MsgAddOrder:
		a.handleAddOrder(msg)
	case itch.MsgOrderExecuted:
		a.handleOrderExecuted(msg)
	case itch.MsgOrderCancel:
		a.handleOrderCancel(msg)
	case itch.MsgOrderDelete:
		a.handleOrderDelete(msg)
	case itch.MsgOrderReplace:
		a.handleOrderReplace(msg)
	case itch.MsgTrade:
		a.handleTrade(msg)
	}
}

// symbolFor returns the SymbolId assigned to a stock locate code,
// assigning the next sequential id on first sight.
func (a *Adapter) symbolFor(locate uint16) types.SymbolId {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sym, ok := a.locateToSym[locate]; ok {
		return sym
	}
	sym := a.nextSymbol
	a.nextSymbol++
	a.locateToSym[locate] = sym
	a.stats.SymbolsAssigned++
	return sym
}

func toPrice(raw float64) types.Price {
	return types.Price(int64(raw) * priceScale)
}

func toSide(b byte) types.OrderSide {
	if b == 'S' {
		return types.Sell
	}
	return types.Buy
}

func (a *Adapter) handleStockDirectory(m *itch.Message) {
	a.symbolFor(m.StockLocate)
}

func (a *Adapter) handleAddOrder(m *itch.Message) {
	sym := a.symbolFor(m.StockLocate)
	orderId := types.OrderId(m.OrderRef)
	a.books.AddOrder(sym, orderId, toPrice(m.Price), types.Quantity(m.Shares), toSide(m.Side), types.Limit)

	a.mu.Lock()
	a.stats.OrdersAdded++
	a.mu.Unlock()
}

func (a *Adapter) handleOrderExecuted(m *itch.Message) {
	sym := a.symbolFor(m.StockLocate)
	a.mu.Lock()
	a.stats.OrdersExecuted++
	mapExec := a.MapExecutions
	a.mu.Unlock()

	if !mapExec {
		return
	}
	a.books.CancelOrder(sym, types.OrderId(m.OrderRef), types.Quantity(m.Shares))
}

func (a *Adapter) handleOrderCancel(m *itch.Message) {
	sym := a.symbolForKnown(m.StockLocate)
	a.mu.Lock()
	a.stats.OrdersCancelled++
	mapExec := a.MapExecutions
	a.mu.Unlock()

	if !mapExec || sym == 0 {
		return
	}
	a.books.CancelOrder(sym, types.OrderId(m.OrderRef), types.Quantity(m.Shares))
}

func (a *Adapter) handleOrderDelete(m *itch.Message) {
	sym := a.symbolForKnown(m.StockLocate)
	a.mu.Lock()
	a.stats.OrdersDeleted++
	mapExec := a.MapExecutions
	a.mu.Unlock()

	if !mapExec || sym == 0 {
		return
	}
	a.books.CancelOrder(sym, types.OrderId(m.OrderRef), 0)
}

func (a *Adapter) handleOrderReplace(m *itch.Message) {
	sym := a.symbolForKnown(m.StockLocate)
	a.mu.Lock()
	a.stats.OrdersReplaced++
	mapExec := a.MapExecutions
	a.mu.Unlock()

	if !mapExec || sym == 0 {
		return
	}
	book := a.books.Book(sym)
	orig, ok := book.GetOrder(types.OrderId(m.OrigOrderRef))
	if !ok {
		return
	}
	book.CancelOrder(types.OrderId(m.OrigOrderRef), 0)
	book.AddOrder(types.OrderId(m.OrderRef), toPrice(m.Price), types.Quantity(m.Shares), orig.Side, types.Limit)
}

func (a *Adapter) handleTrade(m *itch.Message) {
	sym := a.symbolFor(m.StockLocate)
	a.positions.RecordTrade(sym, toPrice(m.Price), types.Quantity(m.Shares), toSide(m.Side), types.OrderId(m.OrderRef))
	a.mu.Lock()
	a.stats.Trades++
	a.mu.Unlock()
}

// symbolForKnown looks up a locate code without assigning a new
// SymbolId; lifecycle records referencing a symbol never seen through
// add_order or the stock directory are dropped.
func (a *Adapter) symbolForKnown(locate uint16) types.SymbolId {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locateToSym[locate]
}

func oppositeSide(s types.OrderSide) types.OrderSide {
	if s == types.Buy {
		return types.Sell
	}
	return types.Buy
}

// Stats returns a snapshot of processing counters.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
