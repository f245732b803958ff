// Package flow synthesizes randomized limit order book activity for a
// single symbol and reports it back as ITCH messages, so the rest of
// the system (session broadcast, trade persistence) can treat
// generated activity exactly like a decoded feed.
package flow

import (
	"github.com/abhivetukuri/marketmaker/internal/engine"
	"github.com/abhivetukuri/marketmaker/internal/itch"
	"github.com/abhivetukuri/marketmaker/internal/orderbook"
	"github.com/abhivetukuri/marketmaker/internal/position"
	"github.com/abhivetukuri/marketmaker/internal/symbol"
	"github.com/abhivetukuri/marketmaker/internal/types"
)

// Generator drives one symbol's order book with randomized adds,
// cancels, and crosses, recording trades against a position tracker as
// it goes.
type Generator struct {
	rng       *engine.RNG
	books     *orderbook.Registry
	positions *position.Tracker
	sym       symbol.Symbol

	nextOrderId types.OrderId
	matchNumber uint64
	resting     []types.OrderId
}

// NewGenerator creates a Generator for sym. Order ids are namespaced by
// locate code so ids never collide across symbols sharing a registry.
func NewGenerator(rng *engine.RNG, books *orderbook.Registry, positions *position.Tracker, sym symbol.Symbol) *Generator {
	return &Generator{
		rng:         rng,
		books:       books,
		positions:   positions,
		sym:         sym,
		nextOrderId: types.OrderId(uint64(sym.LocateCode) << 32),
	}
}

// Step drives numActions random book events around fairPrice (in
// dollars) and returns the ITCH messages produced. A caller ticking at
// a fixed interval gets a plausible, bursty order flow: most actions
// add a resting limit order near the touch, a fraction cross the
// spread and execute immediately, and a fraction cancel a previously
// resting order.
func (g *Generator) Step(fairPrice float64, numActions int) []itch.Message {
	if numActions <= 0 {
		return nil
	}

	tick := types.PriceFromDollars(g.sym.TickSize)
	if tick <= 0 {
		tick = 1
	}
	center := types.PriceFromDollars(fairPrice)

	msgs := make([]itch.Message, 0, numActions)

	for i := 0; i < numActions; i++ {
		if len(g.resting) > 4 && g.rng.Float64() < 0.2 {
			msgs = append(msgs, g.cancelResting()...)
			continue
		}

		side := types.Buy
		if g.rng.Intn(2) == 1 {
			side = types.Sell
		}
		qty := types.Quantity(100 * (1 + g.rng.Intn(10)))
		offset := types.Price(g.rng.Intn(20)) * tick

		var price types.Price
		if side == types.Buy {
			price = center - offset
		} else {
			price = center + offset
		}
		if price <= 0 {
			price = tick
		}

		if offset == 0 && g.rng.Float64() < 0.35 {
			if msg, ok := g.cross(side, price, qty); ok {
				msgs = append(msgs, msg)
				continue
			}
		}

		msgs = append(msgs, g.rest(side, price, qty))
	}

	return msgs
}

// cross executes an aggressive order against the resting book on the
// opposite side. It reports ok=false when there is nothing to trade
// against, leaving the caller to fall back to resting the order.
func (g *Generator) cross(side types.OrderSide, price types.Price, qty types.Quantity) (itch.Message, bool) {
	book := g.books.Book(g.sym.LocateCode)

	var oppPrice types.Price
	var oppQty types.Quantity
	if side == types.Buy {
		oppPrice, oppQty = book.BestAsk()
	} else {
		oppPrice, oppQty = book.BestBid()
	}
	if oppQty == 0 {
		return itch.Message{}, false
	}

	fillQty := qty
	if oppQty < fillQty {
		fillQty = oppQty
	}

	if !g.books.ExecuteTrade(g.sym.LocateCode, oppPrice, fillQty, side) {
		return itch.Message{}, false
	}

	g.matchNumber++
	g.positions.RecordTrade(g.sym.LocateCode, oppPrice, fillQty, side, g.nextId())

	sideByte := byte('B')
	if side == types.Sell {
		sideByte = 'S'
	}

	return itch.Message{
		Type:        itch.MsgTrade,
		Timestamp:   itch.NanosFromMidnight(),
		StockLocate: uint16(g.sym.LocateCode),
		Stock:       g.sym.Ticker,
		Side:        sideByte,
		Shares:      int32(fillQty),
		Price:       oppPrice.Dollars(),
		MatchNumber: g.matchNumber,
	}, true
}

// rest adds a resting limit order and reports it as an ITCH add-order
// message.
func (g *Generator) rest(side types.OrderSide, price types.Price, qty types.Quantity) itch.Message {
	id := g.nextId()
	g.books.AddOrder(g.sym.LocateCode, id, price, qty, side, types.Limit)
	g.resting = append(g.resting, id)

	sideByte := byte('B')
	if side == types.Sell {
		sideByte = 'S'
	}

	return itch.Message{
		Type:        itch.MsgAddOrder,
		Timestamp:   itch.NanosFromMidnight(),
		StockLocate: uint16(g.sym.LocateCode),
		Stock:       g.sym.Ticker,
		OrderRef:    uint64(id),
		Side:        sideByte,
		Shares:      int32(qty),
		Price:       price.Dollars(),
	}
}

// cancelResting cancels one previously-added resting order, picked at
// random from the ones this generator still remembers.
func (g *Generator) cancelResting() []itch.Message {
	idx := g.rng.Intn(len(g.resting))
	id := g.resting[idx]
	g.resting[idx] = g.resting[len(g.resting)-1]
	g.resting = g.resting[:len(g.resting)-1]

	snap, ok := g.books.Book(g.sym.LocateCode).GetOrder(id)
	if !ok {
		return nil
	}
	g.books.CancelOrder(g.sym.LocateCode, id, snap.Remaining())

	return []itch.Message{{
		Type:        itch.MsgOrderCancel,
		Timestamp:   itch.NanosFromMidnight(),
		StockLocate: uint16(g.sym.LocateCode),
		Stock:       g.sym.Ticker,
		OrderRef:    uint64(id),
		Shares:      int32(snap.Remaining()),
	}}
}

func (g *Generator) nextId() types.OrderId {
	g.nextOrderId++
	return g.nextOrderId
}
