package orderbook

import (
	"github.com/abhivetukuri/marketmaker/internal/pool"
	"github.com/abhivetukuri/marketmaker/internal/types"
)

// Order is a single resting or filled order inside a Book. Level is a
// non-owning back-reference to the PriceLevel it currently belongs to;
// it is a pool handle rather than a pointer so a stale reference cannot
// resolve to a slot that has since been reused (see the pool package).
type Order struct {
	Id             types.OrderId
	Symbol         types.SymbolId
	Price          types.Price
	Quantity       types.Quantity
	FilledQuantity types.Quantity
	Side           types.OrderSide
	Type           types.OrderType
	Status         types.OrderStatus
	Timestamp      types.Timestamp
	Level          pool.Handle
}

// Remaining returns the quantity not yet filled or cancelled off.
func (o *Order) Remaining() types.Quantity {
	if o.FilledQuantity >= o.Quantity {
		return 0
	}
	return o.Quantity - o.FilledQuantity
}

// Snapshot is a read-only copy of an Order returned to callers outside
// the book's lock.
type Snapshot struct {
	Id             types.OrderId
	Symbol         types.SymbolId
	Price          types.Price
	Quantity       types.Quantity
	FilledQuantity types.Quantity
	Side           types.OrderSide
	Type           types.OrderType
	Status         types.OrderStatus
	Timestamp      types.Timestamp
}

// Remaining returns the quantity not yet filled or cancelled off.
func (s Snapshot) Remaining() types.Quantity {
	if s.FilledQuantity >= s.Quantity {
		return 0
	}
	return s.Quantity - s.FilledQuantity
}

func snapshotOf(o *Order) Snapshot {
	return Snapshot{
		Id:             o.Id,
		Symbol:         o.Symbol,
		Price:          o.Price,
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		Side:           o.Side,
		Type:           o.Type,
		Status:         o.Status,
		Timestamp:      o.Timestamp,
	}
}
