package flow

import (
	"testing"

	"github.com/abhivetukuri/marketmaker/internal/engine"
	"github.com/abhivetukuri/marketmaker/internal/itch"
	"github.com/abhivetukuri/marketmaker/internal/orderbook"
	"github.com/abhivetukuri/marketmaker/internal/position"
	"github.com/abhivetukuri/marketmaker/internal/symbol"
)

func testSymbol() symbol.Symbol {
	return symbol.Symbol{
		LocateCode: 1,
		Ticker:     "NEXO",
		TickSize:   0.01,
		BasePrice:  100.00,
	}
}

func TestStepProducesMessages(t *testing.T) {
	rng := engine.NewRNG(1)
	books := orderbook.NewRegistry()
	positions := position.NewTracker(position.DefaultLimits())
	gen := NewGenerator(rng, books, positions, testSymbol())

	msgs := gen.Step(100.00, 20)
	if len(msgs) == 0 {
		t.Fatal("expected at least one message from 20 actions")
	}

	for _, m := range msgs {
		if m.StockLocate != 1 {
			t.Fatalf("message StockLocate = %d, want 1", m.StockLocate)
		}
		if m.Type != itch.MsgAddOrder && m.Type != itch.MsgTrade && m.Type != itch.MsgOrderCancel {
			t.Fatalf("unexpected message type %c", m.Type)
		}
	}
}

func TestStepZeroActionsProducesNoMessages(t *testing.T) {
	rng := engine.NewRNG(1)
	books := orderbook.NewRegistry()
	positions := position.NewTracker(position.DefaultLimits())
	gen := NewGenerator(rng, books, positions, testSymbol())

	if msgs := gen.Step(100.00, 0); msgs != nil {
		t.Fatalf("expected nil messages for zero actions, got %v", msgs)
	}
}

func TestStepEventuallyCrossesAndRecordsTrade(t *testing.T) {
	rng := engine.NewRNG(7)
	books := orderbook.NewRegistry()
	positions := position.NewTracker(position.DefaultLimits())
	gen := NewGenerator(rng, books, positions, testSymbol())

	sawTrade := false
	for i := 0; i < 50 && !sawTrade; i++ {
		for _, m := range gen.Step(100.00, 10) {
			if m.Type == itch.MsgTrade {
				sawTrade = true
				break
			}
		}
	}

	if !sawTrade {
		t.Fatal("expected at least one trade across 500 actions")
	}

	if len(positions.AllTradeHistory()) == 0 {
		t.Fatal("expected recorded trades in position tracker")
	}
}

func TestStepDistinctOrderIdsAcrossSymbols(t *testing.T) {
	rng := engine.NewRNG(1)
	books := orderbook.NewRegistry()
	positions := position.NewTracker(position.DefaultLimits())

	symA := testSymbol()
	symB := testSymbol()
	symB.LocateCode = 2
	symB.Ticker = "QBIT"

	genA := NewGenerator(rng, books, positions, symA)
	genB := NewGenerator(rng, books, positions, symB)

	genA.Step(100.00, 5)
	genB.Step(100.00, 5)

	bookA := books.Book(symA.LocateCode)
	bookB := books.Book(symB.LocateCode)

	for _, o := range bookA.Orders() {
		if _, ok := bookB.GetOrder(o.Id); ok {
			t.Fatalf("order id %d present in both symbol books", o.Id)
		}
	}
}
