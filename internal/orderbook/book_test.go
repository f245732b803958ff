package orderbook

import (
	"testing"

	"github.com/abhivetukuri/marketmaker/internal/types"
)

func dollars(d float64) types.Price { return types.PriceFromDollars(d) }

func TestEmptyBookHasNoQuote(t *testing.T) {
	b := NewBook(1)
	if bid, _ := b.BestBid(); bid != 0 {
		t.Fatalf("empty book BestBid = %d, want 0", bid)
	}
	if ask, _ := b.BestAsk(); ask != 0 {
		t.Fatalf("empty book BestAsk = %d, want 0", ask)
	}
	if b.MidPrice() != 0 {
		t.Fatal("empty book MidPrice should be 0")
	}
	if b.Spread() != 0 {
		t.Fatal("empty book Spread should be 0")
	}
}

// S1 — Basic quote.
func TestBasicQuote(t *testing.T) {
	b := NewBook(1)
	if !b.AddOrder(1, dollars(100.00), 1000, types.Buy, types.Limit) {
		t.Fatal("add buy order should be accepted")
	}
	if !b.AddOrder(2, dollars(100.10), 1000, types.Sell, types.Limit) {
		t.Fatal("add sell order should be accepted")
	}

	bid, bidQty := b.BestBid()
	ask, askQty := b.BestAsk()
	if bid != dollars(100.00) || bidQty != 1000 {
		t.Fatalf("BestBid = (%d, %d), want (%d, 1000)", bid, bidQty, dollars(100.00))
	}
	if ask != dollars(100.10) || askQty != 1000 {
		t.Fatalf("BestAsk = (%d, %d), want (%d, 1000)", ask, askQty, dollars(100.10))
	}
	if b.MidPrice() != dollars(100.05) {
		t.Fatalf("MidPrice = %d, want %d", b.MidPrice(), dollars(100.05))
	}
	if b.Spread() != dollars(0.10) {
		t.Fatalf("Spread = %d, want %d", b.Spread(), dollars(0.10))
	}
}

// S2 — Marketable sell hits bid.
func TestExecuteTradePartialHitsBid(t *testing.T) {
	b := NewBook(1)
	b.AddOrder(1, dollars(100.00), 1000, types.Buy, types.Limit)
	b.AddOrder(2, dollars(100.10), 1000, types.Sell, types.Limit)

	if !b.ExecuteTrade(dollars(100.00), 500, types.Sell) {
		t.Fatal("execute trade should report a fill")
	}

	bid, bidQty := b.BestBid()
	if bid != dollars(100.00) || bidQty != 500 {
		t.Fatalf("BestBid after partial fill = (%d, %d), want (%d, 500)", bid, bidQty, dollars(100.00))
	}
	ask, askQty := b.BestAsk()
	if ask != dollars(100.10) || askQty != 1000 {
		t.Fatal("ask side should be untouched by a sell-side trade")
	}

	snap, ok := b.GetOrder(1)
	if !ok || snap.Status != types.Active || snap.Remaining() != 500 {
		t.Fatalf("order 1 should remain active with 500 remaining, got %+v", snap)
	}
}

// S3 — Sweep the book across two levels.
func TestExecuteTradeSweepsMultipleLevels(t *testing.T) {
	b := NewBook(1)
	b.AddOrder(10, dollars(100.10), 400, types.Sell, types.Limit)
	b.AddOrder(11, dollars(100.20), 600, types.Sell, types.Limit)

	if !b.ExecuteTrade(dollars(100.20), 800, types.Buy) {
		t.Fatal("sweep should report a fill")
	}

	if _, ok := b.GetOrder(10); ok {
		t.Fatal("order 10 should be fully filled and removed")
	}
	snap11, ok := b.GetOrder(11)
	if !ok || snap11.Remaining() != 200 {
		t.Fatalf("order 11 should have 200 remaining, got %+v", snap11)
	}

	asks := b.Asks(10)
	if len(asks) != 1 || asks[0].Price != dollars(100.20) || asks[0].TotalQty != 200 {
		t.Fatalf("asks after sweep = %+v, want one level at %d qty 200", asks, dollars(100.20))
	}
}

// S5 — Limit non-cross checks in both directions.
func TestExecuteTradeRespectsLimitPrice(t *testing.T) {
	b := NewBook(1)
	b.AddOrder(1, dollars(100.00), 1000, types.Buy, types.Limit)

	if !b.ExecuteTrade(dollars(99.00), 200, types.Sell) {
		t.Fatal("sell at 99.00 should accept against a 100.00 bid")
	}

	b2 := NewBook(2)
	b2.AddOrder(1, dollars(100.00), 1000, types.Buy, types.Limit)
	if b2.ExecuteTrade(dollars(101.00), 200, types.Buy) {
		t.Fatal("buy aggressor with only bids present should find nothing to match")
	}
}

func TestAddOrderRejectsDuplicateId(t *testing.T) {
	b := NewBook(1)
	if !b.AddOrder(1, dollars(100.00), 100, types.Buy, types.Limit) {
		t.Fatal("first add should be accepted")
	}
	if b.AddOrder(1, dollars(101.00), 200, types.Buy, types.Limit) {
		t.Fatal("duplicate order id should be rejected")
	}
	snap, _ := b.GetOrder(1)
	if snap.Price != dollars(100.00) || snap.Quantity != 100 {
		t.Fatal("state should be unchanged after a rejected duplicate add")
	}
}

func TestCancelOrderFullyRemovesLevel(t *testing.T) {
	b := NewBook(1)
	b.AddOrder(1, dollars(100.00), 100, types.Buy, types.Limit)
	if !b.CancelOrder(1, 0) {
		t.Fatal("cancel of an active order should succeed")
	}
	if bid, _ := b.BestBid(); bid != 0 {
		t.Fatal("book should have no bid levels after the sole order is cancelled")
	}
	if b.CancelOrder(1, 0) {
		t.Fatal("cancelling an already-cancelled order should fail")
	}
}

func TestCancelOrderPartial(t *testing.T) {
	b := NewBook(1)
	b.AddOrder(1, dollars(100.00), 100, types.Buy, types.Limit)
	if !b.CancelOrder(1, 40) {
		t.Fatal("partial cancel should succeed")
	}
	bid, qty := b.BestBid()
	if bid != dollars(100.00) || qty != 60 {
		t.Fatalf("BestBid after partial cancel = (%d, %d), want (%d, 60)", bid, qty, dollars(100.00))
	}
}

func TestModifyOrderMovesLevel(t *testing.T) {
	b := NewBook(1)
	b.AddOrder(1, dollars(100.00), 100, types.Buy, types.Limit)
	if !b.ModifyOrder(1, dollars(100.50), 200) {
		t.Fatal("modify should succeed")
	}
	if bids := b.Bids(10); len(bids) != 1 || bids[0].Price != dollars(100.50) || bids[0].TotalQty != 200 {
		t.Fatal("old level should be removed once empty")
	}
	snap, _ := b.GetOrder(1)
	if snap.Price != dollars(100.50) || snap.Quantity != 200 {
		t.Fatalf("order after modify = %+v", snap)
	}
}

func bidLevelQuantitySum(b *Book) types.Quantity {
	var total types.Quantity
	for _, lvl := range b.Bids(1000) {
		total += lvl.TotalQty
	}
	return total
}

// Universal property 1 (bid side): sum of remaining active order
// quantity equals the sum of PriceLevel.TotalQty.
func TestLevelTotalsMatchResidentOrders(t *testing.T) {
	b := NewBook(1)
	b.AddOrder(1, dollars(100.00), 300, types.Buy, types.Limit)
	b.AddOrder(2, dollars(100.00), 200, types.Buy, types.Limit)
	b.AddOrder(3, dollars(99.90), 100, types.Buy, types.Limit)

	var residentSum types.Quantity
	for _, id := range []types.OrderId{1, 2, 3} {
		snap, _ := b.GetOrder(id)
		residentSum += snap.Remaining()
	}

	if got := bidLevelQuantitySum(b); got != residentSum {
		t.Fatalf("level totals = %d, resident order sum = %d", got, residentSum)
	}
}
