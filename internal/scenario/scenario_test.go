package scenario

import (
	"strings"
	"testing"

	"github.com/abhivetukuri/marketmaker/internal/orderbook"
	"github.com/abhivetukuri/marketmaker/internal/position"
	"github.com/abhivetukuri/marketmaker/internal/types"
)

func newRunner() (*Runner, *orderbook.Registry, *position.Tracker) {
	books := orderbook.NewRegistry()
	positions := position.NewTracker(position.DefaultLimits())
	return NewRunner(books, positions), books, positions
}

func TestParseLineIsCaseInsensitive(t *testing.T) {
	cmd := parseLine("ADD Limit Buy 1 1 100.00 50", 1)
	if cmd.Type != AddLimitBuy {
		t.Fatalf("Type = %v, want AddLimitBuy", cmd.Type)
	}
	if len(cmd.Arguments) != 4 {
		t.Fatalf("len(Arguments) = %d, want 4", len(cmd.Arguments))
	}
}

func TestCommentLinesAreSkipped(t *testing.T) {
	r, books, _ := newRunner()
	src := "# a comment\nadd limit buy 1 1 100.00 50\n"
	result := r.RunScenario("s", strings.NewReader(src))
	if !result.Passed {
		t.Fatalf("scenario should pass: %s", result.ErrorMessage)
	}
	if books.BookCount() != 1 {
		t.Fatal("comment line must not create a book")
	}
}

// S6 — the worked scenario example: resting limit orders on both
// sides, matching disabled by default, then an enabled market order
// trades against the best ask.
func TestLimitOrdersRestUntilMatchingEnabled(t *testing.T) {
	r, books, positions := newRunner()
	src := strings.Join([]string{
		"add limit buy 1 1 99.00 100",
		"add limit sell 2 1 101.00 100",
		"add market buy 3 1 50",
	}, "\n")

	result := r.RunScenario("s6", strings.NewReader(src))
	if !result.Passed {
		t.Fatalf("scenario should pass: %s", result.ErrorMessage)
	}
	if result.TradesExecuted != 0 {
		t.Fatal("market order should not trade while matching is disabled")
	}

	r.SetMatchingEnabled(true)
	result2 := r.RunScenario("s6b", strings.NewReader("add market buy 4 1 50"))
	if result2.TradesExecuted != 1 {
		t.Fatalf("TradesExecuted = %d, want 1 once matching is enabled", result2.TradesExecuted)
	}

	pos, ok := positions.Position(1)
	if !ok || pos.LongQuantity != 50 {
		t.Fatalf("position after market buy = %+v, want LongQuantity=50", pos)
	}
	book := books.Book(1)
	if book.Stats().TotalOrders == 0 {
		t.Fatal("resting orders should still be reflected in book stats")
	}
}

func TestSlippageMarketBuyExecutesAboveBid(t *testing.T) {
	r, _, positions := newRunner()
	r.SetMatchingEnabled(true)
	src := strings.Join([]string{
		"add limit buy 1 1 99.00 100",
		"add slippage market buy 2 1 50 0.05",
	}, "\n")
	result := r.RunScenario("slip", strings.NewReader(src))
	if !result.Passed {
		t.Fatalf("scenario should pass: %s", result.ErrorMessage)
	}

	pos, _ := positions.Position(1)
	want := types.PriceFromDollars(99.05)
	if pos.AvgLongPrice != want {
		t.Fatalf("AvgLongPrice = %d, want %d (bid + slippage)", pos.AvgLongPrice, want)
	}
}

func TestUnknownCommandDoesNotStopScenario(t *testing.T) {
	r, _, _ := newRunner()
	src := "frobnicate widgets\nadd limit buy 1 1 100.00 50\n"
	result := r.RunScenario("bad", strings.NewReader(src))
	// unrecognized lines parse to no command at all and are skipped,
	// so this scenario still passes; a malformed known command fails.
	if !result.Passed {
		t.Fatalf("unrecognized lines should be skipped, not fail the scenario: %s", result.ErrorMessage)
	}

	badArity := r.RunScenario("bad2", strings.NewReader("add limit buy 1 1 100.00\n"))
	if badArity.Passed {
		t.Fatal("add limit buy with too few arguments should fail")
	}
}

func TestStatsAccumulateAcrossRuns(t *testing.T) {
	r, _, _ := newRunner()
	r.RunScenario("a", strings.NewReader("add book 1\n"))
	r.RunScenario("b", strings.NewReader("add limit buy 1 1 100.00\n")) // fails: bad arity

	stats := r.Stats()
	if stats.TotalScenarios != 2 || stats.PassedScenarios != 1 || stats.FailedScenarios != 1 {
		t.Fatalf("Stats = %+v, want 2 total, 1 passed, 1 failed", stats)
	}
}
