package orderbook

import (
	"testing"

	"github.com/abhivetukuri/marketmaker/internal/types"
)

func TestRegistryCreatesBookLazily(t *testing.T) {
	r := NewRegistry()
	if r.BookCount() != 0 {
		t.Fatal("new registry should have no books")
	}
	r.Book(1)
	if r.BookCount() != 1 {
		t.Fatal("first reference to a symbol should create exactly one book")
	}
	r.Book(1)
	if r.BookCount() != 1 {
		t.Fatal("a second reference to the same symbol should not create another book")
	}
}

func TestRegistryDispatchesToCorrectBook(t *testing.T) {
	r := NewRegistry()
	r.AddOrder(1, 100, dollars(10.00), 50, types.Buy, types.Limit)
	r.AddOrder(2, 200, dollars(20.00), 50, types.Buy, types.Limit)

	if bid, _ := r.Book(1).BestBid(); bid != dollars(10.00) {
		t.Fatalf("book 1 BestBid = %d, want %d", bid, dollars(10.00))
	}
	if bid, _ := r.Book(2).BestBid(); bid != dollars(20.00) {
		t.Fatalf("book 2 BestBid = %d, want %d", bid, dollars(20.00))
	}
}
