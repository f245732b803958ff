package orderbook

import (
	"sync"

	"github.com/abhivetukuri/marketmaker/internal/types"
)

// Registry maps SymbolId to Book, creating books lazily on first
// reference. Books are never removed during process lifetime. Lock
// acquisition order across the codebase is Registry -> Book -> pool;
// nothing here acquires a Book's mutex while holding the registry's.
type Registry struct {
	mu    sync.Mutex
	books map[types.SymbolId]*Book
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{books: make(map[types.SymbolId]*Book)}
}

// Book returns the book for symbol, creating it if this is the first
// reference.
func (r *Registry) Book(symbol types.SymbolId) *Book {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[symbol]
	if !ok {
		b = NewBook(symbol)
		r.books[symbol] = b
	}
	return b
}

// AddOrder dispatches to the book for symbol.
func (r *Registry) AddOrder(symbol types.SymbolId, id types.OrderId, price types.Price, qty types.Quantity, side types.OrderSide, orderType types.OrderType) bool {
	return r.Book(symbol).AddOrder(id, price, qty, side, orderType)
}

// CancelOrder dispatches to the book for symbol.
func (r *Registry) CancelOrder(symbol types.SymbolId, id types.OrderId, qty types.Quantity) bool {
	return r.Book(symbol).CancelOrder(id, qty)
}

// ModifyOrder dispatches to the book for symbol.
func (r *Registry) ModifyOrder(symbol types.SymbolId, id types.OrderId, newPrice types.Price, newQty types.Quantity) bool {
	return r.Book(symbol).ModifyOrder(id, newPrice, newQty)
}

// ExecuteTrade dispatches to the book for symbol.
func (r *Registry) ExecuteTrade(symbol types.SymbolId, price types.Price, qty types.Quantity, aggressorSide types.OrderSide) bool {
	return r.Book(symbol).ExecuteTrade(price, qty, aggressorSide)
}

// ActiveSymbols returns a snapshot of every symbol with a book.
func (r *Registry) ActiveSymbols() []types.SymbolId {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.SymbolId, 0, len(r.books))
	for s := range r.books {
		out = append(out, s)
	}
	return out
}

// BookCount returns the number of books created so far.
func (r *Registry) BookCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.books)
}
