package orderbook

import (
	"github.com/abhivetukuri/marketmaker/internal/pool"
	"github.com/abhivetukuri/marketmaker/internal/types"
)

// PriceLevel holds the aggregated standing liquidity at one price on one
// side of a book.
type PriceLevel struct {
	Price      types.Price
	TotalQty   types.Quantity
	OrderCount uint32
	LastUpdate types.Timestamp
}

type rbColor uint8

const (
	red   rbColor = 0
	black rbColor = 1
)

type rbNode struct {
	price  types.Price
	handle pool.Handle
	color  rbColor
	left   *rbNode
	right  *rbNode
	parent *rbNode
}

// priceIndex is an ordered, keyed index of price levels for one side of
// a book, backed by a red-black tree so point operations (insert,
// remove, best) stay O(log N) as resting price levels accumulate.
// descending controls iteration order: true for the bid side (best
// price first, highest to lowest), false for the ask side.
type priceIndex struct {
	descending bool
	root       *rbNode
	nilNode    *rbNode
	size       int
}

func newPriceIndex(descending bool) *priceIndex {
	sentinel := &rbNode{color: black}
	return &priceIndex{
		descending: descending,
		root:       sentinel,
		nilNode:    sentinel,
	}
}

// less reports whether a sorts ahead of b for this side: for bids
// (descending) a higher price is "less" (comes first); for asks a
// lower price is "less".
func (idx *priceIndex) less(a, b types.Price) bool {
	if idx.descending {
		return a > b
	}
	return a < b
}

func (idx *priceIndex) get(price types.Price) (pool.Handle, bool) {
	n := idx.find(price)
	if n == idx.nilNode {
		return pool.Handle{}, false
	}
	return n.handle, true
}

func (idx *priceIndex) find(price types.Price) *rbNode {
	n := idx.root
	for n != idx.nilNode {
		switch {
		case idx.less(price, n.price):
			n = n.left
		case idx.less(n.price, price):
			n = n.right
		default:
			return n
		}
	}
	return idx.nilNode
}

func (idx *priceIndex) insert(price types.Price, h pool.Handle) {
	y := idx.nilNode
	x := idx.root
	for x != idx.nilNode {
		y = x
		switch {
		case idx.less(price, x.price):
			x = x.left
		case idx.less(x.price, price):
			x = x.right
		default:
			x.handle = h
			return
		}
	}

	z := &rbNode{price: price, handle: h, color: red, left: idx.nilNode, right: idx.nilNode, parent: y}
	switch {
	case y == idx.nilNode:
		idx.root = z
	case idx.less(price, y.price):
		y.left = z
	default:
		y.right = z
	}
	idx.insertFixup(z)
	idx.size++
}

func (idx *priceIndex) remove(price types.Price) {
	z := idx.find(price)
	if z == idx.nilNode {
		return
	}
	idx.deleteNode(z)
	idx.size--
}

// best returns the top-of-book price for this side: the highest bid or
// the lowest ask, per descending.
func (idx *priceIndex) best() (types.Price, pool.Handle, bool) {
	n := idx.min(idx.root)
	if n == idx.nilNode {
		return 0, pool.Handle{}, false
	}
	return n.price, n.handle, true
}

// depth returns up to n prices from the best end outward.
func (idx *priceIndex) depth(n int) []types.Price {
	if n > idx.size {
		n = idx.size
	}
	out := make([]types.Price, 0, n)
	idx.walk(func(price types.Price, _ pool.Handle) bool {
		if len(out) >= n {
			return false
		}
		out = append(out, price)
		return true
	})
	return out
}

func (idx *priceIndex) len() int {
	return idx.size
}

// walk calls fn for each price from the best end outward until fn
// returns false or the index is exhausted.
func (idx *priceIndex) walk(fn func(price types.Price, h pool.Handle) bool) {
	for n := idx.min(idx.root); n != idx.nilNode; n = idx.next(n) {
		if !fn(n.price, n.handle) {
			return
		}
	}
}

func (idx *priceIndex) min(n *rbNode) *rbNode {
	if n == idx.nilNode {
		return idx.nilNode
	}
	for n.left != idx.nilNode {
		n = n.left
	}
	return n
}

func (idx *priceIndex) max(n *rbNode) *rbNode {
	if n == idx.nilNode {
		return idx.nilNode
	}
	for n.right != idx.nilNode {
		n = n.right
	}
	return n
}

func (idx *priceIndex) next(n *rbNode) *rbNode {
	if n.right != idx.nilNode {
		return idx.min(n.right)
	}
	p := n.parent
	for p != idx.nilNode && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (idx *priceIndex) leftRotate(x *rbNode) {
	y := x.right
	x.right = y.left
	if y.left != idx.nilNode {
		y.left.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == idx.nilNode:
		idx.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (idx *priceIndex) rightRotate(y *rbNode) {
	x := y.left
	y.left = x.right
	if x.right != idx.nilNode {
		x.right.parent = y
	}
	x.parent = y.parent
	switch {
	case y.parent == idx.nilNode:
		idx.root = x
	case y == y.parent.right:
		y.parent.right = x
	default:
		y.parent.left = x
	}
	x.right = y
	y.parent = x
}

func (idx *priceIndex) insertFixup(z *rbNode) {
	for z.parent.color == red {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.right {
					z = z.parent
					idx.leftRotate(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				idx.rightRotate(z.parent.parent)
			}
		} else {
			y := z.parent.parent.left
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.left {
					z = z.parent
					idx.rightRotate(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				idx.leftRotate(z.parent.parent)
			}
		}
	}
	idx.root.color = black
}

func (idx *priceIndex) transplant(u, v *rbNode) {
	switch {
	case u.parent == idx.nilNode:
		idx.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}
	v.parent = u.parent
}

func (idx *priceIndex) deleteNode(z *rbNode) {
	y := z
	yOrigColor := y.color
	var x *rbNode

	switch {
	case z.left == idx.nilNode:
		x = z.right
		idx.transplant(z, z.right)
	case z.right == idx.nilNode:
		x = z.left
		idx.transplant(z, z.left)
	default:
		y = idx.min(z.right)
		yOrigColor = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			idx.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		idx.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yOrigColor == black {
		idx.deleteFixup(x)
	}
}

func (idx *priceIndex) deleteFixup(x *rbNode) {
	for x != idx.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				idx.leftRotate(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.right.color == black {
					w.left.color = black
					w.color = red
					idx.rightRotate(w)
					w = x.parent.right
				}
				w.color = x.parent.color
				x.parent.color = black
				w.right.color = black
				idx.leftRotate(x.parent)
				x = idx.root
			}
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				idx.rightRotate(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.left.color == black {
					w.right.color = black
					w.color = red
					idx.leftRotate(x.parent)
					w = x.parent.left
				}
				w.color = x.parent.color
				x.parent.color = black
				w.left.color = black
				idx.rightRotate(x.parent)
				x = idx.root
			}
		}
	}
	x.color = black
}
