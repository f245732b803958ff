package engine

import (
	"math"
	"sync"

	"github.com/abhivetukuri/marketmaker/internal/symbol"
	"github.com/abhivetukuri/marketmaker/internal/types"
)

const (
	baseDailyVol = 0.02  // 2% daily volatility
	sectorBlend  = 0.60  // 60% sector shock, 40% idiosyncratic
	driftPerTick = 0.0   // zero drift for simulation
	ticksPerDay  = 86400 // approximate, for vol scaling
)

// MarketEngine drives a reference-price random walk with sector-
// correlated returns. The order-flow generators place synthetic orders
// around the price it produces for each symbol.
type MarketEngine struct {
	mu     sync.RWMutex
	rng    *RNG
	prices map[types.SymbolId]float64
	syms   []symbol.Symbol
	bySym  map[types.SymbolId]*symbol.Symbol

	// sector shocks generated once per tick cycle
	sectorShocks map[symbol.Sector]float64
}

// NewMarketEngine creates a price engine for all symbols.
func NewMarketEngine(rng *RNG, syms []symbol.Symbol) *MarketEngine {
	prices := make(map[types.SymbolId]float64, len(syms))
	bySym := make(map[types.SymbolId]*symbol.Symbol, len(syms))
	for i := range syms {
		prices[syms[i].LocateCode] = syms[i].BasePrice
		bySym[syms[i].LocateCode] = &syms[i]
	}
	return &MarketEngine{
		rng:          rng,
		prices:       prices,
		syms:         syms,
		bySym:        bySym,
		sectorShocks: make(map[symbol.Sector]float64),
	}
}

// GenerateSectorShocks produces one gaussian shock per sector.
// Call this once per tick cycle before ticking individual symbols.
func (m *MarketEngine) GenerateSectorShocks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sec := range symbol.Sectors() {
		m.sectorShocks[sec] = m.rng.Gaussian()
	}
}

// Tick advances the price for a single symbol and returns the new price.
// GBM: S(t+1) = S(t) * exp(drift + vol * Z)
func (m *MarketEngine) Tick(id types.SymbolId) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	sym := m.bySym[id]
	if sym == nil {
		return 0
	}

	price := m.prices[id]

	// Per-tick volatility: daily vol / sqrt(ticks_per_day) * symbol multiplier
	tickVol := baseDailyVol / math.Sqrt(ticksPerDay) * sym.VolatilityMultiplier

	// Blended shock: sector + idiosyncratic
	sectorZ := m.sectorShocks[sym.Sector]
	idioZ := m.rng.Gaussian()
	z := sectorBlend*sectorZ + (1-sectorBlend)*idioZ

	// GBM step
	logReturn := driftPerTick + tickVol*z
	price *= math.Exp(logReturn)

	// Snap to tick size, floor at 1 tick
	price = math.Round(price/sym.TickSize) * sym.TickSize
	if price < sym.TickSize {
		price = sym.TickSize
	}

	m.prices[id] = price
	return price
}

// Price returns the current price for a symbol.
func (m *MarketEngine) Price(id types.SymbolId) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prices[id]
}

// PriceTicks returns the current price for a symbol as fixed-point
// ticks.
func (m *MarketEngine) PriceTicks(id types.SymbolId) types.Price {
	return types.PriceFromDollars(m.Price(id))
}

// SetPrice sets the price for a symbol (used when restoring from DB).
func (m *MarketEngine) SetPrice(id types.SymbolId, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[id] = price
}

// AllPrices returns a snapshot of all current prices.
func (m *MarketEngine) AllPrices() map[types.SymbolId]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.SymbolId]float64, len(m.prices))
	for k, v := range m.prices {
		out[k] = v
	}
	return out
}
