package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/abhivetukuri/marketmaker/internal/persist"
	"github.com/abhivetukuri/marketmaker/internal/types"
)

type symbolInfo struct {
	LocateCode types.SymbolId `json:"locateCode"`
	Ticker     string         `json:"ticker"`
	Name       string         `json:"name"`
	Sector     string         `json:"sector"`
	Price      float64        `json:"price"`
	BestBid    float64        `json:"bestBid"`
	BestAsk    float64        `json:"bestAsk"`
	Spread     float64        `json:"spread"`
}

// handleSymbols returns all symbols with live prices and top-of-book.
func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	prices := s.market.AllPrices()
	out := make([]symbolInfo, 0, len(s.syms))

	for _, sym := range s.syms {
		si := symbolInfo{
			LocateCode: sym.LocateCode,
			Ticker:     sym.Ticker,
			Name:       sym.Name,
			Sector:     string(sym.Sector),
			Price:      prices[sym.LocateCode],
		}
		book := s.books.Book(sym.LocateCode)
		bid, _ := book.BestBid()
		ask, _ := book.BestAsk()
		si.BestBid = bid.Dollars()
		si.BestAsk = ask.Dollars()
		si.Spread = si.BestAsk - si.BestBid
		out = append(out, si)
	}

	writeJSON(w, http.StatusOK, out)
}

// handleSymbolDetail returns a single symbol with live price and top-of-book.
func (s *Server) handleSymbolDetail(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	sym := s.resolveTicker(w, ticker)
	if sym == nil {
		return
	}

	price := s.market.Price(sym.LocateCode)
	si := symbolInfo{
		LocateCode: sym.LocateCode,
		Ticker:     sym.Ticker,
		Name:       sym.Name,
		Sector:     string(sym.Sector),
		Price:      price,
	}
	book := s.books.Book(sym.LocateCode)
	bid, _ := book.BestBid()
	ask, _ := book.BestAsk()
	si.BestBid = bid.Dollars()
	si.BestAsk = ask.Dollars()
	si.Spread = si.BestAsk - si.BestBid

	writeJSON(w, http.StatusOK, si)
}

type depthResponse struct {
	Ticker   string      `json:"ticker"`
	Bids     []levelJSON `json:"bids"`
	Asks     []levelJSON `json:"asks"`
	BestBid  float64     `json:"bestBid"`
	BestAsk  float64     `json:"bestAsk"`
	MidPrice float64     `json:"midPrice"`
	Spread   float64     `json:"spread"`
}

type levelJSON struct {
	Price       float64 `json:"price"`
	Orders      uint32  `json:"orders"`
	TotalShares uint32  `json:"totalShares"`
}

// handleBookDepth returns the order book depth for a symbol.
func (s *Server) handleBookDepth(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	sym := s.resolveTicker(w, ticker)
	if sym == nil {
		return
	}

	book := s.books.Book(sym.LocateCode)
	depth := parseIntParam(r, "depth", 10)
	bid, _ := book.BestBid()
	ask, _ := book.BestAsk()

	resp := depthResponse{
		Ticker:   sym.Ticker,
		BestBid:  bid.Dollars(),
		BestAsk:  ask.Dollars(),
		MidPrice: book.MidPrice().Dollars(),
		Spread:   book.Spread().Dollars(),
	}

	for _, lvl := range book.Bids(depth) {
		resp.Bids = append(resp.Bids, levelJSON{
			Price:       lvl.Price.Dollars(),
			Orders:      lvl.OrderCount,
			TotalShares: uint32(lvl.TotalQty),
		})
	}
	for _, lvl := range book.Asks(depth) {
		resp.Asks = append(resp.Asks, levelJSON{
			Price:       lvl.Price.Dollars(),
			Orders:      lvl.OrderCount,
			TotalShares: uint32(lvl.TotalQty),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleTrades returns paginated trades for a symbol from the database.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	sym := s.resolveTicker(w, ticker)
	if sym == nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	trades, err := s.reader.QueryTrades(ctx, persist.TradeFilter{
		SymbolLocate: uint16(sym.LocateCode),
		Limit:        parseIntParam(r, "limit", 100),
		Offset:       parseIntParam(r, "offset", 0),
		From:         parseTimeParam(r, "from"),
		To:           parseTimeParam(r, "to"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, trades)
}

// handleCandles returns OHLCV bars for a symbol.
func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	sym := s.resolveTicker(w, ticker)
	if sym == nil {
		return
	}

	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	candles, err := s.reader.QueryCandles(ctx, persist.CandleFilter{
		SymbolLocate: uint16(sym.LocateCode),
		Interval:     interval,
		Limit:        parseIntParam(r, "limit", 100),
		From:         parseTimeParam(r, "from"),
		To:           parseTimeParam(r, "to"),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, candles)
}

type positionInfo struct {
	Ticker        string  `json:"ticker"`
	NetPosition   int64   `json:"netPosition"`
	LongQuantity  uint32  `json:"longQuantity"`
	ShortQuantity uint32  `json:"shortQuantity"`
	AvgLongPrice  float64 `json:"avgLongPrice"`
	AvgShortPrice float64 `json:"avgShortPrice"`
	RealizedPnL   float64 `json:"realizedPnl"`
	UnrealizedPnL float64 `json:"unrealizedPnl"`
}

// handlePositions returns every symbol's current position and P&L.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	all := s.positions.AllPositions()
	out := make([]positionInfo, 0, len(s.syms))
	for _, sym := range s.syms {
		pos, ok := all[sym.LocateCode]
		if !ok {
			continue
		}
		out = append(out, toPositionInfo(sym.Ticker, pos.NetPosition(), pos.LongQuantity, pos.ShortQuantity, pos.AvgLongPrice, pos.AvgShortPrice, pos.RealizedPnL, pos.UnrealizedPnL))
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePositionDetail returns one symbol's current position and P&L.
func (s *Server) handlePositionDetail(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	sym := s.resolveTicker(w, ticker)
	if sym == nil {
		return
	}
	pos, ok := s.positions.Position(sym.LocateCode)
	if !ok {
		writeJSON(w, http.StatusOK, toPositionInfo(sym.Ticker, 0, 0, 0, 0, 0, 0, 0))
		return
	}
	writeJSON(w, http.StatusOK, toPositionInfo(sym.Ticker, pos.NetPosition(), pos.LongQuantity, pos.ShortQuantity, pos.AvgLongPrice, pos.AvgShortPrice, pos.RealizedPnL, pos.UnrealizedPnL))
}

func toPositionInfo(ticker string, net int64, longQty, shortQty types.Quantity, avgLong, avgShort types.Price, realized, unrealized types.PnL) positionInfo {
	return positionInfo{
		Ticker:        ticker,
		NetPosition:   net,
		LongQuantity:  uint32(longQty),
		ShortQuantity: uint32(shortQty),
		AvgLongPrice:  avgLong.Dollars(),
		AvgShortPrice: avgShort.Dollars(),
		RealizedPnL:   float64(realized) / float64(types.TicksPerDollar),
		UnrealizedPnL: float64(unrealized) / float64(types.TicksPerDollar),
	}
}

// handleRunScenario accepts a scenario script body and runs it against
// the live book registry and position tracker.
func (s *Server) handleRunScenario(w http.ResponseWriter, r *http.Request) {
	if s.scenarios == nil {
		writeError(w, http.StatusServiceUnavailable, "scenario runner not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read scenario body")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "adhoc"
	}
	result := s.scenarios.RunScenario(name, bytes.NewReader(body))
	writeJSON(w, http.StatusOK, result)
}

type statsResponse struct {
	Uptime      string `json:"uptime"`
	Clients     int    `json:"clients"`
	Symbols     int    `json:"symbols"`
	TotalOrders int    `json:"totalOrders"`
	TotalTrades int64  `json:"totalTrades"`
	TotalVolume int64  `json:"totalVolume"`
}

// handleStats returns runtime and aggregate statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var totalOrders int
	for _, symId := range s.books.ActiveSymbols() {
		totalOrders += s.books.Book(symId).OrderCount()
	}

	ts, err := s.reader.QueryTradeStats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Uptime:      time.Since(s.startAt).Truncate(time.Second).String(),
		Clients:     s.mgr.ClientCount(),
		Symbols:     len(s.syms),
		TotalOrders: totalOrders,
		TotalTrades: ts.TotalTrades,
		TotalVolume: ts.TotalVolume,
	})
}
