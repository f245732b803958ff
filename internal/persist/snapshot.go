package persist

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/abhivetukuri/marketmaker/internal/engine"
	"github.com/abhivetukuri/marketmaker/internal/orderbook"
	"github.com/abhivetukuri/marketmaker/internal/position"
	"github.com/abhivetukuri/marketmaker/internal/symbol"
	"github.com/abhivetukuri/marketmaker/internal/types"
)

// positionRecord is the fixed-size binary layout of one snapshotted
// position, packed via encoding/binary in the same field order as the
// in-memory Position it mirrors. An entry whose Symbol is zero is
// skipped on load.
type positionRecord struct {
	Symbol        uint16
	LongQuantity  uint32
	ShortQuantity uint32
	AvgLongPrice  int64
	AvgShortPrice int64
	RealizedPnL   int64
}

func encodePositionRecord(symbol types.SymbolId, pos position.Position) ([]byte, error) {
	rec := positionRecord{
		Symbol:        uint16(symbol),
		LongQuantity:  uint32(pos.LongQuantity),
		ShortQuantity: uint32(pos.ShortQuantity),
		AvgLongPrice:  int64(pos.AvgLongPrice),
		AvgShortPrice: int64(pos.AvgShortPrice),
		RealizedPnL:   int64(pos.RealizedPnL),
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePositionRecord(data []byte) (positionRecord, error) {
	var rec positionRecord
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, &rec); err != nil {
		return positionRecord{}, err
	}
	return rec, nil
}

// Snapshotter manages periodic persistence of simulator state: resting
// orders per book, per-symbol positions, the price engine, and its
// PRNG state.
type Snapshotter struct {
	store     *Store
	market    *engine.MarketEngine
	books     *orderbook.Registry
	positions *position.Tracker
	rng       *engine.RNG
	syms      []symbol.Symbol
	tickerMap map[types.SymbolId]string
}

// NewSnapshotter creates a new snapshotter.
func NewSnapshotter(store *Store, market *engine.MarketEngine, books *orderbook.Registry, positions *position.Tracker, rng *engine.RNG, syms []symbol.Symbol) *Snapshotter {
	tm := make(map[types.SymbolId]string, len(syms))
	for _, s := range syms {
		tm[s.LocateCode] = s.Ticker
	}
	return &Snapshotter{
		store:     store,
		market:    market,
		books:     books,
		positions: positions,
		rng:       rng,
		syms:      syms,
		tickerMap: tm,
	}
}

// Run starts the periodic snapshot loop. Blocks until ctx is cancelled.
func (s *Snapshotter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("performing final snapshot...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Save(shutdownCtx); err != nil {
				log.Printf("final snapshot error: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Save(ctx); err != nil {
				log.Printf("snapshot error: %v", err)
			}
		}
	}
}

// Save persists the full simulator state to MongoDB in a single transaction.
func (s *Snapshotter) Save(ctx context.Context) error {
	start := time.Now()

	session, err := s.store.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc context.Context) (any, error) {
		db := s.store.db
		now := time.Now()

		// 1. Upsert symbol reference prices.
		prices := s.market.AllPrices()
		for _, sym := range s.syms {
			price := prices[sym.LocateCode]
			filter := bson.M{"locate_code": sym.LocateCode}
			update := bson.M{"$set": bson.M{
				"locate_code":   sym.LocateCode,
				"ticker":        sym.Ticker,
				"name":          sym.Name,
				"sector":        string(sym.Sector),
				"base_price":    sym.BasePrice,
				"current_price": price,
				"tick_size":     sym.TickSize,
				"volatility":    sym.VolatilityMultiplier,
				"is_stress":     sym.IsStress,
			}}
			opts := options.UpdateOne().SetUpsert(true)
			if _, err := db.Collection("symbols").UpdateOne(sc, filter, update, opts); err != nil {
				return nil, fmt.Errorf("upsert symbol %s: %w", sym.Ticker, err)
			}
		}

		// 2. Replace all resting orders: delete then bulk insert.
		if _, err := db.Collection("orders").DeleteMany(sc, bson.M{}); err != nil {
			return nil, fmt.Errorf("delete orders: %w", err)
		}

		var orderDocs []any
		for _, symId := range s.books.ActiveSymbols() {
			for _, o := range s.books.Book(symId).Orders() {
				orderDocs = append(orderDocs, bson.M{
					"id":            uint64(o.Id),
					"symbol_locate": o.Symbol,
					"side":          o.Side.String(),
					"price":         int64(o.Price),
					"quantity":      uint32(o.Quantity),
					"filled":        uint32(o.FilledQuantity),
				})
			}
		}
		if len(orderDocs) > 0 {
			if _, err := db.Collection("orders").InsertMany(sc, orderDocs); err != nil {
				return nil, fmt.Errorf("insert orders: %w", err)
			}
		}

		// 3. Replace all positions. Each document holds one packed
		// binary Position record (spec's persisted-state format),
		// keyed by symbol_locate for the unique index.
		if _, err := db.Collection("positions").DeleteMany(sc, bson.M{}); err != nil {
			return nil, fmt.Errorf("delete positions: %w", err)
		}
		var posDocs []any
		for symId, pos := range s.positions.AllPositions() {
			record, err := encodePositionRecord(symId, pos)
			if err != nil {
				return nil, fmt.Errorf("encode position %d: %w", symId, err)
			}
			posDocs = append(posDocs, bson.M{
				"symbol_locate": symId,
				"record":        record,
			})
		}
		if len(posDocs) > 0 {
			if _, err := db.Collection("positions").InsertMany(sc, posDocs); err != nil {
				return nil, fmt.Errorf("insert positions: %w", err)
			}
		}

		// 4. Upsert PRNG state.
		rngState := s.rng.StateBytes()
		if _, err := db.Collection("sim_state").UpdateOne(sc,
			bson.M{"key": "rng_state"},
			bson.M{"$set": bson.M{
				"key":         "rng_state",
				"value_bytes": rngState,
				"updated_at":  now,
			}},
			options.UpdateOne().SetUpsert(true),
		); err != nil {
			return nil, fmt.Errorf("save rng state: %w", err)
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("snapshot transaction: %w", err)
	}

	log.Printf("snapshot saved in %v", time.Since(start))
	return nil
}

// Load restores simulator state from MongoDB. Returns true if state
// was found and loaded, false for a fresh start.
func (s *Snapshotter) Load(ctx context.Context) (bool, error) {
	db := s.store.db

	count, err := db.Collection("symbols").CountDocuments(ctx, bson.M{})
	if err != nil {
		return false, fmt.Errorf("check symbols: %w", err)
	}
	if count == 0 {
		log.Println("no persisted state found, starting fresh")
		return false, nil
	}

	cursor, err := db.Collection("symbols").Find(ctx, bson.M{})
	if err != nil {
		return false, fmt.Errorf("load prices: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc struct {
			LocateCode   types.SymbolId `bson:"locate_code"`
			CurrentPrice float64        `bson:"current_price"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return false, fmt.Errorf("decode symbol: %w", err)
		}
		s.market.SetPrice(doc.LocateCode, doc.CurrentPrice)
	}
	if err := cursor.Err(); err != nil {
		return false, fmt.Errorf("iterate symbols: %w", err)
	}

	orderCursor, err := db.Collection("orders").Find(ctx, bson.M{})
	if err != nil {
		return false, fmt.Errorf("load orders: %w", err)
	}
	defer orderCursor.Close(ctx)

	orderCount := 0
	for orderCursor.Next(ctx) {
		var doc struct {
			Id           uint64         `bson:"id"`
			SymbolLocate types.SymbolId `bson:"symbol_locate"`
			Side         string         `bson:"side"`
			Price        int64          `bson:"price"`
			Quantity     uint32         `bson:"quantity"`
			Filled       uint32         `bson:"filled"`
		}
		if err := orderCursor.Decode(&doc); err != nil {
			return false, fmt.Errorf("decode order: %w", err)
		}

		side := types.Buy
		if doc.Side == "sell" {
			side = types.Sell
		}
		snap := orderbook.Snapshot{
			Id:             types.OrderId(doc.Id),
			Symbol:         doc.SymbolLocate,
			Price:          types.Price(doc.Price),
			Quantity:       types.Quantity(doc.Quantity),
			FilledQuantity: types.Quantity(doc.Filled),
			Side:           side,
			Type:           types.Limit,
		}
		s.books.Book(doc.SymbolLocate).RestoreOrder(snap)
		orderCount++
	}
	if err := orderCursor.Err(); err != nil {
		return false, fmt.Errorf("iterate orders: %w", err)
	}

	posCursor, err := db.Collection("positions").Find(ctx, bson.M{})
	if err != nil {
		return false, fmt.Errorf("load positions: %w", err)
	}
	defer posCursor.Close(ctx)

	posLoaded := 0
	for posCursor.Next(ctx) {
		var doc struct {
			SymbolLocate types.SymbolId `bson:"symbol_locate"`
			Record       []byte         `bson:"record"`
		}
		if err := posCursor.Decode(&doc); err != nil {
			return false, fmt.Errorf("decode position: %w", err)
		}
		rec, err := decodePositionRecord(doc.Record)
		if err != nil {
			return false, fmt.Errorf("decode position record for symbol %d: %w", doc.SymbolLocate, err)
		}
		if rec.Symbol == 0 {
			continue
		}
		s.positions.RestorePosition(types.SymbolId(rec.Symbol), position.Position{
			LongQuantity:  types.Quantity(rec.LongQuantity),
			ShortQuantity: types.Quantity(rec.ShortQuantity),
			AvgLongPrice:  types.Price(rec.AvgLongPrice),
			AvgShortPrice: types.Price(rec.AvgShortPrice),
			RealizedPnL:   types.PnL(rec.RealizedPnL),
			LastUpdate:    types.Now(),
		})
		posLoaded++
	}
	if err := posCursor.Err(); err != nil {
		return false, fmt.Errorf("iterate positions: %w", err)
	}

	var stateDoc struct {
		ValueBytes []byte `bson:"value_bytes"`
	}
	if err := db.Collection("sim_state").FindOne(ctx, bson.M{"key": "rng_state"}).Decode(&stateDoc); err == nil && len(stateDoc.ValueBytes) >= 16 {
		s.rng.RestoreStateBytes(stateDoc.ValueBytes)
	}

	log.Printf("restored state: %d symbols, %d orders, %d positions", count, orderCount, posLoaded)
	return true, nil
}

// SaveTrade persists a single trade to the trade journal.
func (s *Snapshotter) SaveTrade(ctx context.Context, matchNumber uint64, symId types.SymbolId, price types.Price, qty types.Quantity, side types.OrderSide) error {
	ticker := s.tickerMap[symId]
	_, err := s.store.db.Collection("trades").InsertOne(ctx, bson.M{
		"match_number":  int64(matchNumber),
		"symbol_locate": symId,
		"ticker":        ticker,
		"price":         int64(price),
		"quantity":      uint32(qty),
		"side":          side.String(),
		"executed_at":   time.Now(),
	})
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}
