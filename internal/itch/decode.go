package itch

import (
	"encoding/binary"
	"fmt"
)

// Binary decoder for inbound feed records. Each record starts with a
// 1-byte type discriminant followed by a 2-byte stock locate code; the
// remaining layout is fixed per type. Records shorter than the
// minimum length for their type are rejected as malformed rather than
// parsed partially.

// MinRecordLength gives the minimum byte length accepted for each
// message type, mirroring the malformed-record thresholds used by the
// reference feed parser.
var MinRecordLength = map[MsgType]int{
	MsgStockDirectory: 40,
	MsgAddOrder:       36,
	MsgOrderExecuted:  32,
	MsgOrderCancel:    20,
	MsgOrderDelete:    12,
	MsgOrderReplace:   36,
	MsgTrade:          44,
}

// ErrMalformed indicates a record too short for its declared type.
type ErrMalformed struct {
	Type MsgType
	Len  int
	Min  int
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("malformed %c record: length %d below minimum %d", byte(e.Type), e.Len, e.Min)
}

// ErrUnknownType indicates a type byte the decoder does not recognize.
type ErrUnknownType struct{ Type byte }

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown record type %q", e.Type)
}

// DecodeBinary parses one inbound feed record. It requires an overall
// minimum length of 3 bytes (type + stock locate) before even
// inspecting the type-specific threshold.
func DecodeBinary(data []byte) (*Message, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("record too short: %d bytes", len(data))
	}
	t := MsgType(data[0])
	min, known := MinRecordLength[t]
	if !known {
		return nil, &ErrUnknownType{Type: byte(t)}
	}
	if len(data) < min {
		return nil, &ErrMalformed{Type: t, Len: len(data), Min: min}
	}

	switch t {
	case MsgStockDirectory:
		return decodeStockDirectory(data), nil
	case MsgAddOrder:
		return decodeAddOrder(data), nil
	case MsgOrderExecuted:
		return decodeOrderExecuted(data), nil
	case MsgOrderCancel:
		return decodeOrderCancel(data), nil
	case MsgOrderDelete:
		return decodeOrderDelete(data), nil
	case MsgOrderReplace:
		return decodeOrderReplace(data), nil
	case MsgTrade:
		return decodeTrade(data), nil
	}
	return nil, &ErrUnknownType{Type: byte(t)}
}

// StockDirectory (40 bytes)
// Type(1) StockLocate(2) Timestamp(8) Stock(8) MarketCategory(1)
// FinancialStatus(1) RoundLotSize(4) RoundLotsOnly(1) Reserved(14)
func decodeStockDirectory(d []byte) *Message {
	return &Message{
		Type:            MsgStockDirectory,
		StockLocate:     binary.BigEndian.Uint16(d[1:3]),
		Timestamp:       int64(binary.BigEndian.Uint64(d[3:11])),
		Stock:           trimStock(d[11:19]),
		MarketCategory:  d[19],
		FinancialStatus: d[20],
		RoundLotSize:    int32(binary.BigEndian.Uint32(d[21:25])),
		RoundLotsOnly:   d[25],
	}
}

// AddOrder (36 bytes)
// Type(1) StockLocate(2) Timestamp(8) OrderRef(8) Side(1) Shares(4)
// Price(4, raw feed integer, NOT pre-scaled) Stock(8)
func decodeAddOrder(d []byte) *Message {
	return &Message{
		Type:        MsgAddOrder,
		StockLocate: binary.BigEndian.Uint16(d[1:3]),
		Timestamp:   int64(binary.BigEndian.Uint64(d[3:11])),
		OrderRef:    binary.BigEndian.Uint64(d[11:19]),
		Side:        d[19],
		Shares:      int32(binary.BigEndian.Uint32(d[20:24])),
		Price:       float64(binary.BigEndian.Uint32(d[24:28])),
		Stock:       trimStock(d[28:36]),
	}
}

// OrderExecuted (32 bytes)
// Type(1) StockLocate(2) Timestamp(8) OrderRef(8) Shares(4) MatchNumber(8) Reserved(1)
func decodeOrderExecuted(d []byte) *Message {
	return &Message{
		Type:        MsgOrderExecuted,
		StockLocate: binary.BigEndian.Uint16(d[1:3]),
		Timestamp:   int64(binary.BigEndian.Uint64(d[3:11])),
		OrderRef:    binary.BigEndian.Uint64(d[11:19]),
		Shares:      int32(binary.BigEndian.Uint32(d[19:23])),
		MatchNumber: binary.BigEndian.Uint64(d[23:31]),
	}
}

// OrderCancel (20 bytes)
// Type(1) StockLocate(2) OrderRef(8) CancelledShares(4) Reserved(5)
// No wire timestamp; the decoded Timestamp is left zero.
func decodeOrderCancel(d []byte) *Message {
	return &Message{
		Type:        MsgOrderCancel,
		StockLocate: binary.BigEndian.Uint16(d[1:3]),
		OrderRef:    binary.BigEndian.Uint64(d[3:11]),
		Shares:      int32(binary.BigEndian.Uint32(d[11:15])),
	}
}

// OrderDelete (12 bytes)
// Type(1) StockLocate(2) OrderRef(8) Reserved(1)
// No wire timestamp; the decoded Timestamp is left zero.
func decodeOrderDelete(d []byte) *Message {
	return &Message{
		Type:        MsgOrderDelete,
		StockLocate: binary.BigEndian.Uint16(d[1:3]),
		OrderRef:    binary.BigEndian.Uint64(d[3:11]),
	}
}

// OrderReplace (36 bytes)
// Type(1) StockLocate(2) Timestamp(8) OrigOrderRef(8) NewOrderRef(8)
// Shares(4) Price(4, raw) Reserved(1)
func decodeOrderReplace(d []byte) *Message {
	return &Message{
		Type:         MsgOrderReplace,
		StockLocate:  binary.BigEndian.Uint16(d[1:3]),
		Timestamp:    int64(binary.BigEndian.Uint64(d[3:11])),
		OrigOrderRef: binary.BigEndian.Uint64(d[11:19]),
		OrderRef:     binary.BigEndian.Uint64(d[19:27]),
		Shares:       int32(binary.BigEndian.Uint32(d[27:31])),
		Price:        float64(binary.BigEndian.Uint32(d[31:35])),
	}
}

// Trade (44 bytes)
// Type(1) StockLocate(2) Timestamp(8) OrderRef(8) Side(1) Shares(4)
// Price(4, raw) Stock(8) MatchNumber(8)
func decodeTrade(d []byte) *Message {
	return &Message{
		Type:        MsgTrade,
		StockLocate: binary.BigEndian.Uint16(d[1:3]),
		Timestamp:   int64(binary.BigEndian.Uint64(d[3:11])),
		OrderRef:    binary.BigEndian.Uint64(d[11:19]),
		Side:        d[19],
		Shares:      int32(binary.BigEndian.Uint32(d[20:24])),
		Price:       float64(binary.BigEndian.Uint32(d[24:28])),
		Stock:       trimStock(d[28:36]),
		MatchNumber: binary.BigEndian.Uint64(d[36:44]),
	}
}

func trimStock(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}
