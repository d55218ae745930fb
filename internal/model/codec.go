package model

import "encoding/json"

// EncodeTick/DecodeTick and their Order/Trade counterparts are the canonical
// encoder/decoder for each record type. The wire schema itself is treated as
// external to the core; JSON via encoding/json is used here, the same
// package the venue adapters use for their REST payloads, so no additional
// serialisation dependency is introduced for the bus.

func EncodeTick(t Tick) ([]byte, error)  { return json.Marshal(t) }
func DecodeTick(b []byte) (Tick, error)  { var t Tick; err := json.Unmarshal(b, &t); return t, err }

func EncodeOrder(o Order) ([]byte, error) { return json.Marshal(o) }
func DecodeOrder(b []byte) (Order, error) {
	var o Order
	err := json.Unmarshal(b, &o)
	return o, err
}

func EncodeTrade(t Trade) ([]byte, error) { return json.Marshal(t) }
func DecodeTrade(b []byte) (Trade, error) {
	var t Trade
	err := json.Unmarshal(b, &t)
	return t, err
}

func EncodePosition(p Position) ([]byte, error) { return json.Marshal(p) }
func DecodePosition(b []byte) (Position, error) {
	var p Position
	err := json.Unmarshal(b, &p)
	return p, err
}
