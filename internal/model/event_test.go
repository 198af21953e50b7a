package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestEventDecodesAsRecord(t *testing.T) {
	event := Event{
		Seq:       3,
		Kind:      EventSwap,
		Pool:      "0x00000000000000000000000000000000000000aa",
		Timestamp: 1700000000,
		Data: SwapData{
			Sender:    "0x0000000000000000000000000000000000000001",
			Recipient: "0x0000000000000000000000000000000000000001",
			InputSide: "base",
			AmountIn:  "1000000000000000000",
			AmountOut: "1978041738678708079",
		},
		Reserves: []PoolReserves{{
			Pool:         "0x00000000000000000000000000000000000000aa",
			AssetReserve: "1998021958261321291921",
			BaseReserve:  "1001000000000000000000",
			TotalShares:  "1000000000000000000000",
		}},
	}

	b, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var record EventRecord
	if err := json.Unmarshal(b, &record); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if record.Seq != event.Seq || record.Kind != event.Kind || record.Timestamp != event.Timestamp {
		t.Fatalf("header mismatch: %+v", record)
	}

	var swap SwapData
	if err := json.Unmarshal(record.Data, &swap); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !reflect.DeepEqual(event.Data, swap) {
		t.Fatalf("payload mismatch: %+v != %+v", event.Data, swap)
	}

	reserves, ok := record.ReservesOf(event.Pool)
	if !ok || reserves.BaseReserve != "1001000000000000000000" {
		t.Fatalf("reserves lookup failed: %+v", reserves)
	}
	if _, ok := record.ReservesOf("0x00000000000000000000000000000000000000bb"); ok {
		t.Fatalf("unexpected reserves for untouched pool")
	}
}
