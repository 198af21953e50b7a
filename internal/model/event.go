package model

import "encoding/json"

// EventKind names an engine operation that changed state.
type EventKind string

const (
	EventPoolCreated       EventKind = "pool_created"
	EventLiquidityAdded    EventKind = "liquidity_added"
	EventLiquidityRemoved  EventKind = "liquidity_removed"
	EventSwap              EventKind = "swap"
	EventRoutedSwap        EventKind = "routed_swap"
	EventSharesTransferred EventKind = "shares_transferred"
)

// Event is a committed engine operation as handed to event sinks.
// Amounts are base-10 smallest-unit strings.
type Event struct {
	Seq       uint64         `json:"seq"`
	Kind      EventKind      `json:"kind"`
	Pool      string         `json:"pool"`
	Timestamp uint64         `json:"timestamp"`
	Data      interface{}    `json:"data"`
	Reserves  []PoolReserves `json:"reserves"`
}

// PoolReserves is the state of one pool right after an event.
type PoolReserves struct {
	Pool         string `json:"pool"`
	AssetReserve string `json:"asset_reserve"`
	BaseReserve  string `json:"base_reserve"`
	TotalShares  string `json:"total_shares"`
}

// EventRecord is the JSON form of an Event read back from a sink.
type EventRecord struct {
	Seq       uint64          `json:"seq"`
	Kind      EventKind       `json:"kind"`
	Pool      string          `json:"pool"`
	Timestamp uint64          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Reserves  []PoolReserves  `json:"reserves"`
}

// Record converts an event to the form it is read back in.
func (e Event) Record() (EventRecord, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		Seq:       e.Seq,
		Kind:      e.Kind,
		Pool:      e.Pool,
		Timestamp: e.Timestamp,
		Data:      data,
		Reserves:  e.Reserves,
	}, nil
}

// ReservesOf returns the post-event reserves of pool, if the event touched it.
func (r EventRecord) ReservesOf(pool string) (PoolReserves, bool) {
	for _, reserves := range r.Reserves {
		if reserves.Pool == pool {
			return reserves, true
		}
	}
	return PoolReserves{}, false
}
