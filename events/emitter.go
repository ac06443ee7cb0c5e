package events

import (
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("events")

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit   EventType = "block_commit"
	EventTxExecuted    EventType = "tx_executed"
	EventTxFailed      EventType = "tx_failed"
	EventTokenTransfer EventType = "token_transfer"
	EventAssetMinted   EventType = "asset_minted"
	EventAssetTransfer EventType = "asset_transfer"

	EventMarketInit    EventType = "market_initialized"
	EventMarketUpdate  EventType = "market_updated"
	EventMarketList    EventType = "market_list"
	EventMarketCancel  EventType = "market_cancel_listing"
	EventMarketBuy     EventType = "market_buy"
	EventOfferMade     EventType = "offer_made"
	EventOfferAccepted EventType = "offer_accepted"
	EventOfferCanceled EventType = "offer_cancelled"
	EventBidPlaced     EventType = "bid_placed"
	EventBidAccepted   EventType = "bid_accepted"
	EventBidCanceled   EventType = "bid_cancelled"
)

// SettlementEvents are the event types that conclude a trade.
var SettlementEvents = []EventType{EventMarketBuy, EventOfferAccepted, EventBidAccepted}

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
//
// Delivery is fire-and-forget: nothing a subscriber does can affect the
// state change that produced the event.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever one of typs is emitted.
func (e *Emitter) Subscribe(h Handler, typs ...EventType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, typ := range typs {
		e.handlers[typ] = append(e.handlers[typ], h)
	}
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt block production. A nil Emitter drops ev.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("handler panicked for %s: %v", ev.Type, r)
				}
			}()
			h(ev)
		}()
	}
}
