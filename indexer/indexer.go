// Package indexer maintains secondary indexes over committed transactions so
// clients can query assets by owner and open orders by asset without scanning
// full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/storage"
)

var log = logging.Logger("indexer")

const (
	prefixOwnerAssets = "idx:owner:asset:"
	prefixOpenOrders  = "idx:asset:orders:"
)

// OrderKind distinguishes the three kinds of open order.
type OrderKind string

const (
	KindListing OrderKind = "listing"
	KindOffer   OrderKind = "offer"
	KindBid     OrderKind = "bid"
)

// OpenOrder is one active listing, offer or bid on an asset.
type OpenOrder struct {
	Kind      OrderKind `json:"kind"`
	Key       string    `json:"key"`
	Owner     string    `json:"owner"`
	Price     uint64    `json:"price"`
	ExpiresAt int64     `json:"expires_at,omitempty"`
}

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	mu sync.Mutex
	db storage.DB
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db}
	emitter.Subscribe(idx.onAssetMinted, events.EventAssetMinted)
	emitter.Subscribe(idx.onAssetTransferred, events.EventAssetTransfer)
	emitter.Subscribe(idx.onSettled, events.SettlementEvents...)
	emitter.Subscribe(idx.onOrderOpened, events.EventMarketList, events.EventOfferMade, events.EventBidPlaced)
	emitter.Subscribe(idx.onOrderClosed, events.EventMarketCancel, events.EventOfferCanceled, events.EventBidCanceled)
	return idx
}

// GetAssetsByOwner returns all asset IDs owned by the given pubkey.
func (idx *Indexer) GetAssetsByOwner(owner string) ([]string, error) {
	var ids []string
	if err := idx.get(prefixOwnerAssets+owner, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetOpenOrders returns the active listings, offers and bids on assetID.
// Expired offers and bids remain until cancelled.
func (idx *Indexer) GetOpenOrders(assetID string) ([]OpenOrder, error) {
	var orders []OpenOrder
	if err := idx.get(prefixOpenOrders+assetID, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ---- event handlers ----

func (idx *Indexer) onAssetMinted(ev events.Event) {
	owner, _ := ev.Data["owner"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if owner == "" || assetID == "" {
		return
	}
	idx.moveAsset(assetID, "", owner)
}

func (idx *Indexer) onAssetTransferred(ev events.Event) {
	from, _ := ev.Data["from"].(string)
	to, _ := ev.Data["to"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if assetID == "" || from == "" || to == "" {
		return
	}
	idx.moveAsset(assetID, from, to)
}

// onSettled moves ownership and closes the settled order.
func (idx *Indexer) onSettled(ev events.Event) {
	seller, _ := ev.Data["seller"].(string)
	buyer, _ := ev.Data["buyer"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if assetID == "" || seller == "" || buyer == "" {
		return
	}
	idx.moveAsset(assetID, seller, buyer)
	idx.onOrderClosed(ev)
}

func (idx *Indexer) onOrderOpened(ev events.Event) {
	assetID, _ := ev.Data["asset_id"].(string)
	kind, key, owner := orderRef(ev)
	if assetID == "" || key == "" {
		return
	}
	o := OpenOrder{Kind: kind, Key: key, Owner: owner, Price: asUint(ev.Data["price"])}
	if exp, ok := ev.Data["expires_at"].(int64); ok {
		o.ExpiresAt = exp
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	var orders []OpenOrder
	if err := idx.get(prefixOpenOrders+assetID, &orders); err != nil {
		log.Warnw("read open orders", "asset", assetID, "err", err)
		return
	}
	orders = append(dropOrder(orders, key), o)
	idx.put(prefixOpenOrders+assetID, orders)
}

func (idx *Indexer) onOrderClosed(ev events.Event) {
	assetID, _ := ev.Data["asset_id"].(string)
	_, key, _ := orderRef(ev)
	if assetID == "" || key == "" {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	var orders []OpenOrder
	if err := idx.get(prefixOpenOrders+assetID, &orders); err != nil {
		log.Warnw("read open orders", "asset", assetID, "err", err)
		return
	}
	idx.put(prefixOpenOrders+assetID, dropOrder(orders, key))
}

// orderRef extracts the record key and owner an order event refers to.
func orderRef(ev events.Event) (OrderKind, string, string) {
	if k, ok := ev.Data["listing"].(string); ok {
		owner, _ := ev.Data["seller"].(string)
		return KindListing, k, owner
	}
	if k, ok := ev.Data["offer"].(string); ok {
		owner, _ := ev.Data["buyer"].(string)
		return KindOffer, k, owner
	}
	if k, ok := ev.Data["bid"].(string); ok {
		owner, _ := ev.Data["bidder"].(string)
		return KindBid, k, owner
	}
	return "", "", ""
}

func asUint(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case float64:
		return uint64(n)
	}
	return 0
}

func dropOrder(orders []OpenOrder, key string) []OpenOrder {
	out := orders[:0]
	for _, o := range orders {
		if o.Key != key {
			out = append(out, o)
		}
	}
	return out
}

func (idx *Indexer) moveAsset(assetID, from, to string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if from != "" {
		var ids []string
		if err := idx.get(prefixOwnerAssets+from, &ids); err != nil {
			log.Warnw("read owner index", "owner", from, "err", err)
			return
		}
		idx.put(prefixOwnerAssets+from, removeString(ids, assetID))
	}
	var ids []string
	if err := idx.get(prefixOwnerAssets+to, &ids); err != nil {
		log.Warnw("read owner index", "owner", to, "err", err)
		return
	}
	idx.put(prefixOwnerAssets+to, append(removeString(ids, assetID), assetID))
}

func removeString(ids []string, v string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != v {
			out = append(out, id)
		}
	}
	return out
}

// ---- storage helpers ----

func (idx *Indexer) get(key string, v any) error {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil // empty list
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("indexer unmarshal: %w", err)
	}
	return nil
}

func (idx *Indexer) put(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorw("marshal index", "key", key, "err", err)
		return
	}
	if err := idx.db.Set([]byte(key), data); err != nil {
		log.Errorw("write index", "key", key, "err", err)
	}
}
