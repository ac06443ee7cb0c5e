package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it. All prefix constants must be declared
// via this function.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
// ComputeRoot() iterates these prefixes to build the full world-state view.
var statePrefixes []string

var (
	prefixAccount      = registerPrefix("acct:")
	prefixAsset        = registerPrefix("asset:")
	prefixAssetAccount = registerPrefix("aacct:")
	prefixMarketplace  = registerPrefix("mkt:")
	prefixListing      = registerPrefix("list:")
	prefixOffer        = registerPrefix("offer:")
	prefixBid          = registerPrefix("bid:")
)

// journalEntry records the buffered value a key had before a write, so a
// revert can undo writes newest first.
type journalEntry struct {
	key     string
	prev    []byte
	existed bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
//
// Snapshots are marks into an undo journal: taking one is O(1) and a revert
// costs only the writes made since the mark.
//
// The mutex only protects the buffers against concurrent readers (RPC).
// Transaction-level isolation is the executor's job.
type StateDB struct {
	mu        sync.RWMutex
	db        DB
	dirty     map[string][]byte
	journal   []journalEntry
	snapshots []int // journal length at each open snapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) > 0 {
		prev, existed := s.dirty[key]
		s.journal = append(s.journal, journalEntry{key: key, prev: prev, existed: existed})
	}
	s.dirty[key] = val
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Asset ----

func (s *StateDB) GetAsset(id string) (*core.Asset, error) {
	var asset core.Asset
	if err := s.getJSON(prefixAsset+id, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *StateDB) SetAsset(asset *core.Asset) error {
	return s.setJSON(prefixAsset+asset.ID, asset)
}

func (s *StateDB) GetAssetAccount(address string) (*core.AssetAccount, error) {
	var acct core.AssetAccount
	if err := s.getJSON(prefixAssetAccount+address, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *StateDB) SetAssetAccount(acct *core.AssetAccount) error {
	return s.setJSON(prefixAssetAccount+acct.Address, acct)
}

// ---- Marketplace ----

func (s *StateDB) GetMarketplace() (*core.MarketplaceRegistry, error) {
	var reg core.MarketplaceRegistry
	if err := s.getJSON(prefixMarketplace+core.MarketplaceKey(), &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (s *StateDB) SetMarketplace(reg *core.MarketplaceRegistry) error {
	return s.setJSON(prefixMarketplace+core.MarketplaceKey(), reg)
}

func (s *StateDB) GetListing(key string) (*core.Listing, error) {
	var l core.Listing
	if err := s.getJSON(prefixListing+key, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *StateDB) SetListing(l *core.Listing) error {
	return s.setJSON(prefixListing+l.Key, l)
}

func (s *StateDB) GetOffer(key string) (*core.Offer, error) {
	var o core.Offer
	if err := s.getJSON(prefixOffer+key, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *StateDB) SetOffer(o *core.Offer) error {
	return s.setJSON(prefixOffer+o.Key, o)
}

func (s *StateDB) GetBid(key string) (*core.Bid, error) {
	var b core.Bid
	if err := s.getJSON(prefixBid+key, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *StateDB) SetBid(b *core.Bid) error {
	return s.setJSON(prefixBid+b.Key, b)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot marks the current write buffer and returns a snapshot ID.
// Every snapshot must end in either RevertToSnapshot or DiscardSnapshot.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, len(s.journal))
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot undoes every write made since snapshot id was taken and
// closes it along with any snapshots taken after it.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	mark := s.snapshots[id]
	for i := len(s.journal) - 1; i >= mark; i-- {
		e := s.journal[i]
		if e.existed {
			s.dirty[e.key] = e.prev
		} else {
			delete(s.dirty, e.key)
		}
	}
	s.journal = s.journal[:mark]
	s.snapshots = s.snapshots[:id]
	return nil
}

// DiscardSnapshot keeps the writes made since snapshot id and closes it along
// with any snapshots taken after it. An enclosing snapshot can still revert
// them.
func (s *StateDB) DiscardSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	s.snapshots = s.snapshots[:id]
	if id == 0 {
		s.journal = s.journal[:0]
	}
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state.
// It merges all persisted state entries (scanned from DB by the known state
// prefixes) with the current write buffer, then hashes the sorted key-value
// pairs using length-prefix encoding. It does NOT flush or modify state,
// so it is safe to call before signing a block.
func (s *StateDB) ComputeRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			k := string(it.Key())
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[k] = v
		}
		it.Release()
	}
	for k, v := range s.dirty {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// Batch and then clears it. Call ComputeRoot() before signing the block,
// then call Commit() after the block is safely stored.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.journal = nil
	s.snapshots = nil
	return nil
}
