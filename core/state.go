package core

// Account holds a principal's token balance and replay-protection nonce.
// Address is either a hex-encoded ed25519 public key or a derived escrow
// address that no key controls.
type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Asset is the metadata of a unique, non-fungible asset. Ownership is not
// stored here; it lives in the AssetAccount that holds the single unit.
type Asset struct {
	ID         string         `json:"id"`
	Creator    string         `json:"creator"` // pubkey hex
	Properties map[string]any `json:"properties"`
	MintedAt   int64          `json:"minted_at"`
}

// AssetAccount holds units of one asset for one owner. For unique assets
// Amount is 0 or 1. Deposit is the creation charge paid by whoever opened the
// account; it stays locked in the account.
type AssetAccount struct {
	Address string `json:"address"`
	AssetID string `json:"asset_id"`
	Owner   string `json:"owner"` // pubkey hex
	Amount  uint64 `json:"amount"`
	Deposit uint64 `json:"deposit"`
}

// AssetAccountDeposit is charged to the payer whenever an asset account is
// created on demand.
const AssetAccountDeposit uint64 = 1_000

// MaxFeeBasisPoints is 100%.
const MaxFeeBasisPoints = 10_000

// MarketplaceRegistry is the singleton marketplace configuration.
type MarketplaceRegistry struct {
	Authority      string `json:"authority"` // pubkey hex allowed to update the registry
	FeeBasisPoints uint16 `json:"fee_basis_points"`
	Treasury       string `json:"treasury"` // fee recipient
	Nonce          uint64 `json:"nonce"`
}

// Listing is a fixed-price sale of one unit of an asset, keyed by
// (asset, seller). Listings never escrow funds.
type Listing struct {
	Key                string `json:"key"`
	Seller             string `json:"seller"`
	AssetID            string `json:"asset_id"`
	SellerAssetAccount string `json:"seller_asset_account"`
	Price              uint64 `json:"price"`
	Active             bool   `json:"active"`
	CreatedAt          int64  `json:"created_at"`
	ClosedAt           int64  `json:"closed_at,omitempty"`
	Nonce              uint64 `json:"nonce"` // bumped each time the slot is reopened
}

// Offer is a buyer-initiated, escrowed purchase proposal keyed by
// (asset, buyer). While Active the escrow account holds exactly Price.
type Offer struct {
	Key       string `json:"key"`
	Buyer     string `json:"buyer"`
	AssetID   string `json:"asset_id"`
	Price     uint64 `json:"price"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
	Active    bool   `json:"active"`
	ClosedAt  int64  `json:"closed_at,omitempty"`
	Escrow    string `json:"escrow"`
	Nonce     uint64 `json:"nonce"`
}

// Bid has the same shape and lifecycle as Offer but lives in its own key and
// escrow namespace, so one principal may hold an offer and a bid on the same
// asset at once.
type Bid struct {
	Key       string `json:"key"`
	Bidder    string `json:"bidder"`
	AssetID   string `json:"asset_id"`
	Price     uint64 `json:"price"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
	Active    bool   `json:"active"`
	ClosedAt  int64  `json:"closed_at,omitempty"`
	Escrow    string `json:"escrow"`
	Nonce     uint64 `json:"nonce"`
}

// State is the full marketplace state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions; that
// rollback is what makes a multi-step settlement all-or-nothing.
type State interface {
	// Accounts. A missing account reads as a zero-balance account.
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Assets
	GetAsset(id string) (*Asset, error)
	SetAsset(asset *Asset) error
	GetAssetAccount(address string) (*AssetAccount, error)
	SetAssetAccount(acct *AssetAccount) error

	// Marketplace
	GetMarketplace() (*MarketplaceRegistry, error)
	SetMarketplace(reg *MarketplaceRegistry) error
	GetListing(key string) (*Listing, error)
	SetListing(l *Listing) error
	GetOffer(key string) (*Offer, error)
	SetOffer(o *Offer) error
	GetBid(key string) (*Bid, error)
	SetBid(b *Bid) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}
