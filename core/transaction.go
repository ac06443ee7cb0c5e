package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/tolmarket/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer      TxType = "transfer"
	TxMintAsset     TxType = "mint_asset"
	TxTransferAsset TxType = "transfer_asset"

	TxInitMarketplace   TxType = "initialize_marketplace"
	TxUpdateMarketplace TxType = "update_marketplace"

	TxList          TxType = "list"
	TxCancelListing TxType = "cancel_listing"
	TxBuy           TxType = "buy"

	TxMakeOffer   TxType = "make_offer"
	TxAcceptOffer TxType = "accept_offer"
	TxCancelOffer TxType = "cancel_offer"

	TxPlaceBid  TxType = "place_bid"
	TxAcceptBid TxType = "accept_bid"
	TxCancelBid TxType = "cancel_bid"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Signature covers all fields except ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native tokens.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// MintAssetPayload mints a new unique asset into Owner's asset account.
type MintAssetPayload struct {
	AssetID    string         `json:"asset_id"`
	Owner      string         `json:"owner"` // recipient pubkey hex; empty → sender
	Properties map[string]any `json:"properties"`
}

// TransferAssetPayload moves the single unit of an asset to a new owner.
// The sender pays for the recipient's asset account if it does not exist.
type TransferAssetPayload struct {
	AssetID string `json:"asset_id"`
	To      string `json:"to"` // recipient pubkey hex
}

// InitMarketplacePayload creates the marketplace registry.
type InitMarketplacePayload struct {
	FeeBasisPoints uint16 `json:"fee_basis_points"`
	Treasury       string `json:"treasury"`
}

// UpdateMarketplacePayload changes registry fields. Nil fields are left as is.
type UpdateMarketplacePayload struct {
	FeeBasisPoints *uint16 `json:"fee_basis_points,omitempty"`
	Treasury       *string `json:"treasury,omitempty"`
	Authority      *string `json:"authority,omitempty"`
}

// ListPayload lists one unit of an asset held in SellerAssetAccount.
type ListPayload struct {
	AssetID            string `json:"asset_id"`
	Price              uint64 `json:"price"`
	SellerAssetAccount string `json:"seller_asset_account"`
}

// CancelListingPayload deactivates Seller's listing for AssetID. An empty
// Seller means the sender.
type CancelListingPayload struct {
	AssetID string `json:"asset_id"`
	Seller  string `json:"seller,omitempty"`
}

// BuyPayload purchases Seller's listing for AssetID.
type BuyPayload struct {
	AssetID string `json:"asset_id"`
	Seller  string `json:"seller"`
}

// OrderPayload opens an escrowed offer or bid.
type OrderPayload struct {
	AssetID   string `json:"asset_id"`
	Price     uint64 `json:"price"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// AcceptOrderPayload accepts Counterparty's offer or bid on AssetID, giving
// up the unit held in SellerAssetAccount.
type AcceptOrderPayload struct {
	AssetID            string `json:"asset_id"`
	Counterparty       string `json:"counterparty"` // buyer or bidder pubkey hex
	SellerAssetAccount string `json:"seller_asset_account"`
}

// CancelOrderPayload cancels Owner's offer or bid on AssetID. An empty Owner
// means the sender; only the owner may cancel.
type CancelOrderPayload struct {
	AssetID string `json:"asset_id"`
	Owner   string `json:"owner,omitempty"`
}
