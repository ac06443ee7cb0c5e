package wallet

import (
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as "from" address).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// NewTx creates a signed transaction. chainID must match the target network.
// nonce should match the account's current nonce.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed transfer transaction.
func (w *Wallet) Transfer(chainID, to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Amount: amount,
	})
}

// MintAsset creates a signed mint_asset transaction. An empty owner mints to
// the wallet itself.
func (w *Wallet) MintAsset(chainID, assetID, owner string, props map[string]any, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxMintAsset, nonce, fee, core.MintAssetPayload{
		AssetID:    assetID,
		Owner:      owner,
		Properties: props,
	})
}

// AssetAccount returns the wallet's canonical asset account for assetID.
func (w *Wallet) AssetAccount(assetID string) string {
	return core.AssetAccountAddress(assetID, w.PubKey())
}

// InitMarketplace creates a signed initialize_marketplace transaction making
// the wallet the marketplace authority.
func (w *Wallet) InitMarketplace(chainID string, feeBps uint16, treasury string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxInitMarketplace, nonce, fee, core.InitMarketplacePayload{
		FeeBasisPoints: feeBps,
		Treasury:       treasury,
	})
}

// List lists the wallet's unit of assetID, held in its canonical asset account.
func (w *Wallet) List(chainID, assetID string, price, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxList, nonce, fee, core.ListPayload{
		AssetID:            assetID,
		Price:              price,
		SellerAssetAccount: w.AssetAccount(assetID),
	})
}

// CancelListing cancels the wallet's listing on assetID.
func (w *Wallet) CancelListing(chainID, assetID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxCancelListing, nonce, fee, core.CancelListingPayload{AssetID: assetID})
}

// Buy purchases seller's listing on assetID.
func (w *Wallet) Buy(chainID, assetID, seller string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxBuy, nonce, fee, core.BuyPayload{AssetID: assetID, Seller: seller})
}

// MakeOffer escrows price against assetID until expiresAt (unix seconds).
func (w *Wallet) MakeOffer(chainID, assetID string, price uint64, expiresAt int64, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxMakeOffer, nonce, fee, core.OrderPayload{
		AssetID:   assetID,
		Price:     price,
		ExpiresAt: expiresAt,
	})
}

// AcceptOffer sells the wallet's unit of assetID to buyer's offer.
func (w *Wallet) AcceptOffer(chainID, assetID, buyer string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxAcceptOffer, nonce, fee, w.accept(assetID, buyer))
}

// CancelOffer withdraws the wallet's offer on assetID.
func (w *Wallet) CancelOffer(chainID, assetID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxCancelOffer, nonce, fee, core.CancelOrderPayload{AssetID: assetID})
}

// PlaceBid escrows price as a bid on assetID until expiresAt (unix seconds).
func (w *Wallet) PlaceBid(chainID, assetID string, price uint64, expiresAt int64, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxPlaceBid, nonce, fee, core.OrderPayload{
		AssetID:   assetID,
		Price:     price,
		ExpiresAt: expiresAt,
	})
}

// AcceptBid sells the wallet's unit of assetID to bidder.
func (w *Wallet) AcceptBid(chainID, assetID, bidder string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxAcceptBid, nonce, fee, w.accept(assetID, bidder))
}

// CancelBid withdraws the wallet's bid on assetID.
func (w *Wallet) CancelBid(chainID, assetID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxCancelBid, nonce, fee, core.CancelOrderPayload{AssetID: assetID})
}

func (w *Wallet) accept(assetID, counterparty string) core.AcceptOrderPayload {
	return core.AcceptOrderPayload{
		AssetID:            assetID,
		Counterparty:       counterparty,
		SellerAssetAccount: w.AssetAccount(assetID),
	}
}
