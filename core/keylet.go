package core

import "github.com/tolelom/tolmarket/crypto"

// Namespace tags for derived keys.
const (
	NamespaceMarketplace  crypto.Namespace = 'm'
	NamespaceListing      crypto.Namespace = 'l'
	NamespaceOffer        crypto.Namespace = 'o'
	NamespaceBid          crypto.Namespace = 'b'
	NamespaceOfferEscrow  crypto.Namespace = 'O'
	NamespaceBidEscrow    crypto.Namespace = 'B'
	NamespaceAssetAccount crypto.Namespace = 'a'
)

// MarketplaceKey returns the key of the singleton registry.
func MarketplaceKey() string {
	return crypto.Derive(NamespaceMarketplace)
}

// ListingKey returns the key of seller's listing for assetID.
func ListingKey(assetID, seller string) string {
	return crypto.Derive(NamespaceListing, assetID, seller)
}

// OfferKey returns the key of buyer's offer on assetID.
func OfferKey(assetID, buyer string) string {
	return crypto.Derive(NamespaceOffer, assetID, buyer)
}

// BidKey returns the key of bidder's bid on assetID.
func BidKey(assetID, bidder string) string {
	return crypto.Derive(NamespaceBid, assetID, bidder)
}

// OfferEscrowSeeds returns the seeds of the escrow account backing buyer's
// offer on assetID.
func OfferEscrowSeeds(assetID, buyer string) crypto.Seeds {
	return crypto.Seeds{Namespace: NamespaceOfferEscrow, Parts: []string{assetID, buyer}}
}

// BidEscrowSeeds returns the seeds of the escrow account backing bidder's bid
// on assetID.
func BidEscrowSeeds(assetID, bidder string) crypto.Seeds {
	return crypto.Seeds{Namespace: NamespaceBidEscrow, Parts: []string{assetID, bidder}}
}

// AssetAccountAddress returns the address of owner's account for assetID.
func AssetAccountAddress(assetID, owner string) string {
	return crypto.Derive(NamespaceAssetAccount, assetID, owner)
}
