// leaves.go - Deterministic derivation of Merkle leaves from a portfolio snapshot.
//
// Each semantic field of the snapshot becomes exactly one leaf with a stable
// key. Calling BuildLeaves twice on identical input yields a byte-identical
// leaf set; this determinism is what lets a verifier re-derive the committed
// tree from disclosed facts.

package portfolio

import (
	"encoding/json"
	"strconv"
	"strings"

	"flexanon/internal/merkle"
)

// Well-known leaf labels. Itemized assets use LabelAsset(index, symbol).
const (
	LabelWalletAddress     = "wallet_address"
	LabelChain             = "chain"
	LabelTotalValue        = "total_value"
	LabelPnLPercentage     = "pnl_percentage"
	LabelSnapshotTimestamp = "snapshot_timestamp"
	LabelAssetCount        = "total_assets_count"

	assetLabelPrefix = "asset_"
)

// LabelAsset returns the label for the itemized asset at a stable index.
// The index and symbol discriminator keep re-derivation byte-identical.
func LabelAsset(index int, symbol string) string {
	return assetLabelPrefix + strconv.Itoa(index) + "_" + symbol
}

// LeafData holds the disclosed fact behind a revealed leaf, one variant per
// field kind. Hidden leaves carry no LeafData at all.
type LeafData struct {
	WalletAddress     *string  `json:"wallet_address,omitempty"`
	Chain             *string  `json:"chain,omitempty"`
	TotalValue        *float64 `json:"total_value,omitempty"`
	PnLPercentage     *float64 `json:"pnl_percentage,omitempty"`
	SnapshotTimestamp *int64   `json:"snapshot_timestamp,omitempty"`
	AssetCount        *int     `json:"total_assets_count,omitempty"`
	Asset             *Asset   `json:"asset,omitempty"`
}

// Leaf is one disclosed-or-hidden fact. Key and Value are the hashes that
// enter the tree; Label and Data exist only for revealed leaves.
type Leaf struct {
	Key   string    `json:"key"`
	Value string    `json:"value"`
	Label string    `json:"label,omitempty"`
	Data  *LeafData `json:"data,omitempty"`
}

// MerkleLeaf projects the hashed part of the leaf for tree operations.
func (l Leaf) MerkleLeaf() merkle.Leaf {
	return merkle.Leaf{Key: l.Key, Value: l.Value}
}

// IsAsset reports whether the leaf is an itemized asset entry.
func (l Leaf) IsAsset() bool {
	return strings.HasPrefix(l.Label, assetLabelPrefix)
}

// assetIndex extracts the stable index from an asset label, -1 otherwise.
func (l Leaf) assetIndex() int {
	if !l.IsAsset() {
		return -1
	}
	rest := strings.TrimPrefix(l.Label, assetLabelPrefix)
	sep := strings.IndexByte(rest, '_')
	if sep <= 0 {
		return -1
	}
	idx, err := strconv.Atoi(rest[:sep])
	if err != nil {
		return -1
	}
	return idx
}

// leafKey derives the stable key hash for a field identifier.
func leafKey(identifier string) string {
	return merkle.Hash(identifier)
}

// leafValue derives the value hash from the canonical serialization of a fact.
func leafValue(canonical string) string {
	return merkle.Hash(canonical)
}

// canonicalAsset is the canonical serialization of an itemized asset: JSON
// with a fixed field order. Changing this encoding would change every
// committed root, so it is part of the wire contract.
func canonicalAsset(a Asset) string {
	raw, _ := json.Marshal(a)
	return string(raw)
}

// BuildLeaves canonicalizes a snapshot into its full leaf set: the owner's
// wallet address, the chain tag, aggregate figures, the asset count, and one
// leaf per itemized asset in snapshot order.
func BuildLeaves(snap *Snapshot, walletAddress string) []Leaf {
	wallet := strings.ToLower(walletAddress)
	count := len(snap.Assets)

	leaves := make([]Leaf, 0, 6+count)
	leaves = append(leaves, Leaf{
		Key:   leafKey(LabelWalletAddress),
		Value: leafValue(wallet),
		Label: LabelWalletAddress,
		Data:  &LeafData{WalletAddress: &wallet},
	})
	chain := snap.Chain
	leaves = append(leaves, Leaf{
		Key:   leafKey(LabelChain),
		Value: leafValue(chain),
		Label: LabelChain,
		Data:  &LeafData{Chain: &chain},
	})
	totalValue := snap.TotalValue
	leaves = append(leaves, Leaf{
		Key:   leafKey(LabelTotalValue),
		Value: leafValue(formatAmount(totalValue)),
		Label: LabelTotalValue,
		Data:  &LeafData{TotalValue: &totalValue},
	})
	pnl := snap.PnLPercentage
	leaves = append(leaves, Leaf{
		Key:   leafKey(LabelPnLPercentage),
		Value: leafValue(formatAmount(pnl)),
		Label: LabelPnLPercentage,
		Data:  &LeafData{PnLPercentage: &pnl},
	})
	ts := snap.SnapshotTimestamp
	leaves = append(leaves, Leaf{
		Key:   leafKey(LabelSnapshotTimestamp),
		Value: leafValue(strconv.FormatInt(ts, 10)),
		Label: LabelSnapshotTimestamp,
		Data:  &LeafData{SnapshotTimestamp: &ts},
	})
	leaves = append(leaves, Leaf{
		Key:   leafKey(LabelAssetCount),
		Value: leafValue(strconv.Itoa(count)),
		Label: LabelAssetCount,
		Data:  &LeafData{AssetCount: &count},
	})

	for i, asset := range snap.Assets {
		asset := asset
		label := LabelAsset(i, asset.Symbol)
		leaves = append(leaves, Leaf{
			Key:   leafKey(label),
			Value: leafValue(canonicalAsset(asset)),
			Label: label,
			Data:  &LeafData{Asset: &asset},
		})
	}
	return leaves
}

// MerkleLeaves projects a leaf set into tree input.
func MerkleLeaves(leaves []Leaf) []merkle.Leaf {
	out := make([]merkle.Leaf, len(leaves))
	for i, l := range leaves {
		out[i] = l.MerkleLeaf()
	}
	return out
}
