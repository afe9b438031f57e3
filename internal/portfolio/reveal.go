// reveal.go - Disclosure policy: partitioning leaves into revealed and hidden sets.

package portfolio

import (
	"math"
	"sort"
	"strconv"
)

// Preferences is the fixed disclosure schema a caller submits. The chain tag
// and the asset count are always revealed regardless of preferences: keeping
// counts auditable without leaking content is a deliberate policy decision.
type Preferences struct {
	ShowTotalValue    bool `json:"show_total_value"`
	ShowPnL           bool `json:"show_pnl"`
	ShowTopAssets     bool `json:"show_top_assets"`
	TopAssetsCount    int  `json:"top_assets_count"`
	ShowAllAssets     bool `json:"show_all_assets"`
	ShowWalletAddress bool `json:"show_wallet_address"`
	ShowSnapshotTime  bool `json:"show_snapshot_time"`
}

// Disclosure is the outcome of applying Preferences to a leaf set.
type Disclosure struct {
	All      []Leaf
	Revealed []Leaf
	Hidden   []Leaf
}

// SelectDisclosure partitions leaves by the caller's preferences. It is a
// pure function: the input slice is not modified.
//
// Hidden leaves retain only their key/value hashes; label and data are
// dropped. That stripping is the privacy guarantee of the whole scheme, not
// an optimization, and must never be bypassed.
func SelectDisclosure(leaves []Leaf, prefs Preferences) Disclosure {
	d := Disclosure{All: leaves}

	for _, leaf := range leaves {
		reveal := false
		switch leaf.Label {
		case LabelWalletAddress:
			reveal = prefs.ShowWalletAddress
		case LabelChain:
			reveal = true
		case LabelTotalValue:
			reveal = prefs.ShowTotalValue
		case LabelPnLPercentage:
			reveal = prefs.ShowPnL
		case LabelSnapshotTimestamp:
			reveal = prefs.ShowSnapshotTime
		case LabelAssetCount:
			reveal = true
		default:
			if leaf.IsAsset() {
				if prefs.ShowAllAssets {
					reveal = true
				} else if prefs.ShowTopAssets {
					// First N assets in canonical index order; values are
					// never re-sorted at disclosure time.
					if idx := leaf.assetIndex(); idx >= 0 && idx < prefs.TopAssetsCount {
						reveal = true
					}
				}
			}
		}

		if reveal {
			d.Revealed = append(d.Revealed, leaf)
		} else {
			d.Hidden = append(d.Hidden, Leaf{Key: leaf.Key, Value: leaf.Value})
		}
	}
	return d
}

// PrivacyScore is the rounded percentage of leaves kept hidden.
func PrivacyScore(revealedCount, totalCount int) uint8 {
	if totalCount == 0 {
		return 0
	}
	hidden := float64(totalCount-revealedCount) / float64(totalCount) * 100
	return uint8(math.Round(hidden))
}

// FormatPublic flattens revealed leaves into the display document served to
// share-link viewers. Asset entries keep canonical index order.
func FormatPublic(revealed []Leaf) map[string]interface{} {
	out := make(map[string]interface{})
	var assets []Leaf

	for _, leaf := range revealed {
		if leaf.Data == nil {
			continue
		}
		switch {
		case leaf.Data.WalletAddress != nil:
			out[LabelWalletAddress] = *leaf.Data.WalletAddress
		case leaf.Data.Chain != nil:
			out[LabelChain] = *leaf.Data.Chain
		case leaf.Data.TotalValue != nil:
			out[LabelTotalValue] = *leaf.Data.TotalValue
		case leaf.Data.PnLPercentage != nil:
			pnl := *leaf.Data.PnLPercentage
			sign := ""
			if pnl >= 0 {
				sign = "+"
			}
			out[LabelPnLPercentage] = sign + strconv.FormatFloat(pnl, 'f', 2, 64) + "%"
		case leaf.Data.SnapshotTimestamp != nil:
			out["snapshot_time"] = *leaf.Data.SnapshotTimestamp
		case leaf.Data.AssetCount != nil:
			out[LabelAssetCount] = *leaf.Data.AssetCount
		case leaf.Data.Asset != nil:
			assets = append(assets, leaf)
		}
	}

	if len(assets) > 0 {
		sort.SliceStable(assets, func(i, j int) bool {
			return assets[i].assetIndex() < assets[j].assetIndex()
		})
		top := make([]Asset, 0, len(assets))
		for _, leaf := range assets {
			top = append(top, *leaf.Data.Asset)
		}
		out["top_assets"] = top
	}
	return out
}
