package portfolio

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"flexanon/internal/merkle"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		WalletAddress:     "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Chain:             "solana",
		TotalValue:        50000,
		PnLPercentage:     12.5,
		SnapshotTimestamp: 1700000000,
		Assets: []Asset{
			{Symbol: "SOL", Name: "Solana", Quantity: "250.5", Price: 150, Value: 37575},
			{Symbol: "USDC", Name: "USD Coin", Quantity: "8000", Price: 1, Value: 8000},
			{Symbol: "JUP", Name: "Jupiter", Quantity: "5000", Price: 0.885, Value: 4425},
		},
	}
}

func TestBuildLeavesDeterminism(t *testing.T) {
	snap := testSnapshot()
	a := BuildLeaves(snap, snap.WalletAddress)
	b := BuildLeaves(snap, snap.WalletAddress)

	rawA, _ := json.Marshal(a)
	rawB, _ := json.Marshal(b)
	if !bytes.Equal(rawA, rawB) {
		t.Errorf("two derivations from identical input are not byte-identical")
	}

	if len(a) != 6+len(snap.Assets) {
		t.Errorf("expected %d leaves, got %d", 6+len(snap.Assets), len(a))
	}

	// Keys must be unique within the set.
	seen := make(map[string]bool)
	for _, leaf := range a {
		if seen[leaf.Key] {
			t.Errorf("duplicate leaf key for label %s", leaf.Label)
		}
		seen[leaf.Key] = true
	}
}

func TestBuildLeavesValueSensitivity(t *testing.T) {
	snap := testSnapshot()
	base := BuildLeaves(snap, snap.WalletAddress)

	changed := testSnapshot()
	changed.TotalValue = 99999
	other := BuildLeaves(changed, changed.WalletAddress)

	for i := range base {
		if base[i].Label == LabelTotalValue {
			if base[i].Key != other[i].Key {
				t.Errorf("key must not depend on the value")
			}
			if base[i].Value == other[i].Value {
				t.Errorf("value hash must change when the fact changes")
			}
		}
	}
}

func TestSelectDisclosure(t *testing.T) {
	snap := testSnapshot()
	leaves := BuildLeaves(snap, snap.WalletAddress)

	prefs := Preferences{
		ShowTotalValue: true,
		ShowTopAssets:  true,
		TopAssetsCount: 2,
	}
	d := SelectDisclosure(leaves, prefs)

	// chain + total_assets_count always revealed, plus total_value and 2 assets.
	if len(d.Revealed) != 5 {
		t.Errorf("expected 5 revealed leaves, got %d", len(d.Revealed))
	}
	if len(d.Hidden) != len(leaves)-5 {
		t.Errorf("expected %d hidden leaves, got %d", len(leaves)-5, len(d.Hidden))
	}

	revealedLabels := make(map[string]bool)
	for _, leaf := range d.Revealed {
		revealedLabels[leaf.Label] = true
	}
	for _, want := range []string{LabelChain, LabelAssetCount, LabelTotalValue, "asset_0_SOL", "asset_1_USDC"} {
		if !revealedLabels[want] {
			t.Errorf("leaf %s should be revealed", want)
		}
	}
	if revealedLabels["asset_2_JUP"] {
		t.Errorf("third asset should stay hidden with top_assets_count=2")
	}

	t.Run("hidden leaves are stripped", func(t *testing.T) {
		for _, leaf := range d.Hidden {
			if leaf.Data != nil || leaf.Label != "" {
				t.Errorf("hidden leaf retains data or label")
			}
			if leaf.Key == "" || leaf.Value == "" {
				t.Errorf("hidden leaf must keep its key/value hashes")
			}
		}
	})

	t.Run("partition covers the set", func(t *testing.T) {
		if len(d.Revealed)+len(d.Hidden) != len(leaves) {
			t.Errorf("revealed+hidden must cover all leaves")
		}
	})
}

func TestDisclosureSameTreeRoot(t *testing.T) {
	snap := testSnapshot()
	leaves := BuildLeaves(snap, snap.WalletAddress)
	d := SelectDisclosure(leaves, Preferences{ShowAllAssets: true})

	full := merkle.NewTree(MerkleLeaves(leaves))
	split := append(append([]Leaf(nil), d.Revealed...), d.Hidden...)
	rebuilt := merkle.NewTree(MerkleLeaves(split))
	if full.Root() != rebuilt.Root() {
		t.Errorf("disclosure partition must not change the committed root")
	}
}

func TestPrivacyScore(t *testing.T) {
	cases := []struct {
		revealed, total int
		want            uint8
	}{
		{0, 0, 0},
		{0, 10, 100},
		{10, 10, 0},
		{5, 9, 44},
		{4, 9, 56},
	}
	for _, c := range cases {
		if got := PrivacyScore(c.revealed, c.total); got != c.want {
			t.Errorf("PrivacyScore(%d, %d) = %d, want %d", c.revealed, c.total, got, c.want)
		}
	}
}

func TestMockProvider(t *testing.T) {
	p := &MockProvider{}
	snap, err := p.Snapshot(context.Background(), "wallet123", "solana")
	if err != nil {
		t.Fatalf("mock provider failed: %v", err)
	}
	if snap.Chain != "solana" || len(snap.Assets) == 0 {
		t.Errorf("mock snapshot incomplete")
	}
	if _, err := p.Snapshot(context.Background(), "", "solana"); err == nil {
		t.Errorf("empty wallet should fail")
	}
}
