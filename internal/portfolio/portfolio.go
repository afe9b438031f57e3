// portfolio.go - Portfolio snapshot types and the external data provider contract.

package portfolio

import (
	"context"
	"fmt"
	"strconv"
)

// Asset is one itemized position in a portfolio snapshot.
type Asset struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Quantity string  `json:"quantity"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
	IconURL  string  `json:"icon_url,omitempty"`
}

// Snapshot is the fact-set a commitment binds to: one wallet's holdings on
// one chain at one instant, as reported by the data provider.
type Snapshot struct {
	WalletAddress     string  `json:"wallet_address"`
	Chain             string  `json:"chain"`
	TotalValue        float64 `json:"total_value"`
	PnLPercentage     float64 `json:"pnl_percentage"`
	SnapshotTimestamp int64   `json:"snapshot_timestamp"`
	Assets            []Asset `json:"assets"`
}

// Provider fetches portfolio snapshots for an identity. The core treats the
// provider as an opaque external collaborator.
type Provider interface {
	Snapshot(ctx context.Context, walletAddress, chain string) (*Snapshot, error)
}

// formatAmount canonicalizes a numeric fact for hashing. The minimal decimal
// representation keeps re-derivation byte-identical across runs.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// MockProvider returns deterministic snapshots without network access.
// Useful for the demo scenario and anywhere a live provider is unavailable.
type MockProvider struct {
	Timestamp int64 // snapshot timestamp to report; 0 means a fixed default
}

// Snapshot implements Provider with a fixed three-asset portfolio derived
// from the wallet address so distinct wallets get distinct values.
func (m *MockProvider) Snapshot(_ context.Context, walletAddress, chain string) (*Snapshot, error) {
	if walletAddress == "" {
		return nil, fmt.Errorf("mock provider: empty wallet address")
	}
	ts := m.Timestamp
	if ts == 0 {
		ts = 1700000000
	}
	seed := float64(len(walletAddress) % 7)
	return &Snapshot{
		WalletAddress:     walletAddress,
		Chain:             chain,
		TotalValue:        50000 + seed*1000,
		PnLPercentage:     12.5,
		SnapshotTimestamp: ts,
		Assets: []Asset{
			{Symbol: "SOL", Name: "Solana", Quantity: "250.5", Price: 150, Value: 37575},
			{Symbol: "USDC", Name: "USD Coin", Quantity: "8000", Price: 1, Value: 8000},
			{Symbol: "JUP", Name: "Jupiter", Quantity: "5000", Price: 0.885, Value: 4425},
		},
	}, nil
}
