// main.go - End-to-end anonymous portfolio disclosure scenario.
//
// This demonstrates the complete flow of the system:
//   - An owner snapshots their portfolio and selects what to reveal
//   - The full portfolio is committed to the ledger through the relayer,
//     so the owner never appears as the transaction signer
//   - A share token is created for the selected disclosure
//   - A third party resolves the share and verifies every revealed value
//     against the on-ledger Merkle root
//   - A forged value is shown to fail verification
//   - A re-commit makes the earlier share stale, and revocation kills it
//
// Usage:
//   go run main.go
//
// Everything runs in memory; no files are written.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rs/zerolog"

	"flexanon/internal/faults"
	"flexanon/internal/flexanon"
	"flexanon/internal/ledger"
	"flexanon/internal/merkle"
	"flexanon/internal/ownership"
	"flexanon/internal/portfolio"
	"flexanon/internal/relay"
	"flexanon/internal/share"
)

func main() {
	log.Println("=== Anonymous Portfolio Disclosure: End-to-End Scenario ===")
	ctx := context.Background()

	// 1. Infrastructure: in-memory ledger, funded relayer, token store.
	oracle := ledger.NewFileLedger("", zerolog.Nop())
	relayer, err := ownership.GenerateKeypair()
	if err != nil {
		log.Fatalf("ERROR: relayer keypair generation failed: %v", err)
	}
	oracle.Fund(relayer.Address(), 100*ledger.SubmissionFee)

	store, err := share.OpenStore("", zerolog.Nop())
	if err != nil {
		log.Fatalf("ERROR: token store open failed: %v", err)
	}
	defer store.Close()

	// A short window keeps the demo responsive; production uses 60s.
	limiter := relay.NewMemoryRateLimiter(100 * time.Millisecond)
	coordinator := relay.NewCoordinator(oracle, relayer, limiter, 0, zerolog.Nop())
	shares := share.NewService(store, oracle, zerolog.Nop())
	svc := flexanon.NewService(&portfolio.MockProvider{}, coordinator, shares, oracle, "solana", zerolog.Nop())

	// 2. The owner commits, revealing total value and their top two assets.
	owner, err := ownership.GenerateKeypair()
	if err != nil {
		log.Fatalf("ERROR: owner keypair generation failed: %v", err)
	}
	log.Printf("Owner wallet: %s", owner.Address())
	log.Printf("Relayer:      %s", relayer.Address())

	result, err := svc.Commit(ctx, flexanon.CommitParams{
		Wallet: owner,
		Preferences: portfolio.Preferences{
			ShowTotalValue: true,
			ShowTopAssets:  true,
			TopAssetsCount: 2,
		},
	})
	if err != nil {
		log.Fatalf("ERROR: commit failed: %v", err)
	}
	log.Printf("Committed: slot=%s version=%d privacy_score=%d%%",
		result.SlotAddress, result.Version, result.PrivacyScore)
	log.Printf("Share token: %s (%d revealed, %d hidden)",
		result.TokenID, result.RevealedCount, result.HiddenCount)

	// 3. A third party resolves the share and checks every proof.
	public, err := svc.Resolve(ctx, result.TokenID, "198.51.100.20", "demo-viewer")
	if err != nil {
		log.Fatalf("ERROR: share resolution failed: %v", err)
	}
	fmt.Printf("\n=== Public Share %s ===\n", public.TokenID)
	for label, value := range public.RevealedData {
		fmt.Printf("  %-20s %v\n", label, value)
	}
	fmt.Printf("  wallet revealed:     %v\n\n", public.Privacy.WalletRevealed)

	for _, entry := range public.ProofData {
		if !svc.VerifyProof(public.OnLedger.Root, entry) {
			log.Fatalf("ERROR: proof verification failed for %s", entry.Leaf.Key)
		}
	}
	log.Printf("All %d inclusion proofs verified against on-ledger root %s...",
		len(public.ProofData), public.OnLedger.Root[:16])

	// 4. Tampering: a forged total value must not verify.
	forged := public.ProofData[0]
	forged.Leaf = merkle.Leaf{Key: forged.Leaf.Key, Value: merkle.Hash("99999")}
	if svc.VerifyProof(public.OnLedger.Root, forged) {
		log.Fatalf("ERROR: forged value passed verification")
	}
	log.Println("Forged value correctly rejected by proof verification")

	// 5. Re-commit: the earlier share becomes stale.
	time.Sleep(150 * time.Millisecond) // let the rate-limit window pass
	second, err := svc.Commit(ctx, flexanon.CommitParams{
		Wallet:      owner,
		Preferences: portfolio.Preferences{ShowAllAssets: true, ShowPnL: true},
	})
	if err != nil {
		log.Fatalf("ERROR: second commit failed: %v", err)
	}
	log.Printf("Re-committed at version %d", second.Version)

	if _, err := svc.Resolve(ctx, result.TokenID, "", ""); errors.Is(err, faults.ErrVersionMismatch) {
		log.Printf("First share %s is now stale, as expected", result.TokenID)
	} else {
		log.Fatalf("ERROR: expected a stale share, got %v", err)
	}

	// 6. Revocation kills the live share immediately.
	if err := svc.RevokeShare(ctx, second.TokenID, owner.Address()); err != nil {
		log.Fatalf("ERROR: revocation failed: %v", err)
	}
	if _, err := svc.Resolve(ctx, second.TokenID, "", ""); errors.Is(err, faults.ErrRevoked) {
		log.Printf("Second share %s revoked and no longer resolvable", second.TokenID)
	} else {
		log.Fatalf("ERROR: expected a revoked share, got %v", err)
	}

	log.Println("=== Scenario complete ===")
}
