// oracle.go - The narrow contract this core requires from the distributed ledger.
//
// The ledger is treated as an opaque read/write oracle for fixed-size records
// keyed by derived slot addresses. Consensus, fees, and account creation are
// the oracle's business; the core only needs latest-confirmed reads and
// signed writes.

package ledger

import "context"

// Receipt acknowledges a confirmed submission.
type Receipt struct {
	Signature string `json:"signature"` // transaction signature, base58
	Slot      uint64 `json:"slot"`      // ledger height at confirmation
}

// Oracle is the external ledger boundary. Reads return the latest confirmed
// bytes for a slot or ErrRecordNotFound. Submissions are signed by the given
// identity, which pays the transaction fee.
//
// Both calls perform network I/O against a real backend and honor ctx. A
// context timeout on SubmitRecord means unknown outcome, not failure: the
// record may still land, and callers must re-read the slot to reconcile.
type Oracle interface {
	ReadRecord(ctx context.Context, slotAddress string) ([]byte, error)
	SubmitRecord(ctx context.Context, slotAddress, signer string, payload []byte) (*Receipt, error)
	Balance(ctx context.Context, identity string) (uint64, error)
}
