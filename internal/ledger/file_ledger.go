// file_ledger.go - Local ledger emulation persisted as a single JSON file.
//
// FileLedger implements Oracle with the commitment program's semantics: slot
// initialization at version 1, a +1 version bump on every subsequent commit,
// owner binding, and fee debiting from the submitting identity. It exists so
// the rest of the system can run and be tested without a live ledger; a real
// backend plugs in behind the same Oracle interface.

package ledger

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"flexanon/internal/commitment"
	"flexanon/internal/faults"
)

// SubmissionFee is debited from the signer on every confirmed write,
// mirroring a transaction fee.
const SubmissionFee uint64 = 5000

// FileLedger holds all slots and balances in memory and mirrors them to a
// JSON file on every confirmed write. Safe for concurrent use.
type FileLedger struct {
	mu       sync.Mutex
	slots    map[string][]byte
	balances map[string]uint64
	height   uint64
	path     string // empty means memory-only
	now      func() time.Time
	log      zerolog.Logger
}

// ledgerFile is the on-disk shape. Slot payloads serialize as base64 via
// encoding/json's []byte handling.
type ledgerFile struct {
	Slots    map[string][]byte `json:"slots"`
	Balances map[string]uint64 `json:"balances"`
	Height   uint64            `json:"height"`
}

// NewFileLedger creates an empty ledger. path may be empty for a
// memory-only ledger (tests, demo).
func NewFileLedger(path string, log zerolog.Logger) *FileLedger {
	return &FileLedger{
		slots:    make(map[string][]byte),
		balances: make(map[string]uint64),
		path:     path,
		now:      time.Now,
		log:      log,
	}
}

// LoadFileLedger reads a previously persisted ledger, or returns a fresh one
// if the file does not exist yet.
func LoadFileLedger(path string, log zerolog.Logger) (*FileLedger, error) {
	l := NewFileLedger(path, log)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrLedger, "failed to read ledger file %s", path)
	}
	var file ledgerFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, faults.Wrap(faults.ErrLedger, "ledger file %s is corrupt", path)
	}
	if file.Slots != nil {
		l.slots = file.Slots
	}
	if file.Balances != nil {
		l.balances = file.Balances
	}
	l.height = file.Height
	return l, nil
}

// SetClock overrides the confirmation timestamp source. Tests only.
func (l *FileLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Fund credits an identity's balance, standing in for an airdrop or deposit.
func (l *FileLedger) Fund(identity string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[identity] += amount
}

// ReadRecord returns the latest confirmed bytes for a slot.
func (l *FileLedger) ReadRecord(_ context.Context, slotAddress string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	raw, ok := l.slots[slotAddress]
	if !ok {
		return nil, faults.Wrap(faults.ErrRecordNotFound, "no record at slot %s", slotAddress)
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Balance returns an identity's spendable balance.
func (l *FileLedger) Balance(_ context.Context, identity string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[identity], nil
}

// SubmitRecord applies the commitment program to a slot write. The payload's
// owner and metadata are taken as submitted; version, timestamp, and bump
// are assigned by the program, never by the submitter.
func (l *FileLedger) SubmitRecord(_ context.Context, slotAddress, signer string, payload []byte) (*Receipt, error) {
	incoming, err := commitment.Decode(payload)
	if err != nil {
		return nil, faults.Wrap(faults.ErrLedger, "submitted payload rejected: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[signer] < SubmissionFee {
		return nil, faults.Wrap(faults.ErrLedger, "signer %s cannot cover the %d fee", signer, SubmissionFee)
	}

	if existing, ok := l.slots[slotAddress]; ok {
		prior, err := commitment.Decode(existing)
		if err != nil {
			return nil, faults.Wrap(faults.ErrLedger, "stored record at %s is corrupt", slotAddress)
		}
		if prior.Owner != incoming.Owner {
			return nil, faults.Wrap(faults.ErrLedger, "slot %s is bound to a different owner", slotAddress)
		}
		incoming.Version = prior.Version + 1
		incoming.Bump = prior.Bump
	} else {
		incoming.Version = 1
		incoming.Bump = slotBump(slotAddress)
	}
	incoming.Timestamp = l.now().Unix()
	incoming.Revoked = false

	confirmed, err := commitment.Encode(incoming)
	if err != nil {
		return nil, faults.Wrap(faults.ErrLedger, "failed to re-encode confirmed record: %v", err)
	}

	l.balances[signer] -= SubmissionFee
	l.slots[slotAddress] = confirmed
	l.height++

	if err := l.persistLocked(); err != nil {
		return nil, err
	}

	receipt := &Receipt{Signature: randomSignature(), Slot: l.height}
	l.log.Info().
		Str("slot", slotAddress).
		Str("signer", signer).
		Uint32("version", incoming.Version).
		Str("signature", receipt.Signature).
		Msg("record confirmed")
	return receipt, nil
}

// Revoke sets the revoked flag on a slot. Exposed because revocation is a
// ledger-program instruction, not a relayer capability.
func (l *FileLedger) Revoke(slotAddress, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, ok := l.slots[slotAddress]
	if !ok {
		return faults.Wrap(faults.ErrRecordNotFound, "no record at slot %s", slotAddress)
	}
	record, err := commitment.Decode(raw)
	if err != nil {
		return faults.Wrap(faults.ErrLedger, "stored record at %s is corrupt", slotAddress)
	}
	if record.Owner != owner {
		return faults.Wrap(faults.ErrLedger, "slot %s is bound to a different owner", slotAddress)
	}
	if record.Revoked {
		return faults.Wrap(faults.ErrRevoked, "slot %s already revoked", slotAddress)
	}
	record.Revoked = true
	confirmed, err := commitment.Encode(record)
	if err != nil {
		return faults.Wrap(faults.ErrLedger, "failed to re-encode record: %v", err)
	}
	l.slots[slotAddress] = confirmed
	l.height++
	return l.persistLocked()
}

// persistLocked mirrors state to disk; callers hold l.mu.
func (l *FileLedger) persistLocked() error {
	if l.path == "" {
		return nil
	}
	file := ledgerFile{Slots: l.slots, Balances: l.balances, Height: l.height}
	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return faults.Wrap(faults.ErrLedger, "failed to encode ledger state: %v", err)
	}
	if err := os.WriteFile(l.path, raw, 0644); err != nil {
		return faults.Wrap(faults.ErrLedger, "failed to write ledger file %s", l.path)
	}
	return nil
}

// slotBump derives a stable, address-dependent bump byte for a new slot.
func slotBump(slotAddress string) uint8 {
	raw, err := base58.Decode(slotAddress)
	if err != nil || len(raw) == 0 {
		return 255
	}
	return 255 - raw[0]%64
}

// randomSignature fabricates a 64-byte base58 transaction signature.
func randomSignature() string {
	sig := make([]byte, 64)
	rand.Read(sig)
	return base58.Encode(sig)
}
