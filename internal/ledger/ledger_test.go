package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"flexanon/internal/commitment"
	"flexanon/internal/faults"
	"flexanon/internal/merkle"
	"flexanon/internal/ownership"
)

func submitPayload(t *testing.T, owner, rootTag string) []byte {
	t.Helper()
	root, err := commitment.RootFromHex(merkle.Hash(rootTag))
	if err != nil {
		t.Fatalf("RootFromHex failed: %v", err)
	}
	raw, err := commitment.Encode(&commitment.Record{
		Owner:      owner,
		MerkleRoot: root,
		Metadata:   commitment.Metadata{Chain: "solana", SnapshotTimestamp: 1700000000, PrivacyScore: 50},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return raw
}

func TestSubmitAndRead(t *testing.T) {
	ctx := context.Background()
	l := NewFileLedger("", zerolog.Nop())

	owner, _ := ownership.GenerateKeypair()
	relayer, _ := ownership.GenerateKeypair()
	l.Fund(relayer.Address(), 10*SubmissionFee)

	slot, err := commitment.SlotAddress(owner.Address())
	if err != nil {
		t.Fatalf("SlotAddress failed: %v", err)
	}

	// First commit initializes the slot at version 1.
	receipt, err := l.SubmitRecord(ctx, slot, relayer.Address(), submitPayload(t, owner.Address(), "root-1"))
	if err != nil {
		t.Fatalf("SubmitRecord failed: %v", err)
	}
	if receipt.Signature == "" || receipt.Slot == 0 {
		t.Errorf("receipt incomplete: %+v", receipt)
	}

	raw, err := l.ReadRecord(ctx, slot)
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	record, err := commitment.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if record.Version != 1 {
		t.Errorf("first commit should yield version 1, got %d", record.Version)
	}
	if record.Owner != owner.Address() {
		t.Errorf("owner not preserved")
	}

	// Every subsequent commit bumps the version by exactly 1, even for an
	// identical root.
	for want := uint32(2); want <= 4; want++ {
		if _, err := l.SubmitRecord(ctx, slot, relayer.Address(), submitPayload(t, owner.Address(), "root-1")); err != nil {
			t.Fatalf("SubmitRecord failed: %v", err)
		}
		raw, _ := l.ReadRecord(ctx, slot)
		record, _ := commitment.Decode(raw)
		if record.Version != want {
			t.Errorf("expected version %d, got %d", want, record.Version)
		}
	}
}

func TestOwnerBinding(t *testing.T) {
	ctx := context.Background()
	l := NewFileLedger("", zerolog.Nop())

	owner, _ := ownership.GenerateKeypair()
	intruder, _ := ownership.GenerateKeypair()
	relayer, _ := ownership.GenerateKeypair()
	l.Fund(relayer.Address(), 10*SubmissionFee)

	slot, _ := commitment.SlotAddress(owner.Address())
	if _, err := l.SubmitRecord(ctx, slot, relayer.Address(), submitPayload(t, owner.Address(), "r")); err != nil {
		t.Fatalf("SubmitRecord failed: %v", err)
	}

	_, err := l.SubmitRecord(ctx, slot, relayer.Address(), submitPayload(t, intruder.Address(), "r"))
	if !errors.Is(err, faults.ErrLedger) {
		t.Errorf("writing another owner's slot should fail with a ledger error, got %v", err)
	}
}

func TestFeeDebit(t *testing.T) {
	ctx := context.Background()
	l := NewFileLedger("", zerolog.Nop())

	owner, _ := ownership.GenerateKeypair()
	relayer, _ := ownership.GenerateKeypair()
	slot, _ := commitment.SlotAddress(owner.Address())

	// Broke signer cannot submit.
	if _, err := l.SubmitRecord(ctx, slot, relayer.Address(), submitPayload(t, owner.Address(), "r")); !errors.Is(err, faults.ErrLedger) {
		t.Errorf("unfunded signer should fail, got %v", err)
	}

	l.Fund(relayer.Address(), 2*SubmissionFee)
	if _, err := l.SubmitRecord(ctx, slot, relayer.Address(), submitPayload(t, owner.Address(), "r")); err != nil {
		t.Fatalf("SubmitRecord failed: %v", err)
	}
	balance, _ := l.Balance(ctx, relayer.Address())
	if balance != SubmissionFee {
		t.Errorf("fee not debited: balance %d", balance)
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	l := NewFileLedger("", zerolog.Nop())

	owner, _ := ownership.GenerateKeypair()
	relayer, _ := ownership.GenerateKeypair()
	l.Fund(relayer.Address(), 10*SubmissionFee)
	slot, _ := commitment.SlotAddress(owner.Address())
	if _, err := l.SubmitRecord(ctx, slot, relayer.Address(), submitPayload(t, owner.Address(), "r")); err != nil {
		t.Fatalf("SubmitRecord failed: %v", err)
	}

	if err := l.Revoke(slot, "wrong-owner"); err == nil {
		t.Errorf("revocation by a non-owner should fail")
	}
	if err := l.Revoke(slot, owner.Address()); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	raw, _ := l.ReadRecord(ctx, slot)
	record, _ := commitment.Decode(raw)
	if !record.Revoked {
		t.Errorf("record should be revoked")
	}
	if err := l.Revoke(slot, owner.Address()); !errors.Is(err, faults.ErrRevoked) {
		t.Errorf("double revocation should report ErrRevoked, got %v", err)
	}
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	l, err := LoadFileLedger(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadFileLedger on a fresh path failed: %v", err)
	}
	owner, _ := ownership.GenerateKeypair()
	relayer, _ := ownership.GenerateKeypair()
	l.Fund(relayer.Address(), 10*SubmissionFee)
	slot, _ := commitment.SlotAddress(owner.Address())
	if _, err := l.SubmitRecord(ctx, slot, relayer.Address(), submitPayload(t, owner.Address(), "r")); err != nil {
		t.Fatalf("SubmitRecord failed: %v", err)
	}

	reloaded, err := LoadFileLedger(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	raw, err := reloaded.ReadRecord(ctx, slot)
	if err != nil {
		t.Fatalf("ReadRecord after reload failed: %v", err)
	}
	record, err := commitment.Decode(raw)
	if err != nil {
		t.Fatalf("Decode after reload failed: %v", err)
	}
	if record.Version != 1 || record.Owner != owner.Address() {
		t.Errorf("reloaded record mismatch: %+v", record)
	}
}

func TestReadAbsentSlot(t *testing.T) {
	l := NewFileLedger("", zerolog.Nop())
	if _, err := l.ReadRecord(context.Background(), "missing"); !errors.Is(err, faults.ErrRecordNotFound) {
		t.Errorf("absent slot should report ErrRecordNotFound, got %v", err)
	}
}
