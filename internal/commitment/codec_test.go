package commitment

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"reflect"
	"testing"

	"github.com/mr-tron/base58"

	"flexanon/internal/faults"
	"flexanon/internal/merkle"
)

func testOwner(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	return base58.Encode(pub)
}

func testRecord(t *testing.T) *Record {
	t.Helper()
	root, err := RootFromHex(merkle.Hash("some root"))
	if err != nil {
		t.Fatalf("RootFromHex failed: %v", err)
	}
	return &Record{
		Owner:      testOwner(t),
		MerkleRoot: root,
		Version:    3,
		Metadata: Metadata{
			Chain:             "solana",
			SnapshotTimestamp: 1700000000,
			PrivacyScore:      62,
		},
		Timestamp: 1700000100,
		Revoked:   false,
		Bump:      254,
	}
}

func TestRoundTrip(t *testing.T) {
	t.Run("without expiry", func(t *testing.T) {
		r := testRecord(t)
		raw, err := Encode(r)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if !reflect.DeepEqual(r, got) {
			t.Errorf("round trip mismatch:\n want %+v\n got  %+v", r, got)
		}
	})

	t.Run("with expiry", func(t *testing.T) {
		r := testRecord(t)
		expiry := int64(1800000000)
		r.Metadata.ExpiresAt = &expiry
		r.Revoked = true
		raw, err := Encode(r)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if !reflect.DeepEqual(r, got) {
			t.Errorf("round trip mismatch:\n want %+v\n got  %+v", r, got)
		}
	})

	t.Run("encode is byte-stable", func(t *testing.T) {
		r := testRecord(t)
		a, _ := Encode(r)
		b, _ := Encode(r)
		if string(a) != string(b) {
			t.Errorf("two encodings of the same record differ")
		}
	})
}

func TestDecodeTruncation(t *testing.T) {
	r := testRecord(t)
	raw, err := Encode(r)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Every strict prefix must fail with a malformed-record error, never panic.
	for n := 0; n < len(raw); n++ {
		_, err := Decode(raw[:n])
		if err == nil {
			t.Fatalf("Decode accepted a %d-byte truncation of a %d-byte record", n, len(raw))
		}
		if !errors.Is(err, faults.ErrMalformedRecord) {
			t.Fatalf("truncation at %d returned wrong kind: %v", n, err)
		}
	}
}

func TestDecodeBadFields(t *testing.T) {
	r := testRecord(t)
	raw, _ := Encode(r)

	t.Run("oversized chain length", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		// chain length prefix sits after 8+32+32+4 bytes
		bad[76] = 0xff
		bad[77] = 0xff
		if _, err := Decode(bad); !errors.Is(err, faults.ErrMalformedRecord) {
			t.Errorf("oversized chain length should be malformed, got %v", err)
		}
	})

	t.Run("invalid expiry flag", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		flagOffset := 8 + 32 + 32 + 4 + 4 + len(r.Metadata.Chain) + 8
		bad[flagOffset] = 7
		if _, err := Decode(bad); !errors.Is(err, faults.ErrMalformedRecord) {
			t.Errorf("invalid expiry flag should be malformed, got %v", err)
		}
	})
}

func TestEncodeRejectsBadOwner(t *testing.T) {
	r := testRecord(t)
	r.Owner = "not-base58-!!"
	if _, err := Encode(r); !errors.Is(err, faults.ErrValidation) {
		t.Errorf("bad owner should be a validation error, got %v", err)
	}
}

func TestSlotAddress(t *testing.T) {
	owner := testOwner(t)

	a, err := SlotAddress(owner)
	if err != nil {
		t.Fatalf("SlotAddress failed: %v", err)
	}
	b, err := SlotAddress(owner)
	if err != nil {
		t.Fatalf("SlotAddress failed: %v", err)
	}
	if a != b {
		t.Errorf("slot derivation is not deterministic")
	}

	other, err := SlotAddress(testOwner(t))
	if err != nil {
		t.Fatalf("SlotAddress failed: %v", err)
	}
	if a == other {
		t.Errorf("distinct owners derived the same slot")
	}

	if _, err := SlotAddress("garbage"); !errors.Is(err, faults.ErrValidation) {
		t.Errorf("bad owner should be a validation error, got %v", err)
	}
}
