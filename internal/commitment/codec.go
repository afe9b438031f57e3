// codec.go - Fixed-layout binary codec for the on-ledger commitment record.
//
// Layout, offsets cumulative:
//
//	 8  implementation discriminator (skipped on decode)
//	32  owner public key
//	32  merkle root
//	 4  version, u32 LE
//	 4  chain tag length, u32 LE
//	 n  chain tag, UTF-8
//	 8  snapshot timestamp, i64 LE
//	 1  expiry presence flag
//	[8] expiry, i64 LE, only if flag == 1
//	 1  privacy score
//	 8  record timestamp, i64 LE
//	 1  revoked flag
//	 1  bump
//
// Encode and Decode are exact mirrors; decode(encode(r)) == r for every
// valid record, and decode validates remaining length before each read.

package commitment

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/mr-tron/base58"

	"flexanon/internal/faults"
)

// discriminator identifies the record type, derived the way the ledger
// program derives account discriminators.
var discriminator = func() [8]byte {
	sum := sha256.Sum256([]byte("account:ShareCommitment"))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}()

// maxChainTagLen bounds the variable-length chain tag so a corrupt length
// prefix cannot drive a huge allocation.
const maxChainTagLen = 64

// Encode serializes a record into its on-ledger byte layout. This is the
// payload used when constructing a commit instruction.
func Encode(r *Record) ([]byte, error) {
	pub, err := base58.Decode(r.Owner)
	if err != nil || len(pub) != 32 {
		return nil, faults.Wrap(faults.ErrValidation, "record owner %q is not a base58 32-byte public key", r.Owner)
	}
	chain := []byte(r.Metadata.Chain)
	if len(chain) > maxChainTagLen {
		return nil, faults.Wrap(faults.ErrValidation, "chain tag exceeds %d bytes", maxChainTagLen)
	}

	size := 8 + 32 + 32 + 4 + 4 + len(chain) + 8 + 1 + 1 + 8 + 1 + 1
	if r.Metadata.ExpiresAt != nil {
		size += 8
	}
	buf := make([]byte, 0, size)

	buf = append(buf, discriminator[:]...)
	buf = append(buf, pub...)
	buf = append(buf, r.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, r.Version)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(chain)))
	buf = append(buf, chain...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Metadata.SnapshotTimestamp))
	if r.Metadata.ExpiresAt != nil {
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(*r.Metadata.ExpiresAt))
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, r.Metadata.PrivacyScore)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Timestamp))
	if r.Revoked {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, r.Bump)
	return buf, nil
}

// decoder reads the fixed layout field by field, checking remaining length
// before every read instead of trusting the buffer.
type decoder struct {
	data   []byte
	offset int
}

func (d *decoder) take(n int, field string) ([]byte, error) {
	if d.offset+n > len(d.data) {
		return nil, faults.Wrap(faults.ErrMalformedRecord,
			"record truncated reading %s at offset %d (need %d bytes, have %d)",
			field, d.offset, n, len(d.data)-d.offset)
	}
	out := d.data[d.offset : d.offset+n]
	d.offset += n
	return out, nil
}

func (d *decoder) u32(field string) (uint32, error) {
	raw, err := d.take(4, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

func (d *decoder) i64(field string) (int64, error) {
	raw, err := d.take(8, field)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(raw)), nil
}

func (d *decoder) u8(field string) (byte, error) {
	raw, err := d.take(1, field)
	if err != nil {
		return 0, err
	}
	return raw[0], nil
}

// Decode parses an on-ledger byte buffer into a record. Any truncation or
// malformed field yields ErrMalformedRecord; the buffer is never read out
// of bounds.
func Decode(data []byte) (*Record, error) {
	d := &decoder{data: data}

	if _, err := d.take(8, "discriminator"); err != nil {
		return nil, err
	}
	owner, err := d.take(32, "owner")
	if err != nil {
		return nil, err
	}
	root, err := d.take(32, "merkle root")
	if err != nil {
		return nil, err
	}
	version, err := d.u32("version")
	if err != nil {
		return nil, err
	}
	chainLen, err := d.u32("chain tag length")
	if err != nil {
		return nil, err
	}
	if chainLen > maxChainTagLen {
		return nil, faults.Wrap(faults.ErrMalformedRecord, "chain tag length %d exceeds maximum %d", chainLen, maxChainTagLen)
	}
	chain, err := d.take(int(chainLen), "chain tag")
	if err != nil {
		return nil, err
	}
	snapshotTS, err := d.i64("snapshot timestamp")
	if err != nil {
		return nil, err
	}
	expiryFlag, err := d.u8("expiry flag")
	if err != nil {
		return nil, err
	}
	var expiresAt *int64
	if expiryFlag == 1 {
		v, err := d.i64("expiry")
		if err != nil {
			return nil, err
		}
		expiresAt = &v
	} else if expiryFlag != 0 {
		return nil, faults.Wrap(faults.ErrMalformedRecord, "expiry flag must be 0 or 1, got %d", expiryFlag)
	}
	privacyScore, err := d.u8("privacy score")
	if err != nil {
		return nil, err
	}
	timestamp, err := d.i64("record timestamp")
	if err != nil {
		return nil, err
	}
	revoked, err := d.u8("revoked flag")
	if err != nil {
		return nil, err
	}
	bump, err := d.u8("bump")
	if err != nil {
		return nil, err
	}

	r := &Record{
		Owner:   base58.Encode(owner),
		Version: version,
		Metadata: Metadata{
			Chain:             string(chain),
			SnapshotTimestamp: snapshotTS,
			ExpiresAt:         expiresAt,
			PrivacyScore:      privacyScore,
		},
		Timestamp: timestamp,
		Revoked:   revoked == 1,
		Bump:      bump,
	}
	copy(r.MerkleRoot[:], root)
	return r, nil
}
