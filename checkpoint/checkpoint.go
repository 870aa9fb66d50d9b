// Package checkpoint persists a search snapshot: the search parameters, the
// committed collision table, and the walker states, so a long search survives
// a restart and independently produced snapshots can be merged.
//
// Snapshot bytes are canonical: encoding the same snapshot always yields the
// same bytes, so a snapshot can be identified and integrity-checked by an
// IPFS-compatible CIDv1 (raw + sha2-256) over them.
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"ecdlp.dev/kangaroo/dp"
	"ecdlp.dev/kangaroo/table"
)

// Snapshot is one search frozen in time. Walkers reuse the record shape:
// Point is the kangaroo's current position, Distance its traveled distance,
// Client is unused.
type Snapshot struct {
	Curve      string
	MaskBits   uint8
	Target     []byte // canonical encoding of the target point
	TameOffset *big.Int

	Records []dp.Record // committed collision-table entries
	Walkers []dp.Record // in-flight kangaroo states, resumable
}

var magic = [4]byte{'K', 'G', 'C', 'P'}

const formatVersion = 1

// maxFieldLen bounds every variable-length field so a corrupt file costs
// bounded memory before it is rejected.
const maxFieldLen = 4096

// Encode serializes s canonically. Records and walkers are sorted, so two
// snapshots with the same contents encode to the same bytes regardless of
// insertion order.
func Encode(s Snapshot) ([]byte, error) {
	if s.Curve == "" || len(s.Target) == 0 {
		return nil, fmt.Errorf("%w: missing curve or target", ErrFormat)
	}
	offset := s.TameOffset
	if offset == nil {
		offset = new(big.Int)
	}

	buf := append([]byte(nil), magic[:]...)
	buf = append(buf, formatVersion)
	buf = appendBytes(buf, []byte(s.Curve))
	buf = append(buf, s.MaskBits)
	buf = appendBytes(buf, s.Target)
	buf = appendBytes(buf, offset.Bytes())

	for _, section := range [][]dp.Record{s.Records, s.Walkers} {
		recs := append([]dp.Record(nil), section...)
		sort.Slice(recs, func(i, j int) bool { return recordLess(recs[i], recs[j]) })
		buf = binary.AppendUvarint(buf, uint64(len(recs)))
		for _, rec := range recs {
			if len(rec.Point) == 0 || rec.Distance == nil || !rec.Kind.Valid() {
				return nil, fmt.Errorf("%w: invalid record", ErrFormat)
			}
			buf = appendBytes(buf, rec.Point)
			buf = appendBytes(buf, rec.Distance.Bytes())
			buf = append(buf, byte(rec.Kind))
			buf = binary.BigEndian.AppendUint32(buf, rec.Herd)
			buf = appendBytes(buf, []byte(rec.Client))
		}
	}
	return buf, nil
}

func recordLess(a, b dp.Record) bool {
	if c := bytes.Compare(a.Point, b.Point); c != 0 {
		return c < 0
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if c := a.Distance.Cmp(b.Distance); c != 0 {
		return c < 0
	}
	if a.Herd != b.Herd {
		return a.Herd < b.Herd
	}
	return a.Client < b.Client
}

// Decode parses snapshot bytes, rejecting trailing garbage.
func Decode(raw []byte) (Snapshot, error) {
	if len(raw) < len(magic)+1 || !bytes.Equal(raw[:len(magic)], magic[:]) {
		return Snapshot{}, fmt.Errorf("%w: bad magic", ErrFormat)
	}
	if raw[len(magic)] != formatVersion {
		return Snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrFormat, raw[len(magic)])
	}
	r := bytes.NewReader(raw[len(magic)+1:])

	var s Snapshot
	name, err := readBytes(r)
	if err != nil {
		return Snapshot{}, err
	}
	s.Curve = string(name)
	maskBits, err := r.ReadByte()
	if err != nil {
		return Snapshot{}, ErrFormat
	}
	s.MaskBits = maskBits
	if s.Target, err = readBytes(r); err != nil {
		return Snapshot{}, err
	}
	offset, err := readBytes(r)
	if err != nil {
		return Snapshot{}, err
	}
	s.TameOffset = new(big.Int).SetBytes(offset)

	for i := 0; i < 2; i++ {
		recs, err := readRecords(r)
		if err != nil {
			return Snapshot{}, err
		}
		if i == 0 {
			s.Records = recs
		} else {
			s.Walkers = recs
		}
	}
	if r.Len() != 0 {
		return Snapshot{}, fmt.Errorf("%w: trailing bytes", ErrFormat)
	}
	return s, nil
}

func readRecords(r *bytes.Reader) ([]dp.Record, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, ErrFormat
	}
	capHint := n
	if capHint > maxFieldLen {
		capHint = maxFieldLen
	}
	recs := make([]dp.Record, 0, capHint)
	for i := uint64(0); i < n; i++ {
		point, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		dist, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil || !dp.Kind(kind).Valid() {
			return nil, ErrFormat
		}
		var herd [4]byte
		if _, err := io.ReadFull(r, herd[:]); err != nil {
			return nil, ErrFormat
		}
		client, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		recs = append(recs, dp.Record{
			Point:    point,
			Distance: new(big.Int).SetBytes(dist),
			Kind:     dp.Kind(kind),
			Herd:     binary.BigEndian.Uint32(herd[:]),
			Client:   string(client),
		})
	}
	return recs, nil
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil || n > maxFieldLen {
		return nil, ErrFormat
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrFormat
	}
	return b, nil
}

// CID returns the CIDv1 (raw + sha2-256) identifying snapshot bytes.
func CID(raw []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(raw, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Save encodes s and writes it to path atomically, returning the snapshot's
// CID. A crash mid-save leaves the previous snapshot intact.
func Save(path string, s Snapshot) (cid.Cid, error) {
	raw, err := Encode(s)
	if err != nil {
		return cid.Undef, err
	}
	id, err := CID(raw)
	if err != nil {
		return cid.Undef, err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return cid.Undef, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return cid.Undef, err
	}
	return id, nil
}

// Load reads and decodes a snapshot. When expect is defined, the file's CID
// must match it; any flipped bit fails with ErrIntegrity.
func Load(path string, expect cid.Cid) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	if expect.Defined() {
		id, err := CID(raw)
		if err != nil {
			return Snapshot{}, err
		}
		if !id.Equals(expect) {
			return Snapshot{}, fmt.Errorf("%w: have %s, want %s", ErrIntegrity, id, expect)
		}
	}
	return Decode(raw)
}

// Merge combines two snapshots of the same search into one, deduplicating
// table records by point and kind. Walkers are concatenated: each input's
// herds keep walking after a merged restart.
func Merge(a, b Snapshot) (Snapshot, error) {
	if a.Curve != b.Curve || a.MaskBits != b.MaskBits || !bytes.Equal(a.Target, b.Target) {
		return Snapshot{}, ErrMismatch
	}
	ao, bo := a.TameOffset, b.TameOffset
	if ao == nil {
		ao = new(big.Int)
	}
	if bo == nil {
		bo = new(big.Int)
	}
	if ao.Cmp(bo) != 0 {
		return Snapshot{}, ErrMismatch
	}

	out := Snapshot{
		Curve:      a.Curve,
		MaskBits:   a.MaskBits,
		Target:     a.Target,
		TameOffset: ao,
		Walkers:    append(append([]dp.Record(nil), a.Walkers...), b.Walkers...),
	}
	type key struct {
		point string
		kind  dp.Kind
	}
	seen := make(map[key]bool, len(a.Records)+len(b.Records))
	for _, rec := range append(append([]dp.Record(nil), a.Records...), b.Records...) {
		k := key{string(rec.Point), rec.Kind}
		if seen[k] {
			continue
		}
		seen[k] = true
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// Restore replays a snapshot's table records into tbl. A collision latched
// during the replay is returned: two merged snapshots may solve the search
// between them without another step being walked.
func Restore(tbl *table.Table, s Snapshot) (*table.Collision, error) {
	for _, rec := range s.Records {
		col, err := tbl.Insert(rec)
		if err != nil {
			if errors.Is(err, table.ErrSolved) {
				break
			}
			return nil, fmt.Errorf("checkpoint: restore: %w", err)
		}
		if col != nil {
			return col, nil
		}
	}
	if col, ok := tbl.Solved(); ok {
		return col, nil
	}
	return nil, nil
}
