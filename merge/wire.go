// Package merge implements the client/server protocol that streams
// distinguished points to the collision authority and broadcasts the solve
// downward.
//
// Transport is gRPC (one bidirectional Exchange stream per client), with the
// protocol's own frames carried as opaque bytes so no protoc toolchain is
// required — the same arrangement the service descriptor in grpc.go is
// hand-written for. Frames are length-prefixed internally: every variable
// field is a uvarint length followed by the bytes.
package merge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"ecdlp.dev/kangaroo/dp"
)

// Frame tags. Part of the wire format; do not renumber.
const (
	tagHello     = 0x01 // client → server, first frame on a stream
	tagHelloOK   = 0x02 // server → client, handshake accepted
	tagBatch     = 0x03 // client → server, sequence of DP records
	tagHeartbeat = 0x04 // client → server, liveness with no payload
	tagStatus    = 0x05 // server → client, searching or solved broadcast
)

// wireVersion guards against skew between client and server builds.
const wireVersion = 1

// Decode limits. A malformed or hostile frame must cost bounded memory
// before it is rejected.
const (
	maxFieldLen = 4096
	// DefaultMaxBatch is the per-frame record ceiling the server announces
	// at handshake.
	DefaultMaxBatch = 65536
)

// Hello is the handshake: everything both sides must agree on before any
// record is merged.
type Hello struct {
	Curve    string
	Order    *big.Int
	Target   []byte // canonical encoding of the target point
	MaskBits uint8
	Name     string // client-chosen display name
}

// HelloOK is the server's handshake reply.
type HelloOK struct {
	Session  string
	MaxBatch uint32
}

// Batch is a sequence of DP records. The origin client field of each record
// is not carried on the wire; the server stamps it from the session.
type Batch struct {
	Records []dp.Record
}

// Status is the downward broadcast: still searching, or solved with the
// recovered scalar.
type Status struct {
	Solved bool
	Scalar *big.Int
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, ErrMalformed
	}
	if n > maxFieldLen {
		return nil, ErrMalformed
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrMalformed
	}
	return b, nil
}

// EncodeHello serializes h as a hello frame.
func EncodeHello(h Hello) []byte {
	buf := []byte{tagHello, wireVersion}
	buf = appendBytes(buf, []byte(h.Curve))
	buf = appendBytes(buf, h.Order.Bytes())
	buf = appendBytes(buf, h.Target)
	buf = append(buf, h.MaskBits)
	buf = appendBytes(buf, []byte(h.Name))
	return buf
}

func decodeHello(r *bytes.Reader) (Hello, error) {
	var h Hello
	v, err := r.ReadByte()
	if err != nil || v != wireVersion {
		return h, fmt.Errorf("%w: wire version %d", ErrConfigMismatch, v)
	}
	name, err := readBytes(r)
	if err != nil {
		return h, err
	}
	order, err := readBytes(r)
	if err != nil {
		return h, err
	}
	target, err := readBytes(r)
	if err != nil {
		return h, err
	}
	mask, err := r.ReadByte()
	if err != nil {
		return h, ErrMalformed
	}
	client, err := readBytes(r)
	if err != nil {
		return h, err
	}
	if r.Len() != 0 {
		return h, ErrMalformed
	}
	h = Hello{
		Curve:    string(name),
		Order:    new(big.Int).SetBytes(order),
		Target:   target,
		MaskBits: mask,
		Name:     string(client),
	}
	return h, nil
}

// EncodeHelloOK serializes the handshake reply.
func EncodeHelloOK(ok HelloOK) []byte {
	buf := []byte{tagHelloOK}
	buf = appendBytes(buf, []byte(ok.Session))
	buf = binary.AppendUvarint(buf, uint64(ok.MaxBatch))
	return buf
}

func decodeHelloOK(r *bytes.Reader) (HelloOK, error) {
	var ok HelloOK
	sess, err := readBytes(r)
	if err != nil {
		return ok, err
	}
	maxBatch, err := binary.ReadUvarint(r)
	if err != nil || maxBatch == 0 || maxBatch > 1<<31 || r.Len() != 0 {
		return ok, ErrMalformed
	}
	return HelloOK{Session: string(sess), MaxBatch: uint32(maxBatch)}, nil
}

// EncodeBatch serializes a batch frame. Callers enforce the negotiated
// record ceiling by splitting before encoding.
func EncodeBatch(b Batch) []byte {
	buf := []byte{tagBatch}
	buf = binary.AppendUvarint(buf, uint64(len(b.Records)))
	for _, rec := range b.Records {
		buf = appendBytes(buf, rec.Point)
		buf = appendBytes(buf, rec.Distance.Bytes())
		buf = append(buf, byte(rec.Kind))
		buf = binary.BigEndian.AppendUint32(buf, rec.Herd)
	}
	return buf
}

func decodeBatch(r *bytes.Reader, maxBatch uint32) (Batch, error) {
	var b Batch
	n, err := binary.ReadUvarint(r)
	if err != nil || n > uint64(maxBatch) {
		return b, ErrMalformed
	}
	b.Records = make([]dp.Record, 0, n)
	for i := uint64(0); i < n; i++ {
		point, err := readBytes(r)
		if err != nil {
			return Batch{}, err
		}
		dist, err := readBytes(r)
		if err != nil {
			return Batch{}, err
		}
		kind, err := r.ReadByte()
		if err != nil || !dp.Kind(kind).Valid() {
			return Batch{}, ErrMalformed
		}
		var herd [4]byte
		if _, err := io.ReadFull(r, herd[:]); err != nil {
			return Batch{}, ErrMalformed
		}
		b.Records = append(b.Records, dp.Record{
			Point:    point,
			Distance: new(big.Int).SetBytes(dist),
			Kind:     dp.Kind(kind),
			Herd:     binary.BigEndian.Uint32(herd[:]),
		})
	}
	if r.Len() != 0 {
		return Batch{}, ErrMalformed
	}
	return b, nil
}

// EncodeHeartbeat serializes the liveness frame.
func EncodeHeartbeat() []byte { return []byte{tagHeartbeat} }

// EncodeStatus serializes a broadcast frame.
func EncodeStatus(st Status) []byte {
	buf := []byte{tagStatus}
	if !st.Solved {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return appendBytes(buf, st.Scalar.Bytes())
}

func decodeStatus(r *bytes.Reader) (Status, error) {
	var st Status
	b, err := r.ReadByte()
	if err != nil {
		return st, ErrMalformed
	}
	switch b {
	case 0:
		if r.Len() != 0 {
			return st, ErrMalformed
		}
		return Status{}, nil
	case 1:
		scalar, err := readBytes(r)
		if err != nil || r.Len() != 0 {
			return st, ErrMalformed
		}
		return Status{Solved: true, Scalar: new(big.Int).SetBytes(scalar)}, nil
	default:
		return st, ErrMalformed
	}
}

// Frame is the decoded form of one wire frame: exactly one field is
// populated, according to Tag.
type Frame struct {
	Tag       byte
	Hello     *Hello
	HelloOK   *HelloOK
	Batch     *Batch
	Status    *Status
	Heartbeat bool
}

// DecodeFrame parses one frame. maxBatch bounds batch decoding; 0 selects
// DefaultMaxBatch.
func DecodeFrame(raw []byte, maxBatch uint32) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, ErrMalformed
	}
	if maxBatch == 0 {
		maxBatch = DefaultMaxBatch
	}
	r := bytes.NewReader(raw[1:])
	switch raw[0] {
	case tagHello:
		h, err := decodeHello(r)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Tag: tagHello, Hello: &h}, nil
	case tagHelloOK:
		ok, err := decodeHelloOK(r)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Tag: tagHelloOK, HelloOK: &ok}, nil
	case tagBatch:
		b, err := decodeBatch(r, maxBatch)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Tag: tagBatch, Batch: &b}, nil
	case tagHeartbeat:
		if r.Len() != 0 {
			return Frame{}, ErrMalformed
		}
		return Frame{Tag: tagHeartbeat, Heartbeat: true}, nil
	case tagStatus:
		st, err := decodeStatus(r)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Tag: tagStatus, Status: &st}, nil
	default:
		return Frame{}, fmt.Errorf("%w: unknown frame tag %#02x", ErrMalformed, raw[0])
	}
}
