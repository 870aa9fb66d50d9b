package merge

import (
	"bytes"
	"math/big"
	"testing"

	"ecdlp.dev/kangaroo/dp"
)

func TestHelloRoundTrip(t *testing.T) {
	in := Hello{
		Curve:    "toy13",
		Order:    big.NewInt(11),
		Target:   []byte{0x03, 0x05},
		MaskBits: 4,
		Name:     "worker-1",
	}
	frame, err := DecodeFrame(EncodeHello(in), 0)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if frame.Hello == nil {
		t.Fatalf("decoded frame is not a hello")
	}
	got := *frame.Hello
	if got.Curve != in.Curve || got.Order.Cmp(in.Order) != 0 ||
		!bytes.Equal(got.Target, in.Target) || got.MaskBits != in.MaskBits || got.Name != in.Name {
		t.Fatalf("hello round trip mismatch: %+v vs %+v", got, in)
	}
}

func TestHelloOKRoundTrip(t *testing.T) {
	frame, err := DecodeFrame(EncodeHelloOK(HelloOK{Session: "c0001-w", MaxBatch: 4096}), 0)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if frame.HelloOK == nil || frame.HelloOK.Session != "c0001-w" || frame.HelloOK.MaxBatch != 4096 {
		t.Fatalf("helloOK round trip mismatch: %+v", frame.HelloOK)
	}
}

func TestBatchRoundTrip(t *testing.T) {
	in := Batch{Records: []dp.Record{
		{Point: []byte{0x02, 0x0a}, Distance: big.NewInt(41), Kind: dp.Tame, Herd: 1},
		{Point: []byte{0x03, 0x01}, Distance: new(big.Int).Lsh(big.NewInt(1), 130), Kind: dp.Wild, Herd: 7},
		{Point: []byte{0x02, 0x06}, Distance: big.NewInt(0), Kind: dp.Tame, Herd: 0},
	}}
	frame, err := DecodeFrame(EncodeBatch(in), 0)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if frame.Batch == nil || len(frame.Batch.Records) != len(in.Records) {
		t.Fatalf("batch round trip lost records")
	}
	for i, rec := range frame.Batch.Records {
		want := in.Records[i]
		if !bytes.Equal(rec.Point, want.Point) || rec.Distance.Cmp(want.Distance) != 0 ||
			rec.Kind != want.Kind || rec.Herd != want.Herd {
			t.Fatalf("record %d mismatch: %+v vs %+v", i, rec, want)
		}
		if rec.Client != "" {
			t.Fatalf("client id must not travel on the wire")
		}
	}
}

func TestStatusRoundTrip(t *testing.T) {
	frame, err := DecodeFrame(EncodeStatus(Status{}), 0)
	if err != nil || frame.Status == nil || frame.Status.Solved {
		t.Fatalf("searching status round trip: frame=%+v err=%v", frame, err)
	}
	frame, err = DecodeFrame(EncodeStatus(Status{Solved: true, Scalar: big.NewInt(7)}), 0)
	if err != nil || frame.Status == nil || !frame.Status.Solved || frame.Status.Scalar.Int64() != 7 {
		t.Fatalf("solved status round trip: frame=%+v err=%v", frame, err)
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	frame, err := DecodeFrame(EncodeHeartbeat(), 0)
	if err != nil || !frame.Heartbeat {
		t.Fatalf("heartbeat round trip: frame=%+v err=%v", frame, err)
	}
}

func TestDecodeFrameRejectsMalformedInput(t *testing.T) {
	cases := map[string][]byte{
		"empty":             nil,
		"unknown tag":       {0xff, 0x00},
		"truncated hello":   {tagHello, wireVersion, 0x05, 'a'},
		"hello bad version": {tagHello, 0x09},
		"heartbeat payload": {tagHeartbeat, 0x01},
		"status bad code":   {tagStatus, 0x07},
		"batch truncated":   {tagBatch, 0x02, 0x01, 0x41},
		"trailing junk":     append(EncodeHeartbeat(), 0x00),
	}
	for name, raw := range cases {
		if _, err := DecodeFrame(raw, 0); err == nil {
			t.Errorf("%s: decode succeeded, want error", name)
		}
	}
}

func TestDecodeBatchEnforcesCeilings(t *testing.T) {
	big1 := Batch{Records: []dp.Record{
		{Point: []byte{0x02, 0x01}, Distance: big.NewInt(1), Kind: dp.Tame},
		{Point: []byte{0x02, 0x02}, Distance: big.NewInt(2), Kind: dp.Wild},
	}}
	if _, err := DecodeFrame(EncodeBatch(big1), 1); err == nil {
		t.Fatalf("batch over the negotiated ceiling must be rejected")
	}

	// A field length beyond the hard cap must fail before allocation pays it.
	huge := Batch{Records: []dp.Record{
		{Point: bytes.Repeat([]byte{0x02}, maxFieldLen+1), Distance: big.NewInt(1), Kind: dp.Tame},
	}}
	if _, err := DecodeFrame(EncodeBatch(huge), 0); err == nil {
		t.Fatalf("oversized point field must be rejected")
	}
}

func TestStatsRoundTrip(t *testing.T) {
	in := StatsSnapshot{
		State: Solved, Entries: 12, Inserted: 12, Duplicate: 3,
		Rejected: 1, Sessions: 2, FalsePositives: 1,
	}
	got, err := DecodeStats(EncodeStats(in))
	if err != nil {
		t.Fatalf("DecodeStats: %v", err)
	}
	if got != in {
		t.Fatalf("stats round trip mismatch: %+v vs %+v", got, in)
	}
	if _, err := DecodeStats([]byte{0x01}); err == nil {
		t.Fatalf("truncated stats must be rejected")
	}
}
