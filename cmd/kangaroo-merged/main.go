// kangaroo-merged is the merge daemon: it owns the collision table for one
// search, accepts distinguished-point streams from workers, and broadcasts
// the recovered scalar when two walks collide.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"math/big"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"

	"ecdlp.dev/kangaroo/checkpoint"
	"ecdlp.dev/kangaroo/curve"
	"ecdlp.dev/kangaroo/dp"
	"ecdlp.dev/kangaroo/merge"
	"ecdlp.dev/kangaroo/table"
)

func main() {
	fs := flag.NewFlagSet("kangaroo-merged", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:17403", "listen address")
	curveName := fs.String("curve", "p256", "curve name")
	listCurves := fs.Bool("list-curves", false, "List registered curves and exit")
	targetHex := fs.String("target", "", "target public point, hex of its canonical encoding")
	dpBits := fs.Uint("dp-bits", 20, "distinguished point mask width in bits")
	tameOffset := fs.String("tame-offset", "0", "tame herd start offset (decimal or 0x hex)")
	shards := fs.Int("shards", 0, "collision table shard count (0 = default)")
	maxBatch := fs.Uint("max-batch", 0, "per-frame record ceiling announced to clients (0 = default)")
	clientTimeout := fs.Duration("client-timeout", merge.DefaultIdleTimeout, "reap sessions silent for this long")
	ckptPath := fs.String("checkpoint", "", "snapshot file, written periodically and on shutdown")
	ckptEvery := fs.Duration("checkpoint-every", 5*time.Minute, "snapshot interval")
	resumeCID := fs.String("resume-cid", "", "expected CID of the checkpoint file on resume")

	_ = fs.Parse(os.Args[1:])
	if *listCurves {
		for _, n := range curve.Names() {
			fmt.Fprintln(os.Stdout, n)
		}
		return
	}

	g, err := curve.Lookup(*curveName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	target, err := decodePoint(g, *targetHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -target: %v\n", err)
		os.Exit(2)
	}
	offset, err := parseScalar(*tameOffset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -tame-offset: %v\n", err)
		os.Exit(2)
	}
	mask := dp.Mask{Bits: *dpBits}

	srv, err := merge.NewServer(merge.ServerConfig{
		Group:       g,
		Target:      target,
		Mask:        mask,
		TameOffset:  offset,
		Shards:      *shards,
		MaxBatch:    uint32(*maxBatch),
		IdleTimeout: *clientTimeout,
		Logf:        logf,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer srv.Close()

	if *ckptPath != "" {
		if err := resume(srv, g, target, offset, mask, *ckptPath, *resumeCID); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	gs := grpc.NewServer()
	merge.RegisterMergeServer(gs, srv)

	var stopOnce sync.Once
	stop := func() { stopOnce.Do(gs.GracefulStop) }
	done := make(chan struct{})

	go watchSolve(srv, done, stop)
	if *ckptPath != "" {
		go checkpointLoop(srv, g, target, offset, mask, *ckptPath, *ckptEvery, done)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigc
		logf("kangaroo-merged: %s, shutting down", sig)
		stop()
	}()

	logf("kangaroo-merged listening on %s (curve=%s dp-bits=%d)", lis.Addr(), g.Name(), mask.Bits)
	if err := gs.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	close(done)

	if *ckptPath != "" {
		if id, err := saveSnapshot(srv, g, target, offset, mask, *ckptPath); err != nil {
			fmt.Fprintf(os.Stderr, "final checkpoint: %v\n", err)
		} else {
			logf("kangaroo-merged: checkpoint %s (cid %s)", *ckptPath, id)
		}
	}
	if k, ok := srv.Solution(); ok {
		fmt.Fprintln(os.Stdout, k.Text(16))
	}
}

func logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func decodePoint(g curve.Group, s string) (curve.Point, error) {
	if s == "" {
		return nil, fmt.Errorf("required")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return g.Decode(raw)
}

func parseScalar(s string) (*big.Int, error) {
	k, ok := new(big.Int).SetString(s, 0)
	if !ok || k.Sign() < 0 {
		return nil, fmt.Errorf("not a non-negative integer: %q", s)
	}
	return k, nil
}

// resume replays an earlier snapshot of the same search into the table. A
// collision already latent between the merged records solves the search
// without another step being walked.
func resume(srv *merge.Server, g curve.Group, target curve.Point, offset *big.Int, mask dp.Mask, path, expectCID string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	expect := cid.Undef
	if expectCID != "" {
		var err error
		if expect, err = cid.Decode(expectCID); err != nil {
			return fmt.Errorf("bad -resume-cid: %w", err)
		}
	}
	snap, err := checkpoint.Load(path, expect)
	if err != nil {
		return err
	}
	if snap.Curve != g.Name() || uint(snap.MaskBits) != mask.Bits ||
		!target.Equal(mustDecode(g, snap.Target)) {
		return fmt.Errorf("checkpoint %s describes a different search", path)
	}
	col, err := checkpoint.Restore(srv.Table(), snap)
	if err != nil {
		return err
	}
	logf("kangaroo-merged: resumed %d records from %s", srv.Table().Len(), path)
	if col != nil {
		k, err := table.Solve(g, target, offset, *col)
		if err != nil {
			srv.Table().Reopen()
			logf("kangaroo-merged: resumed collision did not verify: %v", err)
			return nil
		}
		fmt.Fprintln(os.Stdout, k.Text(16))
		os.Exit(0)
	}
	return nil
}

func mustDecode(g curve.Group, raw []byte) curve.Point {
	p, err := g.Decode(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corrupt point in checkpoint: %v\n", err)
		os.Exit(1)
	}
	return p
}

func snapshotOf(srv *merge.Server, g curve.Group, target curve.Point, offset *big.Int, mask dp.Mask) checkpoint.Snapshot {
	return checkpoint.Snapshot{
		Curve:      g.Name(),
		MaskBits:   uint8(mask.Bits),
		Target:     target.Encode(),
		TameOffset: offset,
		Records:    srv.Table().Snapshot(),
	}
}

func saveSnapshot(srv *merge.Server, g curve.Group, target curve.Point, offset *big.Int, mask dp.Mask, path string) (cid.Cid, error) {
	return checkpoint.Save(path, snapshotOf(srv, g, target, offset, mask))
}

func checkpointLoop(srv *merge.Server, g curve.Group, target curve.Point, offset *big.Int, mask dp.Mask, path string, every time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			id, err := saveSnapshot(srv, g, target, offset, mask, path)
			if err != nil {
				logf("kangaroo-merged: checkpoint: %v", err)
				continue
			}
			logf("kangaroo-merged: checkpoint %s (%d records, cid %s)", path, srv.Table().Len(), id)
		}
	}
}

// watchSolve stops the daemon once the broadcast has gone out.
func watchSolve(srv *merge.Server, done <-chan struct{}, stop func()) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if srv.State() != merge.Draining {
				continue
			}
			k, _ := srv.Solution()
			logf("kangaroo-merged: solved, k = %s", k.Text(16))
			// Give clients a moment to hear the broadcast before the
			// listener goes away.
			time.Sleep(2 * time.Second)
			stop()
			return
		}
	}
}
