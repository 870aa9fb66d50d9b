// kangaroo is the worker: it walks tame and wild kangaroo herds, buffers the
// distinguished points they land on, and streams them to a merge daemon
// until the search is solved.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecdlp.dev/kangaroo/curve"
	"ecdlp.dev/kangaroo/dp"
	"ecdlp.dev/kangaroo/merge"
	"ecdlp.dev/kangaroo/walk"
)

func main() {
	fs := flag.NewFlagSet("kangaroo", flag.ExitOnError)
	server := fs.String("server", "127.0.0.1:17403", "merge daemon address")
	name := fs.String("name", "", "worker display name")
	curveName := fs.String("curve", "p256", "curve name")
	targetHex := fs.String("target", "", "target public point, hex of its canonical encoding")
	dpBits := fs.Uint("dp-bits", 20, "distinguished point mask width in bits")
	rangeBits := fs.Uint("range-bits", 64, "bit width of the search interval")
	tameOffset := fs.String("tame-offset", "0", "tame herd start offset, must match the daemon")
	jumpSeed := fs.String("jump-seed", "", "jump table seed (default: the target encoding, so all workers agree)")
	lanes := fs.Int("lanes", 2, "walk lanes; even lanes walk tame herds, odd lanes wild")
	herdSize := fs.Int("herd-size", 128, "kangaroos per lane")
	runs := fs.Int("runs", 64, "jumps per engine advance")
	flush := fs.Duration("flush", merge.DefaultFlushPeriod, "batch send period")

	_ = fs.Parse(os.Args[1:])

	g, err := curve.Lookup(*curveName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	targetRaw, err := hex.DecodeString(*targetHex)
	if err != nil || len(targetRaw) == 0 {
		fmt.Fprintf(os.Stderr, "bad -target: %v\n", err)
		os.Exit(2)
	}
	target, err := g.Decode(targetRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -target: %v\n", err)
		os.Exit(2)
	}
	offset, ok := new(big.Int).SetString(*tameOffset, 0)
	if !ok || offset.Sign() < 0 {
		fmt.Fprintf(os.Stderr, "bad -tame-offset: %q\n", *tameOffset)
		os.Exit(2)
	}
	if *lanes <= 0 || *herdSize <= 0 {
		fmt.Fprintln(os.Stderr, "-lanes and -herd-size must be positive")
		os.Exit(2)
	}
	mask := dp.Mask{Bits: *dpBits}

	seed := []byte(*jumpSeed)
	if len(seed) == 0 {
		seed = target.Encode()
	}
	js, err := walk.NewJumpSet(g, walk.JumpSetConfig{Seed: seed, RangeBits: *rangeBits})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	eng, err := walk.NewCPUEngine(g, js, walk.CPUEngineConfig{Mask: mask, Runs: *runs})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	client, err := merge.NewClient(merge.ClientConfig{
		Addr:        *server,
		Name:        *name,
		Group:       g,
		Target:      target,
		Mask:        mask,
		Lanes:       *lanes,
		FlushPeriod: *flush,
		Logf:        logf,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	walkCtx, stopWalks := context.WithCancel(ctx)
	defer stopWalks()

	for i := 0; i < *lanes; i++ {
		herd, err := seedLane(g, target, offset, *rangeBits, *herdSize, uint32(i))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		buf := client.Lane(i)
		go func() {
			if err := walk.Run(walkCtx, eng, herd, buf); err != nil && walkCtx.Err() == nil {
				logf("kangaroo: walk lane stopped: %v", err)
			}
		}()
	}

	logf("kangaroo: %d lanes x %d kangaroos on %s, expecting ~%s group operations",
		*lanes, *herdSize, g.Name(), walk.ExpectedOps(*rangeBits))

	start := time.Now()
	if err := client.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	stopWalks()

	k, ok := client.Solution()
	if !ok {
		fmt.Fprintln(os.Stderr, "kangaroo: stream ended without a solution")
		os.Exit(1)
	}
	if !g.ScalarBaseMult(k).Equal(target) {
		fmt.Fprintf(os.Stderr, "kangaroo: broadcast scalar %s does not verify\n", k.Text(16))
		os.Exit(1)
	}
	logf("kangaroo: solved in %s", time.Since(start).Round(time.Second))
	fmt.Fprintln(os.Stdout, k.Text(16))
}

func logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// randomSpread picks the stride between successive kangaroo starts, so
// independent workers do not seed identical walks. The tame offset itself is
// fixed by the daemon; the stride lands in the recorded distance.
func randomSpread(rangeBits uint) (*big.Int, error) {
	bound := new(big.Int).Lsh(big.NewInt(1), rangeBits/2)
	s, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return nil, err
	}
	return s.Add(s, big.NewInt(1)), nil
}

// seedLane builds one lane's herd with its own random stride, so no two
// lanes (or workers) walk identical paths. Even lanes are tame and must
// anchor on the shared tame offset; odd lanes are wild and start at a random
// offset from the target.
func seedLane(g curve.Group, target curve.Point, tameOffset *big.Int, rangeBits uint, herdSize int, lane uint32) ([]walk.Kangaroo, error) {
	spread, err := randomSpread(rangeBits)
	if err != nil {
		return nil, err
	}
	cfg := walk.HerdConfig{
		ID:     lane,
		Count:  herdSize,
		Spread: spread,
	}
	if lane%2 == 0 {
		cfg.Kind = dp.Tame
		cfg.Offset = tameOffset
		return walk.SeedHerd(g, nil, cfg)
	}
	cfg.Kind = dp.Wild
	bound := new(big.Int).Lsh(big.NewInt(1), rangeBits)
	wildOffset, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return nil, err
	}
	cfg.Offset = wildOffset
	return walk.SeedHerd(g, target, cfg)
}
