// kangaroo-work inspects and combines search snapshot files without a
// running daemon: print a snapshot's CID, summarize its contents, or merge
// two independently collected snapshots into one.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"

	"ecdlp.dev/kangaroo/checkpoint"
	"ecdlp.dev/kangaroo/dp"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}
	switch args[0] {
	case "cid":
		return cmdCID(args[1:], out, errOut)
	case "info":
		return cmdInfo(args[1:], out, errOut)
	case "merge":
		return cmdMerge(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "kangaroo-work: search snapshot tooling")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  kangaroo-work cid <file>")
	fmt.Fprintln(w, "  kangaroo-work info <file>")
	fmt.Fprintln(w, "  kangaroo-work merge --out <file> <a> <b>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - cid prints the CIDv1 (raw + sha2-256) of the snapshot bytes; pass it")
	fmt.Fprintln(w, "    to kangaroo-merged -resume-cid to pin the file on resume")
	fmt.Fprintln(w, "  - merge requires both snapshots to describe the same search")
}

func cmdCID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("cid", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: kangaroo-work cid <file>")
		return 2
	}
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read snapshot: %v\n", err)
		return 1
	}
	if _, err := checkpoint.Decode(raw); err != nil {
		fmt.Fprintf(errOut, "invalid snapshot: %v\n", err)
		return 1
	}
	id, err := checkpoint.CID(raw)
	if err != nil {
		fmt.Fprintf(errOut, "cid: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, id)
	return 0
}

func cmdInfo(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: kangaroo-work info <file>")
		return 2
	}
	snap, err := checkpoint.Load(fs.Arg(0), cid.Undef)
	if err != nil {
		fmt.Fprintf(errOut, "load snapshot: %v\n", err)
		return 1
	}
	var tame, wild int
	for _, rec := range snap.Records {
		if rec.Kind == dp.Tame {
			tame++
		} else {
			wild++
		}
	}
	fmt.Fprintf(out, "curve:       %s\n", snap.Curve)
	fmt.Fprintf(out, "dp-bits:     %d\n", snap.MaskBits)
	fmt.Fprintf(out, "target:      %x\n", snap.Target)
	fmt.Fprintf(out, "tame-offset: %s\n", snap.TameOffset)
	fmt.Fprintf(out, "records:     %d (%d tame, %d wild)\n", len(snap.Records), tame, wild)
	fmt.Fprintf(out, "walkers:     %d\n", len(snap.Walkers))
	return 0
}

func cmdMerge(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var outPath string
	fs.StringVar(&outPath, "out", "", "destination snapshot file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if outPath == "" || fs.NArg() != 2 {
		fmt.Fprintln(errOut, "usage: kangaroo-work merge --out <file> <a> <b>")
		return 2
	}
	a, err := checkpoint.Load(fs.Arg(0), cid.Undef)
	if err != nil {
		fmt.Fprintf(errOut, "load %s: %v\n", fs.Arg(0), err)
		return 1
	}
	b, err := checkpoint.Load(fs.Arg(1), cid.Undef)
	if err != nil {
		fmt.Fprintf(errOut, "load %s: %v\n", fs.Arg(1), err)
		return 1
	}
	merged, err := checkpoint.Merge(a, b)
	if err != nil {
		fmt.Fprintf(errOut, "merge: %v\n", err)
		return 1
	}
	id, err := checkpoint.Save(outPath, merged)
	if err != nil {
		fmt.Fprintf(errOut, "save %s: %v\n", outPath, err)
		return 1
	}
	fmt.Fprintf(errOut, "merged %d records, %d walkers\n", len(merged.Records), len(merged.Walkers))
	fmt.Fprintln(out, id)
	return 0
}
