// Package curve defines the narrow group-arithmetic boundary the collision
// search consumes. The search itself never touches coordinates: it only adds
// points, multiplies by scalars, and compares canonical encodings.
//
// Two implementations ship here: a math/big short-Weierstrass group for
// arbitrary (small) curves, and an adapter over cloudflare/circl's P-256
// prime-order group. Anything satisfying Group can back a search.
package curve

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
)

// Point is an immutable curve point. Equality and hashing throughout the
// engine are defined over the canonical encoding returned by Encode, so two
// Points from the same Group that encode identically are the same point.
type Point interface {
	// Encode returns the canonical compressed encoding of the point.
	// The result must not be mutated by the caller.
	Encode() []byte
	Equal(Point) bool
	IsIdentity() bool
}

// Group is the arithmetic collaborator for one curve subgroup.
//
// Contract:
// - Order MUST be the order of the cyclic subgroup generated by Generator.
// - Add/ScalarMult/ScalarBaseMult MUST be deterministic.
// - Decode MUST accept exactly the encodings produced by Encode.
type Group interface {
	Name() string
	Order() *big.Int
	Generator() Point
	Add(p, q Point) Point
	ScalarMult(p Point, k *big.Int) Point
	ScalarBaseMult(k *big.Int) Point
	Decode(b []byte) (Point, error)
}

var (
	regMu    sync.RWMutex
	registry = map[string]func() Group{}
)

// Register makes a named group constructor available to Lookup.
// Intended for use from init functions; duplicate names panic.
func Register(name string, ctor func() Group) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("curve: duplicate registration of %q", name))
	}
	registry[name] = ctor
}

// Lookup returns the group registered under name.
func Lookup(name string) (Group, error) {
	regMu.RLock()
	ctor, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("curve: unknown group %q (have %v)", name, Names())
	}
	return ctor(), nil
}

// Names lists the registered group names, sorted.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
