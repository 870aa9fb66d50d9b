package table

import "errors"

var (
	// ErrSolved reports that the table already holds a latched collision;
	// the record was accepted but not merged.
	ErrSolved = errors.New("table: search already solved")

	// ErrNoSolution reports a solver configuration problem: the group order
	// is absent or not the prime order of the subgroup the walks ran in.
	ErrNoSolution = errors.New("table: no solution under configured group order")

	// ErrVerify reports that a recovered scalar failed the k·G = P check:
	// the collision was a false positive (or a distance-accounting bug) and
	// the search must resume rather than trust it.
	ErrVerify = errors.New("table: recovered scalar failed verification")

	// ErrKindMismatch reports a solve attempt over two records that are not
	// one tame and one wild on the same point.
	ErrKindMismatch = errors.New("table: solve needs one tame and one wild record for the same point")
)
