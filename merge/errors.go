package merge

import (
	"errors"
	"fmt"

	"github.com/kuan-lab/kns/kns"
)

var (
	// ErrStalePool is returned when a block holds labels the persisted ID pool
	// does not cover, meaning the pool was built before this block's current
	// segmentation.  The pool must be rebuilt; a fabricated ID is never assigned.
	ErrStalePool = errors.New("id pool is stale for block")

	// ErrInconsistentLedger is returned when the progress ledger claims a block
	// is applied but its output region is absent or corrupt.  The block must be
	// cleaned by the operator.
	ErrInconsistentLedger = errors.New("ledger inconsistent with output volume")

	// ErrIllegalTransition is returned for block state transitions that skip a
	// state or regress without an explicit clean.
	ErrIllegalTransition = errors.New("illegal block state transition")
)

// BlockError ties a failure to the offending block and names the corrective
// action the operator should take.
type BlockError struct {
	Index  int
	Bounds kns.Box3d
	Action string
	Err    error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %d %s: %v (corrective action: %s)", e.Index, e.Bounds, e.Err, e.Action)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

func blockErr(index int, bounds kns.Box3d, action string, err error) *BlockError {
	return &BlockError{Index: index, Bounds: bounds, Action: action, Err: err}
}
