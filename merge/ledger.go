package merge

import (
	"fmt"
	"sync"

	"github.com/kuan-lab/kns/storage"
)

// ledgerKeyPrefix namespaces progress ledger entries in the key-value store.
const ledgerKeyPrefix = "ledger:"

// BlockState is a block's position in the merge pipeline.
type BlockState uint8

const (
	// StatePending means the block has not entered pool construction.
	// Blocks without a ledger entry are pending.
	StatePending BlockState = iota

	// StatePooled means the block's labels are covered by the persisted ID pool.
	StatePooled

	// StateApplied means the block's relabeled region has been written to the
	// output volume.  Terminal until explicitly cleaned.
	StateApplied
)

func (s BlockState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StatePooled:
		return "pooled"
	case StateApplied:
		return "applied"
	default:
		return fmt.Sprintf("unknown state %d", uint8(s))
	}
}

// ProgressLedger is the persisted block -> state table.  It is the sole
// source of truth for what must be redone after interruption: no phase
// reconstructs in-flight state from logs.  Transitions are atomic per block
// and may not skip a state.
type ProgressLedger struct {
	db storage.KeyValueDB

	// Serializes read-modify-write transitions on the same block.
	mu sync.Mutex
}

// NewProgressLedger returns a ledger over the given store.
func NewProgressLedger(db storage.KeyValueDB) *ProgressLedger {
	return &ProgressLedger{db: db}
}

func ledgerKey(index int) []byte {
	return []byte(fmt.Sprintf("%s%08d", ledgerKeyPrefix, index))
}

// GetState returns the block's state.  A block without a ledger entry is pending.
func (l *ProgressLedger) GetState(index int) (BlockState, error) {
	v, err := l.db.Get(ledgerKey(index))
	if err != nil {
		return StatePending, err
	}
	if v == nil {
		return StatePending, nil
	}
	if len(v) != 1 || v[0] > uint8(StateApplied) {
		return StatePending, fmt.Errorf("corrupt ledger entry for block %d: %v", index, v)
	}
	return BlockState(v[0]), nil
}

// Transition advances a block to the given state.  Only pending -> pooled and
// pooled -> applied are legal; setting the current state again is a no-op so
// re-runs stay idempotent.  Any other request fails with ErrIllegalTransition.
func (l *ProgressLedger) Transition(index int, to BlockState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	from, err := l.GetState(index)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if to != from+1 {
		return fmt.Errorf("block %d %s -> %s: %w", index, from, to, ErrIllegalTransition)
	}
	return l.db.Put(ledgerKey(index), []byte{uint8(to)})
}

// Demote moves a pooled block back to pending, used when rebuilding the pool
// from scratch.  Applied blocks are left alone.
func (l *ProgressLedger) Demote(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	from, err := l.GetState(index)
	if err != nil {
		return err
	}
	if from != StatePooled {
		return nil
	}
	return l.db.Delete(ledgerKey(index))
}

// Clean resets a block to pending from any state, discarding its ledger entry.
func (l *ProgressLedger) Clean(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Delete(ledgerKey(index))
}

// BlocksInState returns the indices of all blocks recorded in the given
// state, ascending.  Pending blocks have no entries, so asking for pending
// always returns nil; diff against the block index instead.
func (l *ProgressLedger) BlocksInState(state BlockState) ([]int, error) {
	var indices []int
	err := l.db.ProcessPrefix([]byte(ledgerKeyPrefix), func(k, v []byte) error {
		if len(v) == 1 && BlockState(v[0]) == state {
			var index int
			if _, err := fmt.Sscanf(string(k), ledgerKeyPrefix+"%d", &index); err != nil {
				return fmt.Errorf("bad ledger key %q: %v", string(k), err)
			}
			indices = append(indices, index)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return indices, nil
}

// Counts returns how many blocks are recorded in each non-pending state.
func (l *ProgressLedger) Counts() (map[BlockState]int, error) {
	counts := make(map[BlockState]int)
	err := l.db.ProcessPrefix([]byte(ledgerKeyPrefix), func(k, v []byte) error {
		if len(v) == 1 {
			counts[BlockState(v[0])]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
