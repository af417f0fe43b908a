package merge

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/kuan-lab/kns/kns"
	"github.com/kuan-lab/kns/storage"
	"github.com/kuan-lab/kns/volume"
)

// poolKey is where the current ID pool is persisted.
const poolKey = "pool:current"

// IDPool is the persisted local -> global label mapping.  Local labels are
// first made globally unique by adding a per-block offset (prefix sums of
// per-block max labels over done blocks in index order), then merged labels
// are redirected to their class representative through Rep.  The mapping is a
// total function over every local label present when the pool was built:
// offset labels without a Rep entry are their own global ID.
type IDPool struct {
	// Offsets maps block index to the offset added to its nonzero labels.
	Offsets map[int]uint64

	// MaxLabels snapshots each block's max local label at pool time, the
	// basis for stale-pool detection at apply time.
	MaxLabels map[int]uint64

	// NextGID is the first global ID beyond all offset labels.
	NextGID uint64

	// Rep maps offset labels of merged classes to the smallest member of the
	// class.  Singleton labels have no entry.
	Rep map[uint64]uint64
}

// ComputeOffsets assigns each done block a global offset so its local labels
// occupy a range of global IDs no other block uses.  A block's local label L
// maps to offset label L + offset, so global IDs start at 1 and 0 stays
// background.
//
// Offsets are sticky across pool rebuilds: a block already holding a range in
// prev keeps it, and only blocks new to the pool (or blocks whose labels
// outgrew their reserved range) draw a fresh range starting at prev's next
// free global ID.  Regions applied under an earlier pool therefore keep
// valid IDs when later-arriving blocks join the pool; a range, once granted,
// is never reassigned.
func ComputeOffsets(blocks []volume.BlockMeta, prev *IDPool) (offsets map[int]uint64, nextGID uint64) {
	offsets = make(map[int]uint64, len(blocks))
	nextGID = 1
	if prev != nil {
		nextGID = prev.NextGID
	}
	for _, meta := range blocks {
		if !meta.Done {
			continue
		}
		if prev != nil {
			if offset, found := prev.Offsets[meta.Index]; found && meta.MaxLabel <= prev.MaxLabels[meta.Index] {
				offsets[meta.Index] = offset
				continue
			}
		}
		offsets[meta.Index] = nextGID - 1
		nextGID += meta.MaxLabel
	}
	return offsets, nextGID
}

// GlobalID maps a block-local label to its global ID.  Returns ErrStalePool
// if the pool does not cover the block or the label exceeds the pool's
// snapshot of the block's labels.
func (p *IDPool) GlobalID(blockIndex int, local uint64) (uint64, error) {
	if local == 0 {
		return 0, nil
	}
	offset, found := p.Offsets[blockIndex]
	if !found {
		return 0, fmt.Errorf("block %d not in pool: %w", blockIndex, ErrStalePool)
	}
	if local > p.MaxLabels[blockIndex] {
		return 0, fmt.Errorf("block %d local label %d exceeds pooled max %d: %w",
			blockIndex, local, p.MaxLabels[blockIndex], ErrStalePool)
	}
	gid := local + offset
	if rep, merged := p.Rep[gid]; merged {
		return rep, nil
	}
	return gid, nil
}

// Covers verifies the pool is current for the given block metadata.
func (p *IDPool) Covers(meta volume.BlockMeta) error {
	if _, found := p.Offsets[meta.Index]; !found {
		return fmt.Errorf("block %d not in pool: %w", meta.Index, ErrStalePool)
	}
	if meta.MaxLabel > p.MaxLabels[meta.Index] {
		return fmt.Errorf("block %d max label %d exceeds pooled snapshot %d: %w",
			meta.Index, meta.MaxLabel, p.MaxLabels[meta.Index], ErrStalePool)
	}
	return nil
}

// RemoveBlock drops the pool's entries for a block, part of the clean
// transition.  Rep entries for the block's own labels are dropped so stale
// merges can't resurrect after re-segmentation.  A class whose representative
// happened to live in the cleaned block is re-rooted at its smallest
// surviving member, so merges between other blocks survive the clean.
func (p *IDPool) RemoveBlock(index int) {
	offset, found := p.Offsets[index]
	if !found {
		return
	}
	max := p.MaxLabels[index]
	lo, hi := offset+1, offset+max+1 // [lo, hi) is the block's offset label range
	inRange := func(gid uint64) bool { return gid >= lo && gid < hi }

	for gid := range p.Rep {
		if inRange(gid) {
			delete(p.Rep, gid)
		}
	}

	// Find the smallest surviving member of each orphaned class.
	newRep := make(map[uint64]uint64)
	for gid, rep := range p.Rep {
		if inRange(rep) {
			if cur, found := newRep[rep]; !found || gid < cur {
				newRep[rep] = gid
			}
		}
	}
	for gid, rep := range p.Rep {
		if root, orphaned := newRep[rep]; orphaned {
			if gid == root {
				delete(p.Rep, gid) // the new representative needs no entry
			} else {
				p.Rep[gid] = root
			}
		}
	}

	delete(p.Offsets, index)
	delete(p.MaxLabels, index)
}

// MarshalBinary encodes the pool deterministically: blocks ascending by
// index, then representative entries ascending by offset label.  Identical
// pools therefore serialize to identical bytes, which is what makes re-built
// pools comparable at the byte level.
func (p *IDPool) MarshalBinary() ([]byte, error) {
	indices := make([]int, 0, len(p.Offsets))
	for index := range p.Offsets {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	gids := make([]uint64, 0, len(p.Rep))
	for gid := range p.Rep {
		gids = append(gids, gid)
	}
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })

	b := make([]byte, 0, 8+8+len(indices)*20+len(gids)*16)
	var scratch [8]byte

	put64 := func(v uint64) {
		binary.LittleEndian.PutUint64(scratch[:], v)
		b = append(b, scratch[:]...)
	}
	put64(p.NextGID)
	put64(uint64(len(indices)))
	for _, index := range indices {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(index))
		b = append(b, scratch[:4]...)
		put64(p.Offsets[index])
		put64(p.MaxLabels[index])
	}
	put64(uint64(len(gids)))
	for _, gid := range gids {
		put64(gid)
		put64(p.Rep[gid])
	}
	return b, nil
}

// UnmarshalBinary decodes a pool encoded with MarshalBinary.
func (p *IDPool) UnmarshalBinary(b []byte) error {
	pos := 0
	get64 := func() (uint64, error) {
		if pos+8 > len(b) {
			return 0, fmt.Errorf("truncated id pool serialization at byte %d", pos)
		}
		v := binary.LittleEndian.Uint64(b[pos:])
		pos += 8
		return v, nil
	}
	var err error
	if p.NextGID, err = get64(); err != nil {
		return err
	}
	numBlocks, err := get64()
	if err != nil {
		return err
	}
	p.Offsets = make(map[int]uint64, numBlocks)
	p.MaxLabels = make(map[int]uint64, numBlocks)
	for i := uint64(0); i < numBlocks; i++ {
		if pos+4 > len(b) {
			return fmt.Errorf("truncated id pool serialization at byte %d", pos)
		}
		index := int(binary.LittleEndian.Uint32(b[pos:]))
		pos += 4
		if p.Offsets[index], err = get64(); err != nil {
			return err
		}
		if p.MaxLabels[index], err = get64(); err != nil {
			return err
		}
	}
	numReps, err := get64()
	if err != nil {
		return err
	}
	p.Rep = make(map[uint64]uint64, numReps)
	for i := uint64(0); i < numReps; i++ {
		gid, err := get64()
		if err != nil {
			return err
		}
		if p.Rep[gid], err = get64(); err != nil {
			return err
		}
	}
	return nil
}

// SavePool persists the pool, replacing any previous one.
func SavePool(db storage.KeyValueDB, pool *IDPool) error {
	data, err := pool.MarshalBinary()
	if err != nil {
		return fmt.Errorf("can't serialize id pool: %v", err)
	}
	serialization, err := kns.SerializeData(data, kns.Snappy, kns.CRC32)
	if err != nil {
		return err
	}
	return db.Put([]byte(poolKey), serialization)
}

// LoadPool returns the persisted pool or nil if none has been built.
func LoadPool(db storage.KeyValueDB) (*IDPool, error) {
	v, err := db.Get([]byte(poolKey))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	data, _, err := kns.DeserializeData(v, true)
	if err != nil {
		return nil, fmt.Errorf("can't deserialize id pool: %v", err)
	}
	var pool IDPool
	if err := pool.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &pool, nil
}

// DeletePool removes the persisted pool.
func DeletePool(db storage.KeyValueDB) error {
	return db.Delete([]byte(poolKey))
}
